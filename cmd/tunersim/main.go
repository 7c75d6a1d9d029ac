// tunersim replays a synthetic read/write workload against one table
// through the index tuner, then prints the resulting index catalog and
// whether the tuner reported convergence, so the convergence behavior
// described in the design can be observed from the command line. The teacher's cmd/main.go is an interactive
// object-editing REPL; there is no object store here to edit, so this
// is a batch runner instead, built in the same single-entrypoint,
// flag-configured shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	indextuner "github.com/ranxian/peloton-1"
	"github.com/ranxian/peloton-1/catalog"
	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/storage"
	"github.com/ranxian/peloton-1/testutil"
)

func main() {
	rows := flag.Int("rows", 10000, "rows to seed before the workload starts")
	extentCap := flag.Int("extent-cap", 500, "rows per extent")
	ops := flag.Int("ops", 2000, "workload operations to replay; ignored if -until-converged is set")
	untilConverged := flag.Bool("until-converged", false, "replay until the tuner reports a converged index set, instead of a fixed op count")
	maxOps := flag.Int("max-ops", 200000, "safety cap on operations when -until-converged is set")
	writeRatio := flag.Float64("write-ratio", 0.1, "fraction of operations that are updates rather than reads")
	seed := flag.Int64("seed", 1, "workload random seed")
	tenants := flag.Int64("tenants", 50, "distinct tenant ids the synthetic schema spreads rows across")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tableID := storage.NewTableID()
	table := testutil.NewTable(tableID, *extentCap)
	gen := testutil.NewRowGen(*seed, *tenants)
	ptrs := testutil.SeedRows(table, gen, *rows)

	opts := indextuner.DefaultOptions()
	opts.AnalyzeSampleCountThreshold = 200
	opts.BuildSampleCountThreshold = 200
	tuner := indextuner.New(opts, nil)

	if err := tuner.AddTable(table); err != nil {
		log.Fatalf("add table: %v", err)
	}
	if err := tuner.Start(ctx); err != nil {
		log.Fatalf("start tuner: %v", err)
	}
	defer tuner.Stop()

	rnd := rand.New(rand.NewSource(*seed + 1))
	fullCols := schema.KeySchema{testutil.ColID, testutil.ColTenant, testutil.ColStatus, testutil.ColAmount}

	n := *ops
	if *untilConverged {
		n = *maxOps
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			goto report
		default:
		}

		if rnd.Float64() < *writeRatio {
			ptr := ptrs[rnd.Intn(len(ptrs))]
			replacement := gen.Row(rnd.Int63())
			if err := tuner.UpdateRow(tableID, ptr, func(storage.Row) storage.Row { return replacement }); err != nil {
				log.Printf("update row: %v", err)
			}
			tuner.RecordSample(tableID, testutil.UpdateSample(fullCols))
			continue
		}

		// Two hot access patterns dominate the read mix, so the
		// analyzer has a clear highest-benefit candidate to converge
		// toward: an equality lookup on tenant, and one on status.
		if rnd.Float64() < 0.7 {
			tuner.RecordSample(tableID, testutil.ReadSample(schema.KeySchema{testutil.ColTenant}, 1.0/float64(*tenants)))
		} else {
			tuner.RecordSample(tableID, testutil.ReadSample(schema.KeySchema{testutil.ColStatus}, 0.25))
		}

		if *untilConverged && i%500 == 0 && tuner.Converged() {
			break
		}
	}

report:
	time.Sleep(opts.SleepDuration * 3) // let the last wave settle before reporting
	cat, _ := tuner.Catalog(tableID)
	printCatalog(cat)
	fmt.Printf("converged: %v\n", tuner.Converged())
}

func printCatalog(cat *catalog.Catalog) {
	fmt.Println("index\tstate\tschema\tp\tutility")
	for _, idx := range cat.List() {
		state := "ACTIVE"
		if idx.State() == catalog.Dropping {
			state = "DROPPING"
		}
		fmt.Printf("%s\t%s\t%s\t%d\t%.4f\n", idx.OID(), state, idx.KeySchema().String(), idx.P(), idx.Utility())
	}
}
