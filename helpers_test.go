package indextuner

import (
	"context"
	"testing"

	"github.com/ranxian/peloton-1/sampling"
	"github.com/ranxian/peloton-1/schema"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func sampleFor(t *testing.T, cols schema.KeySchema) sampling.Sample {
	t.Helper()
	return sampling.Sample{Kind: sampling.ReadAccess, Columns: cols, Selectivity: 0.1}
}
