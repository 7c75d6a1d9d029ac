package sampling

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ranxian/peloton-1/schema"
)

func TestRing_DrainReturnsInsertionOrder(t *testing.T) {
	r := New("t", 10)
	for i := 0; i < 5; i++ {
		r.Record(Sample{Kind: ReadAccess, Columns: schema.KeySchema{1}, Selectivity: 0.1})
	}
	out := r.DrainUpTo(5)
	assert.Len(t, out, 5)
	for i := range out {
		if i > 0 {
			assert.Less(t, out[i-1].Seq, out[i].Seq)
		}
	}
	assert.Zero(t, r.Len())
}

func TestRing_OverflowDropsOldestNotNewest(t *testing.T) {
	r := New("t", 3)
	for i := 0; i < 3; i++ {
		r.Record(Sample{Selectivity: float64(i)})
	}
	// ring is full; the 4th record must evict seq 1 (the oldest), not
	// itself (spec.md §8 P8).
	r.Record(Sample{Selectivity: 99})

	out := r.DrainUpTo(10)
	assert.Len(t, out, 3)
	assert.Equal(t, float64(1), out[0].Selectivity)
	assert.Equal(t, float64(2), out[1].Selectivity)
	assert.Equal(t, float64(99), out[2].Selectivity)
}

func TestRing_DrainUpToCapsAtAvailable(t *testing.T) {
	r := New("t", 10)
	r.Record(Sample{})
	r.Record(Sample{})
	out := r.DrainUpTo(100)
	assert.Len(t, out, 2)
	assert.Empty(t, r.DrainUpTo(100))
}

func TestRing_SingleProducerOrderingFromAnotherGoroutine(t *testing.T) {
	r := New("t", 1000)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.Record(Sample{Selectivity: float64(i)})
		}
	}()
	wg.Wait()

	out := r.DrainUpTo(500)
	for i := range out {
		assert.Equal(t, float64(i), out[i].Selectivity)
	}
}

func TestRing_AvgLatencyTracksRecordedSamples(t *testing.T) {
	r := New("t", 10)
	r.Record(Sample{Latency: 10})
	r.Record(Sample{Latency: 20})
	assert.InDelta(t, 15.0, r.AvgLatency(), 0.0001)
}
