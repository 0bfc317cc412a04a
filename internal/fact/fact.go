// Package fact assembles the events fact table from reconciled events and
// the dimension key mappings.
package fact

import (
	"runtime"
	"sync"

	"github.com/eventstar/eventstar/internal/dimension"
	"github.com/eventstar/eventstar/pkg/types"
)

// minChunk is the smallest slice of rows worth handing to a worker.
const minChunk = 4096

// Assemble resolves the four dimension keys of every row. A row whose natural
// key has no dimension member gets a null key. The output has one fact per
// input row, in input order.
func Assemble(rows []types.ReconciledEvent, tables *dimension.Tables) []types.FactEvent {
	out := make([]types.FactEvent, len(rows))
	if len(rows) == 0 {
		return out
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(rows) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	// Workers only read the mappings and write disjoint ranges of out.
	var wg sync.WaitGroup
	for start := 0; start < len(rows); start += chunk {
		start := start
		end := min(start+chunk, len(rows))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = assembleOne(rows[i], tables)
			}
		}()
	}
	wg.Wait()
	return out
}

func assembleOne(ev types.ReconciledEvent, t *dimension.Tables) types.FactEvent {
	f := types.FactEvent{Event: ev.Event}
	if k, ok := dimension.DeviceKeyOf(ev); ok {
		f.DeviceKey = lookup(t.DeviceKeys, k)
	}
	if k, ok := dimension.UserKeyOf(ev); ok {
		f.UserKey = lookup(t.UserKeys, k)
	}
	if k, ok := dimension.LocationKeyOf(ev); ok {
		f.LocationKey = lookup(t.LocationKeys, k)
	}
	if k, ok := dimension.DateKeyOf(ev); ok {
		f.DateKey = lookup(t.DateKeys, k)
	}
	return f
}

func lookup[K comparable](m dimension.Mapping[K], k K) types.NullInt64 {
	if key, ok := m.Lookup(k); ok {
		return types.Int64Of(key)
	}
	return types.NullInt64{}
}
