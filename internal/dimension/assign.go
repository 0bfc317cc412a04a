package dimension

import "github.com/eventstar/eventstar/pkg/types"

// Mapping resolves a natural key to its surrogate key.
type Mapping[K comparable] map[K]int64

// Lookup returns the surrogate key for k.
func (m Mapping[K]) Lookup(k K) (int64, bool) {
	key, ok := m[k]
	return key, ok
}

// Assign groups rows by natural key and assigns dense surrogate keys 1..N in
// order of first appearance. Rows for which key reports false do not qualify
// for the dimension. build is called once per distinct key with the first
// row carrying it.
func Assign[K comparable, R any](
	rows []types.ReconciledEvent,
	key func(ev types.ReconciledEvent) (K, bool),
	build func(surrogate int64, k K, first types.ReconciledEvent) R,
) ([]R, Mapping[K]) {
	mapping := make(Mapping[K])
	out := make([]R, 0)

	for _, ev := range rows {
		k, ok := key(ev)
		if !ok {
			continue
		}
		if _, seen := mapping[k]; seen {
			continue
		}
		surrogate := int64(len(out) + 1)
		mapping[k] = surrogate
		out = append(out, build(surrogate, k, ev))
	}
	return out, mapping
}
