package storage

import (
	"sort"
	"time"

	"github.com/teranos/catalog/types"
)

// SortNewestFirst orders items by the time key returns, newest first, ties by id ascending
func SortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		ta, ida := key(items[i])
		tb, idb := key(items[j])
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return ida < idb
	})
}

// SortExecutions orders newest first, ties by id ascending
func SortExecutions(execs []*types.Execution) {
	SortNewestFirst(execs, func(e *types.Execution) (time.Time, string) { return e.Timestamp, e.ID })
}

// SortEpochs orders newest first, ties by id ascending
func SortEpochs(epochs []*types.Epoch) {
	SortNewestFirst(epochs, func(e *types.Epoch) (time.Time, string) { return e.Timestamp, e.ID })
}

func SortRequirements(reqs []*types.ExtractedRequirements) {
	SortNewestFirst(reqs, func(r *types.ExtractedRequirements) (time.Time, string) { return r.Timestamp, r.ID })
}

func SortUseCases(ucs []*types.GeneratedUseCase) {
	SortNewestFirst(ucs, func(u *types.GeneratedUseCase) (time.Time, string) { return u.Timestamp, u.ID })
}

func SortTemplates(tmpls []*types.AnalysisTemplate) {
	SortNewestFirst(tmpls, func(t *types.AnalysisTemplate) (time.Time, string) { return t.Timestamp, t.ID })
}

// Page applies offset and limit to an ordered slice. limit <= 0 means no limit.
func Page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
