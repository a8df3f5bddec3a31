package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/teranos/catalog/types"
)

// Built-in sort fields. Any other name sorts by that metadata key.
const (
	SortTimestamp     = "timestamp"
	SortExecutionTime = "execution_time"
	SortCost          = "cost"
	SortAlgorithm     = "algorithm"
	SortResultCount   = "result_count"
)

// Sort orders a result set by one field, descending unless Ascending
type Sort struct {
	Field     string
	Ascending bool
}

// sortKey returns the value of field on e, or nil when e has none
func sortKey(e *types.Execution, field string) interface{} {
	switch field {
	case SortTimestamp, "":
		return e.Timestamp
	case SortExecutionTime:
		return e.Performance.ExecutionTimeSeconds
	case SortCost:
		if cost, ok := e.Cost(); ok {
			return cost
		}
		return nil
	case SortAlgorithm:
		return e.Algorithm
	case SortResultCount:
		return float64(e.ResultCount)
	default:
		v, ok := e.Metadata[field]
		if !ok {
			return nil
		}
		return v
	}
}

// compareKeys orders two sort keys. Numbers compare numerically, times
// chronologically, anything else by its printed form.
func compareKeys(a, b interface{}) int {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return compareFloat(af, bf)
		}
	}

	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortExecutions stably sorts execs by order. Executions without a value for
// the field go last in either direction. A nil order keeps newest first.
func SortExecutions(execs []*types.Execution, order *Sort) {
	if order == nil {
		order = &Sort{Field: SortTimestamp}
	}
	sort.SliceStable(execs, func(i, j int) bool {
		a, b := sortKey(execs[i], order.Field), sortKey(execs[j], order.Field)
		if a == nil || b == nil {
			return a != nil
		}
		c := compareKeys(a, b)
		if order.Ascending {
			return c < 0
		}
		return c > 0
	})
}
