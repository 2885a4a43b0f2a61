package kgraph

import (
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Value model.
//
// A bound value in a Record is one of:
//
//	nil, bool, int64, float64, string,
//	[]any, map[string]any,
//	*Node, *Relationship, *Path
//
// Property maps hold the scalar/list/map subset of the same model.
// --------------------------------------------------------------------------

// typeRank assigns each value family a fixed position in the cross-type
// ordering used by ORDER BY: numbers < strings < booleans < lists < maps <
// nodes/relationships/paths. Nulls are handled separately (always last).
func typeRank(v any) int {
	switch v.(type) {
	case int, int32, int64, uint64, float32, float64:
		return 0
	case string:
		return 1
	case bool:
		return 2
	case []any:
		return 3
	case map[string]any:
		return 4
	case *Node, *Relationship, *Path:
		return 5
	default:
		return 6
	}
}

// toFloat64 attempts to convert a value to float64 for numeric comparison.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// toInt64 attempts to convert a value to int64 without loss.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// compareValues imposes a total order on non-null values: same-type values
// compare natively, cross-type values compare by typeRank. Returns -1, 0, 1.
// Null ordering is the caller's concern (sort comparators place it last;
// equality comparisons against null are false upstream of this call).
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 0: // numbers
		af, _ := toFloat64(a)
		bf, _ := toFloat64(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}

	case 1: // strings
		return strings.Compare(a.(string), b.(string))

	case 2: // booleans: false < true
		ab, bb := a.(bool), b.(bool)
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1

	case 3: // lists: element-wise, shorter first on tie
		al, bl := a.([]any), b.([]any)
		n := len(al)
		if len(bl) < n {
			n = len(bl)
		}
		for i := 0; i < n; i++ {
			if c := compareValues(al[i], bl[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(al) < len(bl):
			return -1
		case len(al) > len(bl):
			return 1
		default:
			return 0
		}

	case 4: // maps: by sorted key sequence, then values
		am, bm := a.(map[string]any), b.(map[string]any)
		ak := sortedKeys(am)
		bk := sortedKeys(bm)
		n := len(ak)
		if len(bk) < n {
			n = len(bk)
		}
		for i := 0; i < n; i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := compareValues(am[ak[i]], bm[bk[i]]); c != 0 {
				return c
			}
		}
		switch {
		case len(ak) < len(bk):
			return -1
		case len(ak) > len(bk):
			return 1
		default:
			return 0
		}

	case 5: // graph entities: by identifier
		return compareEntityIDs(a, b)
	}

	// Last resort for unknown types.
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareEntityIDs(a, b any) int {
	ida, oka := entityOrderKey(a)
	idb, okb := entityOrderKey(b)
	if !oka || !okb {
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return strings.Compare(ida, idb)
}

// entityOrderKey gives nodes, relationships, and paths a stable sort key.
// The kind prefix keeps the three families apart.
func entityOrderKey(v any) (string, bool) {
	switch e := v.(type) {
	case *Node:
		return fmt.Sprintf("n%020d", e.ID), true
	case *Relationship:
		return fmt.Sprintf("r%020d", e.ID), true
	case *Path:
		return fmt.Sprintf("p%020d.%d", e.startID(), e.Length()), true
	}
	return "", false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valuesEqual is the equality used by inline-property matching, Distinct,
// and IN. Null is never equal to anything, including null.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if typeRank(a) != typeRank(b) {
		return false
	}
	return compareValues(a, b) == 0
}

// toBool coerces a value to a boolean for WHERE evaluation. Null is false.
func toBool(v any) bool {
	if v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b != ""
	}
	return true
}
