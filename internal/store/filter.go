package store

import (
	"fmt"
	"sort"
	"strings"
)

// Filter selects words by column. Values are compared for equality; a Range
// value expresses numeric comparisons (needed for difficult > 2). Tier, flag
// and content columns are compared as strings.
type Filter map[string]any

// Range is a numeric comparison descriptor. Nil fields are ignored.
type Range struct {
	GT  *int
	GTE *int
	LT  *int
	LTE *int
	NE  *int
}

// Int returns a pointer for use in Range literals.
func Int(n int) *int { return &n }

// Sort orders a word query by one column.
type Sort struct {
	Column string
	Desc   bool
}

// filterableColumns guards filter and sort input against arbitrary SQL.
var filterableColumns = map[string]bool{
	"id":                       true,
	"no":                       true,
	"word":                     true,
	"content":                  true,
	"phone":                    true,
	"is_studied":               true,
	"known2":                   true,
	"status":                   true,
	"difficult":                true,
	"first_time_in_memorizing": true,
	"studied_date":             true,
	"updated_at":               true,
}

// whereClause renders the filter as a WHERE fragment with placeholder args.
// Columns are emitted in sorted order so generated SQL is deterministic.
func (f Filter) whereClause() (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}

	columns := make([]string, 0, len(f))
	for column := range f {
		if !filterableColumns[column] {
			return "", nil, fmt.Errorf("filter column %q is not allowed", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	conditions := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	for _, column := range columns {
		switch v := f[column].(type) {
		case Range:
			rangeConditions, rangeArgs := v.conditions(column)
			conditions = append(conditions, rangeConditions...)
			args = append(args, rangeArgs...)
		case *Range:
			rangeConditions, rangeArgs := v.conditions(column)
			conditions = append(conditions, rangeConditions...)
			args = append(args, rangeArgs...)
		case string, int, int64, bool:
			conditions = append(conditions, column+" = ?")
			args = append(args, v)
		default:
			return "", nil, fmt.Errorf("filter column %q has unsupported value type %T", column, v)
		}
	}
	if len(conditions) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

func (r *Range) conditions(column string) ([]string, []any) {
	var conditions []string
	var args []any
	if r == nil {
		return conditions, args
	}
	if r.GT != nil {
		conditions = append(conditions, column+" > ?")
		args = append(args, *r.GT)
	}
	if r.GTE != nil {
		conditions = append(conditions, column+" >= ?")
		args = append(args, *r.GTE)
	}
	if r.LT != nil {
		conditions = append(conditions, column+" < ?")
		args = append(args, *r.LT)
	}
	if r.LTE != nil {
		conditions = append(conditions, column+" <= ?")
		args = append(args, *r.LTE)
	}
	if r.NE != nil {
		conditions = append(conditions, column+" != ?")
		args = append(args, *r.NE)
	}
	return conditions, args
}
