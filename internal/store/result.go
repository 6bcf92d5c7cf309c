package store

import (
	"math/big"
)

// Row maps a column name to a scalar: nil, string, bool, an integer type or
// float64.
type Row map[string]any

// ResultSet is the materialized output of one query. Cached result sets are
// shared between callers and must be treated as read-only.
type ResultSet struct {
	Columns     []string `json:"columns"`
	ColumnTypes []string `json:"column_types"`
	Rows        []Row    `json:"rows"`
	Count       int      `json:"count"`
}

func (rs ResultSet) HasColumn(name string) bool {
	for _, c := range rs.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Values returns the rows as positional tuples in column order.
func (rs ResultSet) Values() [][]any {
	out := make([][]any, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		vals := make([]any, len(rs.Columns))
		for i, c := range rs.Columns {
			vals[i] = r[c]
		}
		out = append(out, vals)
	}
	return out
}

// normalize converts driver values into plain scalars.
func normalize(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case *big.Int:
		if v.IsInt64() {
			return v.Int64()
		}
		f, _ := new(big.Float).SetInt(v).Float64()
		return f
	case interface{ Float64() float64 }:
		return v.Float64()
	default:
		return val
	}
}

// AsFloat reads a numeric scalar. It reports false for nil and non-numeric
// values.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// AsInt reads an integral scalar, truncating floats.
func AsInt(v any) (int64, bool) {
	f, ok := AsFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
