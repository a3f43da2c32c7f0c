package filter

import (
	"encoding/json"
	"math/big"
	"reflect"
	"time"
)

// eval applies SQL three-valued logic: known is false when the result is
// unknown, which happens when a compared column is NULL or absent.
func eval(e Expr, row map[string]interface{}) (ok bool, known bool) {
	switch e.Op {
	case OpAnd:
		known = true
		for _, arg := range e.Args {
			r, k := eval(arg, row)
			if k && !r {
				return false, true
			}
			if !k {
				known = false
			}
		}
		return known, known
	case OpOr:
		known = true
		for _, arg := range e.Args {
			r, k := eval(arg, row)
			if k && r {
				return true, true
			}
			if !k {
				known = false
			}
		}
		return false, known
	case OpNot:
		r, k := eval(e.Args[0], row)
		return !r && k, k
	case OpIsNull:
		return row[e.Field] == nil, true
	case OpNotNull:
		return row[e.Field] != nil, true
	case OpIn:
		known = true
		for _, v := range e.Values {
			r, k := evalCompare(OpEq, row, e.Field, v)
			if k && r {
				return true, true
			}
			if !k {
				known = false
			}
		}
		return false, known
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return evalCompare(e.Op, row, e.Field, e.Value)
	default:
		return false, false
	}
}

func evalCompare(op Op, row map[string]interface{}, field string, want interface{}) (bool, bool) {
	got := row[field]
	if want == nil {
		// Matches the compiled predicate, which turns eq/ne nil into IS [NOT] NULL.
		switch op {
		case OpEq:
			return got == nil, true
		case OpNe:
			return got != nil, true
		default:
			return false, false
		}
	}
	if got == nil {
		return false, false
	}

	c, ok := cmp(got, want)
	if !ok {
		// Values of different kinds are never equal and have no order.
		return op == OpNe, op == OpEq || op == OpNe
	}

	switch op {
	case OpEq:
		return c == 0, true
	case OpNe:
		return c != 0, true
	case OpLt:
		return c < 0, true
	case OpLte:
		return c <= 0, true
	case OpGt:
		return c > 0, true
	default:
		return c >= 0, true
	}
}

// cmp compares two scalar values. Numbers compare by value whatever their Go
// type, times by instant, strings lexically, booleans false before true. The
// second result is false when a and b are not comparable.
func cmp(a, b interface{}) (int, bool) {
	if x, ok := a.(time.Time); ok {
		return cmpTime(x, b)
	}
	if y, ok := b.(time.Time); ok {
		c, ok := cmpTime(y, a)
		return -c, ok
	}

	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, false
		}
		return x.Cmp(y), true
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		switch {
		case !ok:
			return 0, false
		case x == y:
			return 0, true
		case y:
			// false sorts before true, as in Postgres
			return -1, true
		}
		return 1, true
	}

	if reflect.DeepEqual(a, b) {
		return 0, true
	}
	return 0, false
}

// Layouts produced by row_to_json for timestamptz, timestamp and date columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// cmpTime compares t with v, a time.Time or a timestamp string as found in a
// decoded row. Strings without a zone are read in t's location.
func cmpTime(t time.Time, v interface{}) (int, bool) {
	var u time.Time
	switch x := v.(type) {
	case time.Time:
		u = x
	case string:
		parsed := false
		for _, layout := range timeLayouts {
			var err error
			if u, err = time.ParseInLocation(layout, x, t.Location()); err == nil {
				parsed = true
				break
			}
		}
		if !parsed {
			return 0, false
		}
	default:
		return 0, false
	}
	return t.Compare(u), true
}

func number(v interface{}) (*big.Float, bool) {
	switch n := v.(type) {
	case json.Number:
		f, ok := new(big.Float).SetString(n.String())
		return f, ok
	case float64:
		return big.NewFloat(n), true
	case float32:
		return big.NewFloat(float64(n)), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Float).SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Float).SetUint64(rv.Uint()), true
	}
	return nil, false
}
