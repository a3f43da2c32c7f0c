// Package filter decides which rows belong to a live query. A Filter is either a
// field equality mapping or a structured expression; both forms evaluate against a
// decoded row and compile to a SQL predicate for the snapshot read.
package filter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// Kind is the variant held by a Filter.
type Kind int

// Kind constants
const (
	KindEmpty Kind = iota
	KindMatch
	KindExpr
)

// Op is an expression operator.
type Op string

// Op constants
const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpAnd     Op = "and"
	OpOr      Op = "or"
	OpNot     Op = "not"
)

var (
	errUnknownOp    = errors.New("unknown filter operator")
	errMissingField = errors.New("filter operator requires a field")
	errEmptyList    = errors.New("filter operator requires at least one operand")
)

// Expr is a structured filter expression. Comparison operators use Field and
// Value, `in` uses Field and Values, the logical operators use Args.
type Expr struct {
	Op     Op            `toml:"op" json:"op"`
	Field  string        `toml:"field" json:"field,omitempty"`
	Value  interface{}   `toml:"value" json:"value,omitempty"`
	Values []interface{} `toml:"values" json:"values,omitempty"`
	Args   []Expr        `toml:"args" json:"args,omitempty"`
}

// Eq returns an expression matching rows where field equals v.
func Eq(field string, v interface{}) Expr { return Expr{Op: OpEq, Field: field, Value: v} }

// Ne returns an expression matching rows where field does not equal v.
func Ne(field string, v interface{}) Expr { return Expr{Op: OpNe, Field: field, Value: v} }

// Lt returns an expression matching rows where field is less than v.
func Lt(field string, v interface{}) Expr { return Expr{Op: OpLt, Field: field, Value: v} }

// Lte returns an expression matching rows where field is at most v.
func Lte(field string, v interface{}) Expr { return Expr{Op: OpLte, Field: field, Value: v} }

// Gt returns an expression matching rows where field is greater than v.
func Gt(field string, v interface{}) Expr { return Expr{Op: OpGt, Field: field, Value: v} }

// Gte returns an expression matching rows where field is at least v.
func Gte(field string, v interface{}) Expr { return Expr{Op: OpGte, Field: field, Value: v} }

// In returns an expression matching rows where field equals any of vs.
func In(field string, vs ...interface{}) Expr { return Expr{Op: OpIn, Field: field, Values: vs} }

// IsNull returns an expression matching rows where field is NULL.
func IsNull(field string) Expr { return Expr{Op: OpIsNull, Field: field} }

// NotNull returns an expression matching rows where field is not NULL.
func NotNull(field string) Expr { return Expr{Op: OpNotNull, Field: field} }

// And returns an expression matching rows accepted by every arg.
func And(args ...Expr) Expr { return Expr{Op: OpAnd, Args: args} }

// Or returns an expression matching rows accepted by any arg.
func Or(args ...Expr) Expr { return Expr{Op: OpOr, Args: args} }

// Not negates arg.
func Not(arg Expr) Expr { return Expr{Op: OpNot, Args: []Expr{arg}} }

// Validate checks that the expression tree is well formed.
func (e Expr) Validate() error {
	switch e.Op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIsNull, OpNotNull:
		if e.Field == "" {
			return fmt.Errorf("%w: %s", errMissingField, e.Op)
		}
	case OpIn:
		if e.Field == "" {
			return fmt.Errorf("%w: %s", errMissingField, e.Op)
		}
		if len(e.Values) == 0 {
			return fmt.Errorf("%w: %s", errEmptyList, e.Op)
		}
	case OpAnd, OpOr:
		if len(e.Args) == 0 {
			return fmt.Errorf("%w: %s", errEmptyList, e.Op)
		}
		for _, arg := range e.Args {
			if err := arg.Validate(); err != nil {
				return err
			}
		}
	case OpNot:
		if len(e.Args) != 1 {
			return fmt.Errorf("`not` takes exactly one operand, got %d", len(e.Args))
		}
		return e.Args[0].Validate()
	default:
		return fmt.Errorf("%w: %q", errUnknownOp, e.Op)
	}
	return nil
}

// Filter selects the rows of a live query. The zero Filter is empty and accepts
// every row.
type Filter struct {
	kind  Kind
	match map[string]interface{}
	expr  Expr
}

// Match returns a Filter accepting rows whose fields equal every value in fields.
// A nil value matches a NULL column.
func Match(fields map[string]interface{}) Filter {
	if len(fields) == 0 {
		return Filter{}
	}
	m := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return Filter{kind: KindMatch, match: m}
}

// Where returns a Filter backed by a structured expression.
func Where(e Expr) Filter {
	return Filter{kind: KindExpr, expr: e}
}

// Kind returns the variant held by f.
func (f Filter) Kind() Kind { return f.kind }

// Empty reports whether f accepts every row without a predicate.
func (f Filter) Empty() bool { return f.kind == KindEmpty }

// Validate checks that an expression filter is well formed.
func (f Filter) Validate() error {
	if f.kind == KindExpr {
		return f.expr.Validate()
	}
	return nil
}

// Evaluate reports whether row is accepted by f.
func (f Filter) Evaluate(row map[string]interface{}) bool {
	switch f.kind {
	case KindMatch:
		for _, field := range f.fields() {
			ok, known := evalCompare(OpEq, row, field, f.match[field])
			if !known || !ok {
				return false
			}
		}
		return true
	case KindExpr:
		ok, known := eval(f.expr, row)
		return known && ok
	default:
		return true
	}
}

// Predicate compiles f into an expression over columns qualified by alias. It
// returns false when f is empty and no predicate clause is needed.
func (f Filter) Predicate(alias string) (exp.Expression, bool) {
	switch f.kind {
	case KindMatch:
		exps := make([]exp.Expression, 0, len(f.match))
		for _, field := range f.fields() {
			exps = append(exps, compare(OpEq, goqu.T(alias).Col(field), f.match[field]))
		}
		return goqu.And(exps...), true
	case KindExpr:
		return predicate(f.expr, alias), true
	default:
		return nil, false
	}
}

// fields returns the match keys in a stable order so compiled SQL is
// deterministic.
func (f Filter) fields() []string {
	keys := make([]string, 0, len(f.match))
	for k := range f.match {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func predicate(e Expr, alias string) exp.Expression {
	switch e.Op {
	case OpAnd, OpOr:
		exps := make([]exp.Expression, 0, len(e.Args))
		for _, arg := range e.Args {
			exps = append(exps, predicate(arg, alias))
		}
		if e.Op == OpAnd {
			return goqu.And(exps...)
		}
		return goqu.Or(exps...)
	case OpNot:
		return goqu.L("NOT (?)", predicate(e.Args[0], alias))
	case OpIn:
		return goqu.T(alias).Col(e.Field).In(e.Values)
	case OpIsNull:
		return goqu.T(alias).Col(e.Field).IsNull()
	case OpNotNull:
		return goqu.T(alias).Col(e.Field).IsNotNull()
	default:
		return compare(e.Op, goqu.T(alias).Col(e.Field), e.Value)
	}
}

func compare(op Op, col exp.IdentifierExpression, v interface{}) exp.Expression {
	switch op {
	case OpEq:
		if v == nil {
			return col.IsNull()
		}
		return col.Eq(v)
	case OpNe:
		if v == nil {
			return col.IsNotNull()
		}
		return col.Neq(v)
	case OpLt:
		return col.Lt(v)
	case OpLte:
		return col.Lte(v)
	case OpGt:
		return col.Gt(v)
	default:
		return col.Gte(v)
	}
}
