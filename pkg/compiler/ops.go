package compiler

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"

	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/tags"
)

type binaryOp func(l, r any) (any, error)

var binaryOps = map[*hclsyntax.Operation]binaryOp{
	hclsyntax.OpAdd:                add,
	hclsyntax.OpSubtract:           arith("-", func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }),
	hclsyntax.OpMultiply:           multiply,
	hclsyntax.OpDivide:             divide,
	hclsyntax.OpModulo:             modulo,
	hclsyntax.OpEqual:              func(l, r any) (any, error) { return Equal(l, r), nil },
	hclsyntax.OpNotEqual:           func(l, r any) (any, error) { return !Equal(l, r), nil },
	hclsyntax.OpLessThan:           compare(func(c int) bool { return c < 0 }),
	hclsyntax.OpLessThanOrEqual:    compare(func(c int) bool { return c <= 0 }),
	hclsyntax.OpGreaterThan:        compare(func(c int) bool { return c > 0 }),
	hclsyntax.OpGreaterThanOrEqual: compare(func(c int) bool { return c >= 0 }),
}

func badOperand(format string, args ...any) error {
	return berrors.NewEvaluationError(berrors.ErrCodeBadOperand, fmt.Sprintf(format, args...))
}

// number normalizes numeric values: integers widen to int64, floats to
// float64.
func number(v any) (i int64, f float64, isInt, ok bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), float64(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), float64(rv.Uint()), true, true
	case reflect.Float32, reflect.Float64:
		return 0, rv.Float(), false, true
	}
	return 0, 0, false, false
}

func toInt(v any) (int, bool) {
	i, f, isInt, ok := number(v)
	if !ok {
		return 0, false
	}
	if isInt {
		return int(i), true
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func arith(sym string, ints func(a, b int64) int64, floats func(a, b float64) float64) binaryOp {
	return func(l, r any) (any, error) {
		li, lf, lInt, lok := number(l)
		ri, rf, rInt, rok := number(r)
		if !lok || !rok {
			return nil, badOperand("cannot apply %s to %T and %T", sym, l, r)
		}
		if lInt && rInt {
			return ints(li, ri), nil
		}
		return floats(lf, rf), nil
	}
}

var addNumbers = arith("+", func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })

// add sums numbers, concatenates strings and joins sequences.
func add(l, r any) (any, error) {
	if ls, ok := l.(string); ok {
		return ls + Str(r), nil
	}
	if rs, ok := r.(string); ok {
		return Str(l) + rs, nil
	}
	if isSeq(l) && isSeq(r) {
		return append(append([]any{}, toSlice(l)...), toSlice(r)...), nil
	}
	return addNumbers(l, r)
}

// multiply handles tag multiplication (tag * records), string repetition
// and numeric products.
func multiply(l, r any) (any, error) {
	if t, ok := l.(*tags.Tag); ok {
		out, err := tags.Multiply(t, r)
		if err != nil {
			return nil, badOperand("%v", err)
		}
		return out, nil
	}
	if s, ok := l.(string); ok {
		if n, ok := toInt(r); ok && n >= 0 {
			return strings.Repeat(s, n), nil
		}
	}
	return arith("*", func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })(l, r)
}

func divide(l, r any) (any, error) {
	li, lf, lInt, lok := number(l)
	ri, rf, rInt, rok := number(r)
	if !lok || !rok {
		return nil, badOperand("cannot divide %T by %T", l, r)
	}
	if rf == 0 {
		return nil, badOperand("division by zero")
	}
	if lInt && rInt && li%ri == 0 {
		return li / ri, nil
	}
	return lf / rf, nil
}

func modulo(l, r any) (any, error) {
	li, _, lInt, lok := number(l)
	ri, _, rInt, rok := number(r)
	if !lok || !rok || !lInt || !rInt {
		return nil, badOperand("modulo requires whole numbers, got %T and %T", l, r)
	}
	if ri == 0 {
		return nil, badOperand("modulo by zero")
	}
	return li % ri, nil
}

func negate(v any) (any, error) {
	i, f, isInt, ok := number(v)
	if !ok {
		return nil, badOperand("cannot negate %T", v)
	}
	if isInt {
		return -i, nil
	}
	return -f, nil
}

// Equal compares numbers by value and everything else structurally.
func Equal(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	_, lf, _, lok := number(l)
	_, rf, _, rok := number(r)
	if lok && rok {
		return lf == rf
	}
	return reflect.DeepEqual(l, r)
}

func compare(pred func(int) bool) binaryOp {
	return func(l, r any) (any, error) {
		_, lf, _, lok := number(l)
		_, rf, _, rok := number(r)
		if lok && rok {
			switch {
			case lf < rf:
				return pred(-1), nil
			case lf > rf:
				return pred(1), nil
			}
			return pred(0), nil
		}
		ls, lsok := l.(string)
		rs, rsok := r.(string)
		if lsok && rsok {
			return pred(strings.Compare(ls, rs)), nil
		}
		return nil, badOperand("cannot compare %T and %T", l, r)
	}
}

func isSeq(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
