// Package compiler turns template source into an executable Program.
//
// Template source is a single HCL native-syntax expression. The expression
// tree is lowered once into Go closures; evaluating a Program runs those
// closures against a scope.Namespace and yields a node tree for the
// flattener. Function calls build tags or invoke callables found in the
// scope, tuples become sequences and objects become ordered namespaces.
// The names macro and lambda are special forms whose bodies are compiled
// but only evaluated when the macro is called or the lambda is flattened.
package compiler

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/conneroisu/breve/pkg/directive"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/scope"
)

// Program is a compiled template.
type Program struct {
	Name   string
	Source string
	root   evalFn
}

type evalFn func(fr *scope.Namespace) (any, error)

// Eval runs the program in ns and returns the resulting node tree.
func (p *Program) Eval(ns *scope.Namespace) (any, error) {
	return p.root(ns)
}

// Compile parses src and lowers it. name is used in diagnostics.
func Compile(name, src string) (*Program, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), name, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, diagError(name, diags)
	}

	c := &compiler{name: name}
	root, err := c.expr(expr)
	if err != nil {
		return nil, err
	}
	return &Program{Name: name, Source: src, root: root}, nil
}

// MustCompile is Compile that panics on error, for sources fixed at build
// time.
func MustCompile(name, src string) *Program {
	p, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return p
}

func diagError(name string, diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		e := berrors.NewCompileError(name, msg, nil)
		if d.Subject != nil {
			e.WithLocation(name, d.Subject.Start.Line, d.Subject.Start.Column)
		}
		return e
	}
	return berrors.NewCompileError(name, diags.Error(), nil)
}

type compiler struct {
	name string
}

func (c *compiler) unsupported(expr hclsyntax.Expression, what string) error {
	rng := expr.Range()
	e := berrors.NewCompileError(c.name, what+" expressions are not supported", nil)
	e.Code = berrors.ErrCodeUnsupportedExpr
	return e.WithLocation(c.name, rng.Start.Line, rng.Start.Column)
}

// locate attaches the source position of expr to err.
func (c *compiler) locate(err error, rng hcl.Range) error {
	if err == nil {
		return nil
	}
	if be, ok := berrors.AsBreveError(err); ok {
		be.WithLocation(c.name, rng.Start.Line, rng.Start.Column)
		return err
	}
	e := berrors.NewEvaluationError(berrors.ErrCodeCallFailed, err.Error())
	e.Cause = err
	return e.WithLocation(c.name, rng.Start.Line, rng.Start.Column)
}

func (c *compiler) expr(expr hclsyntax.Expression) (evalFn, error) {
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		v, err := ctyToGo(e.Val)
		if err != nil {
			return nil, c.locate(err, e.Range())
		}
		return func(*scope.Namespace) (any, error) { return v, nil }, nil

	case *hclsyntax.TemplateExpr:
		return c.template(e)

	case *hclsyntax.TemplateWrapExpr:
		return c.expr(e.Wrapped)

	case *hclsyntax.TemplateJoinExpr:
		inner, err := c.expr(e.Tuple)
		if err != nil {
			return nil, err
		}
		return func(fr *scope.Namespace) (any, error) {
			v, err := inner(fr)
			if err != nil {
				return nil, err
			}
			var b strings.Builder
			for _, item := range toSlice(v) {
				b.WriteString(Str(item))
			}
			return b.String(), nil
		}, nil

	case *hclsyntax.ParenthesesExpr:
		return c.expr(e.Expression)

	case *hclsyntax.ScopeTraversalExpr:
		return c.scopeTraversal(e)

	case *hclsyntax.RelativeTraversalExpr:
		src, err := c.expr(e.Source)
		if err != nil {
			return nil, err
		}
		steps, err := c.traversal(e, e.Traversal)
		if err != nil {
			return nil, err
		}
		rng := e.Range()
		return func(fr *scope.Namespace) (any, error) {
			v, err := src(fr)
			if err != nil {
				return nil, err
			}
			v, err = applySteps(v, steps)
			return v, c.locate(err, rng)
		}, nil

	case *hclsyntax.IndexExpr:
		coll, err := c.expr(e.Collection)
		if err != nil {
			return nil, err
		}
		key, err := c.expr(e.Key)
		if err != nil {
			return nil, err
		}
		rng := e.Range()
		return func(fr *scope.Namespace) (any, error) {
			cv, err := coll(fr)
			if err != nil {
				return nil, err
			}
			kv, err := key(fr)
			if err != nil {
				return nil, err
			}
			v, err := Index(cv, kv)
			return v, c.locate(err, rng)
		}, nil

	case *hclsyntax.TupleConsExpr:
		items, err := c.exprs(e.Exprs)
		if err != nil {
			return nil, err
		}
		return func(fr *scope.Namespace) (any, error) {
			out := make([]any, 0, len(items))
			for _, item := range items {
				v, err := item(fr)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		}, nil

	case *hclsyntax.ObjectConsExpr:
		return c.object(e)

	case *hclsyntax.FunctionCallExpr:
		return c.call(e)

	case *hclsyntax.ConditionalExpr:
		cond, err := c.expr(e.Condition)
		if err != nil {
			return nil, err
		}
		yes, err := c.expr(e.TrueResult)
		if err != nil {
			return nil, err
		}
		no, err := c.expr(e.FalseResult)
		if err != nil {
			return nil, err
		}
		return func(fr *scope.Namespace) (any, error) {
			v, err := cond(fr)
			if err != nil {
				return nil, err
			}
			if directive.Truthy(v) {
				return yes(fr)
			}
			return no(fr)
		}, nil

	case *hclsyntax.ForExpr:
		return c.forExpr(e)

	case *hclsyntax.BinaryOpExpr:
		return c.binary(e)

	case *hclsyntax.UnaryOpExpr:
		return c.unary(e)

	case *hclsyntax.SplatExpr:
		return nil, c.unsupported(expr, "splat")

	case *hclsyntax.AnonSymbolExpr:
		return nil, c.unsupported(expr, "anonymous symbol")
	}
	return nil, c.unsupported(expr, fmt.Sprintf("%T", expr))
}

func (c *compiler) exprs(list []hclsyntax.Expression) ([]evalFn, error) {
	out := make([]evalFn, 0, len(list))
	for _, e := range list {
		fn, err := c.expr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, nil
}

func (c *compiler) template(e *hclsyntax.TemplateExpr) (evalFn, error) {
	if len(e.Parts) == 1 {
		if lit, ok := e.Parts[0].(*hclsyntax.LiteralValueExpr); ok {
			return c.expr(lit)
		}
	}
	parts, err := c.exprs(e.Parts)
	if err != nil {
		return nil, err
	}
	return func(fr *scope.Namespace) (any, error) {
		var b strings.Builder
		for _, p := range parts {
			v, err := p(fr)
			if err != nil {
				return nil, err
			}
			b.WriteString(Str(v))
		}
		return b.String(), nil
	}, nil
}

func (c *compiler) object(e *hclsyntax.ObjectConsExpr) (evalFn, error) {
	type item struct {
		keyword string
		key     evalFn
		value   evalFn
	}
	items := make([]item, 0, len(e.Items))
	for _, it := range e.Items {
		var in item
		keyExpr := it.KeyExpr
		force := false
		if k, ok := keyExpr.(*hclsyntax.ObjectConsKeyExpr); ok {
			force = k.ForceNonLiteral
			keyExpr = k.Wrapped
		}
		if !force {
			in.keyword = hcl.ExprAsKeyword(keyExpr)
		}
		if in.keyword == "" {
			keyFn, err := c.expr(keyExpr)
			if err != nil {
				return nil, err
			}
			in.key = keyFn
		}
		valFn, err := c.expr(it.ValueExpr)
		if err != nil {
			return nil, err
		}
		in.value = valFn
		items = append(items, in)
	}

	return func(fr *scope.Namespace) (any, error) {
		ns := scope.New(nil)
		for _, in := range items {
			key := in.keyword
			if in.key != nil {
				kv, err := in.key(fr)
				if err != nil {
					return nil, err
				}
				key = Str(kv)
			}
			v, err := in.value(fr)
			if err != nil {
				return nil, err
			}
			ns.Set(key, v)
		}
		return ns, nil
	}, nil
}

func (c *compiler) scopeTraversal(e *hclsyntax.ScopeTraversalExpr) (evalFn, error) {
	rootName := e.Traversal.RootName()
	steps, err := c.traversal(e, e.Traversal[1:])
	if err != nil {
		return nil, err
	}
	rng := e.Range()
	return func(fr *scope.Namespace) (any, error) {
		v, err := fr.Lookup(rootName)
		if err != nil {
			return nil, c.locate(err, rng)
		}
		v, err = applySteps(v, steps)
		return v, c.locate(err, rng)
	}, nil
}

type step struct {
	attr  string
	index any
	isIdx bool
}

func (c *compiler) traversal(expr hclsyntax.Expression, tr hcl.Traversal) ([]step, error) {
	steps := make([]step, 0, len(tr))
	for _, t := range tr {
		switch s := t.(type) {
		case hcl.TraverseAttr:
			steps = append(steps, step{attr: s.Name})
		case hcl.TraverseIndex:
			k, err := ctyToGo(s.Key)
			if err != nil {
				return nil, c.locate(err, expr.Range())
			}
			steps = append(steps, step{index: k, isIdx: true})
		default:
			return nil, c.unsupported(expr, "splat")
		}
	}
	return steps, nil
}

func applySteps(v any, steps []step) (any, error) {
	var err error
	for _, s := range steps {
		if s.isIdx {
			v, err = Index(v, s.index)
		} else {
			v, err = Attr(v, s.attr)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (c *compiler) forExpr(e *hclsyntax.ForExpr) (evalFn, error) {
	coll, err := c.expr(e.CollExpr)
	if err != nil {
		return nil, err
	}
	val, err := c.expr(e.ValExpr)
	if err != nil {
		return nil, err
	}
	var key, cond evalFn
	if e.KeyExpr != nil {
		if key, err = c.expr(e.KeyExpr); err != nil {
			return nil, err
		}
	}
	if e.CondExpr != nil {
		if cond, err = c.expr(e.CondExpr); err != nil {
			return nil, err
		}
	}
	if e.Group {
		return nil, c.unsupported(e, "grouping for")
	}
	rng := e.Range()

	return func(fr *scope.Namespace) (any, error) {
		cv, err := coll(fr)
		if err != nil {
			return nil, err
		}
		pairs, err := iterate(cv)
		if err != nil {
			return nil, c.locate(err, rng)
		}

		var list []any
		var obj *scope.Namespace
		if key != nil {
			obj = scope.New(nil)
		} else {
			list = make([]any, 0, len(pairs))
		}

		for _, p := range pairs {
			inner := fr.Child()
			if e.KeyVar != "" {
				inner.Set(e.KeyVar, p.key)
			}
			inner.Set(e.ValVar, p.value)

			if cond != nil {
				ok, err := cond(inner)
				if err != nil {
					return nil, err
				}
				if !directive.Truthy(ok) {
					continue
				}
			}
			v, err := val(inner)
			if err != nil {
				return nil, err
			}
			if key == nil {
				list = append(list, v)
				continue
			}
			k, err := key(inner)
			if err != nil {
				return nil, err
			}
			obj.Set(Str(k), v)
		}
		if obj != nil {
			return obj, nil
		}
		return list, nil
	}, nil
}

func (c *compiler) unary(e *hclsyntax.UnaryOpExpr) (evalFn, error) {
	val, err := c.expr(e.Val)
	if err != nil {
		return nil, err
	}
	rng := e.Range()
	switch e.Op {
	case hclsyntax.OpLogicalNot:
		return func(fr *scope.Namespace) (any, error) {
			v, err := val(fr)
			if err != nil {
				return nil, err
			}
			return !directive.Truthy(v), nil
		}, nil
	case hclsyntax.OpNegate:
		return func(fr *scope.Namespace) (any, error) {
			v, err := val(fr)
			if err != nil {
				return nil, err
			}
			out, err := negate(v)
			return out, c.locate(err, rng)
		}, nil
	}
	return nil, c.unsupported(e, "unary operator")
}

func (c *compiler) binary(e *hclsyntax.BinaryOpExpr) (evalFn, error) {
	lhs, err := c.expr(e.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := c.expr(e.RHS)
	if err != nil {
		return nil, err
	}
	rng := e.Range()

	switch e.Op {
	case hclsyntax.OpLogicalAnd:
		return func(fr *scope.Namespace) (any, error) {
			l, err := lhs(fr)
			if err != nil || !directive.Truthy(l) {
				return l, err
			}
			return rhs(fr)
		}, nil
	case hclsyntax.OpLogicalOr:
		return func(fr *scope.Namespace) (any, error) {
			l, err := lhs(fr)
			if err != nil || directive.Truthy(l) {
				return l, err
			}
			return rhs(fr)
		}, nil
	}

	op, ok := binaryOps[e.Op]
	if !ok {
		return nil, c.unsupported(e, "binary operator")
	}
	return func(fr *scope.Namespace) (any, error) {
		l, err := lhs(fr)
		if err != nil {
			return nil, err
		}
		r, err := rhs(fr)
		if err != nil {
			return nil, err
		}
		out, err := op(l, r)
		return out, c.locate(err, rng)
	}, nil
}
