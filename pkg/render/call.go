package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/conneroisu/breve/internal/logging"
	"github.com/conneroisu/breve/pkg/compiler"
	"github.com/conneroisu/breve/pkg/directive"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/flatten"
	"github.com/conneroisu/breve/pkg/loader"
	"github.com/conneroisu/breve/pkg/scope"
	"github.com/conneroisu/breve/pkg/tags"
	"github.com/conneroisu/breve/pkg/tidy"
)

// call is the state of one Render or RenderPartial invocation, including
// every nested inherits and include it triggers.
type call struct {
	e         *Engine
	ctx       context.Context
	opts      Options
	params    map[string]any
	loaders   *loader.Stack
	path      []string
	fragments map[string]*Override
	logger    logging.Logger
}

// partial evaluates and flattens id in a fresh scope.
func (c *call) partial(id string, fragments []*Override) (out string, err error) {
	if err := c.ctx.Err(); err != nil {
		return "", err
	}

	c.path = append(c.path, id)
	defer func() { c.path = c.path[:len(c.path)-1] }()
	top := len(c.path) == 1

	for _, f := range fragments {
		if f == nil {
			continue
		}
		if _, exists := c.fragments[f.Name]; !exists {
			c.fragments[f.Name] = f
		}
	}

	c.logger.Debug(c.ctx, "Rendering template", "template", id, "render_path", c.renderPath())

	out, err = c.evaluateAndFlatten(id)
	if err != nil {
		err = c.annotate(err)
		if !c.opts.Debug || c.ctx.Err() != nil {
			return "", err
		}
		c.logger.Warn(c.ctx, err, "Template failed, rendering diagnostic", "template", id)
		return debugOut(id, err), nil
	}

	if top && c.opts.Tidy {
		cleaned, err := tidy.Clean(out)
		if err != nil {
			return "", c.annotate(err)
		}
		return cleaned, nil
	}
	return out, nil
}

func (c *call) evaluateAndFlatten(id string) (string, error) {
	base, err := c.scope()
	if err != nil {
		return "", err
	}
	result, err := c.eval(id, base.Child())
	if err != nil {
		return "", err
	}
	f := flatten.New(c.e.registry.Flatteners(),
		flatten.WithDebug(c.opts.Debug),
		flatten.WithLogger(c.logger),
		flatten.WithContext(c.ctx),
	)
	return f.Flatten(result)
}

// eval compiles id with the active loader and evaluates it in frame.
func (c *call) eval(id string, frame *scope.Namespace) (any, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	unit, err := c.e.cache.Compile(c.ctx, c.opts.filename(id), c.e.root, c.loaders.Top())
	if err != nil {
		return nil, err
	}
	return unit.Program.Eval(frame)
}

// scope builds the names visible to a template: globals, the vocabulary,
// entities, directives and builtins, custom tags, render metadata, params
// and finally the auto-tag factory.
func (c *call) scope() (*scope.Namespace, error) {
	ns := c.e.registry.Globals()

	if err := ns.Update(c.e.vocab.Map()); err != nil {
		return nil, err
	}
	if c.opts.MashupEntities {
		if err := ns.Update(tags.Entities.Map()); err != nil {
			return nil, err
		}
	}
	ns.Set("E", tags.Entities)

	if err := ns.Update(directive.Funcs(c.e.registry.Stack())); err != nil {
		return nil, err
	}
	if err := ns.Update(compiler.Builtins()); err != nil {
		return nil, err
	}
	if err := ns.Update(c.directives()); err != nil {
		return nil, err
	}
	if err := ns.Update(c.e.custom); err != nil {
		return nil, err
	}

	if c.opts.XMLNS != "" {
		ns.Set("xmlns", c.opts.XMLNS)
	} else {
		ns.Set("xmlns", nil)
	}
	path := make([]any, len(c.path))
	for i, p := range c.path {
		path[i] = p
	}
	ns.Set("render_path", path)
	ns.Set("namespace", c.opts.Namespace)

	if c.opts.Namespace != "" {
		ns.Set(c.opts.Namespace, scope.New(c.params))
	} else if err := ns.Update(c.params); err != nil {
		return nil, err
	}

	if c.opts.AutoTags != "" {
		ns.Set(c.opts.AutoTags, c.e.autoTag(c.opts.AutoTagPolicy))
	}
	return ns, nil
}

// directives returns the names bound to this call.
func (c *call) directives() map[string]any {
	return map[string]any{
		"include":  scope.Func(c.include),
		"inherits": scope.Func(c.inherits),
		"override": scope.Func(newOverride),
		"slot":     scope.Func(c.slot),
		"preamble": scope.Func(c.preamble),
	}
}

// include(ids, params?, loader?) evaluates each template in the caller's
// frame, so bindings flow both ways. With params the templates run in a
// child frame holding them.
func (c *call) include(fr *scope.Namespace, args []any) (any, error) {
	if len(args) == 0 || len(args) > 3 {
		return nil, badArgs("include", "takes template names, optional params and an optional loader")
	}

	var ids []string
	switch v := args[0].(type) {
	case string:
		ids = []string{v}
	case []any:
		for _, id := range v {
			s, ok := id.(string)
			if !ok {
				return nil, badArgs("include", fmt.Sprintf("template names must be strings, got %T", id))
			}
			ids = append(ids, s)
		}
	default:
		return nil, badArgs("include", fmt.Sprintf("expected a name or a list of names, got %T", args[0]))
	}

	var params any
	if len(args) > 1 {
		params = args[1]
	}
	var l loader.Loader
	if len(args) > 2 && args[2] != nil {
		var ok bool
		if l, ok = args[2].(loader.Loader); !ok {
			return nil, badArgs("include", fmt.Sprintf("third argument must be a loader, got %T", args[2]))
		}
	}

	results := make([]any, 0, len(ids))
	for _, id := range ids {
		if err := c.ctx.Err(); err != nil {
			return nil, err
		}
		out, err := c.includeOne(fr, id, params, l)
		if err != nil {
			return nil, err
		}
		results = append(results, out)
	}
	return results, nil
}

func (c *call) includeOne(fr *scope.Namespace, id string, params any, l loader.Loader) (any, error) {
	if l != nil {
		c.loaders.Push(l)
		defer c.loaders.Pop()
	}

	frame := fr
	if params != nil {
		frame = fr.Child()
		if err := frame.Update(params); err != nil {
			return nil, badArgs("include", err.Error())
		}
	}

	out, err := c.eval(id, frame)
	if err != nil {
		if be, ok := berrors.AsBreveError(err); ok {
			be.WithContext("include", id)
		}
		return nil, err
	}
	return out, nil
}

func (c *call) renderPath() string {
	return strings.Join(c.path, " > ")
}

// annotate records the render path on breve errors.
func (c *call) annotate(err error) error {
	be, ok := berrors.AsBreveError(err)
	if !ok {
		return err
	}
	if _, set := be.Context["render_path"]; !set {
		be.WithContext("render_path", c.renderPath())
	}
	return err
}

// debugOut renders a failed template as an inline diagnostic.
func debugOut(id string, err error) string {
	return `<span class="template_exception">Error in template: ` +
		flatten.EscapeText(id) + `: ` + flatten.EscapeText(err.Error()) + `</span>`
}

func badArgs(fn, msg string) error {
	return berrors.NewEvaluationError(berrors.ErrCodeBadArguments, fn+": "+msg).
		WithContext("function", fn)
}
