// Package render evaluates compiled templates against a merged scope and
// serializes the result. An Engine is safe for concurrent use: everything
// that changes during a render lives in a per-call value.
package render

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/a-h/templ"

	"github.com/conneroisu/breve/internal/logging"
	"github.com/conneroisu/breve/pkg/cache"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/loader"
	"github.com/conneroisu/breve/pkg/tags"
)

// Engine renders templates found under root.
type Engine struct {
	vocab    *tags.Vocabulary
	custom   map[string]any
	root     string
	opts     Options
	registry *Registry
	cache    *cache.Cache
	loader   loader.Loader
	logger   logging.Logger

	autoMu   sync.Mutex
	autoTags map[tags.Policy]*tags.AutoTag
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions sets the default render options.
func WithOptions(settings ...Setting) Option {
	return func(e *Engine) { e.opts = e.opts.apply(settings) }
}

// WithRegistry replaces render.Default.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithCache replaces the engine's private cache, for example to share one
// between engines.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithLoader sets the default loader. Without it templates are read from
// the file system under root.
func WithLoader(l loader.Loader) Option {
	return func(e *Engine) {
		if l != nil {
			e.loader = l
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTags adds custom names (usually tag prototypes) to every render
// scope. They shadow the vocabulary and directives.
func WithTags(custom map[string]any) Option {
	return func(e *Engine) {
		for k, v := range custom {
			e.custom[k] = v
		}
	}
}

// New creates an engine. A nil vocabulary means tags.HTML.
func New(vocab *tags.Vocabulary, root string, opts ...Option) *Engine {
	if vocab == nil {
		vocab = tags.HTML
	}
	if root == "" {
		root = "."
	}
	e := &Engine{
		vocab:    vocab,
		custom:   make(map[string]any),
		root:     root,
		opts:     DefaultOptions(),
		registry: Default,
		loader:   loader.FileLoader{},
		logger:   logging.Nop(),
		autoTags: make(map[tags.Policy]*tags.AutoTag),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("render")
	if e.cache == nil {
		e.cache = cache.New(cache.WithLogger(e.logger))
	}
	return e
}

// Root returns the template root directory.
func (e *Engine) Root() string { return e.root }

// Options returns the engine's default options.
func (e *Engine) Options() Options { return e.opts }

// Cache returns the compiled-unit cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Registry returns the registry providing globals and flatteners.
func (e *Engine) Registry() *Registry { return e.registry }

// Render renders id as a document: the XML declaration and doctype, when
// configured and not rendering a fragment, precede the body.
func (e *Engine) Render(ctx context.Context, id string, params map[string]any, settings ...Setting) (string, error) {
	c := e.newCall(ctx, params, settings)

	body, err := c.partial(id, nil)
	if err != nil {
		return "", err
	}
	if c.opts.Fragment {
		return body, nil
	}

	parts := make([]string, 0, 3)
	if c.opts.XMLDeclaration != "" {
		parts = append(parts, c.opts.XMLDeclaration)
	}
	if c.opts.Doctype != "" {
		parts = append(parts, c.opts.Doctype)
	}
	parts = append(parts, body)
	return strings.Join(parts, "\n"), nil
}

// RenderPartial renders id without the document prologue. fragments
// pre-populate the slots the template (or its parents) expose.
func (e *Engine) RenderPartial(ctx context.Context, id string, fragments []*Override, params map[string]any, settings ...Setting) (string, error) {
	c := e.newCall(ctx, params, settings)
	return c.partial(id, fragments)
}

// Component adapts a template to templ.Component. The template renders as a
// fragment.
func (e *Engine) Component(id string, params map[string]any, settings ...Setting) templ.Component {
	settings = append(append([]Setting{}, settings...), Fragment(true))
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		out, err := e.Render(ctx, id, params, settings...)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	})
}

func (e *Engine) newCall(ctx context.Context, params map[string]any, settings []Setting) *call {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := e.opts.apply(settings)
	loaders := loader.NewStack(e.loader)
	if opts.Loader != nil {
		loaders.Push(opts.Loader)
	}
	return &call{
		e:         e,
		ctx:       ctx,
		opts:      opts,
		params:    params,
		loaders:   loaders,
		fragments: make(map[string]*Override),
		logger:    e.logger,
	}
}

// autoTag returns the engine's factory for policy, so tag prototypes keep
// their identity across renders.
func (e *Engine) autoTag(policy tags.Policy) *tags.AutoTag {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()
	a, ok := e.autoTags[policy]
	if !ok {
		a = tags.NewAutoTag(policy)
		e.autoTags[policy] = a
	}
	return a
}

// validateID rejects template ids that could escape the template root.
func validateID(id string) error {
	clean := filepath.Clean(id)

	if id == "" || clean == "." {
		return berrors.NewTemplateNotFound(id, fmt.Errorf("empty or invalid template name"))
	}
	if filepath.IsAbs(clean) {
		return berrors.NewTemplateNotFound(id, fmt.Errorf("absolute path not allowed"))
	}
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return berrors.NewTemplateNotFound(id, fmt.Errorf("path traversal not allowed"))
		}
	}
	return nil
}
