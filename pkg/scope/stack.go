package scope

import (
	"sort"
	"sync"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

// GlobalStack keeps one LIFO stack of values per name. Templates push values
// around a region of output and pop them when done; a balanced render leaves
// every stack empty.
type GlobalStack struct {
	mu     sync.Mutex
	stacks map[string][]any
}

// Globals is the process-wide stack used when no other is configured.
var Globals = NewGlobalStack()

// NewGlobalStack creates an empty stack store.
func NewGlobalStack() *GlobalStack {
	return &GlobalStack{stacks: make(map[string][]any)}
}

// Push pushes one frame per key. Keys are applied in sorted order.
func (g *GlobalStack) Push(kv map[string]any) {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		g.stacks[k] = append(g.stacks[k], kv[k])
	}
}

// Pop removes and returns the top value for key. The entry is dropped once
// its stack is empty.
func (g *GlobalStack) Pop(key string) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.stacks[key]
	if len(s) == 0 {
		return nil, berrors.NewEvaluationError(berrors.ErrCodeStackEmpty, "pop from empty stack").
			WithContext("key", key)
	}
	top := s[len(s)-1]
	s[len(s)-1] = nil
	s = s[:len(s)-1]
	if len(s) == 0 {
		delete(g.stacks, key)
	} else {
		g.stacks[key] = s
	}
	return top, nil
}

// Peek returns the top value for key without removing it.
func (g *GlobalStack) Peek(key string) (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stacks[key]
	if len(s) == 0 {
		return nil, false
	}
	return s[len(s)-1], true
}

// Len returns the depth of the stack for key.
func (g *GlobalStack) Len(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stacks[key])
}

// Empty reports whether every stack has been fully popped.
func (g *GlobalStack) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stacks) == 0
}

// Stacks returns a snapshot copy of all non-empty stacks.
func (g *GlobalStack) Stacks() map[string][]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string][]any, len(g.stacks))
	for k, s := range g.stacks {
		cp := make([]any, len(s))
		copy(cp, s)
		out[k] = cp
	}
	return out
}
