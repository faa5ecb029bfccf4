package loader

// Stack is the loader stack of one render call. Includes that name their own
// loader push it for the duration of the nested compile; everything else
// uses the top of the stack.
type Stack struct {
	base    Loader
	loaders []Loader
}

// NewStack creates a stack whose bottom entry is base.
func NewStack(base Loader) *Stack {
	if base == nil {
		base = FileLoader{}
	}
	return &Stack{base: base}
}

// Push makes l the active loader.
func (s *Stack) Push(l Loader) {
	s.loaders = append(s.loaders, l)
}

// Pop removes the most recently pushed loader. The base is never removed.
func (s *Stack) Pop() {
	if len(s.loaders) > 0 {
		s.loaders[len(s.loaders)-1] = nil
		s.loaders = s.loaders[:len(s.loaders)-1]
	}
}

// Top returns the active loader.
func (s *Stack) Top() Loader {
	if n := len(s.loaders); n > 0 {
		return s.loaders[n-1]
	}
	return s.base
}

// Depth returns the number of pushed loaders above the base.
func (s *Stack) Depth() int {
	return len(s.loaders)
}
