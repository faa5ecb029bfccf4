package scope

// Callable is implemented by values that templates can invoke. The frame
// active at the call site is passed explicitly so directives can bind names
// into it.
type Callable interface {
	Call(s *Namespace, args []any) (any, error)
}

// Func adapts an ordinary function to Callable.
type Func func(s *Namespace, args []any) (any, error)

// Call invokes f.
func (f Func) Call(s *Namespace, args []any) (any, error) {
	return f(s, args)
}
