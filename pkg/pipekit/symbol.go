package pipekit

// Symbol is the root of every expression tree. It stands for the subject
// value that arrives at evaluation time: evaluating a Symbol returns the
// subject unchanged, under any context.
//
// Conventionally named "f" in user code:
//
//	f := pipekit.NewSymbol("f")
//	expr := f.Attr("price").Mul(f.Attr("qty"))
type Symbol struct {
	base
	name string
}

// NewSymbol creates a root symbol. The name is used only for rendering.
// An empty name renders as "f".
func NewSymbol(name string) *Symbol {
	if name == "" {
		name = "f"
	}
	s := &Symbol{name: name}
	s.init(s)
	return s
}

// String renders the symbol's name.
func (s *Symbol) String() string {
	return s.name
}

func (s *Symbol) eval(subject any, _ Context) (any, error) {
	return subject, nil
}

func (s *Symbol) refLevel() int {
	return 0
}
