package recipe

import "fmt"

// Handler executes one call's arguments against a bound receiver. A
// returned error means the call itself was malformed (wrong arity or
// argument kind) and aborts the recipe; a handler that performs an
// operation which merely failed (a sandbox violation, a failed
// subprocess) should report that through its own receiver state and
// return nil, matching the original engine where BuildScriptApi methods
// return bool into a script that never inspects it.
type Handler func(args []Value) error

// Interpreter dispatches parsed calls to registered handlers by method
// name, the same "table of named invocations" shape as the teacher's
// cmd/autobuilder steps table, generalized from a fixed Go slice into
// handlers keyed by the recipe's own method names.
type Interpreter struct {
	handlers map[string]Handler
}

// NewInterpreter returns an empty interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{handlers: make(map[string]Handler)}
}

// Register binds method to h. Re-registering a name replaces it.
func (in *Interpreter) Register(method string, h Handler) {
	in.handlers[method] = h
}

// Run executes every call in order. An unknown method or a handler that
// reports a shape error aborts the run and returns that error; the
// caller should still inspect whatever error-counting state its
// handlers maintain.
func (in *Interpreter) Run(calls []Call) error {
	for _, c := range calls {
		h, ok := in.handlers[c.Method]
		if !ok {
			return &ParseError{c.Line, fmt.Sprintf("unknown method %q", c.Method)}
		}
		if err := h(c.Args); err != nil {
			return &ParseError{c.Line, err.Error()}
		}
	}
	return nil
}
