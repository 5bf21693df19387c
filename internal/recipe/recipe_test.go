package recipe

import (
	"reflect"
	"testing"
)

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	calls, err := Parse("// a comment\n\napi.MakeDir(\"build\")\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("len(calls) = %d, want 1", len(calls))
	}
	if calls[0].Method != "MakeDir" {
		t.Errorf("Method = %q, want MakeDir", calls[0].Method)
	}
}

func TestParseArgsMixedKinds(t *testing.T) {
	src := `api.CMakeGen(VisualStudio2019, x64, "src", "build", ["FOO=1", "BAR=2"]);`
	calls, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("len(calls) = %d, want 1", len(calls))
	}
	args := calls[0].Args
	if len(args) != 5 {
		t.Fatalf("len(args) = %d, want 5", len(args))
	}
	if args[0].Kind != KindIdent || args[0].Str != "VisualStudio2019" {
		t.Errorf("args[0] = %+v, want ident VisualStudio2019", args[0])
	}
	if args[1].Kind != KindIdent || args[1].Str != "x64" {
		t.Errorf("args[1] = %+v, want ident x64", args[1])
	}
	if args[2].Kind != KindString || args[2].Str != "src" {
		t.Errorf("args[2] = %+v, want string src", args[2])
	}
	if args[4].Kind != KindList || !reflect.DeepEqual(args[4].List, []string{"FOO=1", "BAR=2"}) {
		t.Errorf("args[4] = %+v, want list [FOO=1 BAR=2]", args[4])
	}
}

func TestParseRejectsMissingReceiver(t *testing.T) {
	if _, err := Parse(`MakeDir("build")`); err == nil {
		t.Error("Parse() error = nil, want a parse error for a missing api. receiver")
	}
}

func TestParseRejectsUnterminatedString(t *testing.T) {
	if _, err := Parse(`api.MakeDir("build)`); err == nil {
		t.Error("Parse() error = nil, want a parse error for an unterminated string")
	}
}

func TestInterpreterRunsCallsInOrder(t *testing.T) {
	var order []string
	in := NewInterpreter()
	in.Register("First", func(args []Value) error {
		order = append(order, "First")
		return nil
	})
	in.Register("Second", func(args []Value) error {
		order = append(order, "Second")
		return nil
	})

	calls, err := Parse("api.First()\napi.Second()\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := in.Run(calls); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(order, []string{"First", "Second"}) {
		t.Errorf("order = %v, want [First Second]", order)
	}
}

func TestInterpreterRejectsUnknownMethod(t *testing.T) {
	in := NewInterpreter()
	calls, err := Parse("api.Unbound()\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := in.Run(calls); err == nil {
		t.Error("Run() error = nil, want an unknown-method error")
	}
}

func TestInterpreterContinuesPastOperationFailure(t *testing.T) {
	var calledSecond bool
	in := NewInterpreter()
	in.Register("Fails", func(args []Value) error { return nil }) // operation failure tracked by receiver, not returned
	in.Register("Second", func(args []Value) error {
		calledSecond = true
		return nil
	})

	calls, err := Parse("api.Fails()\napi.Second()\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := in.Run(calls); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !calledSecond {
		t.Error("Second was not called after Fails reported nil (operation-level failure)")
	}
}
