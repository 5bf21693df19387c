package shader

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// Unit is the full input to a single shader compilation per §4.4.
type Unit struct {
	Stage       Stage
	SpirvVersion int
	EntryName   string
	Source      string
	IncludeDirs []string
	Defines     []string
}

// ReflectFunc walks an AST-equivalent of the preprocessed source to build a
// Reflection without needing the compiled SPIR-V binary. In this module the
// actual GLSL semantic walk is supplied by the caller (it depends on the
// black-box front end named in §1/§6); ReflectFunc lets tests and the real
// pipeline builder plug in their own walker while this package supplies the
// preamble synthesis, annotation pass and diagnostics wrapping around it.
type ReflectFunc func(stage Stage, preprocessed string) (*Reflection, error)

// Compiler ties together preamble synthesis, the annotation pass, and the
// two out-of-scope black boxes (GLSL reflection walk and GLSL->SPIR-V
// compile) into the BuildReflection/Compile entry points of §4.4.
type Compiler struct {
	Reflect ReflectFunc
	Compile CompileFunc
}

// preprocess builds the full source text (preamble + original source) fed
// to both the reflector and the SPIR-V compiler.
func (c *Compiler) preprocess(u Unit) string {
	preamble := BuildPreamble(u.Stage, u.Defines)
	return preamble.Source() + u.Source
}

// BuildReflection emits only the structured reflection (§4.4): it never
// invokes the SPIR-V compiler.
func (c *Compiler) BuildReflection(u Unit) (*Reflection, error) {
	full := c.preprocess(u)
	refl, err := c.Reflect(u.Stage, full)
	if err != nil {
		return nil, c.annotateDiagnostic(u, full, err)
	}
	applyAnnotations(refl, ScanAnnotations(full, nil))
	return refl, nil
}

// CompileSPIRV emits only the SPIR-V word vector (§4.4): it never builds a
// reflection.
func (c *Compiler) CompileSPIRV(u Unit) ([]uint32, error) {
	full := c.preprocess(u)
	words, err := c.Compile(u.Stage, u.SpirvVersion, full)
	if err != nil {
		return nil, c.annotateDiagnostic(u, full, err)
	}
	return words, nil
}

// applyAnnotations folds the parsed //@ directives into the reflection:
// set names, dynamic-offset markers and discard markers. An annotation's
// source line is not matched against bindings: every dynamic-offset and
// discard annotation targets the same binding, the one lastBuffer returns.
func applyAnnotations(refl *Reflection, annotations []Annotation) {
	for _, ann := range annotations {
		for _, key := range ann.Keys {
			switch key.Name {
			case "set":
				if idx, name, ok := SetIndexFromAnnotation(key); ok {
					refl.Set(idx).Name = name
				}
			case "dynamic-offset":
				markNextBindingDynamicOffset(refl)
			case "discard":
				markNextBindingDiscard(refl)
			}
		}
	}
}

// markNextBindingDynamicOffset sets HasDynamicOffset on the last binding
// of the highest-numbered non-empty set, whatever its position relative to
// the annotation. If that binding is not a buffer nothing is marked, even
// when an earlier binding is one; DynamicOffsetIndex is left unchanged.
func markNextBindingDynamicOffset(refl *Reflection) {
	b := lastBuffer(refl)
	if b != nil && b.Buffer != nil {
		b.Buffer.HasDynamicOffset = true
	}
}

func markNextBindingDiscard(refl *Reflection) {
	b := lastBuffer(refl)
	if b != nil && b.Image != nil {
		b.Image.Discard = true
	}
}

func lastBuffer(refl *Reflection) *Binding {
	var last *Binding
	for _, set := range refl.DescriptorSets {
		if set == nil {
			continue
		}
		for i := range set.Bindings {
			last = &set.Bindings[i]
		}
	}
	return last
}

// annotateDiagnostic wraps err with the unified "in source (N: L): ..."
// line of §4.4, correlating the failure against the preamble length so
// line numbers are reported relative to the user's own source file.
func (c *Compiler) annotateDiagnostic(u Unit, full string, err error) error {
	preamble := BuildPreamble(u.Stage, u.Defines)
	offset := preamble.LineCount()
	line := locateFailingLine(err.Error(), full, offset)
	return xerrors.Errorf("%w: in source (%d: %d): %q\n%v", ErrShaderCompile, 0, line.lineNum, line.text, err)
}

type sourceLine struct {
	lineNum int
	text    string
}

// locateFailingLine extracts a "line:" prefix from a compiler diagnostic
// string if present, else falls back to offset (the first user line).
func locateFailingLine(diag, full string, offset int) sourceLine {
	lines := strings.Split(full, "\n")
	n := offset
	for _, tok := range strings.Fields(diag) {
		var l int
		if _, err := fmt.Sscanf(tok, "%d:", &l); err == nil && l > 0 {
			n = l
			break
		}
	}
	if n < 0 {
		n = 0
	}
	text := ""
	if n < len(lines) {
		text = lines[n]
	}
	return sourceLine{lineNum: n - offset, text: strings.TrimSpace(text)}
}
