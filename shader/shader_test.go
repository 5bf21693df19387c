package shader

import (
	"errors"
	"testing"
)

func TestDescriptionEqualityRequiresSortedDefines(t *testing.T) {
	a := Description{Filename: "a.glsl", Stage: StageVertex, Version: 140, Defines: SortDefines([]string{"B", "A"})}
	b := Description{Filename: "a.glsl", Stage: StageVertex, Version: 140, Defines: SortDefines([]string{"A", "B"})}
	if !a.Equal(b) {
		t.Errorf("canonicalized descriptions should be equal")
	}

	c := Description{Filename: "a.glsl", Stage: StageVertex, Version: 140, Defines: []string{"B", "A"}}
	if a.Equal(c) {
		t.Errorf("descriptions with differing (unsorted) define order should not be equal")
	}
}

func TestBuildPreambleStageExtensions(t *testing.T) {
	mesh := BuildPreamble(StageMesh, nil)
	if len(mesh.Extensions) != 1 || mesh.Extensions[0] != "GL_NV_mesh_shader" {
		t.Errorf("mesh stage extensions = %v, want [GL_NV_mesh_shader]", mesh.Extensions)
	}
	vert := BuildPreamble(StageVertex, nil)
	if len(vert.Extensions) != 0 {
		t.Errorf("vertex stage extensions = %v, want none", vert.Extensions)
	}
}

func TestResolveTargetVersion(t *testing.T) {
	tv, err := ResolveTargetVersion(140)
	if err != nil {
		t.Fatal(err)
	}
	if tv.VulkanEnv != "vulkan1.1" || tv.SpirvTarget != "spv1.4" {
		t.Errorf("ResolveTargetVersion(140) = %+v, want vulkan1.1/spv1.4", tv)
	}
	if _, err := ResolveTargetVersion(999); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("ResolveTargetVersion(999) error = %v, want ErrUnsupportedFeature", err)
	}
}

func TestScanAnnotationsRecognizesKeys(t *testing.T) {
	src := "layout(set=0) uniform Foo { int x; }; //@set 0 \"Globals\"\n" +
		"layout(set=1) buffer Bar { int y[]; }; //@dynamic-offset\n" +
		"layout(set=1, binding=1) uniform image2D img; //@discard\n" +
		"layout(set=2) uniform Unknown { int z; }; //@frobnicate\n"
	anns := ScanAnnotations(src, nil)
	if len(anns) != 4 {
		t.Fatalf("got %d annotations, want 4", len(anns))
	}
	if idx, name, ok := SetIndexFromAnnotation(anns[0].Keys[0]); !ok || idx != 0 || name != "Globals" {
		t.Errorf("first annotation = %v %q %v, want 0 Globals true", idx, name, ok)
	}
	if anns[1].Keys[0].Name != "dynamic-offset" {
		t.Errorf("second annotation key = %q, want dynamic-offset", anns[1].Keys[0].Name)
	}
	if anns[3].Keys[0].Known {
		t.Errorf("unknown annotation key should not be marked known")
	}
}

func TestComputeStructLayoutRejectsNonZeroFirstOffset(t *testing.T) {
	_, err := ComputeStructLayout(Std140, []Member{{Offset: 16, Size: 16, Alignment: 16}})
	if !errors.Is(err, ErrNonZeroFirstOffset) {
		t.Errorf("ComputeStructLayout() error = %v, want ErrNonZeroFirstOffset", err)
	}
}

func TestComputeStructLayoutTrailingArrayStride(t *testing.T) {
	layout, err := ComputeStructLayout(Std430, []Member{
		{Offset: 0, Size: 16},
		{Offset: 16, Size: 0, TrailingUnsizedArray: true, ArrayStride: 16},
	})
	if err != nil {
		t.Fatal(err)
	}
	if layout.ArrayStride != 16 {
		t.Errorf("ArrayStride = %d, want 16", layout.ArrayStride)
	}
}

func TestBuildReflectionIndependentOfCompile(t *testing.T) {
	compileCalled := false
	c := &Compiler{
		Reflect: func(stage Stage, src string) (*Reflection, error) {
			return NewReflection(), nil
		},
		Compile: func(stage Stage, version int, src string) ([]uint32, error) {
			compileCalled = true
			return []uint32{1, 2, 3}, nil
		},
	}
	if _, err := c.BuildReflection(Unit{Stage: StageVertex, SpirvVersion: 140, Source: "void main(){}"}); err != nil {
		t.Fatal(err)
	}
	if compileCalled {
		t.Error("BuildReflection must not invoke the SPIR-V compiler")
	}
}

func TestCompileSPIRVIndependentOfReflect(t *testing.T) {
	reflectCalled := false
	c := &Compiler{
		Reflect: func(stage Stage, src string) (*Reflection, error) {
			reflectCalled = true
			return NewReflection(), nil
		},
		Compile: func(stage Stage, version int, src string) ([]uint32, error) {
			return []uint32{1, 2, 3}, nil
		},
	}
	words, err := c.CompileSPIRV(Unit{Stage: StageVertex, SpirvVersion: 140, Source: "void main(){}"})
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 3 {
		t.Errorf("CompileSPIRV() = %v, want 3 words", words)
	}
	if reflectCalled {
		t.Error("CompileSPIRV must not invoke the reflector")
	}
}
