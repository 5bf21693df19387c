package pipelinepack

import (
	"fmt"
	"testing"

	"github.com/aeforge/buildpack/shader"
	"github.com/aeforge/buildpack/stream"
)

// fakeCompiler returns a fixed reflection per stage, ignoring the source,
// so tests don't need a real GLSL front end: every stage gets a "frame"
// set 0 with a Camera uniform buffer, the fragment stage adds a "material"
// set 1 with an Albedo combined image and an outColor output, and the
// vertex stage adds an inPos attribute.
func fakeCompiler() *shader.Compiler {
	return &shader.Compiler{
		Reflect: func(stage shader.Stage, src string) (*shader.Reflection, error) {
			refl := shader.NewReflection()
			refl.Set(0).Name = "frame"
			refl.Set(0).Bindings = append(refl.Set(0).Bindings, shader.Binding{
				Name: "Camera", BindingIndex: 0, Kind: shader.UniformBuffer,
				StageMask: shader.StageBit(stage),
				Buffer:    &shader.BufferInfo{StaticSize: 64},
			})
			if stage == shader.StageFragment {
				refl.Set(1).Name = "material"
				refl.Set(1).Bindings = append(refl.Set(1).Bindings, shader.Binding{
					Name: "Albedo", BindingIndex: 0, Kind: shader.CombinedImage,
					StageMask: shader.StageBit(stage),
					Image:     &shader.ImageInfo{Dim: shader.Dim2D},
				})
				refl.FragmentOutputs = []shader.FragmentOutput{{Name: "outColor", Location: 0}}
			}
			if stage == shader.StageVertex {
				refl.VertexAttributes = []shader.VertexAttribute{{Name: "inPos", Location: 0}}
			}
			return refl, nil
		},
		Compile: func(stage shader.Stage, version int, src string) ([]uint32, error) {
			return []uint32{uint32(stage), uint32(version), 0xC0DE}, nil
		},
	}
}

func readMemSource(path string) (string, error) { return "void main(){}", nil }

func graphicsDecl(name, rp string) GraphicsDecl {
	return GraphicsDecl{
		Name:       name,
		RenderPass: rp,
		Stages: map[shader.Stage]ShaderRef{
			shader.StageVertex:   {Filename: "tri.vert"},
			shader.StageFragment: {Filename: "tri.frag"},
		},
	}
}

func meshDecl(name, meshFile string) MeshDecl {
	return MeshDecl{
		Name: name,
		Stages: map[shader.Stage]ShaderRef{
			shader.StageMesh:     {Filename: meshFile},
			shader.StageFragment: {Filename: "tri.frag"},
		},
	}
}

func computeDecl(name string) ComputeDecl {
	return ComputeDecl{Name: name, Shader: ShaderRef{Filename: "c.comp"}}
}

func buildScenario1(t *testing.T) *Pack {
	t.Helper()
	storage := &Storage{}
	storage.AddGraphics(graphicsDecl("opaque", "main_pass"))
	storage.AddMesh(meshDecl("mesh_a", "a.mesh"))
	storage.AddMesh(meshDecl("mesh_b", "b.mesh"))
	storage.AddCompute(computeDecl("cull"))

	b := NewBuilder(storage, fakeCompiler(), []string{"/shaders"}, "/shaders")
	pack, err := b.Run(readMemSource)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return pack
}

func TestBuildScenario1Counts(t *testing.T) {
	pack := buildScenario1(t)

	if len(pack.RenderPasses) != 1 {
		t.Errorf("RenderPasses = %d, want 1", len(pack.RenderPasses))
	}
	if len(pack.SpirvShaders) != 5 {
		t.Errorf("SpirvShaders = %d, want 5", len(pack.SpirvShaders))
	}
	if len(pack.GraphicsPipelines) != 1 {
		t.Errorf("GraphicsPipelines = %d, want 1", len(pack.GraphicsPipelines))
	}
	if len(pack.MeshPipelines) != 2 {
		t.Errorf("MeshPipelines = %d, want 2", len(pack.MeshPipelines))
	}
	if len(pack.ComputePipelines) != 1 {
		t.Errorf("ComputePipelines = %d, want 1", len(pack.ComputePipelines))
	}
	if len(pack.RayTracingPipelines) != 0 {
		t.Errorf("RayTracingPipelines = %d, want 0", len(pack.RayTracingPipelines))
	}
	if len(pack.PipelineNames) != 4 {
		t.Errorf("PipelineNames = %d, want 4", len(pack.PipelineNames))
	}
	// The shared fragment shader carries the merged stage bits between the
	// graphics and mesh pipelines, so both end with the same frame (Camera)
	// and material (Albedo) sets; compute's frame set differs only in its
	// stage mask. That gives 3 descriptor-set layouts and 2 pipeline layouts.
	if len(pack.DescriptorSetLayouts) == 0 {
		t.Error("expected at least one descriptor-set layout")
	}
	if len(pack.PipelineLayouts) == 0 {
		t.Error("expected at least one pipeline layout")
	}

	gp := pack.GraphicsPipelines[0]
	want := map[shader.Topology]bool{}
	for _, topo := range shader.AllTopologies {
		want[topo] = true
	}
	if len(gp.SupportedTopology) != len(want) {
		t.Fatalf("SupportedTopology = %v, want all 6 non-patch topologies", gp.SupportedTopology)
	}
	for _, topo := range gp.SupportedTopology {
		if !want[topo] {
			t.Errorf("unexpected topology %v", topo)
		}
	}
}

func TestPackRoundTripPreservesMarkerOrder(t *testing.T) {
	pack := buildScenario1(t)

	mw := stream.NewMemWriter()
	if err := Write(mw, pack); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	mr := stream.NewMemReader(mw.Bytes())
	got, err := Read(mr)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Version != pack.Version {
		t.Errorf("Version = %d, want %d", got.Version, pack.Version)
	}
	if len(got.DescriptorSetLayouts) != len(pack.DescriptorSetLayouts) {
		t.Errorf("DescriptorSetLayouts = %d, want %d", len(got.DescriptorSetLayouts), len(pack.DescriptorSetLayouts))
	}
	if len(got.PipelineLayouts) != len(pack.PipelineLayouts) {
		t.Errorf("PipelineLayouts = %d, want %d", len(got.PipelineLayouts), len(pack.PipelineLayouts))
	}
	if len(got.RenderPasses) != len(pack.RenderPasses) {
		t.Errorf("RenderPasses = %d, want %d", len(got.RenderPasses), len(pack.RenderPasses))
	}
	if len(got.SpirvShaders) != len(pack.SpirvShaders) {
		t.Errorf("SpirvShaders = %d, want %d", len(got.SpirvShaders), len(pack.SpirvShaders))
	}
	if len(got.GraphicsPipelines) != len(pack.GraphicsPipelines) {
		t.Errorf("GraphicsPipelines = %d, want %d", len(got.GraphicsPipelines), len(pack.GraphicsPipelines))
	}
	if len(got.MeshPipelines) != len(pack.MeshPipelines) {
		t.Errorf("MeshPipelines = %d, want %d", len(got.MeshPipelines), len(pack.MeshPipelines))
	}
	if len(got.ComputePipelines) != len(pack.ComputePipelines) {
		t.Errorf("ComputePipelines = %d, want %d", len(got.ComputePipelines), len(pack.ComputePipelines))
	}
	if len(got.PipelineNames) != len(pack.PipelineNames) {
		t.Errorf("PipelineNames = %d, want %d", len(got.PipelineNames), len(pack.PipelineNames))
	}
	for name, uid := range pack.PipelineNames {
		if got.PipelineNames[name] != uid {
			t.Errorf("PipelineNames[%q] = %d, want %d", name, got.PipelineNames[name], uid)
		}
	}
	gp := got.GraphicsPipelines[0]
	if len(gp.SupportedTopology) != 6 {
		t.Errorf("round-tripped SupportedTopology has %d entries, want 6", len(gp.SupportedTopology))
	}
}

func TestLayoutDedupInsertionOrderIndependent(t *testing.T) {
	a := DescriptorSetLayout{Bindings: []shader.Binding{
		{Name: "B", Kind: shader.UniformBuffer, Buffer: &shader.BufferInfo{}},
		{Name: "A", Kind: shader.UniformBuffer, Buffer: &shader.BufferInfo{}},
	}}
	b := DescriptorSetLayout{Bindings: []shader.Binding{
		{Name: "A", Kind: shader.UniformBuffer, Buffer: &shader.BufferInfo{}},
		{Name: "B", Kind: shader.UniformBuffer, Buffer: &shader.BufferInfo{}},
	}}
	pool := newLayoutPool()
	uidA := pool.intern(a)
	uidB := pool.intern(b)
	if uidA != uidB {
		t.Errorf("structurally-equal layouts with different insertion order got different UIDs: %d vs %d", uidA, uidB)
	}
	if len(pool.all) != 1 {
		t.Errorf("pool has %d entries, want 1", len(pool.all))
	}
}

func TestMergeBindingsConflictDetection(t *testing.T) {
	dst := &shader.DescriptorSet{}
	if _, err := mergeBindingsInto(dst, []shader.Binding{
		{Name: "X", Kind: shader.UniformBuffer, Buffer: &shader.BufferInfo{StaticSize: 16}},
	}); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	_, err := mergeBindingsInto(dst, []shader.Binding{
		{Name: "X", Kind: shader.StorageBuffer, Buffer: &shader.BufferInfo{StaticSize: 16}},
	})
	if err != ErrLayoutConflict {
		t.Errorf("mergeBindingsInto() error = %v, want ErrLayoutConflict", err)
	}
}

func TestCacheShaderRejectsPathEscapingRoot(t *testing.T) {
	storage := &Storage{}
	storage.AddCompute(ComputeDecl{Name: "evil", Shader: ShaderRef{Filename: "../../etc/passwd"}})
	b := NewBuilder(storage, fakeCompiler(), []string{"/shaders"}, "/shaders")
	pack, err := b.Run(readMemSource)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(pack.ComputePipelines) != 0 {
		t.Errorf("expected sandboxed shader reference to be dropped, got %d compute pipelines", len(pack.ComputePipelines))
	}
	if b.ErrorCount() == 0 {
		t.Error("expected ErrorCount() > 0 after a sandbox violation")
	}
}

func TestDuplicatePipelineNameIncrementsErrorCount(t *testing.T) {
	storage := &Storage{}
	storage.AddGraphics(graphicsDecl("dup", "rp"))
	storage.AddGraphics(graphicsDecl("dup", "rp"))
	b := NewBuilder(storage, fakeCompiler(), []string{"/shaders"}, "/shaders")
	pack, err := b.Run(readMemSource)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(pack.GraphicsPipelines) != 1 {
		t.Errorf("GraphicsPipelines = %d, want 1 (second duplicate dropped)", len(pack.GraphicsPipelines))
	}
	if b.ErrorCount() == 0 {
		t.Error("expected ErrorCount() > 0 after a duplicate pipeline name")
	}
}

func ExampleMarkerOrder() {
	for _, m := range MarkerOrder {
		fmt.Println(m)
	}
	// Output:
	// 0
	// 1
	// 2
	// 3
	// 4
	// 5
	// 6
	// 7
	// 8
	// 9
	// 10
}
