// Package pipelinepack implements the pipeline pack builder (§4.5): it
// gathers pipeline declarations, compiles and deduplicates their shaders
// via package shader, merges per-stage descriptor-set layouts to a
// fixpoint, and serializes the result into the versioned binary pack of
// §3/§6.
package pipelinepack

import (
	"errors"

	"github.com/aeforge/buildpack/shader"
)

// Marker names each length-prefixed section of the pack. Write and Read
// handle the sections in MarkerOrder; the marker values themselves are not
// written to the pack, so each section starts directly with its version
// or length prefix.
type Marker uint8

const (
	MarkerVersion Marker = iota
	MarkerDescriptorSetLayouts
	MarkerPipelineLayouts
	MarkerRenderPasses
	MarkerRenderPassNames
	MarkerSpirvShaders
	MarkerGraphicsPipelines
	MarkerMeshPipelines
	MarkerComputePipelines
	MarkerRayTracingPipelines
	MarkerPipelineNames
)

// MarkerOrder is the exact on-disk section sequence.
var MarkerOrder = []Marker{
	MarkerVersion,
	MarkerDescriptorSetLayouts,
	MarkerPipelineLayouts,
	MarkerRenderPasses,
	MarkerRenderPassNames,
	MarkerSpirvShaders,
	MarkerGraphicsPipelines,
	MarkerMeshPipelines,
	MarkerComputePipelines,
	MarkerRayTracingPipelines,
	MarkerPipelineNames,
}

// PackVersion is the writer's format version constant (§6): readers reject
// any other value.
const PackVersion uint32 = 1

// Errors per §4.5/§7.
var (
	ErrInvalidPath     = errors.New("pipelinepack: invalid path")
	ErrShaderCompile   = errors.New("pipelinepack: shader compile failed")
	ErrLayoutConflict  = errors.New("pipelinepack: layout conflict")
	ErrDuplicateName   = errors.New("pipelinepack: duplicate pipeline name")
)

// UID types. All but PipelineUID are dense indices into their respective
// record vectors; a PipelineUID holds the index into its flavor's pipeline
// vector shifted left by 8, with the flavor (0 graphics, 1 mesh, 2 compute)
// in the low byte.
type (
	DescriptorSetLayoutUID uint32
	PipelineLayoutUID      uint32
	RenderPassUID          uint32
	SpirvShaderUID         uint32
	PipelineUID            uint32
)

// DescriptorSetLayout is a deduplicated, structurally-hashed set of
// bindings (§3). Uniforms are stored sorted by name for a stable on-disk
// form.
type DescriptorSetLayout struct {
	Bindings []shader.Binding // sorted by Name
}

// PipelineLayout is the canonical merge of all shaders in one pipeline
// (§3): set-name/index/UID triples plus the push-constant union.
type PipelineLayout struct {
	Sets          []PipelineLayoutSet
	PushConstants map[string]shader.PushConstantRange
}

// PipelineLayoutSet names one participating descriptor set within a
// pipeline layout.
type PipelineLayoutSet struct {
	SetName  string
	SetIndex uint8
	Layout   DescriptorSetLayoutUID
}

// RenderPass is a minimal render-pass description (graphics/mesh only);
// its internals are out of scope (Vulkan device backend, §1) beyond the
// identity needed to reference it from a pipeline record.
type RenderPass struct {
	Name string
}

// SpirvShader is one compiled, deduplicated shader entry.
type SpirvShader struct {
	Description shader.Description
	Source      string
	Reflection  *shader.Reflection
	Spirv       []uint32
}

// GraphicsPipeline is the emitted record for a graphics pipeline (§3).
type GraphicsPipeline struct {
	Stages            map[shader.Stage]SpirvShaderUID
	Layout            PipelineLayoutUID
	RenderPass        RenderPassUID
	VertexAttributes  []shader.VertexAttribute
	FragmentOutputs   []shader.FragmentOutput
	SupportedTopology []shader.Topology
	SpecConstants     map[string]uint32
}

// MeshPipeline is the emitted record for a mesh pipeline (task?, mesh, fragment).
type MeshPipeline struct {
	Stages            map[shader.Stage]SpirvShaderUID
	Layout            PipelineLayoutUID
	RenderPass        RenderPassUID
	FragmentOutputs   []shader.FragmentOutput
	SpecConstants     map[string]uint32
}

// ComputePipeline is the emitted record for a single-shader compute pipeline.
type ComputePipeline struct {
	Shader        SpirvShaderUID
	Layout        PipelineLayoutUID
	SpecConstants map[string]uint32
}

// RayTracingPipeline is enumerated but always empty in this cut (§4.5).
type RayTracingPipeline struct{}

// Pack is the fully assembled, in-memory form of a pipeline pack, ready
// for Write or already produced by Read.
type Pack struct {
	Version              uint32
	DescriptorSetLayouts []DescriptorSetLayout
	PipelineLayouts      []PipelineLayout
	RenderPasses         []RenderPass
	RenderPassNames      map[string]RenderPassUID
	SpirvShaders         []SpirvShader
	GraphicsPipelines    []GraphicsPipeline
	MeshPipelines        []MeshPipeline
	ComputePipelines     []ComputePipeline
	RayTracingPipelines  []RayTracingPipeline
	PipelineNames        map[string]PipelineUID
}
