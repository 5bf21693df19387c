package pipelinepack

import "github.com/aeforge/buildpack/shader"

// ShaderRef names one stage's shader source within a pipeline declaration:
// a filename resolved against the builder's shader-search roots, plus
// defines inherited from (and re-sorted with) the pipeline's own defines.
type ShaderRef struct {
	Filename string
	Defines  []string
	Version  int
}

// GraphicsDecl declares a graphics pipeline — up to 5 stages (§4.5).
type GraphicsDecl struct {
	Name       string
	Stages     map[shader.Stage]ShaderRef
	RenderPass string
}

// MeshDecl declares a mesh pipeline (task?, mesh, fragment).
type MeshDecl struct {
	Name       string
	Stages     map[shader.Stage]ShaderRef
	RenderPass string
}

// ComputeDecl declares a single-shader compute pipeline.
type ComputeDecl struct {
	Name   string
	Shader ShaderRef
}

// Storage is the explicit, non-global pipeline declaration store scripts
// populate (§9 DESIGN NOTES: "the script entry function receives an
// explicit &mut PipelineStorage" in place of a process-global singleton).
type Storage struct {
	Graphics []GraphicsDecl
	Mesh     []MeshDecl
	Compute  []ComputeDecl
}

// AddGraphics appends a graphics pipeline declaration.
func (s *Storage) AddGraphics(d GraphicsDecl) { s.Graphics = append(s.Graphics, d) }

// AddMesh appends a mesh pipeline declaration.
func (s *Storage) AddMesh(d MeshDecl) { s.Mesh = append(s.Mesh, d) }

// AddCompute appends a compute pipeline declaration.
func (s *Storage) AddCompute(d ComputeDecl) { s.Compute = append(s.Compute, d) }
