package pipelinepack

import (
	"log"
	"path/filepath"
	"sort"

	"github.com/aeforge/buildpack/internal/sandbox"
	"github.com/aeforge/buildpack/shader"
	"golang.org/x/sync/errgroup"
)

// Builder runs the four phases of §4.5: gather, cache shaders, merge
// layouts to a fixpoint, assemble and serialize.
type Builder struct {
	Storage       *Storage
	Compiler      *shader.Compiler
	ShaderRoots   []string
	WorkingRoot   string // pipeline working root for path-safety (§4.5)
	Logger        *log.Logger

	shaderCache map[string]*cachedShader
	errCount    int
}

type cachedShader struct {
	desc   shader.Description
	refl   *shader.Reflection
	source string
	spirv  []uint32
	uid    SpirvShaderUID
	path   string
}

// NewBuilder constructs a Builder ready for Run.
func NewBuilder(storage *Storage, compiler *shader.Compiler, shaderRoots []string, workingRoot string) *Builder {
	return &Builder{
		Storage:     storage,
		Compiler:    compiler,
		ShaderRoots: shaderRoots,
		WorkingRoot: workingRoot,
		shaderCache: make(map[string]*cachedShader),
	}
}

func (b *Builder) logf(format string, args ...any) {
	if b.Logger != nil {
		b.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// ErrorCount returns the number of per-pipeline errors accumulated so far,
// per §7 ("the pipeline that required the shader is skipped with its
// error counter incremented").
func (b *Builder) ErrorCount() int { return b.errCount }

// cacheShader resolves ref against the shader-search roots (sandboxed
// against WorkingRoot per §4.5/§4.8's shared path-safety rule), inherits
// pipeline-level defines, and inserts a cache entry keyed by the canonical
// Description — phase 2.
func (b *Builder) cacheShader(stage shader.Stage, ref ShaderRef, pipelineDefines []string) (*cachedShader, error) {
	defines := shader.SortDefines(append(append([]string(nil), pipelineDefines...), ref.Defines...))
	desc := shader.Description{Filename: ref.Filename, Stage: stage, Version: ref.Version, Defines: defines}
	key := desc.Key()
	if entry, ok := b.shaderCache[key]; ok {
		return entry, nil
	}

	var resolved string
	for _, root := range b.ShaderRoots {
		candidate := filepath.Join(root, ref.Filename)
		if safe, serr := sandbox.Contains(b.WorkingRoot, candidate); serr == nil && safe {
			resolved = candidate
			break
		}
	}
	if resolved == "" {
		return nil, ErrInvalidPath
	}

	entry := &cachedShader{desc: desc, path: resolved}
	b.shaderCache[key] = entry
	return entry, nil
}

// buildReflections runs BuildReflection for every cached shader that
// hasn't been reflected yet. Separated from cacheShader so phase 2
// resolves names first and phase 3 can rely on every participant having a
// reflection before the fixpoint starts.
func (b *Builder) buildReflections(readSource func(path string) (string, error)) error {
	for _, entry := range b.shaderCache {
		if entry.refl != nil {
			continue
		}
		src, err := readSource(entry.path)
		if err != nil {
			b.errCount++
			return err
		}
		entry.source = src
		refl, err := b.Compiler.BuildReflection(shader.Unit{
			Stage:        entry.desc.Stage,
			SpirvVersion: entry.desc.Version,
			Source:       src,
			Defines:      entry.desc.Defines,
		})
		if err != nil {
			b.errCount++
			continue
		}
		entry.refl = refl
	}
	return nil
}

// declRef is a uniform view over the three pipeline kinds' per-stage
// shader references, used to drive the cache/fixpoint phases generically.
type declRef struct {
	stages  map[shader.Stage]ShaderRef
	defines []string
	working *workingLayout
	entries map[shader.Stage]*cachedShader
}

// prepare runs phase 2 (cache shaders) across every declared pipeline and
// returns a declRef per pipeline alongside the order pipelines were
// declared in (gather order must not affect the final result, §3/§8).
func (b *Builder) prepare(readSource func(path string) (string, error)) ([]*declRef, error) {
	var refs []*declRef

	addPipeline := func(stages map[shader.Stage]ShaderRef, defines []string) *declRef {
		dr := &declRef{stages: stages, defines: defines, working: newWorkingLayout(), entries: make(map[shader.Stage]*cachedShader)}
		for stage, ref := range stages {
			entry, err := b.cacheShader(stage, ref, defines)
			if err != nil {
				b.errCount++
				continue
			}
			dr.entries[stage] = entry
		}
		return dr
	}

	for _, g := range b.Storage.Graphics {
		refs = append(refs, addPipeline(g.Stages, nil))
	}
	for _, m := range b.Storage.Mesh {
		refs = append(refs, addPipeline(m.Stages, nil))
	}
	for _, c := range b.Storage.Compute {
		refs = append(refs, addPipeline(map[shader.Stage]ShaderRef{shader.StageCompute: c.Shader}, nil))
	}

	if err := b.buildReflections(readSource); err != nil {
		return nil, err
	}
	return refs, nil
}

// mergeFixpoint runs §4.5 phase 3: alternating AddLayout/MergeLayouts
// passes over every pipeline until both report zero merge-events.
func (b *Builder) mergeFixpoint(refs []*declRef) error {
	for {
		totalEvents := 0
		for _, dr := range refs {
			for _, entry := range dr.entries {
				if entry.refl == nil {
					continue
				}
				n, err := dr.working.AddLayout(entry.refl)
				totalEvents += n
				if err != nil {
					b.errCount++
					return err
				}
			}
		}
		for _, dr := range refs {
			for _, entry := range dr.entries {
				if entry.refl == nil {
					continue
				}
				n, err := dr.working.MergeLayouts(entry.refl)
				totalEvents += n
				if err != nil {
					b.errCount++
					return err
				}
			}
		}
		if totalEvents == 0 {
			return nil
		}
	}
}

// assemble runs §4.5 phase 4: compile every shader once, materialize
// layouts, and emit the final Pack. The unique shaders are compiled in
// parallel via errgroup (§5: merging is single-threaded, assembly is not);
// the pipeline records are then assembled sequentially.
func (b *Builder) assemble(refs []*declRef) (*Pack, error) {
	pack := &Pack{
		Version:         PackVersion,
		RenderPassNames: make(map[string]RenderPassUID),
		PipelineNames:   make(map[string]PipelineUID),
	}
	layouts := newLayoutPool()
	pipelineLayouts := newPipelineLayoutPool()
	renderPasses := make(map[string]RenderPassUID)

	// Compile every unique shader once, in parallel.
	var g errgroup.Group
	for _, entry := range b.shaderCache {
		entry := entry
		if entry.refl == nil {
			continue
		}
		g.Go(func() error {
			words, err := b.Compiler.CompileSPIRV(shader.Unit{
				Stage:        entry.desc.Stage,
				SpirvVersion: entry.desc.Version,
				Source:       entry.source,
				Defines:      entry.desc.Defines,
			})
			if err != nil {
				return err
			}
			entry.spirv = words
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.errCount++
		b.logf("pipelinepack: shader compile error: %v", err)
	}
	// Assign dense UIDs deterministically (sorted by description key so
	// pipeline declaration order never affects the result, §3/§8).
	keys := make([]string, 0, len(b.shaderCache))
	for k := range b.shaderCache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entry := b.shaderCache[k]
		entry.uid = SpirvShaderUID(len(pack.SpirvShaders))
		pack.SpirvShaders = append(pack.SpirvShaders, SpirvShader{
			Description: entry.desc,
			Reflection:  entry.refl,
			Spirv:       entry.spirv,
		})
	}

	materialize := func(dr *declRef) PipelineLayoutUID {
		pl := PipelineLayout{PushConstants: map[string]shader.PushConstantRange{}}
		for name, pc := range dr.working.pushConstants {
			pl.PushConstants[name] = pc
		}
		for i, set := range dr.working.sets {
			if set == nil || len(set.Bindings) == 0 {
				continue
			}
			uid := layouts.intern(DescriptorSetLayout{Bindings: set.Bindings})
			pl.Sets = append(pl.Sets, PipelineLayoutSet{SetName: set.Name, SetIndex: uint8(i), Layout: uid})
		}
		return pipelineLayouts.intern(pl)
	}

	renderPassUID := func(name string) RenderPassUID {
		if name == "" {
			return 0
		}
		if uid, ok := renderPasses[name]; ok {
			return uid
		}
		uid := RenderPassUID(len(pack.RenderPasses))
		pack.RenderPasses = append(pack.RenderPasses, RenderPass{Name: name})
		renderPasses[name] = uid
		pack.RenderPassNames[name] = uid
		return uid
	}

	idx := 0
	for _, g := range b.Storage.Graphics {
		dr := refs[idx]
		idx++
		if len(dr.entries) != len(g.Stages) {
			continue // some shader failed to resolve/compile
		}
		stages := map[shader.Stage]SpirvShaderUID{}
		var vattrs []shader.VertexAttribute
		var fouts []shader.FragmentOutput
		hasTess := false
		var stageTopologies [][]shader.Topology
		for stage, entry := range dr.entries {
			stages[stage] = entry.uid
			if stage == shader.StageTessControl {
				hasTess = true
			}
			if stage == shader.StageVertex && entry.refl != nil {
				vattrs = entry.refl.VertexAttributes
			}
			if stage == shader.StageFragment && entry.refl != nil {
				fouts = entry.refl.FragmentOutputs
			}
			if entry.refl != nil && len(entry.refl.SupportedTopology) > 0 {
				stageTopologies = append(stageTopologies, entry.refl.SupportedTopology)
			}
		}
		topo := intersectTopologies(stageTopologies, hasTess)
		gp := GraphicsPipeline{
			Stages:            stages,
			Layout:            materialize(dr),
			RenderPass:        renderPassUID(g.RenderPass),
			VertexAttributes:  vattrs,
			FragmentOutputs:   fouts,
			SupportedTopology: topo,
		}
		if _, dup := pack.PipelineNames[g.Name]; dup {
			b.errCount++
			continue
		}
		pack.PipelineNames[g.Name] = PipelineUID(len(pack.GraphicsPipelines)<<8 | int(markerGraphics))
		pack.GraphicsPipelines = append(pack.GraphicsPipelines, gp)
	}
	for _, m := range b.Storage.Mesh {
		dr := refs[idx]
		idx++
		if len(dr.entries) != len(m.Stages) {
			continue
		}
		stages := map[shader.Stage]SpirvShaderUID{}
		var fouts []shader.FragmentOutput
		for stage, entry := range dr.entries {
			stages[stage] = entry.uid
			if stage == shader.StageFragment && entry.refl != nil {
				fouts = entry.refl.FragmentOutputs
			}
		}
		mp := MeshPipeline{
			Stages:          stages,
			Layout:          materialize(dr),
			RenderPass:      renderPassUID(m.RenderPass),
			FragmentOutputs: fouts,
		}
		if _, dup := pack.PipelineNames[m.Name]; dup {
			b.errCount++
			continue
		}
		pack.PipelineNames[m.Name] = PipelineUID(len(pack.MeshPipelines)<<8 | int(markerMesh))
		pack.MeshPipelines = append(pack.MeshPipelines, mp)
	}
	for _, c := range b.Storage.Compute {
		dr := refs[idx]
		idx++
		entry, ok := dr.entries[shader.StageCompute]
		if !ok {
			continue
		}
		cp := ComputePipeline{Shader: entry.uid, Layout: materialize(dr)}
		if _, dup := pack.PipelineNames[c.Name]; dup {
			b.errCount++
			continue
		}
		pack.PipelineNames[c.Name] = PipelineUID(len(pack.ComputePipelines)<<8 | int(markerCompute))
		pack.ComputePipelines = append(pack.ComputePipelines, cp)
	}

	pack.DescriptorSetLayouts = layouts.all
	pack.PipelineLayouts = pipelineLayouts.all
	return pack, nil
}

const (
	markerGraphics = 0
	markerMesh     = 1
	markerCompute  = 2
)

// intersectTopologies derives a graphics pipeline's supported_topology set
// (§4.5) as the intersection of each participating stage's declared
// topology list. A tess-control stage forces Patch regardless of what any
// stage declared. With no per-stage declarations at all, a pipeline with
// no tessellation stage supports the full non-patch topology set.
func intersectTopologies(perStage [][]shader.Topology, hasTess bool) []shader.Topology {
	if hasTess {
		return []shader.Topology{shader.TopologyPatch}
	}
	if len(perStage) == 0 {
		return shader.AllTopologies
	}
	counts := make(map[shader.Topology]int)
	for _, list := range perStage {
		seen := make(map[shader.Topology]bool)
		for _, t := range list {
			if !seen[t] {
				counts[t]++
				seen[t] = true
			}
		}
	}
	var out []shader.Topology
	for _, t := range shader.AllTopologies {
		if counts[t] == len(perStage) {
			out = append(out, t)
		}
	}
	return out
}

// Run executes all four phases of §4.5 and returns the assembled Pack.
// readSource loads a resolved shader path's text (normally os.ReadFile;
// injected so tests can supply in-memory sources).
func (b *Builder) Run(readSource func(path string) (string, error)) (*Pack, error) {
	refs, err := b.prepare(readSource)
	if err != nil {
		return nil, err
	}
	if err := b.mergeFixpoint(refs); err != nil {
		return nil, err
	}
	return b.assemble(refs)
}
