package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/aeforge/buildpack/shader"
)

// glslStage maps a shader.Stage to the -S argument glslangValidator expects.
func glslStage(s shader.Stage) (string, error) {
	switch s {
	case shader.StageVertex:
		return "vert", nil
	case shader.StageTessControl:
		return "tesc", nil
	case shader.StageTessEval:
		return "tese", nil
	case shader.StageGeometry:
		return "geom", nil
	case shader.StageFragment:
		return "frag", nil
	case shader.StageCompute:
		return "comp", nil
	case shader.StageTask:
		return "task", nil
	case shader.StageMesh:
		return "mesh", nil
	}
	return "", fmt.Errorf("toolchain: unsupported stage %v", s)
}

// compileGLSL invokes glslangValidator to compile preprocessed GLSL to a
// SPIR-V word stream, the black-box compile step named in §1/§6.
func compileGLSL(stage shader.Stage, spirvVersion int, source string) ([]uint32, error) {
	stageArg, err := glslStage(stage)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "pipelinec-glsl")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "shader."+stageArg)
	out := filepath.Join(dir, "shader.spv")
	if err := os.WriteFile(in, []byte(source), 0644); err != nil {
		return nil, err
	}

	cmd := exec.Command("glslangValidator", "-V", "--target-env", "spirv"+spirvEnvSuffix(spirvVersion),
		"-S", stageArg, "-o", out, in)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("glslangValidator: %v: %s", err, stderr.String())
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		return nil, err
	}
	return wordsFromBytes(raw)
}

func spirvEnvSuffix(version int) string {
	switch {
	case version >= 160:
		return "1.6"
	case version >= 150:
		return "1.5"
	case version >= 140:
		return "1.4"
	default:
		return "1.0"
	}
}

func wordsFromBytes(raw []byte) ([]uint32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("toolchain: spirv binary length %d is not a multiple of 4", len(raw))
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil
}

func bytesFromWords(words []uint32) []byte {
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	return raw
}

// crossReflect is the subset of `spirv-cross --reflect` JSON this toolchain
// maps into shader.Reflection.
type crossReflect struct {
	UBOs []struct {
		Name    string `json:"name"`
		Set     uint32 `json:"set"`
		Binding uint32 `json:"binding"`
		Block   struct {
			Size int `json:"size"`
		} `json:"block_size"`
	} `json:"ubos"`
	SSBOs []struct {
		Name    string `json:"name"`
		Set     uint32 `json:"set"`
		Binding uint32 `json:"binding"`
	} `json:"ssbos"`
	SeparateImages []struct {
		Name    string `json:"name"`
		Set     uint32 `json:"set"`
		Binding uint32 `json:"binding"`
	} `json:"separate_images"`
	SeparateSamplers []struct {
		Name    string `json:"name"`
		Set     uint32 `json:"set"`
		Binding uint32 `json:"binding"`
	} `json:"separate_samplers"`
	Textures []struct {
		Name    string `json:"name"`
		Set     uint32 `json:"set"`
		Binding uint32 `json:"binding"`
	} `json:"textures"`
	PushConstants []struct {
		Name  string `json:"name"`
		Index int    `json:"index"`
		Block struct {
			Size int `json:"size"`
		} `json:"block_size"`
	} `json:"push_constants"`
	Inputs []struct {
		Name     string `json:"name"`
		Location uint32 `json:"location"`
	} `json:"inputs"`
	Outputs []struct {
		Name     string `json:"name"`
		Location uint32 `json:"location"`
	} `json:"outputs"`
}

// reflectSPIRV compiles preprocessed to SPIR-V (the reflector needs the
// real binary, not the source text) and runs spirv-cross --reflect over
// it, mapping the JSON output into a shader.Reflection — the black-box
// reflection step named in §1/§6. Fields spirv-cross's --reflect mode
// doesn't expose (dynamic-offset indices, specialization-constant group
// sizes) are left at their zero value; the annotation pass that
// shader.Compiler.BuildReflection runs afterwards sets set names and the
// dynamic-offset/discard flags from `//@` comments, not the indices.
func reflectSPIRV(stage shader.Stage, preprocessed string) (*shader.Reflection, error) {
	words, err := compileGLSL(stage, 140, preprocessed)
	if err != nil {
		return nil, fmt.Errorf("reflect: compiling for introspection: %w", err)
	}

	dir, err := os.MkdirTemp("", "pipelinec-reflect")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	spv := filepath.Join(dir, "shader.spv")
	if err := os.WriteFile(spv, bytesFromWords(words), 0644); err != nil {
		return nil, err
	}

	cmd := exec.Command("spirv-cross", "--reflect", spv)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("spirv-cross: %v: %s", err, stderr.String())
	}

	var cr crossReflect
	if err := json.Unmarshal(stdout.Bytes(), &cr); err != nil {
		return nil, fmt.Errorf("spirv-cross: parsing reflection JSON: %w", err)
	}

	refl := shader.NewReflection()
	bit := shader.StageBit(stage)

	addBinding := func(set, binding uint32, name string, kind shader.DescriptorKind, bufSize int) {
		if set >= shader.MaxSets {
			return
		}
		s := refl.Set(uint8(set))
		for i := range s.Bindings {
			if s.Bindings[i].BindingIndex == binding {
				s.Bindings[i].StageMask |= bit
				return
			}
		}
		b := shader.Binding{
			Name:         name,
			BindingIndex: binding,
			ArraySize:    1,
			StageMask:    bit,
			Kind:         kind,
		}
		if kind.IsBuffer() {
			b.Buffer = &shader.BufferInfo{StaticSize: uint32(bufSize)}
		}
		if kind.IsImage() {
			b.Image = &shader.ImageInfo{Dim: shader.Dim2D}
		}
		s.Bindings = append(s.Bindings, b)
	}

	for _, u := range cr.UBOs {
		addBinding(u.Set, u.Binding, u.Name, shader.UniformBuffer, u.Block.Size)
	}
	for _, b := range cr.SSBOs {
		addBinding(b.Set, b.Binding, b.Name, shader.StorageBuffer, 0)
	}
	for _, img := range cr.SeparateImages {
		addBinding(img.Set, img.Binding, img.Name, shader.SampledImage, 0)
	}
	for _, s := range cr.SeparateSamplers {
		addBinding(s.Set, s.Binding, s.Name, shader.Sampler, 0)
	}
	for _, t := range cr.Textures {
		addBinding(t.Set, t.Binding, t.Name, shader.CombinedImage, 0)
	}

	for _, pc := range cr.PushConstants {
		refl.PushConstants[pc.Name] = shader.PushConstantRange{
			BlockName: pc.Name,
			StageMask: bit,
			Size:      uint32(pc.Block.Size),
		}
	}

	if stage == shader.StageVertex {
		for _, in := range cr.Inputs {
			refl.VertexAttributes = append(refl.VertexAttributes, shader.VertexAttribute{
				Name: in.Name, Location: in.Location, Format: shader.ScalarFloat,
			})
		}
	}
	if stage == shader.StageFragment {
		for _, out := range cr.Outputs {
			refl.FragmentOutputs = append(refl.FragmentOutputs, shader.FragmentOutput{
				Name: out.Name, Location: out.Location, Format: shader.ScalarFloat,
			})
		}
		refl.SupportedTopology = shader.AllTopologies
	}
	if stage != shader.StageFragment && stage != shader.StageCompute {
		refl.SupportedTopology = shader.AllTopologies
	}

	return refl, nil
}
