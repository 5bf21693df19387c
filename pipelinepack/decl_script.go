package pipelinepack

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aeforge/buildpack/internal/recipe"
	"github.com/aeforge/buildpack/shader"
)

// LoadDecls walks dir for *.pipeline recipe scripts and interprets each
// into storage, the same embedded-scripting-environment shape §4.5
// describes for pipeline declarations: one call per pipeline, e.g.
//
//	api.Graphics("triangle", "main_pass", "tri.vert", "", "", "", "tri.frag")
//	api.Mesh("particles", "main_pass", "", "particles.mesh", "particles.frag")
//	api.Compute("blur", "blur.comp")
//
// Empty string stage arguments mean the stage is unused.
func LoadDecls(dir string, storage *Storage) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".pipeline" {
			return nil
		}
		return loadDeclFile(path, storage)
	})
}

func loadDeclFile(path string, storage *Storage) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	calls, err := recipe.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("pipelinepack: %s: %w", path, err)
	}

	in := recipe.NewInterpreter()
	in.Register("Graphics", func(args []recipe.Value) error {
		d, err := parseGraphicsDecl(args)
		if err != nil {
			return err
		}
		storage.AddGraphics(d)
		return nil
	})
	in.Register("Mesh", func(args []recipe.Value) error {
		d, err := parseMeshDecl(args)
		if err != nil {
			return err
		}
		storage.AddMesh(d)
		return nil
	})
	in.Register("Compute", func(args []recipe.Value) error {
		d, err := parseComputeDecl(args)
		if err != nil {
			return err
		}
		storage.AddCompute(d)
		return nil
	})

	if err := in.Run(calls); err != nil {
		return fmt.Errorf("pipelinepack: %s: %w", path, err)
	}
	return nil
}

func declString(args []recipe.Value, i int, method string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", method, i)
	}
	if args[i].Kind != recipe.KindString {
		return "", fmt.Errorf("%s: argument %d must be a string", method, i)
	}
	return args[i].Str, nil
}

func stageRef(filename string) ShaderRef {
	if filename == "" {
		return ShaderRef{}
	}
	return ShaderRef{Filename: filename}
}

func parseGraphicsDecl(args []recipe.Value) (GraphicsDecl, error) {
	if len(args) != 7 {
		return GraphicsDecl{}, fmt.Errorf("Graphics wants 7 arguments (name, render_pass, vert, tesc, tese, geom, frag), got %d", len(args))
	}
	name, err := declString(args, 0, "Graphics")
	if err != nil {
		return GraphicsDecl{}, err
	}
	renderPass, err := declString(args, 1, "Graphics")
	if err != nil {
		return GraphicsDecl{}, err
	}
	d := GraphicsDecl{Name: name, RenderPass: renderPass, Stages: make(map[shader.Stage]ShaderRef)}
	stageArgs := []struct {
		idx   int
		stage shader.Stage
	}{
		{2, shader.StageVertex},
		{3, shader.StageTessControl},
		{4, shader.StageTessEval},
		{5, shader.StageGeometry},
		{6, shader.StageFragment},
	}
	for _, sa := range stageArgs {
		filename, err := declString(args, sa.idx, "Graphics")
		if err != nil {
			return GraphicsDecl{}, err
		}
		if filename != "" {
			d.Stages[sa.stage] = stageRef(filename)
		}
	}
	return d, nil
}

func parseMeshDecl(args []recipe.Value) (MeshDecl, error) {
	if len(args) != 5 {
		return MeshDecl{}, fmt.Errorf("Mesh wants 5 arguments (name, render_pass, task, mesh, frag), got %d", len(args))
	}
	name, err := declString(args, 0, "Mesh")
	if err != nil {
		return MeshDecl{}, err
	}
	renderPass, err := declString(args, 1, "Mesh")
	if err != nil {
		return MeshDecl{}, err
	}
	d := MeshDecl{Name: name, RenderPass: renderPass, Stages: make(map[shader.Stage]ShaderRef)}
	stageArgs := []struct {
		idx   int
		stage shader.Stage
	}{
		{2, shader.StageTask},
		{3, shader.StageMesh},
		{4, shader.StageFragment},
	}
	for _, sa := range stageArgs {
		filename, err := declString(args, sa.idx, "Mesh")
		if err != nil {
			return MeshDecl{}, err
		}
		if filename != "" {
			d.Stages[sa.stage] = stageRef(filename)
		}
	}
	return d, nil
}

func parseComputeDecl(args []recipe.Value) (ComputeDecl, error) {
	if len(args) != 2 {
		return ComputeDecl{}, fmt.Errorf("Compute wants 2 arguments (name, shader), got %d", len(args))
	}
	name, err := declString(args, 0, "Compute")
	if err != nil {
		return ComputeDecl{}, err
	}
	filename, err := declString(args, 1, "Compute")
	if err != nil {
		return ComputeDecl{}, err
	}
	return ComputeDecl{Name: name, Shader: stageRef(filename)}, nil
}
