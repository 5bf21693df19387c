package buildserver

import (
	"fmt"

	"github.com/aeforge/buildpack/internal/recipe"
)

// BindInterpreter registers every ScriptAPI method as a recipe handler,
// translating parsed recipe.Value arguments into the Go types each
// method expects. Argument-shape mismatches (wrong count, wrong kind,
// an unrecognized compiler/arch identifier) are reported as handler
// errors, which abort the recipe per recipe.Handler's contract; failures
// the methods themselves report (sandbox violations, failed
// subprocesses) are absorbed into api's own error counter instead.
func BindInterpreter(api *ScriptAPI) *recipe.Interpreter {
	in := recipe.NewInterpreter()

	in.Register("GitClone", func(args []recipe.Value) error {
		url, branch, dst, err := threeStrings(args, "GitClone")
		if err != nil {
			return err
		}
		api.GitClone(url, branch, dst)
		return nil
	})

	in.Register("GitClone2", func(args []recipe.Value) error {
		url, dst, err := twoStrings(args, "GitClone2")
		if err != nil {
			return err
		}
		api.GitClone(url, "", dst)
		return nil
	})

	in.Register("GitGetBranch", func(args []recipe.Value) error {
		path, err := oneString(args, "GitGetBranch")
		if err != nil {
			return err
		}
		api.GitGetBranch(path)
		return nil
	})

	in.Register("GitGetHash", func(args []recipe.Value) error {
		if len(args) != 2 {
			return fmt.Errorf("GitGetHash wants 2 arguments, got %d", len(args))
		}
		path, err := asString(args[0], "GitGetHash")
		if err != nil {
			return err
		}
		short, err := asBool(args[1], "GitGetHash")
		if err != nil {
			return err
		}
		api.GitGetHash(path, short)
		return nil
	})

	in.Register("CMakeGen", func(args []recipe.Value) error {
		if len(args) != 5 {
			return fmt.Errorf("CMakeGen wants 5 arguments, got %d", len(args))
		}
		compIdent, err := asIdent(args[0], "CMakeGen")
		if err != nil {
			return err
		}
		comp, ok := ParseCompiler(compIdent)
		if !ok {
			return fmt.Errorf("CMakeGen: unrecognized compiler %q", compIdent)
		}
		archIdent, err := asIdent(args[1], "CMakeGen")
		if err != nil {
			return err
		}
		arch, ok := ParseArch(archIdent)
		if !ok {
			return fmt.Errorf("CMakeGen: unrecognized architecture %q", archIdent)
		}
		sourceDir, err := asString(args[2], "CMakeGen")
		if err != nil {
			return err
		}
		buildDir, err := asString(args[3], "CMakeGen")
		if err != nil {
			return err
		}
		defines, err := asList(args[4], "CMakeGen")
		if err != nil {
			return err
		}
		api.CMakeGen(comp, arch, sourceDir, buildDir, defines)
		return nil
	})

	in.Register("CMakeBuild", func(args []recipe.Value) error {
		buildDir, config, target, err := threeStrings(args, "CMakeBuild")
		if err != nil {
			return err
		}
		api.CMakeBuild(buildDir, config, target)
		return nil
	})

	in.Register("CMakeInstall", func(args []recipe.Value) error {
		if len(args) != 4 {
			return fmt.Errorf("CMakeInstall wants 4 arguments, got %d", len(args))
		}
		strs := make([]string, 4)
		for i, a := range args {
			s, err := asString(a, "CMakeInstall")
			if err != nil {
				return err
			}
			strs[i] = s
		}
		api.CMakeInstall(strs[0], strs[1], strs[2], strs[3])
		return nil
	})

	in.Register("CTest", func(args []recipe.Value) error {
		exeDir, config, err := twoStrings(args, "CTest")
		if err != nil {
			return err
		}
		api.CTest(exeDir, config)
		return nil
	})

	in.Register("AndroidBuild", func(args []recipe.Value) error {
		if len(args) != 2 {
			return fmt.Errorf("AndroidBuild wants 2 arguments, got %d", len(args))
		}
		sourceDir, err := asString(args[0], "AndroidBuild")
		if err != nil {
			return err
		}
		defines, err := asList(args[1], "AndroidBuild")
		if err != nil {
			return err
		}
		api.AndroidBuild(sourceDir, defines)
		return nil
	})

	in.Register("AndroidDevices", func(args []recipe.Value) error {
		api.AndroidDevices()
		return nil
	})

	in.Register("AndroidSetDevice", func(args []recipe.Value) error {
		device, err := oneString(args, "AndroidSetDevice")
		if err != nil {
			return err
		}
		api.AndroidSetDevice(device)
		return nil
	})

	in.Register("AndroidConnectDevice", func(args []recipe.Value) error {
		ip, err := oneString(args, "AndroidConnectDevice")
		if err != nil {
			return err
		}
		api.AndroidConnectDevice(ip)
		return nil
	})

	in.Register("AndroidRun", func(args []recipe.Value) error {
		sourceDir, err := oneString(args, "AndroidRun")
		if err != nil {
			return err
		}
		api.AndroidRun(sourceDir)
		return nil
	})

	in.Register("AndroidCopyTo", func(args []recipe.Value) error {
		src, dst, err := twoStrings(args, "AndroidCopyTo")
		if err != nil {
			return err
		}
		api.AndroidCopyTo(src, dst)
		return nil
	})

	in.Register("CurDir", func(args []recipe.Value) error {
		dir, err := oneString(args, "CurDir")
		if err != nil {
			return err
		}
		api.CurDir(dir)
		return nil
	})

	in.Register("MakeDir", func(args []recipe.Value) error {
		dir, err := oneString(args, "MakeDir")
		if err != nil {
			return err
		}
		api.MakeDir(dir)
		return nil
	})

	in.Register("IsFile", func(args []recipe.Value) error {
		path, err := oneString(args, "IsFile")
		if err != nil {
			return err
		}
		api.IsFile(path)
		return nil
	})

	in.Register("IsDirectory", func(args []recipe.Value) error {
		path, err := oneString(args, "IsDirectory")
		if err != nil {
			return err
		}
		api.IsDirectory(path)
		return nil
	})

	in.Register("Deploy", func(args []recipe.Value) error {
		version, dist, dbgSym, err := threeStrings(args, "Deploy")
		if err != nil {
			return err
		}
		api.Deploy(version, dist, dbgSym)
		return nil
	})

	return in
}

func oneString(args []recipe.Value, method string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s wants 1 argument, got %d", method, len(args))
	}
	return asString(args[0], method)
}

func twoStrings(args []recipe.Value, method string) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("%s wants 2 arguments, got %d", method, len(args))
	}
	a, err := asString(args[0], method)
	if err != nil {
		return "", "", err
	}
	b, err := asString(args[1], method)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func threeStrings(args []recipe.Value, method string) (string, string, string, error) {
	if len(args) != 3 {
		return "", "", "", fmt.Errorf("%s wants 3 arguments, got %d", method, len(args))
	}
	a, err := asString(args[0], method)
	if err != nil {
		return "", "", "", err
	}
	b, err := asString(args[1], method)
	if err != nil {
		return "", "", "", err
	}
	c, err := asString(args[2], method)
	if err != nil {
		return "", "", "", err
	}
	return a, b, c, nil
}

func asString(v recipe.Value, method string) (string, error) {
	if v.Kind != recipe.KindString {
		return "", fmt.Errorf("%s: expected a string argument, got %s", method, v.String())
	}
	return v.Str, nil
}

func asIdent(v recipe.Value, method string) (string, error) {
	if v.Kind != recipe.KindIdent {
		return "", fmt.Errorf("%s: expected an identifier argument, got %s", method, v.String())
	}
	return v.Str, nil
}

func asBool(v recipe.Value, method string) (bool, error) {
	if v.Kind != recipe.KindBool {
		return false, fmt.Errorf("%s: expected a bool argument, got %s", method, v.String())
	}
	return v.Bool, nil
}

func asList(v recipe.Value, method string) ([]string, error) {
	if v.Kind != recipe.KindList {
		return nil, fmt.Errorf("%s: expected a list argument, got %s", method, v.String())
	}
	return v.List, nil
}
