package samplerpack

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aeforge/buildpack/internal/recipe"
)

var filterNames = map[string]Filter{"Nearest": FilterNearest, "Linear": FilterLinear}
var mipmapNames = map[string]MipmapFilter{"Nearest": MipmapNearest, "Linear": MipmapLinear}
var addressNames = map[string]AddressMode{
	"Repeat":            AddressRepeat,
	"MirrorRepeat":      AddressMirrorRepeat,
	"ClampToEdge":       AddressClampToEdge,
	"ClampToBorder":     AddressClampToBorder,
	"MirrorClampToEdge": AddressMirrorClampToEdge,
}

// LoadDecls walks dir for *.samp recipe scripts and interprets each into
// storage, one call per sampler, e.g. the seven-sampler §8 scenario:
//
//	api.Sampler("NearestClamp", Nearest, Nearest, Nearest, ClampToEdge, ClampToEdge, ClampToEdge, 0)
//	api.Sampler("AnisotrophyRepeat", Linear, Linear, Linear, Repeat, Repeat, Repeat, 50)
//
// The trailing argument is the max-anisotropy level; 0 disables it.
func LoadDecls(dir string, storage *Storage) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".samp" {
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
		return fmt.Errorf("samplerpack: %s: %w", path, err)
	}

	in := recipe.NewInterpreter()
	in.Register("Sampler", func(args []recipe.Value) error {
		d, err := parseSamplerDecl(args)
		if err != nil {
			return err
		}
		storage.Add(d)
		return nil
	})

	if err := in.Run(calls); err != nil {
		return fmt.Errorf("samplerpack: %s: %w", path, err)
	}
	return nil
}

func parseSamplerDecl(args []recipe.Value) (SamplerDesc, error) {
	if len(args) != 8 {
		return SamplerDesc{}, fmt.Errorf("Sampler wants 8 arguments (name, mag, min, mipmap, u, v, w, anisotropy), got %d", len(args))
	}
	if args[0].Kind != recipe.KindString {
		return SamplerDesc{}, fmt.Errorf("Sampler: argument 0 (name) must be a string")
	}

	mag, err := lookupIdent(args[1], filterNames, "Sampler", "mag filter")
	if err != nil {
		return SamplerDesc{}, err
	}
	min, err := lookupIdent(args[2], filterNames, "Sampler", "min filter")
	if err != nil {
		return SamplerDesc{}, err
	}
	mipmap, err := lookupIdent(args[3], mipmapNames, "Sampler", "mipmap filter")
	if err != nil {
		return SamplerDesc{}, err
	}
	u, err := lookupIdent(args[4], addressNames, "Sampler", "u address mode")
	if err != nil {
		return SamplerDesc{}, err
	}
	v, err := lookupIdent(args[5], addressNames, "Sampler", "v address mode")
	if err != nil {
		return SamplerDesc{}, err
	}
	w, err := lookupIdent(args[6], addressNames, "Sampler", "w address mode")
	if err != nil {
		return SamplerDesc{}, err
	}
	if args[7].Kind != recipe.KindNumber {
		return SamplerDesc{}, fmt.Errorf("Sampler: argument 7 (anisotropy) must be a number")
	}

	d := NewSamplerDesc()
	d.Name = args[0].Str
	d.SetFilter(mag, min, mipmap)
	d.SetAddressMode(u, v, w)
	if args[7].Num > 0 {
		d.SetAnisotropy(float32(args[7].Num))
	}
	return d, nil
}

func lookupIdent[T any](v recipe.Value, table map[string]T, method, what string) (T, error) {
	var zero T
	if v.Kind != recipe.KindIdent {
		return zero, fmt.Errorf("%s: %s must be an identifier, got %s", method, what, v.String())
	}
	val, ok := table[v.Str]
	if !ok {
		return zero, fmt.Errorf("%s: unrecognized %s %q", method, what, v.Str)
	}
	return val, nil
}
