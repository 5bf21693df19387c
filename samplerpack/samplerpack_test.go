package samplerpack

import (
	"testing"

	"github.com/aeforge/buildpack/stream"
)

func TestValidateFixesUnnormalizedMaxLod(t *testing.T) {
	d := NewSamplerDesc()
	d.Name = "unnorm"
	d.UnnormalizedCoordinates = true
	d.MaxLod = 5
	d.SetAddressModeUniform(AddressClampToEdge)

	if d.Validate() {
		t.Error("Validate() = true, want false (a fixup was required)")
	}
	if d.MaxLod != 0 || d.MinLod != 0 {
		t.Errorf("MinLod/MaxLod = %v/%v, want 0/0 after fixup", d.MinLod, d.MaxLod)
	}
}

func TestValidateUnnormalizedForcesMatchingFilters(t *testing.T) {
	d := NewSamplerDesc()
	d.Name = "mismatched"
	d.UnnormalizedCoordinates = true
	d.MagFilter = FilterLinear
	d.MinFilter = FilterNearest
	d.MipmapMode = MipmapLinear
	d.SetAnisotropy(4)
	d.SetAddressModeUniform(AddressClampToEdge)

	if d.Validate() {
		t.Error("Validate() = true, want false")
	}
	if d.MagFilter != d.MinFilter {
		t.Errorf("MagFilter %v != MinFilter %v after fixup", d.MagFilter, d.MinFilter)
	}
	if d.MipmapMode != MipmapNearest {
		t.Errorf("MipmapMode = %v, want MipmapNearest", d.MipmapMode)
	}
	if d.MaxAnisotropy != nil {
		t.Error("MaxAnisotropy should be cleared for unnormalized coordinates")
	}
}

func TestValidateResetsUnusedBorderColor(t *testing.T) {
	d := NewSamplerDesc()
	d.Name = "no-border"
	d.BorderColor = BorderIntOpaqueWhite
	d.Validate()
	if d.BorderColor != BorderFloatTransparentBlack {
		t.Errorf("BorderColor = %v, want reset to FloatTransparentBlack", d.BorderColor)
	}
}

func TestValidateKeepsBorderColorWhenAddressModeUsesBorder(t *testing.T) {
	d := NewSamplerDesc()
	d.Name = "with-border"
	d.BorderColor = BorderIntOpaqueWhite
	d.SetAddressModeUniform(AddressClampToBorder)
	d.Validate()
	if d.BorderColor != BorderIntOpaqueWhite {
		t.Errorf("BorderColor = %v, want preserved", d.BorderColor)
	}
}

// buildSeven matches §8 scenario 2: 7 named samplers, only
// AnisotrophyRepeat has anisotropy set.
func buildSeven(t *testing.T) *Storage {
	t.Helper()
	storage := &Storage{}

	nearestClamp := NewSamplerDesc()
	nearestClamp.Name = "NearestClamp"
	nearestClamp.SetAddressModeUniform(AddressClampToEdge)
	storage.Add(nearestClamp)

	linearMipRepeat := NewSamplerDesc()
	linearMipRepeat.Name = "LinearMipmapRepeat"
	linearMipRepeat.SetFilter(FilterLinear, FilterLinear, MipmapLinear)
	storage.Add(linearMipRepeat)

	linearMipClamp := NewSamplerDesc()
	linearMipClamp.Name = "LinearMipmapClamp"
	linearMipClamp.SetFilter(FilterLinear, FilterLinear, MipmapLinear)
	linearMipClamp.SetAddressModeUniform(AddressClampToEdge)
	storage.Add(linearMipClamp)

	linearClamp := NewSamplerDesc()
	linearClamp.Name = "LinearClamp"
	linearClamp.SetFilter(FilterLinear, FilterLinear, MipmapNearest)
	linearClamp.SetAddressModeUniform(AddressClampToEdge)
	storage.Add(linearClamp)

	nearestRepeat := NewSamplerDesc()
	nearestRepeat.Name = "NearestRepeat"
	storage.Add(nearestRepeat)

	anisoRepeat := NewSamplerDesc()
	anisoRepeat.Name = "AnisotrophyRepeat"
	anisoRepeat.SetFilter(FilterLinear, FilterLinear, MipmapLinear)
	anisoRepeat.SetAnisotropy(50)
	storage.Add(anisoRepeat)

	linearRepeat := NewSamplerDesc()
	linearRepeat.Name = "LinearRepeat"
	linearRepeat.SetFilter(FilterLinear, FilterLinear, MipmapNearest)
	storage.Add(linearRepeat)

	return storage
}

func TestSevenSamplersAllDistinct(t *testing.T) {
	storage := buildSeven(t)
	pack, fixups, err := storage.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if fixups != 0 {
		t.Errorf("fixups = %d, want 0 (all seven descriptions are already consistent)", fixups)
	}
	if len(pack.Samplers) != 7 {
		t.Fatalf("Samplers = %d, want 7", len(pack.Samplers))
	}
	if len(pack.Names) != 7 {
		t.Fatalf("Names = %d, want 7", len(pack.Names))
	}

	byName := make(map[string]UID)
	for _, n := range pack.Names {
		byName[n.Name] = n.UID
	}
	uid, ok := byName["AnisotrophyRepeat"]
	if !ok {
		t.Fatal("AnisotrophyRepeat missing from name table")
	}
	got := pack.Samplers[uid]
	if got.MaxAnisotropy == nil || *got.MaxAnisotropy != 50 {
		t.Errorf("AnisotrophyRepeat anisotropy = %v, want 50", got.MaxAnisotropy)
	}
	for _, name := range []string{"NearestClamp", "LinearMipmapRepeat", "LinearMipmapClamp", "LinearClamp", "NearestRepeat", "LinearRepeat"} {
		u, ok := byName[name]
		if !ok {
			t.Fatalf("%s missing from name table", name)
		}
		if pack.Samplers[u].MaxAnisotropy != nil {
			t.Errorf("%s: anisotropy = %v, want nil", name, pack.Samplers[u].MaxAnisotropy)
		}
	}
}

func TestStructurallyEqualSamplersDedupToOneUID(t *testing.T) {
	storage := &Storage{}
	a := NewSamplerDesc()
	a.Name = "a"
	b := NewSamplerDesc()
	b.Name = "b"
	storage.Add(a)
	storage.Add(b)

	pack, _, err := storage.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(pack.Samplers) != 1 {
		t.Fatalf("Samplers = %d, want 1 (structurally identical)", len(pack.Samplers))
	}
	byName := make(map[string]UID)
	for _, n := range pack.Names {
		byName[n.Name] = n.UID
	}
	if byName["a"] != byName["b"] {
		t.Errorf("a and b resolved to different UIDs: %d vs %d", byName["a"], byName["b"])
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	storage := &Storage{}
	a := NewSamplerDesc()
	a.Name = "dup"
	b := NewSamplerDesc()
	b.Name = "dup"
	b.SetFilter(FilterLinear, FilterLinear, MipmapLinear)
	storage.Add(a)
	storage.Add(b)

	if _, _, err := storage.Build(); err != ErrHasCollisions {
		t.Errorf("Build() error = %v, want ErrHasCollisions", err)
	}
}

func TestPackRoundTrip(t *testing.T) {
	storage := buildSeven(t)
	pack, _, err := storage.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	mw := stream.NewMemWriter()
	if err := Write(mw, pack); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(stream.NewMemReader(mw.Bytes()))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Version != pack.Version {
		t.Errorf("Version = %d, want %d", got.Version, pack.Version)
	}
	if len(got.Samplers) != len(pack.Samplers) {
		t.Fatalf("Samplers = %d, want %d", len(got.Samplers), len(pack.Samplers))
	}
	if len(got.Names) != len(pack.Names) {
		t.Fatalf("Names = %d, want %d", len(got.Names), len(pack.Names))
	}
	for i, n := range pack.Names {
		if got.Names[i] != n {
			t.Errorf("Names[%d] = %+v, want %+v", i, got.Names[i], n)
		}
	}
	for i, s := range pack.Samplers {
		if !got.Samplers[i].equal(s) {
			t.Errorf("Samplers[%d] round-trip mismatch: got %+v, want %+v", i, got.Samplers[i], s)
		}
	}
}
