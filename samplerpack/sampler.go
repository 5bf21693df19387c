// Package samplerpack implements the sampler pack builder (§4.6): sampler
// declarations with the engine's validation/fixup rules, structural dedup,
// and a versioned binary pack, grounded on
// original_source/engine_tools/res_pack/sampler_packer.
package samplerpack

import "errors"

// Filter is a magnification/minification filter mode.
type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

// MipmapFilter selects how mip levels are blended.
type MipmapFilter uint32

const (
	MipmapNearest MipmapFilter = iota
	MipmapLinear
)

// AddressMode is a texture-coordinate wrap mode.
type AddressMode uint32

const (
	AddressRepeat AddressMode = iota
	AddressMirrorRepeat
	AddressClampToEdge
	AddressClampToBorder
	AddressMirrorClampToEdge
)

// BorderColor is the border color used by AddressClampToBorder.
type BorderColor uint32

const (
	BorderFloatTransparentBlack BorderColor = iota
	BorderFloatOpaqueBlack
	BorderFloatOpaqueWhite
	BorderIntTransparentBlack
	BorderIntOpaqueBlack
	BorderIntOpaqueWhite
)

// CompareOp is an optional depth-comparison sampler mode.
type CompareOp uint32

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareEqual
	CompareLEqual
	CompareGreater
	CompareNotEqual
	CompareGEqual
	CompareAlways
)

// ErrHasCollisions is returned by Storage.Build when two distinct
// samplers share a name (§4.6, mirrors NamedID_HashCollisionCheck).
var ErrHasCollisions = errors.New("samplerpack: duplicate sampler name")

// SamplerDesc is one sampler declaration (§3). AddressMode is per-axis
// (u, v, w); MaxAnisotropy and CompareOp are optional, matching the
// source's Optional<float>/Optional<ECompareOp>.
type SamplerDesc struct {
	Name                    string
	MagFilter               Filter
	MinFilter               Filter
	MipmapMode              MipmapFilter
	AddressMode             [3]AddressMode
	MipLodBias              float32
	MaxAnisotropy           *float32
	CompareOp               *CompareOp
	MinLod                  float32
	MaxLod                  float32
	BorderColor             BorderColor
	UnnormalizedCoordinates bool
}

// NewSamplerDesc returns a SamplerDesc with the engine's documented
// defaults (§3).
func NewSamplerDesc() SamplerDesc {
	return SamplerDesc{
		MagFilter:   FilterNearest,
		MinFilter:   FilterNearest,
		MipmapMode:  MipmapNearest,
		AddressMode: [3]AddressMode{AddressRepeat, AddressRepeat, AddressRepeat},
		MinLod:      -1000,
		MaxLod:      1000,
		BorderColor: BorderFloatTransparentBlack,
	}
}

// SetFilter sets the mag/min/mipmap filters in one call, matching the
// source's combined setter.
func (d *SamplerDesc) SetFilter(mag, min Filter, mipmap MipmapFilter) {
	d.MagFilter, d.MinFilter, d.MipmapMode = mag, min, mipmap
}

// SetAddressModeUniform sets all three axes to the same mode.
func (d *SamplerDesc) SetAddressModeUniform(uvw AddressMode) {
	d.AddressMode = [3]AddressMode{uvw, uvw, uvw}
}

// SetAddressMode sets each axis independently.
func (d *SamplerDesc) SetAddressMode(u, v, w AddressMode) {
	d.AddressMode = [3]AddressMode{u, v, w}
}

// SetLodRange sets the min/max LOD clamp range.
func (d *SamplerDesc) SetLodRange(min, max float32) {
	d.MinLod, d.MaxLod = min, max
}

// SetAnisotropy enables anisotropic filtering at the given max level.
func (d *SamplerDesc) SetAnisotropy(v float32) {
	d.MaxAnisotropy = &v
}

// SetCompareOp enables depth-comparison sampling.
func (d *SamplerDesc) SetCompareOp(op CompareOp) {
	d.CompareOp = &op
}

// SetNormCoordinates sets whether coordinates are normalized; the source
// stores the inverse (unnormalizedCoordinates), kept here for the same
// inverted-setter shape since scripts call it with the positive sense.
func (d *SamplerDesc) SetNormCoordinates(normalized bool) {
	d.UnnormalizedCoordinates = !normalized
}

// Validate applies the engine's fixup rules in place (§4.6) and reports
// whether the description was already consistent — false means at least
// one field was changed. Resetting an unused border colour does not count
// as a fixup.
func (d *SamplerDesc) Validate() bool {
	ok := true

	if d.UnnormalizedCoordinates {
		if d.MinFilter != d.MagFilter {
			d.MagFilter = d.MinFilter
			ok = false
		}
		if d.MipmapMode != MipmapNearest {
			d.MipmapMode = MipmapNearest
			ok = false
		}
		if d.MinLod != 0 || d.MaxLod != 0 {
			d.MinLod, d.MaxLod = 0, 0
			ok = false
		}
		if d.AddressMode[0] != AddressClampToEdge && d.AddressMode[0] != AddressClampToBorder {
			d.AddressMode[0] = AddressClampToEdge
			ok = false
		}
		if d.AddressMode[1] != AddressClampToEdge && d.AddressMode[1] != AddressClampToBorder {
			d.AddressMode[1] = AddressClampToEdge
			ok = false
		}
		if d.MaxAnisotropy != nil {
			d.MaxAnisotropy = nil
			ok = false
		}
		if d.CompareOp != nil {
			d.CompareOp = nil
			ok = false
		}
	}

	if d.MaxLod < d.MinLod {
		d.MaxLod = d.MinLod
		ok = false
	}

	if d.AddressMode[0] != AddressClampToBorder &&
		d.AddressMode[1] != AddressClampToBorder &&
		d.AddressMode[2] != AddressClampToBorder {
		d.BorderColor = BorderFloatTransparentBlack
	}

	return ok
}

// equal reports structural equality for dedup purposes, mirroring the
// source's SamplerDescEqual lambda (name excluded).
func (d SamplerDesc) equal(o SamplerDesc) bool {
	if d.MagFilter != o.MagFilter || d.MinFilter != o.MinFilter || d.MipmapMode != o.MipmapMode {
		return false
	}
	if d.AddressMode != o.AddressMode {
		return false
	}
	if d.MipLodBias != o.MipLodBias || d.MinLod != o.MinLod || d.MaxLod != o.MaxLod {
		return false
	}
	if !optFloatEqual(d.MaxAnisotropy, o.MaxAnisotropy) {
		return false
	}
	if !optCompareEqual(d.CompareOp, o.CompareOp) {
		return false
	}
	if d.BorderColor != o.BorderColor || d.UnnormalizedCoordinates != o.UnnormalizedCoordinates {
		return false
	}
	return true
}

func optFloatEqual(a, b *float32) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func optCompareEqual(a, b *CompareOp) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
