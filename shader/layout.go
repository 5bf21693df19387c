package shader

import "errors"

// ErrNonZeroFirstOffset is returned when a UBO/SSBO/push-constant block's
// first member has a non-zero offset, which the pack format assumes never
// happens (§4.4).
var ErrNonZeroFirstOffset = errors.New("shader: block's first member has non-zero offset")

// StructLayoutKind selects the GLSL layout rule to apply.
type StructLayoutKind int

const (
	Std140 StructLayoutKind = iota
	Std430
)

// Member describes one block member for layout computation purposes: its
// base alignment and size under the rules of std140/std430, and whether it
// is the block's final, unsized array (SSBOs only).
type Member struct {
	Offset       uint32 // as reported by the reflector, 0 for the first member
	Size         uint32
	Alignment    uint32
	TrailingUnsizedArray bool
	ArrayStride  uint32
}

// StructLayout is the computed (static_size, array_stride, first_member_offset)
// tuple of §4.4.
type StructLayout struct {
	StaticSize        uint32
	ArrayStride        uint32 // trailing unsized array's stride, SSBOs only
	FirstMemberOffset uint32
}

// ComputeStructLayout derives a StructLayout from a block's member list,
// already laid out by the reflector according to kind. It rejects blocks
// whose first member does not start at offset 0.
func ComputeStructLayout(kind StructLayoutKind, members []Member) (StructLayout, error) {
	if len(members) == 0 {
		return StructLayout{}, nil
	}
	if members[0].Offset != 0 {
		return StructLayout{}, ErrNonZeroFirstOffset
	}
	last := members[len(members)-1]
	size := align(last.Offset+last.Size, baseAlignmentOf(kind))
	var stride uint32
	if last.TrailingUnsizedArray {
		stride = last.ArrayStride
	}
	return StructLayout{
		StaticSize:        size,
		ArrayStride:        stride,
		FirstMemberOffset: 0,
	}, nil
}

func baseAlignmentOf(kind StructLayoutKind) uint32 {
	if kind == Std140 {
		return 16
	}
	return 4
}

func align(v, a uint32) uint32 {
	if a == 0 {
		return v
	}
	return (v + a - 1) / a * a
}
