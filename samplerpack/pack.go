package samplerpack

import (
	"github.com/aeforge/buildpack/serial"
	"github.com/aeforge/buildpack/stream"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// PackVersion is the writer's format version (mirrors SamplerStorage_Version).
const PackVersion uint32 = 1

// Pack is the fully assembled on-disk form of a sampler pack: a
// deduplicated sampler vector plus a sorted (name, UID) lookup table.
type Pack struct {
	Version  uint32
	Names    []namePair
	Samplers []SamplerDesc
}

// Write serializes p to w: {version, sorted name->uid pairs, sampler vector}.
func Write(w stream.Writable, p *Pack) error {
	s := serial.NewSerializer(w, nil)
	if err := s.WriteU32(p.Version); err != nil {
		return err
	}
	if err := s.WriteSeqHeader(len(p.Names)); err != nil {
		return err
	}
	for _, n := range p.Names {
		if err := s.WriteString(n.Name); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(n.UID)); err != nil {
			return err
		}
	}
	if err := s.WriteSeqHeader(len(p.Samplers)); err != nil {
		return err
	}
	for _, d := range p.Samplers {
		if err := writeSamplerDesc(s, d); err != nil {
			return err
		}
	}
	return nil
}

// writeSamplerDesc emits {u8 mag, u8 min, u8 mipmap, [u8;3] addr, f32 bias,
// opt<f32> max_aniso, opt<u8 cmp>, f32 min_lod, f32 max_lod, u8 border,
// u8 unnorm} per §6.
func writeSamplerDesc(s *serial.Serializer, d SamplerDesc) error {
	if err := s.WriteU8(uint8(d.MagFilter)); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(d.MinFilter)); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(d.MipmapMode)); err != nil {
		return err
	}
	for _, a := range d.AddressMode {
		if err := s.WriteU8(uint8(a)); err != nil {
			return err
		}
	}
	if err := s.WriteF32(d.MipLodBias); err != nil {
		return err
	}
	if err := s.WriteOptionalF32(d.MaxAnisotropy); err != nil {
		return err
	}
	var cmp *uint8
	if d.CompareOp != nil {
		v := uint8(*d.CompareOp)
		cmp = &v
	}
	if err := s.WriteOptionalU8(cmp); err != nil {
		return err
	}
	if err := s.WriteF32(d.MinLod); err != nil {
		return err
	}
	if err := s.WriteF32(d.MaxLod); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(d.BorderColor)); err != nil {
		return err
	}
	return s.WriteBool(d.UnnormalizedCoordinates)
}

// Read deserializes a Pack from r, validating PackVersion.
func Read(r stream.Readable) (*Pack, error) {
	d := serial.NewDeserializer(r, nil)
	version, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if version != PackVersion {
		return nil, xerrors.Errorf("samplerpack: version %d: %w", version, serial.ErrVersionMismatch)
	}
	p := &Pack{Version: version}

	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	p.Names = make([]namePair, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		uid, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		p.Names[i] = namePair{Name: name, UID: UID(uid)}
	}

	sn, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	p.Samplers = make([]SamplerDesc, sn)
	for i := 0; i < sn; i++ {
		if p.Samplers[i], err = readSamplerDesc(d); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func readSamplerDesc(d *serial.Deserializer) (SamplerDesc, error) {
	var desc SamplerDesc
	mag, err := d.ReadU8()
	if err != nil {
		return desc, err
	}
	desc.MagFilter = Filter(mag)
	min, err := d.ReadU8()
	if err != nil {
		return desc, err
	}
	desc.MinFilter = Filter(min)
	mip, err := d.ReadU8()
	if err != nil {
		return desc, err
	}
	desc.MipmapMode = MipmapFilter(mip)
	for i := range desc.AddressMode {
		a, err := d.ReadU8()
		if err != nil {
			return desc, err
		}
		desc.AddressMode[i] = AddressMode(a)
	}
	if desc.MipLodBias, err = d.ReadF32(); err != nil {
		return desc, err
	}
	if desc.MaxAnisotropy, err = d.ReadOptionalF32(); err != nil {
		return desc, err
	}
	cmp, err := d.ReadOptionalU8()
	if err != nil {
		return desc, err
	}
	if cmp != nil {
		v := CompareOp(*cmp)
		desc.CompareOp = &v
	}
	if desc.MinLod, err = d.ReadF32(); err != nil {
		return desc, err
	}
	if desc.MaxLod, err = d.ReadF32(); err != nil {
		return desc, err
	}
	border, err := d.ReadU8()
	if err != nil {
		return desc, err
	}
	desc.BorderColor = BorderColor(border)
	if desc.UnnormalizedCoordinates, err = d.ReadBool(); err != nil {
		return desc, err
	}
	return desc, nil
}

// WriteFile atomically writes p to path via renameio, the same pattern
// pipelinepack.WriteFile uses.
func WriteFile(path string, p *Pack) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	w := &pendingWritable{f: t}
	if err := Write(w, p); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

type pendingWritable struct {
	f   *renameio.PendingFile
	pos int64
}

func (w *pendingWritable) IsOpen() bool    { return true }
func (w *pendingWritable) Position() int64 { return w.pos }

func (w *pendingWritable) Size() (int64, error) {
	fi, err := w.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (w *pendingWritable) SeekAbsolute(off int64) error {
	n, err := w.f.Seek(off, 0)
	w.pos = n
	return err
}

func (w *pendingWritable) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.pos += int64(n)
	return n, err
}

func (w *pendingWritable) Flush() error { return nil }

// ReadFile opens path and reads a Pack from it.
func ReadFile(path string) (*Pack, error) {
	f, err := stream.OpenFileReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
