// Package serial implements the versioned, tagged binary serialization
// layer shared by the pipeline pack, sampler pack and crash container
// codecs: little-endian primitives, length-prefixed containers, and a
// registry-dispatched tagged object graph for ISerializable-like types.
package serial

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"

	"github.com/aeforge/buildpack/stream"
	"golang.org/x/xerrors"
)

// SerErr is the typed error taxonomy of §4.2/§7. Use errors.Is against
// these sentinels.
var (
	ErrIO             = errors.New("serial: io error")
	ErrUnknownTag     = errors.New("serial: unknown tag")
	ErrVersionMismatch = errors.New("serial: version mismatch")
	ErrMalformed      = errors.New("serial: malformed data")
)

// SerializedID is a short ASCII tag identifying a registered object type,
// analogous to the source's SerializedID.
type SerializedID string

// ISerializable is implemented by types that serialize themselves directly,
// bypassing the ObjectFactory.
type ISerializable interface {
	Serialize(s *Serializer) error
	Deserialize(d *Deserializer) error
}

// Factory maps a SerializedID to constructor/codec functions for tagged
// object graphs. The zero Factory has no registrations.
type Factory struct {
	entries map[SerializedID]factoryEntry
}

type factoryEntry struct {
	new func() ISerializable
}

// NewFactory returns an empty, ready-to-use Factory.
func NewFactory() *Factory {
	return &Factory{entries: make(map[SerializedID]factoryEntry)}
}

// Register associates tag with a constructor producing a fresh,
// zero-valued instance ready for Deserialize.
func (f *Factory) Register(tag SerializedID, new func() ISerializable) {
	f.entries[tag] = factoryEntry{new: new}
}

// Serializer writes primitives and tagged objects to an underlying
// Writable stream.
type Serializer struct {
	w       stream.Writable
	factory *Factory
}

// NewSerializer wraps w. factory may be nil if WriteObject is never called.
func NewSerializer(w stream.Writable, factory *Factory) *Serializer {
	return &Serializer{w: w, factory: factory}
}

func (s *Serializer) writeRaw(p []byte) error {
	if err := stream.WriteFull(s.w, p); err != nil {
		return xerrors.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (s *Serializer) WriteU8(v uint8) error  { return s.writeRaw([]byte{v}) }
func (s *Serializer) WriteBool(v bool) error {
	if v {
		return s.WriteU8(1)
	}
	return s.WriteU8(0)
}

func (s *Serializer) WriteU16(v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return s.writeRaw(b[:])
}

func (s *Serializer) WriteU32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return s.writeRaw(b[:])
}

func (s *Serializer) WriteU64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return s.writeRaw(b[:])
}

func (s *Serializer) WriteI32(v int32) error { return s.WriteU32(uint32(v)) }
func (s *Serializer) WriteF32(v float32) error { return s.WriteU32(math.Float32bits(v)) }
func (s *Serializer) WriteF64(v float64) error { return s.WriteU64(math.Float64bits(v)) }

// WriteBytes writes a u32 length prefix followed by raw bytes.
func (s *Serializer) WriteBytes(p []byte) error {
	if err := s.WriteU32(uint32(len(p))); err != nil {
		return err
	}
	return s.writeRaw(p)
}

// WriteString writes a u32 byte-length-prefixed UTF-8 string.
func (s *Serializer) WriteString(str string) error {
	return s.WriteBytes([]byte(str))
}

// WriteOptionalF32 writes present:u8 followed by the value if present.
func (s *Serializer) WriteOptionalF32(v *float32) error {
	if v == nil {
		return s.WriteU8(0)
	}
	if err := s.WriteU8(1); err != nil {
		return err
	}
	return s.WriteF32(*v)
}

// WriteOptionalU8 writes present:u8 followed by the value if present.
func (s *Serializer) WriteOptionalU8(v *uint8) error {
	if v == nil {
		return s.WriteU8(0)
	}
	if err := s.WriteU8(1); err != nil {
		return err
	}
	return s.WriteU8(*v)
}

// WriteOptionalU32 writes present:u8 followed by the value if present.
func (s *Serializer) WriteOptionalU32(v *uint32) error {
	if v == nil {
		return s.WriteU8(0)
	}
	if err := s.WriteU8(1); err != nil {
		return err
	}
	return s.WriteU32(*v)
}

// WriteObject writes {tag, payload...} by invoking obj's own Serialize.
func (s *Serializer) WriteObject(tag SerializedID, obj ISerializable) error {
	if err := s.WriteString(string(tag)); err != nil {
		return err
	}
	return obj.Serialize(s)
}

// WriteSeqHeader writes the u32 length prefix of a sequence; callers then
// write each element themselves. Kept separate from a generic WriteSeq so
// that maps can reuse it for their (sorted) pair sequence.
func (s *Serializer) WriteSeqHeader(n int) error {
	return s.WriteU32(uint32(n))
}

// Deserializer reads primitives and tagged objects from an underlying
// Readable stream.
type Deserializer struct {
	r       stream.Readable
	factory *Factory
}

// NewDeserializer wraps r. factory may be nil if ReadObject is never called.
func NewDeserializer(r stream.Readable, factory *Factory) *Deserializer {
	return &Deserializer{r: r, factory: factory}
}

func (d *Deserializer) readRaw(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := stream.ReadFull(d.r, buf); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrIO, err)
	}
	return buf, nil
}

func (d *Deserializer) ReadU8() (uint8, error) {
	b, err := d.readRaw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Deserializer) ReadBool() (bool, error) {
	v, err := d.ReadU8()
	return v != 0, err
}

func (d *Deserializer) ReadU16() (uint16, error) {
	b, err := d.readRaw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Deserializer) ReadU32() (uint32, error) {
	b, err := d.readRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Deserializer) ReadU64() (uint64, error) {
	b, err := d.readRaw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Deserializer) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Deserializer) ReadF32() (float32, error) {
	v, err := d.ReadU32()
	return math.Float32frombits(v), err
}

func (d *Deserializer) ReadF64() (float64, error) {
	v, err := d.ReadU64()
	return math.Float64frombits(v), err
}

// ReadBytes reads a u32-length-prefixed byte vector.
func (d *Deserializer) ReadBytes() ([]byte, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	return d.readRaw(int(n))
}

// ReadString reads a u32-byte-length-prefixed UTF-8 string.
func (d *Deserializer) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOptionalF32 reads present:u8 and the value if present.
func (d *Deserializer) ReadOptionalF32() (*float32, error) {
	present, err := d.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.ReadF32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadOptionalU8 reads present:u8 and the value if present.
func (d *Deserializer) ReadOptionalU8() (*uint8, error) {
	present, err := d.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadOptionalU32 reads present:u8 and the value if present.
func (d *Deserializer) ReadOptionalU32() (*uint32, error) {
	present, err := d.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadSeqHeader reads the u32 length prefix of a sequence.
func (d *Deserializer) ReadSeqHeader() (int, error) {
	n, err := d.ReadU32()
	return int(n), err
}

// ReadObject reads {tag, payload...}, looks tag up in the factory, and
// dispatches Deserialize on a freshly constructed instance.
func (d *Deserializer) ReadObject() (ISerializable, error) {
	if d.factory == nil {
		return nil, xerrors.Errorf("serial: ReadObject called without a factory: %w", ErrMalformed)
	}
	tag, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	entry, ok := d.factory.entries[SerializedID(tag)]
	if !ok {
		return nil, xerrors.Errorf("serial: tag %q: %w", tag, ErrUnknownTag)
	}
	obj := entry.new()
	if err := obj.Deserialize(d); err != nil {
		return nil, err
	}
	return obj, nil
}

// SortedPairs sorts a slice of (key, value) pairs by key for deterministic
// map-as-sequence serialization, the way §4.2 mandates.
func SortedPairs[V any](m map[string]V) []Pair[V] {
	out := make([]Pair[V], 0, len(m))
	for k, v := range m {
		out = append(out, Pair[V]{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Pair is a (name, value) tuple used for deterministic map serialization.
type Pair[V any] struct {
	Key   string
	Value V
}
