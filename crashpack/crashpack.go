// Package crashpack implements the crash-report binary container (§4.7):
// a fixed offset/size header followed by a Brotli-compressed payload
// holding the client's user info, symbol id, log tail and minidump,
// grounded on
// original_source/crash_report/minidump_parser/CrashFileHeader.h and
// ParseCrashReport_v1 in MinidumpParser.cpp.
package crashpack

import (
	"errors"
	"io"
	"unicode/utf16"

	"github.com/aeforge/buildpack/serial"
	"github.com/aeforge/buildpack/stream"
	"golang.org/x/xerrors"
)

// Magic is 'A','E','C','R' packed little-endian, matching
// CrashFileHeader::MAGIC.
const Magic uint32 = 'A' | 'E'<<8 | 'C'<<16 | 'R'<<24

// PackVersion is the only header version this codec understands.
const PackVersion uint32 = 1

// noLog marks an absent log section (offset = UINT_MAX, size = 0).
const noLog uint32 = 0xFFFFFFFF

// ErrUnsupportedVersion is returned by Read when the header's version
// field is not PackVersion.
var ErrUnsupportedVersion = errors.New("crashpack: unsupported version")

// ErrBadMagic is returned by Read when the header's magic field does
// not match Magic.
var ErrBadMagic = errors.New("crashpack: bad magic")

// Container is the decoded contents of a crash container. Log is nil
// when the client did not attach a log tail.
type Container struct {
	UserInfo  string
	SymbolsID string
	Log       []byte
	Dump      []byte
}

type section struct {
	Offset uint32
	Size   uint32
}

const headerSize = 4 + 4 + 4*2*4 // magic, version, four (offset,size) pairs

// Write composes a container to w: reserve the header, stream the
// sections through Brotli, finalize, then seek back and patch the
// header with the real offsets (§4.7 writer composition).
func Write(w stream.Writable, c *Container) error {
	hs := serial.NewSerializer(w, nil)
	zero := make([]byte, headerSize)
	if _, err := w.Write(zero); err != nil {
		return err
	}

	bw := stream.NewBrotliWriter(w)

	userInfoOff := uint32(bw.Position())
	userInfoBytes := encodeUTF16LE(c.UserInfo)
	if _, err := bw.Write(userInfoBytes); err != nil {
		return err
	}
	userInfo := section{userInfoOff, uint32(len(userInfoBytes))}

	symbolsOff := uint32(bw.Position())
	symbolsBytes := encodeUTF16LE(c.SymbolsID)
	if _, err := bw.Write(symbolsBytes); err != nil {
		return err
	}
	symbolsID := section{symbolsOff, uint32(len(symbolsBytes))}

	dumpOff := uint32(bw.Position())
	if _, err := bw.Write(c.Dump); err != nil {
		return err
	}
	dump := section{dumpOff, uint32(len(c.Dump))}

	log := section{noLog, 0}
	if c.Log != nil {
		logOff := uint32(bw.Position())
		if _, err := bw.Write(c.Log); err != nil {
			return err
		}
		log = section{logOff, uint32(len(c.Log))}
	}

	if err := bw.Finalize(); err != nil {
		return err
	}

	if err := w.SeekAbsolute(0); err != nil {
		return err
	}
	if err := hs.WriteU32(Magic); err != nil {
		return err
	}
	if err := hs.WriteU32(PackVersion); err != nil {
		return err
	}
	for _, s := range []section{symbolsID, userInfo, log, dump} {
		if err := hs.WriteU32(s.Offset); err != nil {
			return err
		}
		if err := hs.WriteU32(s.Size); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Read decodes a container from r: the header, then the fully
// decompressed Brotli payload, then each section sliced out by its
// declared offset/size.
func Read(r stream.Readable) (*Container, error) {
	hd := serial.NewDeserializer(r, nil)
	magic, err := hd.ReadU32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrBadMagic
	}
	version, err := hd.ReadU32()
	if err != nil {
		return nil, err
	}
	if version != PackVersion {
		return nil, xerrors.Errorf("crashpack: version %d: %w", version, ErrUnsupportedVersion)
	}

	var symbolsID, userInfo, log, dump section
	for _, s := range []*section{&symbolsID, &userInfo, &log, &dump} {
		if s.Offset, err = hd.ReadU32(); err != nil {
			return nil, err
		}
		if s.Size, err = hd.ReadU32(); err != nil {
			return nil, err
		}
	}

	br := stream.NewBrotliReader(r)
	payload, err := drain(br)
	if err != nil {
		return nil, err
	}

	c := &Container{
		UserInfo:  decodeUTF16LE(slice(payload, userInfo)),
		SymbolsID: decodeUTF16LE(slice(payload, symbolsID)),
		Dump:      slice(payload, dump),
	}
	if log.Offset != noLog {
		c.Log = slice(payload, log)
	}
	return c, nil
}

func slice(payload []byte, s section) []byte {
	if s.Size == 0 {
		return nil
	}
	return payload[s.Offset : s.Offset+s.Size]
}

func drain(br *stream.BrotliReader) ([]byte, error) {
	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out
}

func decodeUTF16LE(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units))
}
