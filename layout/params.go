package layout

import (
	"math"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
)

// Unset encodings for the optional numeric fields.
const (
	UnsetDimension int32   = -1
	UnsetZoom      float32 = 0
)

type Memory = resvgruntime.Memory

// Params is one RenderOptions block. Address fields hold engine addresses;
// zero is the null pointer.
type Params struct {
	Width             int32
	Height            int32
	Zoom              float32
	DPI               int32
	SkipSystemFonts   bool
	Background        uint64
	ExportID          uint64
	ExportAreaPage    bool
	ExportAreaDrawing bool
	ResourcesDir      uint64
	Fonts             uint64
	FontLens          uint64
	FontCount         uint64
	FontFile          uint64
	FontDir           uint64
	SerifFamily       uint64
	SansSerifFamily   uint64
	CursiveFamily     uint64
	FantasyFamily     uint64
	MonospaceFamily   uint64
}

// NewParams returns a block with every optional field unset.
func NewParams() *Params {
	return &Params{
		Width:  UnsetDimension,
		Height: UnsetDimension,
		Zoom:   UnsetZoom,
	}
}

// values returns the raw field values in Fields order.
func (p *Params) values() [fieldCount]uint64 {
	return [fieldCount]uint64{
		uint64(uint32(p.Width)),
		uint64(uint32(p.Height)),
		uint64(math.Float32bits(p.Zoom)),
		uint64(uint32(p.DPI)),
		boolWord(p.SkipSystemFonts),
		p.Background,
		p.ExportID,
		boolWord(p.ExportAreaPage),
		boolWord(p.ExportAreaDrawing),
		p.ResourcesDir,
		p.Fonts,
		p.FontLens,
		p.FontCount,
		p.FontFile,
		p.FontDir,
		p.SerifFamily,
		p.SansSerifFamily,
		p.CursiveFamily,
		p.FantasyFamily,
		p.MonospaceFamily,
	}
}

func (p *Params) setValues(v [fieldCount]uint64) {
	p.Width = int32(uint32(v[0]))
	p.Height = int32(uint32(v[1]))
	p.Zoom = math.Float32frombits(uint32(v[2]))
	p.DPI = int32(uint32(v[3]))
	p.SkipSystemFonts = v[4] != 0
	p.Background = v[5]
	p.ExportID = v[6]
	p.ExportAreaPage = v[7] != 0
	p.ExportAreaDrawing = v[8] != 0
	p.ResourcesDir = v[9]
	p.Fonts = v[10]
	p.FontLens = v[11]
	p.FontCount = v[12]
	p.FontFile = v[13]
	p.FontDir = v[14]
	p.SerifFamily = v[15]
	p.SansSerifFamily = v[16]
	p.CursiveFamily = v[17]
	p.FantasyFamily = v[18]
	p.MonospaceFamily = v[19]
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Encode writes p at addr. Padding bytes are zeroed.
func (l *Layout) Encode(mem Memory, addr uint64, p *Params) error {
	if err := mem.Write(addr, make([]byte, l.Size)); err != nil {
		return errors.OutOfBounds(errors.PhaseMarshal, addr, l.Size, err)
	}

	vals := p.values()
	for i, f := range Fields {
		width := f.Kind.Width(l.Platform)
		if !FitsWord(vals[i], width) {
			return errors.Overflow(errors.PhaseMarshal, []string{f.Name}, vals[i], f.Kind.String())
		}
		fieldAddr := addr + l.offsets[i]
		if err := WriteWord(mem, fieldAddr, width, vals[i]); err != nil {
			return errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
				Path(f.Name).
				Cause(err).
				Detail("write %d-byte field at %#x", width, fieldAddr).
				Build()
		}
	}
	return nil
}

// Decode reads the block at addr.
func (l *Layout) Decode(mem Memory, addr uint64) (*Params, error) {
	var vals [fieldCount]uint64
	for i, f := range Fields {
		width := f.Kind.Width(l.Platform)
		fieldAddr := addr + l.offsets[i]
		v, err := ReadWord(mem, fieldAddr, width)
		if err != nil {
			return nil, errors.New(errors.PhaseTransfer, errors.KindOutOfBounds).
				Path(f.Name).
				Cause(err).
				Detail("read %d-byte field at %#x", width, fieldAddr).
				Build()
		}
		vals[i] = v
	}
	p := &Params{}
	p.setValues(vals)
	return p, nil
}

// WriteWord stores v in width bytes (1, 4 or 8).
func WriteWord(mem Memory, addr, width, v uint64) error {
	switch width {
	case 1:
		return mem.WriteU8(addr, uint8(v))
	case 4:
		return mem.WriteU32(addr, uint32(v))
	case 8:
		return mem.WriteU64(addr, v)
	default:
		return errors.Overflow(errors.PhaseMarshal, nil, width, "word width")
	}
}

// ReadWord loads a width-byte word (1, 4 or 8).
func ReadWord(mem Memory, addr, width uint64) (uint64, error) {
	switch width {
	case 1:
		v, err := mem.ReadU8(addr)
		return uint64(v), err
	case 4:
		v, err := mem.ReadU32(addr)
		return uint64(v), err
	case 8:
		return mem.ReadU64(addr)
	default:
		return 0, errors.Overflow(errors.PhaseTransfer, nil, width, "word width")
	}
}

// ReadCString reads a NUL-terminated string at addr, scanning at most max
// bytes. It returns "" for the null pointer.
func ReadCString(mem Memory, addr, max uint64) (string, bool, error) {
	if addr == 0 {
		return "", false, nil
	}
	const chunk = 256
	var buf []byte
	for read := uint64(0); read < max; read += chunk {
		n := uint64(chunk)
		if read+n > max {
			n = max - read
		}
		data, err := mem.Read(addr+read, n)
		if err != nil {
			// The string may end before a chunk boundary that lies past the
			// end of memory; fall back to single bytes.
			data, err = readBytewise(mem, addr+read, n)
			if err != nil {
				return "", false, err
			}
		}
		for i, b := range data {
			if b == 0 {
				buf = append(buf, data[:i]...)
				return string(buf), true, nil
			}
		}
		buf = append(buf, data...)
	}
	return "", false, errors.New(errors.PhaseTransfer, errors.KindOutOfBounds).
		Detail("string at %#x is not terminated within %d bytes", addr, max).
		Build()
}

func readBytewise(mem Memory, addr, n uint64) ([]byte, error) {
	out := make([]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		b, err := mem.ReadU8(addr + i)
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
		out = append(out, b)
		if b == 0 {
			break
		}
	}
	return out, nil
}

// ReadWords reads count words of width bytes starting at addr.
func ReadWords(mem Memory, addr, width, count uint64) ([]uint64, error) {
	out := make([]uint64, count)
	for i := range out {
		v, err := ReadWord(mem, addr+uint64(i)*width, width)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
