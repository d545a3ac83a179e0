package geom

import (
	"encoding/binary"
	"math"

	gogeom "github.com/twpayne/go-geom"
)

const (
	ewkbZ    = 0x80000000
	ewkbM    = 0x40000000
	ewkbSRID = 0x20000000
	ewkbMask = 0x0fffffff
)

// ByteOrder reads and appends fixed-size integers in one byte order.
// binary.LittleEndian and binary.BigEndian satisfy it.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Header is the part of an (E)WKB value read without decoding its body.
type Header struct {
	Type Type
	HasZ bool
	HasM bool
	SRID int32

	order ByteOrder
	iso   bool
	size  int
}

// Dims returns the number of ordinates per coordinate.
func (h Header) Dims() int {
	n := 2
	if h.HasZ {
		n++
	}
	if h.HasM {
		n++
	}
	return n
}

// ReadHeader parses the byte order, type code, dimension flags and SRID
// at the start of b. Both EWKB flags and ISO type offsets are accepted.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < 5 {
		return Header{}, ErrInvalidWKB.New("value too short")
	}

	var h Header
	switch b[0] {
	case 0:
		h.order = binary.BigEndian
	case 1:
		h.order = binary.LittleEndian
	default:
		return Header{}, ErrInvalidWKB.New("unknown byte order")
	}

	code := h.order.Uint32(b[1:5])
	h.size = 5
	h.HasZ = code&ewkbZ != 0
	h.HasM = code&ewkbM != 0

	if code&ewkbSRID != 0 {
		if len(b) < 9 {
			return Header{}, ErrInvalidWKB.New("truncated SRID")
		}
		h.SRID = int32(h.order.Uint32(b[5:9]))
		h.size = 9
	}

	base := code & ewkbMask
	if base >= 1000 {
		h.iso = true
		switch base / 1000 {
		case 1:
			h.HasZ = true
		case 2:
			h.HasM = true
		case 3:
			h.HasZ, h.HasM = true, true
		}
		base %= 1000
	}

	if base > uint32(Triangle) {
		return Header{}, ErrInvalidWKB.New("unknown type code")
	}
	h.Type = Type(base)

	return h, nil
}

func (h Header) code(withSRID bool) uint32 {
	code := uint32(h.Type)
	if h.HasZ {
		code |= ewkbZ
	}
	if h.HasM {
		code |= ewkbM
	}
	if withSRID {
		code |= ewkbSRID
	}
	return code
}

// appendHeader writes h in EWKB form, little endian.
func appendHeader(dst []byte, h Header, srid int32) []byte {
	dst = append(dst, 1)
	dst = binary.LittleEndian.AppendUint32(dst, h.code(srid != 0))
	if srid != 0 {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(srid))
	}
	return dst
}

// SetSRID rewrites the top-level header of b so that it carries srid.
// A zero srid removes the SRID from the header. The body is copied as is.
func SetSRID(b []byte, srid int32) ([]byte, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	return rewriteHeader(b, h, srid), nil
}

// Retype rewrites the type code in the header of b and keeps the body,
// so t must share the body layout of b's type, as LineString and
// CircularString do.
func Retype(b []byte, t Type) ([]byte, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	h.Type = t
	return rewriteHeader(b, h, h.SRID), nil
}

// rewriteHeader keeps the original byte order since the body is not re-encoded.
func rewriteHeader(b []byte, h Header, srid int32) []byte {
	out := make([]byte, 0, len(b)+4)
	out = append(out, b[0])
	out = h.order.AppendUint32(out, h.code(srid != 0))
	if srid != 0 {
		out = h.order.AppendUint32(out, uint32(srid))
	}
	return append(out, b[h.size:]...)
}

// isEmptyPoint reports whether b encodes a point whose ordinates are all NaN.
func isEmptyPoint(b []byte, h Header) bool {
	if h.Type != Point {
		return false
	}
	body := b[h.size:]
	if len(body) < 8*h.Dims() {
		return false
	}
	for i := 0; i < h.Dims(); i++ {
		if !math.IsNaN(math.Float64frombits(h.order.Uint64(body[8*i:]))) {
			return false
		}
	}
	return true
}

// EmptyOf returns the EWKB of an empty geometry of type t.
func EmptyOf(t Type, srid int32) []byte {
	h := Header{Type: t}
	out := appendHeader(make([]byte, 0, 25), h, srid)
	if t == Point {
		out = binary.LittleEndian.AppendUint64(out, gogeom.PointEmptyCoordHex)
		return binary.LittleEndian.AppendUint64(out, gogeom.PointEmptyCoordHex)
	}
	return binary.LittleEndian.AppendUint32(out, 0)
}
