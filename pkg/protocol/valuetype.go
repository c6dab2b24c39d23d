package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is the numeric representation selected by a value type descriptor.
type Kind uint8

const (
	KindIncomplete Kind = iota
	KindUnsigned
	KindSigned
	KindFloat
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindUnsigned:
		return "unsigned"
	case KindSigned:
		return "signed"
	case KindFloat:
		return "float"
	case KindInvalid:
		return "invalid"
	default:
		return "incomplete"
	}
}

// ValueType describes how channel payload values are encoded.
type ValueType struct {
	Binary     bool
	Kind       Kind
	BigEndian  bool
	Width      int
	Multiplier float64
}

var magnitudePrefixes = map[byte]float64{
	'T': 1e12,
	'G': 1e9,
	'M': 1e6,
	'k': 1e3,
	'h': 1e2,
	'D': 1e1,
	'd': 1e-1,
	'c': 1e-2,
	'm': 1e-3,
	'u': 1e-6,
	'n': 1e-9,
	'p': 1e-12,
	'f': 1e-15,
	'a': 1e-18,
}

// TextValueType describes decimal values sent as text.
func TextValueType() ValueType {
	return ValueType{Binary: false, Kind: KindFloat, Multiplier: 1}
}

// DecodeValueType reads a 2 byte ("f4") or 3 byte ("kf4") descriptor from the
// start of buf and reports how many bytes it occupies. Incomplete descriptors
// consume nothing; invalid ones consume their full length so the caller can
// discard them.
func DecodeValueType(buf []byte) (ValueType, int) {
	vt := ValueType{Binary: true, Kind: KindIncomplete, Multiplier: 1}
	if len(buf) < 2 {
		return vt, 0
	}

	size := 2
	if !isDigit(buf[1]) {
		size = 3
		if len(buf) < 3 {
			return vt, 0
		}
		mult, ok := magnitudePrefixes[buf[0]]
		if !ok {
			vt.Kind = KindInvalid
			return vt, size
		}
		vt.Multiplier = mult
	}

	letter := buf[size-2]
	digit := buf[size-1]
	if !isDigit(digit) {
		vt.Kind = KindInvalid
		return vt, size
	}
	vt.Width = int(digit - '0')

	switch lowerASCII(letter) {
	case 'u':
		vt.Kind = KindUnsigned
		if vt.Width < 1 || vt.Width > 4 {
			vt.Kind = KindInvalid
		}
	case 'i':
		vt.Kind = KindSigned
		if vt.Width != 1 && vt.Width != 2 && vt.Width != 4 {
			vt.Kind = KindInvalid
		}
	case 'f':
		vt.Kind = KindFloat
		if vt.Width != 4 && vt.Width != 8 {
			vt.Kind = KindInvalid
		}
	default:
		vt.Kind = KindInvalid
		return vt, size
	}

	vt.BigEndian = letter >= 'A' && letter <= 'Z'
	return vt, size
}

// Valid reports whether values of this type can be decoded.
func (vt ValueType) Valid() bool {
	switch vt.Kind {
	case KindUnsigned, KindSigned, KindFloat:
		return true
	default:
		return false
	}
}

func (vt ValueType) String() string {
	if !vt.Binary {
		return "Decimal"
	}
	var kind string
	switch vt.Kind {
	case KindInvalid:
		return "Invalid data"
	case KindIncomplete:
		return "Incomplete data"
	case KindSigned:
		kind = "signed integer"
	case KindUnsigned:
		kind = "unsigned integer"
	case KindFloat:
		kind = "floating point"
	}
	endian := "little endian"
	if vt.BigEndian {
		endian = "big endian"
	}
	return fmt.Sprintf("%d-bit %s (%s)", vt.Width*8, kind, endian)
}

// DecodeValues converts a binary payload into scaled values.
func DecodeValues(vt ValueType, payload []byte) ([]float64, error) {
	if !vt.Binary || !vt.Valid() || vt.Width <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidValueType, vt)
	}
	if len(payload)%vt.Width != 0 {
		return nil, fmt.Errorf("%w: %d bytes of %s", ErrPayloadLength, len(payload), vt)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if vt.BigEndian {
		order = binary.BigEndian
	}

	out := make([]float64, 0, len(payload)/vt.Width)
	for i := 0; i < len(payload); i += vt.Width {
		out = append(out, decodeValue(vt, order, payload[i:i+vt.Width])*vt.Multiplier)
	}
	return out, nil
}

func decodeValue(vt ValueType, order binary.ByteOrder, data []byte) float64 {
	switch vt.Kind {
	case KindUnsigned:
		switch vt.Width {
		case 1:
			return float64(data[0])
		case 2:
			return float64(order.Uint16(data))
		case 3:
			return float64(uint24(data, vt.BigEndian))
		case 4:
			return float64(order.Uint32(data))
		}
	case KindSigned:
		switch vt.Width {
		case 1:
			return float64(int8(data[0]))
		case 2:
			return float64(int16(order.Uint16(data)))
		case 4:
			return float64(int32(order.Uint32(data)))
		}
	case KindFloat:
		switch vt.Width {
		case 4:
			return float64(math.Float32frombits(order.Uint32(data)))
		case 8:
			return math.Float64frombits(order.Uint64(data))
		}
	}
	return math.NaN()
}

func uint24(data []byte, bigEndian bool) uint32 {
	if bigEndian {
		return uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
	}
	return uint32(data[2])<<16 | uint32(data[1])<<8 | uint32(data[0])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func lowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
