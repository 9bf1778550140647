package codec

import (
	"encoding/binary"
	"math"

	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
)

// tag bytes for the row payload format (spec §3):
//
//	column_count(u32) followed by tagged values:
//	0=NULL, 1=i64, 2=f64 bits, 3=text(u32 len + UTF-8)
const (
	tagNull = byte(0)
	tagInt  = byte(1)
	tagReal = byte(2)
	tagText = byte(3)
)

// EncodeRow serializes a table row into its on-disk payload form.
func EncodeRow(vals []Value) []byte {
	size := 4
	for _, v := range vals {
		size += valueSize(v)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(vals)))
	cursor := 4
	for _, v := range vals {
		cursor += putValue(buf[cursor:], v)
	}
	return buf
}

func valueSize(v Value) int {
	switch v.Kind {
	case KindNull:
		return 1
	case KindInt, KindReal:
		return 9
	case KindText:
		return 5 + len(v.S)
	default:
		return 1
	}
}

func putValue(buf []byte, v Value) int {
	switch v.Kind {
	case KindNull:
		buf[0] = tagNull
		return 1
	case KindInt:
		buf[0] = tagInt
		binary.BigEndian.PutUint64(buf[1:9], uint64(v.I))
		return 9
	case KindReal:
		buf[0] = tagReal
		binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(v.F))
		return 9
	case KindText:
		buf[0] = tagText
		b := []byte(v.S)
		binary.BigEndian.PutUint32(buf[1:5], uint32(len(b)))
		copy(buf[5:5+len(b)], b)
		return 5 + len(b)
	default:
		buf[0] = tagNull
		return 1
	}
}

// DecodeRow parses a row payload produced by EncodeRow.
func DecodeRow(buf []byte) ([]Value, error) {
	if len(buf) < 4 {
		return nil, dberr.New(dberr.KindCorruption, "row payload truncated: %d bytes", len(buf))
	}
	n := int(binary.BigEndian.Uint32(buf[0:4]))
	vals := make([]Value, n)
	cursor := 4
	for i := 0; i < n; i++ {
		v, consumed, err := getValue(buf, cursor)
		if err != nil {
			return nil, err
		}
		vals[i] = v
		cursor += consumed
	}
	return vals, nil
}

func getValue(buf []byte, off int) (Value, int, error) {
	if off >= len(buf) {
		return Value{}, 0, dberr.New(dberr.KindCorruption, "row payload truncated at offset %d", off)
	}
	switch buf[off] {
	case tagNull:
		return Null(), 1, nil
	case tagInt:
		if off+9 > len(buf) {
			return Value{}, 0, dberr.New(dberr.KindCorruption, "truncated int value at offset %d", off)
		}
		return Int(int64(binary.BigEndian.Uint64(buf[off+1 : off+9]))), 9, nil
	case tagReal:
		if off+9 > len(buf) {
			return Value{}, 0, dberr.New(dberr.KindCorruption, "truncated real value at offset %d", off)
		}
		return Real(math.Float64frombits(binary.BigEndian.Uint64(buf[off+1 : off+9]))), 9, nil
	case tagText:
		if off+5 > len(buf) {
			return Value{}, 0, dberr.New(dberr.KindCorruption, "truncated text length at offset %d", off)
		}
		l := int(binary.BigEndian.Uint32(buf[off+1 : off+5]))
		if off+5+l > len(buf) {
			return Value{}, 0, dberr.New(dberr.KindCorruption, "truncated text value at offset %d", off)
		}
		return Text(string(buf[off+5 : off+5+l])), 5 + l, nil
	default:
		return Value{}, 0, dberr.New(dberr.KindCorruption, "unknown row tag 0x%02x at offset %d", buf[off], off)
	}
}
