package codec

import (
	"encoding/binary"

	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
)

// BucketEntry disambiguates an index key that maps to more than one
// distinct value (a hash or rounding collision), or that simply has more
// than one matching rowid for a non-unique index. ExactValue is the
// encoded tuple this entry represents; Rowids is every table rowid whose
// computed key lands in this bucket with this exact value.
type BucketEntry struct {
	ExactValue []byte
	Rowids     []int64
}

// EncodeBucket serializes the list of entries stored at one index key:
// entry_count(u32) then, per entry, value_len(u32) || value_bytes ||
// rowid_count(u32) || rowids(i64 each).
func EncodeBucket(entries []BucketEntry) []byte {
	size := 4
	for _, e := range entries {
		size += 4 + len(e.ExactValue) + 4 + 8*len(e.Rowids)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(entries)))
	cursor := 4
	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[cursor:cursor+4], uint32(len(e.ExactValue)))
		cursor += 4
		copy(buf[cursor:cursor+len(e.ExactValue)], e.ExactValue)
		cursor += len(e.ExactValue)
		binary.BigEndian.PutUint32(buf[cursor:cursor+4], uint32(len(e.Rowids)))
		cursor += 4
		for _, r := range e.Rowids {
			binary.BigEndian.PutUint64(buf[cursor:cursor+8], uint64(r))
			cursor += 8
		}
	}
	return buf
}

// DecodeBucket parses a payload produced by EncodeBucket.
func DecodeBucket(buf []byte) ([]BucketEntry, error) {
	if len(buf) < 4 {
		return nil, dberr.New(dberr.KindCorruption, "bucket payload truncated: %d bytes", len(buf))
	}
	n := int(binary.BigEndian.Uint32(buf[0:4]))
	entries := make([]BucketEntry, n)
	cursor := 4
	for i := 0; i < n; i++ {
		if cursor+4 > len(buf) {
			return nil, dberr.New(dberr.KindCorruption, "bucket entry %d: truncated value length", i)
		}
		vlen := int(binary.BigEndian.Uint32(buf[cursor : cursor+4]))
		cursor += 4
		if cursor+vlen > len(buf) {
			return nil, dberr.New(dberr.KindCorruption, "bucket entry %d: truncated value", i)
		}
		val := make([]byte, vlen)
		copy(val, buf[cursor:cursor+vlen])
		cursor += vlen

		if cursor+4 > len(buf) {
			return nil, dberr.New(dberr.KindCorruption, "bucket entry %d: truncated rowid count", i)
		}
		rcount := int(binary.BigEndian.Uint32(buf[cursor : cursor+4]))
		cursor += 4
		rowids := make([]int64, rcount)
		for j := 0; j < rcount; j++ {
			if cursor+8 > len(buf) {
				return nil, dberr.New(dberr.KindCorruption, "bucket entry %d: truncated rowid %d", i, j)
			}
			rowids[j] = int64(binary.BigEndian.Uint64(buf[cursor : cursor+8]))
			cursor += 8
		}
		entries[i] = BucketEntry{ExactValue: val, Rowids: rowids}
	}
	return entries, nil
}

// FindEntry returns the bucket entry exactly matching value, if any.
func FindEntry(entries []BucketEntry, value []byte) (int, bool) {
	for i, e := range entries {
		if len(e.ExactValue) == len(value) {
			match := true
			for j := range value {
				if e.ExactValue[j] != value[j] {
					match = false
					break
				}
			}
			if match {
				return i, true
			}
		}
	}
	return -1, false
}
