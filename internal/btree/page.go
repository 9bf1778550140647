package btree

import (
	"encoding/binary"

	"github.com/SimonWaldherr/tinysql-core/internal/pager"
)

// On-disk B+tree page layout (spec §3):
//
//	9-byte header: page_type(1) || cell_count(u16) || cell_content_offset(u16) || type_specific(u32)
//	Cell-offset array grows upward from byte 9 (2 bytes per entry).
//	Cell contents grow downward from the page end.
//
//	Interior cell: left_child(u32) || key(i64)                — fixed 12 bytes.
//	Leaf cell:     key(i64) || payload_size(u32) || payload    — variable length.
//
// Keys are i64 big-endian so byte order equals numeric order.

const (
	pageTypeInterior = byte(1)
	pageTypeLeaf     = byte(2)

	pageHeaderSize  = 9
	offsetEntrySize = 2
)

func isLeafPage(buf []byte) bool     { return buf[0] == pageTypeLeaf }
func cellCount(buf []byte) int       { return int(binary.BigEndian.Uint16(buf[1:3])) }
func contentOffset(buf []byte) int   { return int(binary.BigEndian.Uint16(buf[3:5])) }
func typeSpecific(buf []byte) uint32 { return binary.BigEndian.Uint32(buf[5:9]) }

func cellOffsetAt(buf []byte, i int) int {
	off := pageHeaderSize + i*offsetEntrySize
	return int(binary.BigEndian.Uint16(buf[off : off+2]))
}

// ── leaf pages ──────────────────────────────────────────────────────────

type leafView struct {
	keys     []int64
	payloads [][]byte
	nextLeaf pager.PageNum
}

func decodeLeaf(buf []byte) leafView {
	n := cellCount(buf)
	v := leafView{keys: make([]int64, n), payloads: make([][]byte, n), nextLeaf: pager.PageNum(typeSpecific(buf))}
	for i := 0; i < n; i++ {
		off := cellOffsetAt(buf, i)
		key := int64(binary.BigEndian.Uint64(buf[off : off+8]))
		plen := binary.BigEndian.Uint32(buf[off+8 : off+12])
		payload := make([]byte, plen)
		copy(payload, buf[off+12:off+12+int(plen)])
		v.keys[i] = key
		v.payloads[i] = payload
	}
	return v
}

// encodeLeaf rewrites buf as a leaf page holding v's entries. Returns
// false if the entries do not fit in one page.
func encodeLeaf(buf []byte, v leafView) bool {
	n := len(v.keys)
	size := pageHeaderSize + n*offsetEntrySize
	for _, p := range v.payloads {
		size += 12 + len(p)
	}
	if size > len(buf) {
		return false
	}

	for i := range buf {
		buf[i] = 0
	}
	buf[0] = pageTypeLeaf
	binary.BigEndian.PutUint16(buf[1:3], uint16(n))
	binary.BigEndian.PutUint32(buf[5:9], uint32(v.nextLeaf))

	cursor := len(buf)
	for i := 0; i < n; i++ {
		p := v.payloads[i]
		cellLen := 12 + len(p)
		cursor -= cellLen
		binary.BigEndian.PutUint64(buf[cursor:cursor+8], uint64(v.keys[i]))
		binary.BigEndian.PutUint32(buf[cursor+8:cursor+12], uint32(len(p)))
		copy(buf[cursor+12:cursor+12+len(p)], p)

		offOff := pageHeaderSize + i*offsetEntrySize
		binary.BigEndian.PutUint16(buf[offOff:offOff+2], uint16(cursor))
	}
	binary.BigEndian.PutUint16(buf[3:5], uint16(cursor))
	return true
}

// usedBytes reports how many bytes of a full page v's leaf entries occupy,
// used to compute occupancy ratios for underflow detection.
func (v leafView) usedBytes() int {
	n := len(v.payloads)
	size := pageHeaderSize + n*offsetEntrySize
	for _, p := range v.payloads {
		size += 12 + len(p)
	}
	return size
}

// ── interior pages ──────────────────────────────────────────────────────

type interiorView struct {
	// children has len(keys)+1 entries; children[i] and children[i+1] are
	// separated by keys[i].
	children []pager.PageNum
	keys     []int64
}

func decodeInterior(buf []byte) interiorView {
	n := cellCount(buf)
	v := interiorView{children: make([]pager.PageNum, n+1), keys: make([]int64, n)}
	for i := 0; i < n; i++ {
		off := cellOffsetAt(buf, i)
		child := pager.PageNum(binary.BigEndian.Uint32(buf[off : off+4]))
		key := int64(binary.BigEndian.Uint64(buf[off+4 : off+12]))
		v.children[i] = child
		v.keys[i] = key
	}
	v.children[n] = pager.PageNum(typeSpecific(buf))
	return v
}

func encodeInterior(buf []byte, v interiorView) bool {
	n := len(v.keys)
	size := pageHeaderSize + n*(offsetEntrySize+12)
	if size > len(buf) {
		return false
	}

	for i := range buf {
		buf[i] = 0
	}
	buf[0] = pageTypeInterior
	binary.BigEndian.PutUint16(buf[1:3], uint16(n))
	rightChild := v.children[len(v.children)-1]
	binary.BigEndian.PutUint32(buf[5:9], uint32(rightChild))

	cursor := len(buf)
	for i := 0; i < n; i++ {
		cursor -= 12
		binary.BigEndian.PutUint32(buf[cursor:cursor+4], uint32(v.children[i]))
		binary.BigEndian.PutUint64(buf[cursor+4:cursor+12], uint64(v.keys[i]))

		offOff := pageHeaderSize + i*offsetEntrySize
		binary.BigEndian.PutUint16(buf[offOff:offOff+2], uint16(cursor))
	}
	binary.BigEndian.PutUint16(buf[3:5], uint16(cursor))
	return true
}

func (v interiorView) usedBytes() int {
	n := len(v.keys)
	return pageHeaderSize + n*(offsetEntrySize+12)
}

// findChild returns the index into v.children that key descends into.
func (v interiorView) findChild(key int64) int {
	lo, hi := 0, len(v.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if v.keys[mid] <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func initLeafPage(buf []byte) {
	encodeLeaf(buf, leafView{})
}

func initInteriorPage(buf []byte, left, right pager.PageNum, key int64) bool {
	return encodeInterior(buf, interiorView{children: []pager.PageNum{left, right}, keys: []int64{key}})
}

// sortedInsertLeaf returns a copy of v with (key, payload) inserted in
// sorted position, replacing any existing entry with the same key.
func sortedInsertLeaf(v leafView, key int64, payload []byte) leafView {
	keys := make([]int64, 0, len(v.keys)+1)
	vals := make([][]byte, 0, len(v.payloads)+1)
	inserted := false
	for i, k := range v.keys {
		if !inserted && key <= k {
			keys = append(keys, key)
			vals = append(vals, payload)
			inserted = true
			if key == k {
				continue // replace
			}
		}
		keys = append(keys, k)
		vals = append(vals, v.payloads[i])
	}
	if !inserted {
		keys = append(keys, key)
		vals = append(vals, payload)
	}
	return leafView{keys: keys, payloads: vals, nextLeaf: v.nextLeaf}
}

func removeLeafAt(v leafView, idx int) leafView {
	keys := append(append([]int64{}, v.keys[:idx]...), v.keys[idx+1:]...)
	vals := append(append([][]byte{}, v.payloads[:idx]...), v.payloads[idx+1:]...)
	return leafView{keys: keys, payloads: vals, nextLeaf: v.nextLeaf}
}

func findLeafKey(v leafView, key int64) (int, bool) {
	lo, hi := 0, len(v.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if v.keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(v.keys) && v.keys[lo] == key {
		return lo, true
	}
	return lo, false
}
