// Package pager implements fixed-size paged file I/O for tinysql-core: a
// buffer pool with dirty-page spill isolation, a freelist allocator, and a
// write-ahead log with atomic commit and crash recovery. Every other
// storage component (B+tree, schema catalog) is built on top of the small
// contract this package exposes: Read, Write, Allocate, Free, Pin/Unpin,
// Commit, Checkpoint, and a mutable header view.
package pager

import (
	"encoding/binary"

	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
)

// PageSize is fixed for the whole database file, matching the on-disk
// format described in the spec: a 4 KiB page addressed by a 32-bit page
// number, page 0 reserved for the file header.
const PageSize = 4096

// PageNum addresses a page within the database file. 0 is reserved for
// the file header and is never a valid B+tree or freelist page.
type PageNum uint32

// TxnID identifies a committed (or in-flight) transaction in the WAL.
type TxnID uint64

// HeaderSize is the on-disk size of the page-0 header. The remainder of
// page 0 is unused padding.
const HeaderSize = 100

var headerMagic = [4]byte{'T', 'S', 'Q', '1'}

// Header is the mutable, in-memory view of page 0. All multi-byte
// integers are big-endian on disk.
type Header struct {
	PageSize       uint32
	PageCount      uint32
	FreelistHead   PageNum
	FreelistCount  uint32
	SchemaRoot     PageNum
}

func (h *Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], headerMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.PageSize)
	binary.BigEndian.PutUint32(buf[8:12], h.PageCount)
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.FreelistHead))
	binary.BigEndian.PutUint32(buf[16:20], h.FreelistCount)
	binary.BigEndian.PutUint32(buf[20:24], uint32(h.SchemaRoot))
	return buf
}

func parseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, dberr.New(dberr.KindCorruption, "header page truncated: %d bytes", len(buf))
	}
	if string(buf[0:4]) != string(headerMagic[:]) {
		return nil, dberr.New(dberr.KindCorruption, "bad header magic %q", buf[0:4])
	}
	h := &Header{
		PageSize:      binary.BigEndian.Uint32(buf[4:8]),
		PageCount:     binary.BigEndian.Uint32(buf[8:12]),
		FreelistHead:  PageNum(binary.BigEndian.Uint32(buf[12:16])),
		FreelistCount: binary.BigEndian.Uint32(buf[16:20]),
		SchemaRoot:    PageNum(binary.BigEndian.Uint32(buf[20:24])),
	}
	if h.PageSize != PageSize {
		return nil, dberr.New(dberr.KindCorruption, "unsupported page size %d (want %d)", h.PageSize, PageSize)
	}
	return h, nil
}
