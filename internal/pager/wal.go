package pager

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
)

// WAL file format:
//
//	Header (16 bytes): magic(8) || version(u32) || page_size(u32)
//	Repeated frames:
//	  Page frame:   frame_type=1(u8) || txn_id(u64) || page_num(u32) ||
//	                payload_len(u32) || checksum(u32) || page_bytes
//	  Commit frame: frame_type=2(u8) || txn_id(u64) || frame_count(u32) ||
//	                checksum(u32)
//
// Checksums cover every preceding field of the frame plus the payload.
// All integers are big-endian, matching the database file.

const (
	walMagic      = "TSQLWAL\x00"
	walVersion    = uint32(1)
	walHeaderSize = 16

	frameTypePage   = byte(1)
	frameTypeCommit = byte(2)
)

// wal manages the append-only sidecar WAL file (<db>-wal).
type wal struct {
	f        *os.File
	path     string
	pageSize int
}

func openWAL(path string, pageSize int) (*wal, bool, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, dberr.Wrap(dberr.KindIO, err, "open WAL %s", path)
	}
	w := &wal{f: f, path: path, pageSize: pageSize}
	if existed {
		if err := w.validateHeader(); err != nil {
			f.Close()
			return nil, false, err
		}
	} else {
		if err := w.writeHeader(); err != nil {
			f.Close()
			return nil, false, err
		}
	}
	return w, existed, nil
}

func (w *wal) writeHeader() error {
	var hdr [walHeaderSize]byte
	copy(hdr[0:8], walMagic)
	binary.BigEndian.PutUint32(hdr[8:12], walVersion)
	binary.BigEndian.PutUint32(hdr[12:16], uint32(w.pageSize))
	if _, err := w.f.WriteAt(hdr[:], 0); err != nil {
		return dberr.Wrap(dberr.KindIO, err, "write WAL header")
	}
	return w.f.Sync()
}

func (w *wal) validateHeader() error {
	var hdr [walHeaderSize]byte
	n, err := w.f.ReadAt(hdr[:], 0)
	if err != nil && err != io.EOF {
		return dberr.Wrap(dberr.KindIO, err, "read WAL header")
	}
	if n < walHeaderSize {
		return dberr.New(dberr.KindCorruption, "WAL header truncated: %d bytes", n)
	}
	if string(hdr[0:8]) != walMagic {
		return dberr.New(dberr.KindCorruption, "bad WAL magic")
	}
	if v := binary.BigEndian.Uint32(hdr[8:12]); v != walVersion {
		return dberr.New(dberr.KindCorruption, "unsupported WAL version %d", v)
	}
	if ps := binary.BigEndian.Uint32(hdr[12:16]); int(ps) != w.pageSize {
		return dberr.New(dberr.KindCorruption, "WAL page size %d != %d", ps, w.pageSize)
	}
	return nil
}

func pageFrameChecksum(txnID TxnID, pageNum PageNum, payload []byte) uint32 {
	h := crc32.NewIEEE()
	var hdr [9]byte
	hdr[0] = frameTypePage
	binary.BigEndian.PutUint64(hdr[1:9], uint64(txnID))
	h.Write(hdr[:])
	var rest [8]byte
	binary.BigEndian.PutUint32(rest[0:4], uint32(pageNum))
	binary.BigEndian.PutUint32(rest[4:8], uint32(len(payload)))
	h.Write(rest[:])
	h.Write(payload)
	return h.Sum32()
}

func commitFrameChecksum(txnID TxnID, frameCount uint32) uint32 {
	h := crc32.NewIEEE()
	var hdr [13]byte
	hdr[0] = frameTypeCommit
	binary.BigEndian.PutUint64(hdr[1:9], uint64(txnID))
	binary.BigEndian.PutUint32(hdr[9:13], frameCount)
	h.Write(hdr[:])
	return h.Sum32()
}

// appendPageFrame writes one page-frame record to the WAL.
func (w *wal) appendPageFrame(txnID TxnID, pageNum PageNum, payload []byte) error {
	buf := make([]byte, 1+8+4+4+4+len(payload))
	buf[0] = frameTypePage
	binary.BigEndian.PutUint64(buf[1:9], uint64(txnID))
	binary.BigEndian.PutUint32(buf[9:13], uint32(pageNum))
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(payload)))
	binary.BigEndian.PutUint32(buf[17:21], pageFrameChecksum(txnID, pageNum, payload))
	copy(buf[21:], payload)
	if _, err := w.f.Write(buf); err != nil {
		return dberr.Wrap(dberr.KindIO, err, "append WAL page frame")
	}
	return nil
}

// appendCommitFrame writes the commit frame that atomically closes a
// transaction's group of page frames.
func (w *wal) appendCommitFrame(txnID TxnID, frameCount uint32) error {
	buf := make([]byte, 1+8+4+4)
	buf[0] = frameTypeCommit
	binary.BigEndian.PutUint64(buf[1:9], uint64(txnID))
	binary.BigEndian.PutUint32(buf[9:13], frameCount)
	binary.BigEndian.PutUint32(buf[13:17], commitFrameChecksum(txnID, frameCount))
	if _, err := w.f.Write(buf); err != nil {
		return dberr.Wrap(dberr.KindIO, err, "append WAL commit frame")
	}
	return nil
}

func (w *wal) sync() error {
	return w.f.Sync()
}

func (w *wal) truncateToHeader() error {
	if err := w.f.Truncate(walHeaderSize); err != nil {
		return dberr.Wrap(dberr.KindIO, err, "truncate WAL")
	}
	if _, err := w.f.Seek(walHeaderSize, io.SeekStart); err != nil {
		return dberr.Wrap(dberr.KindIO, err, "seek WAL")
	}
	return w.f.Sync()
}

func (w *wal) close() error {
	return w.f.Close()
}

// walPageWrite is one decoded, validated page-image write belonging to a
// committed transaction, in encounter order.
type walPageWrite struct {
	PageNum PageNum
	Data    []byte
}

// scanCommitted reads every frame from the WAL (after its header),
// grouping page frames by txn_id until a valid commit frame closes the
// group. A checksum failure or truncated tail discards the rest of the
// current transaction's frames and stops scanning further groups in that
// transaction, but earlier closed (committed) groups are still returned.
func (w *wal) scanCommitted() ([]walPageWrite, error) {
	if _, err := w.f.Seek(walHeaderSize, io.SeekStart); err != nil {
		return nil, dberr.Wrap(dberr.KindIO, err, "seek WAL")
	}
	r := io.Reader(w.f)

	var committed []walPageWrite
	pending := map[TxnID][]walPageWrite{}
	pendingCount := map[TxnID]uint32{}

	for {
		var typeBuf [1]byte
		if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
			break // EOF or short read: stop scanning
		}
		switch typeBuf[0] {
		case frameTypePage:
			hdr := make([]byte, 8+4+4+4)
			if _, err := io.ReadFull(r, hdr); err != nil {
				return committed, nil // truncated tail, discard
			}
			txnID := TxnID(binary.BigEndian.Uint64(hdr[0:8]))
			pageNum := PageNum(binary.BigEndian.Uint32(hdr[8:12]))
			payloadLen := binary.BigEndian.Uint32(hdr[12:16])
			checksum := binary.BigEndian.Uint32(hdr[16:20])
			payload := make([]byte, payloadLen)
			if _, err := io.ReadFull(r, payload); err != nil {
				return committed, nil
			}
			if pageFrameChecksum(txnID, pageNum, payload) != checksum {
				delete(pending, txnID) // corrupt frame: drop this txn's group
				delete(pendingCount, txnID)
				return committed, nil
			}
			pending[txnID] = append(pending[txnID], walPageWrite{PageNum: pageNum, Data: payload})
			pendingCount[txnID]++
		case frameTypeCommit:
			hdr := make([]byte, 8+4+4)
			if _, err := io.ReadFull(r, hdr); err != nil {
				return committed, nil
			}
			txnID := TxnID(binary.BigEndian.Uint64(hdr[0:8]))
			frameCount := binary.BigEndian.Uint32(hdr[8:12])
			checksum := binary.BigEndian.Uint32(hdr[12:16])
			if commitFrameChecksum(txnID, frameCount) != checksum {
				return committed, nil
			}
			if pendingCount[txnID] != frameCount {
				return committed, nil // mismatched count: discard and stop
			}
			committed = append(committed, pending[txnID]...)
			delete(pending, txnID)
			delete(pendingCount, txnID)
		default:
			return committed, dberr.New(dberr.KindCorruption, "unknown WAL frame type 0x%02x", typeBuf[0])
		}
	}
	return committed, nil
}
