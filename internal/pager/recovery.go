package pager

import (
	"io"

	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
)

// recover scans the WAL for committed transaction groups and applies
// their page writes to the database file in encountered order, then
// truncates the WAL and re-reads the header page so in-memory state
// reflects recovery. Called once on Open.
func (p *Pager) recover() error {
	writes, err := p.w.scanCommitted()
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	p.logger.Printf("pager: replaying %d committed WAL page writes", len(writes))
	for _, w := range writes {
		if _, err := p.f.WriteAt(w.Data, int64(w.PageNum)*PageSize); err != nil {
			return dberr.Wrap(dberr.KindIO, err, "recovery apply page %d", w.PageNum)
		}
	}
	if err := p.f.Sync(); err != nil {
		return dberr.Wrap(dberr.KindIO, err, "fsync during recovery")
	}
	if err := p.w.truncateToHeader(); err != nil {
		return err
	}

	hdrBuf := make([]byte, HeaderSize)
	if _, err := p.f.ReadAt(hdrBuf, 0); err != nil && err != io.EOF {
		return dberr.Wrap(dberr.KindIO, err, "reread header after recovery")
	}
	h, err := parseHeader(hdrBuf)
	if err != nil {
		return err
	}
	p.header = h
	return nil
}
