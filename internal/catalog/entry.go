package catalog

import (
	"encoding/binary"

	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
)

// Catalog entries share the schema B+tree and are told apart by a leading
// kind byte, the same tagged-payload idiom internal/codec uses for rows.
const (
	entryTable = byte(1)
	entryIndex = byte(2)
	entryStats = byte(3)
)

func putStr(buf []byte, s string) int {
	b := []byte(s)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(b)))
	copy(buf[2:2+len(b)], b)
	return 2 + len(b)
}

func strSize(s string) int { return 2 + len(s) }

func getStr(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", 0, dberr.New(dberr.KindCorruption, "catalog entry truncated reading string length")
	}
	l := int(binary.BigEndian.Uint16(buf[off : off+2]))
	if off+2+l > len(buf) {
		return "", 0, dberr.New(dberr.KindCorruption, "catalog entry truncated reading string body")
	}
	return string(buf[off+2 : off+2+l]), 2 + l, nil
}

func encodeTableEntry(t *TableDef) []byte {
	size := 1 + 8 + strSize(t.Name) + 4 + 2
	for _, c := range t.Columns {
		size += strSize(c.Name) + 1
	}
	buf := make([]byte, size)
	buf[0] = entryTable
	binary.BigEndian.PutUint64(buf[1:9], t.ID)
	cursor := 9
	cursor += putStr(buf[cursor:], t.Name)
	binary.BigEndian.PutUint32(buf[cursor:cursor+4], uint32(t.Root))
	cursor += 4
	binary.BigEndian.PutUint16(buf[cursor:cursor+2], uint16(len(t.Columns)))
	cursor += 2
	for _, c := range t.Columns {
		cursor += putStr(buf[cursor:], c.Name)
		buf[cursor] = byte(c.Type)
		cursor++
	}
	return buf
}

func decodeTableEntry(buf []byte) (*TableDef, error) {
	if len(buf) < 9 {
		return nil, dberr.New(dberr.KindCorruption, "table catalog entry truncated")
	}
	t := &TableDef{ID: binary.BigEndian.Uint64(buf[1:9])}
	cursor := 9
	name, n, err := getStr(buf, cursor)
	if err != nil {
		return nil, err
	}
	t.Name = name
	cursor += n
	if cursor+6 > len(buf) {
		return nil, dberr.New(dberr.KindCorruption, "table catalog entry truncated after name")
	}
	t.Root = pager.PageNum(binary.BigEndian.Uint32(buf[cursor : cursor+4]))
	cursor += 4
	ncols := int(binary.BigEndian.Uint16(buf[cursor : cursor+2]))
	cursor += 2
	t.Columns = make([]ColumnDef, ncols)
	for i := 0; i < ncols; i++ {
		cname, n, err := getStr(buf, cursor)
		if err != nil {
			return nil, err
		}
		cursor += n
		if cursor >= len(buf) {
			return nil, dberr.New(dberr.KindCorruption, "table catalog entry truncated reading column type")
		}
		t.Columns[i] = ColumnDef{Name: cname, Type: ColType(buf[cursor])}
		cursor++
	}
	return t, nil
}

func encodeIndexEntry(ix *IndexDef) []byte {
	size := 1 + 8 + strSize(ix.Name) + strSize(ix.Table) + 4 + 1 + 2
	for _, c := range ix.Columns {
		size += strSize(c)
	}
	buf := make([]byte, size)
	buf[0] = entryIndex
	binary.BigEndian.PutUint64(buf[1:9], ix.ID)
	cursor := 9
	cursor += putStr(buf[cursor:], ix.Name)
	cursor += putStr(buf[cursor:], ix.Table)
	binary.BigEndian.PutUint32(buf[cursor:cursor+4], uint32(ix.Root))
	cursor += 4
	if ix.Unique {
		buf[cursor] = 1
	}
	cursor++
	binary.BigEndian.PutUint16(buf[cursor:cursor+2], uint16(len(ix.Columns)))
	cursor += 2
	for _, c := range ix.Columns {
		cursor += putStr(buf[cursor:], c)
	}
	return buf
}

func decodeIndexEntry(buf []byte) (*IndexDef, error) {
	if len(buf) < 9 {
		return nil, dberr.New(dberr.KindCorruption, "index catalog entry truncated")
	}
	ix := &IndexDef{ID: binary.BigEndian.Uint64(buf[1:9])}
	cursor := 9
	name, n, err := getStr(buf, cursor)
	if err != nil {
		return nil, err
	}
	ix.Name = name
	cursor += n
	table, n, err := getStr(buf, cursor)
	if err != nil {
		return nil, err
	}
	ix.Table = table
	cursor += n
	if cursor+7 > len(buf) {
		return nil, dberr.New(dberr.KindCorruption, "index catalog entry truncated after table name")
	}
	ix.Root = pager.PageNum(binary.BigEndian.Uint32(buf[cursor : cursor+4]))
	cursor += 4
	ix.Unique = buf[cursor] != 0
	cursor++
	ncols := int(binary.BigEndian.Uint16(buf[cursor : cursor+2]))
	cursor += 2
	ix.Columns = make([]string, ncols)
	for i := 0; i < ncols; i++ {
		cname, n, err := getStr(buf, cursor)
		if err != nil {
			return nil, err
		}
		ix.Columns[i] = cname
		cursor += n
	}
	return ix, nil
}

func encodeStatsEntry(indexID uint64, s Stats) []byte {
	size := 1 + 8 + 8 + 8 + 2 + 8*len(s.PrefixDistinctCounts)
	buf := make([]byte, size)
	buf[0] = entryStats
	binary.BigEndian.PutUint64(buf[1:9], indexID)
	binary.BigEndian.PutUint64(buf[9:17], uint64(s.RowCount))
	binary.BigEndian.PutUint64(buf[17:25], uint64(s.DistinctKeys))
	binary.BigEndian.PutUint16(buf[25:27], uint16(len(s.PrefixDistinctCounts)))
	cursor := 27
	for _, v := range s.PrefixDistinctCounts {
		binary.BigEndian.PutUint64(buf[cursor:cursor+8], uint64(v))
		cursor += 8
	}
	return buf
}

func decodeStatsEntry(buf []byte) (uint64, Stats, error) {
	if len(buf) < 27 {
		return 0, Stats{}, dberr.New(dberr.KindCorruption, "stats catalog entry truncated")
	}
	indexID := binary.BigEndian.Uint64(buf[1:9])
	s := Stats{
		RowCount:     int64(binary.BigEndian.Uint64(buf[9:17])),
		DistinctKeys: int64(binary.BigEndian.Uint64(buf[17:25])),
	}
	n := int(binary.BigEndian.Uint16(buf[25:27]))
	cursor := 27
	s.PrefixDistinctCounts = make([]int64, n)
	for i := 0; i < n; i++ {
		if cursor+8 > len(buf) {
			return 0, Stats{}, dberr.New(dberr.KindCorruption, "stats catalog entry truncated reading prefix counts")
		}
		s.PrefixDistinctCounts[i] = int64(binary.BigEndian.Uint64(buf[cursor : cursor+8]))
		cursor += 8
	}
	return indexID, s, nil
}
