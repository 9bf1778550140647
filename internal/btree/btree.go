// Package btree implements the ordered key/value B+tree used for both
// table heaps (rowid-keyed) and secondary indexes (value-keyed). Keys are
// always int64 (order-preserving for table rowids; index keys are mapped
// to int64 by internal/codec before reaching this package). Payloads are
// opaque bytes: an encoded row for table trees, an encoded bucket for
// index trees.
package btree

import (
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
)

// underflowRatio is the logical live-cell utilization below which a leaf
// or interior node is considered underfull and triggers rebalance.
const underflowRatio = 0.35

// maxInlinePayload rejects payloads that could never fit a leaf cell
// alongside its 12-byte overhead, even alone on an empty page. Overflow
// pages are a stated future extension (spec §4.2 edge cases), not
// implemented here.
const maxInlinePayload = pager.PageSize - pageHeaderSize - offsetEntrySize - 12

// Tree is a handle to a B+tree rooted at a fixed page number. The root
// page number is the tree's stable identity: splits and merges never
// change it (root compaction preserves it explicitly).
type Tree struct {
	p    *pager.Pager
	root pager.PageNum
}

// Create allocates a new B+tree with an empty leaf root page.
func Create(p *pager.Pager) (*Tree, error) {
	pn, buf, err := p.Allocate()
	if err != nil {
		return nil, err
	}
	initLeafPage(buf)
	return &Tree{p: p, root: pn}, nil
}

// Open returns a handle to an existing B+tree rooted at root.
func Open(p *pager.Pager, root pager.PageNum) *Tree {
	return &Tree{p: p, root: root}
}

// Root returns the tree's root page number.
func (t *Tree) Root() pager.PageNum { return t.root }

// Lookup returns the payload stored at key, if any.
func (t *Tree) Lookup(key int64) ([]byte, bool, error) {
	pn := t.root
	for {
		buf, err := t.p.Read(pn)
		if err != nil {
			return nil, false, err
		}
		if isLeafPage(buf) {
			v := decodeLeaf(buf)
			idx, ok := findLeafKey(v, key)
			if !ok {
				return nil, false, nil
			}
			return v.payloads[idx], true, nil
		}
		v := decodeInterior(buf)
		pn = v.children[v.findChild(key)]
	}
}

// Insert adds or replaces the payload at key.
func (t *Tree) Insert(key int64, payload []byte) error {
	if len(payload) > maxInlinePayload {
		return dberr.New(dberr.KindUnsupported, "payload of %d bytes exceeds inline limit %d (overflow pages not implemented)", len(payload), maxInlinePayload)
	}
	sr, err := t.insertRec(t.root, key, payload)
	if err != nil {
		return err
	}
	if sr == nil {
		return nil
	}
	return t.createNewRoot(sr.splitKey, sr.newRight)
}

// insertRec returns a non-nil *splitResult when the child at pn split and
// the caller (parent) must link in the new sibling.
type splitResult struct {
	splitKey int64
	newRight pager.PageNum
}

func (t *Tree) insertRec(pn pager.PageNum, key int64, payload []byte) (*splitResult, error) {
	buf, err := t.p.Read(pn)
	if err != nil {
		return nil, err
	}

	if isLeafPage(buf) {
		v := decodeLeaf(buf)
		nv := sortedInsertLeaf(v, key, payload)
		wbuf, err := t.p.Write(pn)
		if err != nil {
			return nil, err
		}
		if encodeLeaf(wbuf, nv) {
			return nil, nil
		}
		return t.splitLeaf(pn, nv)
	}

	v := decodeInterior(buf)
	idx := v.findChild(key)
	sr, err := t.insertRec(v.children[idx], key, payload)
	if err != nil {
		return nil, err
	}
	if sr == nil {
		return nil, nil
	}

	nv := interiorView{
		children: append(append(append([]pager.PageNum{}, v.children[:idx+1]...), sr.newRight), v.children[idx+1:]...),
		keys:     append(append(append([]int64{}, v.keys[:idx]...), sr.splitKey), v.keys[idx:]...),
	}
	wbuf, err := t.p.Write(pn)
	if err != nil {
		return nil, err
	}
	if encodeInterior(wbuf, nv) {
		return nil, nil
	}
	return t.splitInterior(pn, nv)
}

func (t *Tree) splitLeaf(pn pager.PageNum, v leafView) (*splitResult, error) {
	mid := len(v.keys) / 2
	rightPN, rbuf, err := t.p.Allocate()
	if err != nil {
		return nil, err
	}
	right := leafView{keys: v.keys[mid:], payloads: v.payloads[mid:], nextLeaf: v.nextLeaf}
	left := leafView{keys: v.keys[:mid], payloads: v.payloads[:mid], nextLeaf: rightPN}

	if !encodeLeaf(rbuf, right) {
		return nil, dberr.New(dberr.KindCorruption, "leaf split: right half still overflows page %d", rightPN)
	}
	lbuf, err := t.p.Write(pn)
	if err != nil {
		return nil, err
	}
	if !encodeLeaf(lbuf, left) {
		return nil, dberr.New(dberr.KindCorruption, "leaf split: left half still overflows page %d", pn)
	}
	return &splitResult{splitKey: right.keys[0], newRight: rightPN}, nil
}

func (t *Tree) splitInterior(pn pager.PageNum, v interiorView) (*splitResult, error) {
	mid := len(v.keys) / 2
	promoted := v.keys[mid]

	leftChildren := append([]pager.PageNum{}, v.children[:mid+1]...)
	leftKeys := append([]int64{}, v.keys[:mid]...)
	rightChildren := append([]pager.PageNum{}, v.children[mid+1:]...)
	rightKeys := append([]int64{}, v.keys[mid+1:]...)

	rightPN, rbuf, err := t.p.Allocate()
	if err != nil {
		return nil, err
	}
	if !encodeInterior(rbuf, interiorView{children: rightChildren, keys: rightKeys}) {
		return nil, dberr.New(dberr.KindCorruption, "interior split: right half still overflows page %d", rightPN)
	}
	lbuf, err := t.p.Write(pn)
	if err != nil {
		return nil, err
	}
	if !encodeInterior(lbuf, interiorView{children: leftChildren, keys: leftKeys}) {
		return nil, dberr.New(dberr.KindCorruption, "interior split: left half still overflows page %d", pn)
	}
	return &splitResult{splitKey: promoted, newRight: rightPN}, nil
}

// createNewRoot is invoked by Insert at the top level when the root
// itself split. The root page keeps its number: its current contents (the
// left half of the split) move to a freshly allocated page, and the root
// page is rewritten as an interior node over that page and right.
func (t *Tree) createNewRoot(key int64, right pager.PageNum) error {
	rootBuf, err := t.p.Read(t.root)
	if err != nil {
		return err
	}
	saved := append([]byte(nil), rootBuf...)
	leftPN, lbuf, err := t.p.Allocate()
	if err != nil {
		return err
	}
	copy(lbuf, saved)
	wbuf, err := t.p.Write(t.root)
	if err != nil {
		return err
	}
	if !initInteriorPage(wbuf, leftPN, right, key) {
		return dberr.New(dberr.KindCorruption, "new root overflow (should never happen)")
	}
	return nil
}

// Delete removes key if present. Returns whether it was present.
func (t *Tree) Delete(key int64) (bool, error) {
	removed, _, err := t.deleteRec(t.root, key, true)
	if err != nil || !removed {
		return removed, err
	}
	return true, t.compactRootIfNeeded()
}

// deleteRec returns (removed, underflowed, err). underflowed is always
// false for the root (it has no parent to rebalance with); root
// compaction is handled separately by the top-level Delete call.
func (t *Tree) deleteRec(pn pager.PageNum, key int64, isRoot bool) (bool, bool, error) {
	buf, err := t.p.Read(pn)
	if err != nil {
		return false, false, err
	}

	if isLeafPage(buf) {
		v := decodeLeaf(buf)
		idx, ok := findLeafKey(v, key)
		if !ok {
			return false, false, nil
		}
		nv := removeLeafAt(v, idx)
		wbuf, err := t.p.Write(pn)
		if err != nil {
			return false, false, err
		}
		encodeLeaf(wbuf, nv) // always fits: strictly smaller than before
		underflow := !isRoot && float64(nv.usedBytes()) < underflowRatio*float64(pager.PageSize)
		return true, underflow, nil
	}

	v := decodeInterior(buf)
	idx := v.findChild(key)
	removed, childUnderflow, err := t.deleteRec(v.children[idx], key, false)
	if err != nil || !removed {
		return removed, false, err
	}

	if childUnderflow {
		if err := t.rebalanceChild(pn, v, idx); err != nil {
			return true, false, err
		}
		// Re-read this node's (possibly changed) state to evaluate its own
		// underflow status after the rebalance.
		buf, err := t.p.Read(pn)
		if err != nil {
			return true, false, err
		}
		nv := decodeInterior(buf)
		underflow := !isRoot && float64(nv.usedBytes()) < underflowRatio*float64(pager.PageSize)
		return true, underflow, nil
	}

	underflow := !isRoot && float64(v.usedBytes()) < underflowRatio*float64(pager.PageSize)
	return true, underflow, nil
}

// rebalanceChild merges or redistributes the underfull child at index idx
// of the interior node at pn with an adjacent sibling.
func (t *Tree) rebalanceChild(pn pager.PageNum, v interiorView, idx int) error {
	siblingIdx := idx - 1
	leftOfPair := idx - 1
	if siblingIdx < 0 {
		siblingIdx = idx + 1
		leftOfPair = idx
	}

	leftPN, rightPN := v.children[leftOfPair], v.children[leftOfPair+1]
	sepIdx := leftOfPair // separator key between children[leftOfPair] and children[leftOfPair+1] is v.keys[leftOfPair]

	leftBuf, err := t.p.Read(leftPN)
	if err != nil {
		return err
	}
	rightBuf, err := t.p.Read(rightPN)
	if err != nil {
		return err
	}

	if isLeafPage(leftBuf) {
		lv := decodeLeaf(leftBuf)
		rv := decodeLeaf(rightBuf)
		merged := leafView{keys: append(append([]int64{}, lv.keys...), rv.keys...),
			payloads: append(append([][]byte{}, lv.payloads...), rv.payloads...),
			nextLeaf: rv.nextLeaf}
		if encodeLeaf(make([]byte, pager.PageSize), merged) {
			// Merge fits in one page.
			wbuf, err := t.p.Write(leftPN)
			if err != nil {
				return err
			}
			encodeLeaf(wbuf, merged)
			if err := t.p.Free(rightPN); err != nil {
				return err
			}
			return t.removeSeparator(pn, v, sepIdx)
		}
		// Redistribute: rebalance the two leaves evenly.
		mid := (len(lv.keys) + len(rv.keys)) / 2
		all := append(append([]int64{}, lv.keys...), rv.keys...)
		allVals := append(append([][]byte{}, lv.payloads...), rv.payloads...)
		newLeft := leafView{keys: all[:mid], payloads: allVals[:mid], nextLeaf: rightPN}
		newRight := leafView{keys: all[mid:], payloads: allVals[mid:], nextLeaf: rv.nextLeaf}
		lwbuf, err := t.p.Write(leftPN)
		if err != nil {
			return err
		}
		encodeLeaf(lwbuf, newLeft)
		rwbuf, err := t.p.Write(rightPN)
		if err != nil {
			return err
		}
		encodeLeaf(rwbuf, newRight)
		return t.updateSeparator(pn, v, sepIdx, newRight.keys[0])
	}

	lv := decodeInterior(leftBuf)
	rv := decodeInterior(rightBuf)
	sepKey := v.keys[sepIdx]
	mergedChildren := append(append([]pager.PageNum{}, lv.children...), rv.children...)
	mergedKeys := append(append(append([]int64{}, lv.keys...), sepKey), rv.keys...)
	merged := interiorView{children: mergedChildren, keys: mergedKeys}
	if encodeInterior(make([]byte, pager.PageSize), merged) {
		wbuf, err := t.p.Write(leftPN)
		if err != nil {
			return err
		}
		encodeInterior(wbuf, merged)
		if err := t.p.Free(rightPN); err != nil {
			return err
		}
		return t.removeSeparator(pn, v, sepIdx)
	}
	// Redistribute interior entries evenly around the separator.
	allChildren := mergedChildren
	allKeys := mergedKeys
	mid := len(allChildren) / 2
	newLeft := interiorView{children: allChildren[:mid], keys: allKeys[:mid-1]}
	newSep := allKeys[mid-1]
	newRight := interiorView{children: allChildren[mid:], keys: allKeys[mid:]}
	lwbuf, err := t.p.Write(leftPN)
	if err != nil {
		return err
	}
	encodeInterior(lwbuf, newLeft)
	rwbuf, err := t.p.Write(rightPN)
	if err != nil {
		return err
	}
	encodeInterior(rwbuf, newRight)
	return t.updateSeparator(pn, v, sepIdx, newSep)
}

func (t *Tree) removeSeparator(pn pager.PageNum, v interiorView, sepIdx int) error {
	nv := interiorView{
		children: append(append([]pager.PageNum{}, v.children[:sepIdx+1]...), v.children[sepIdx+2:]...),
		keys:     append(append([]int64{}, v.keys[:sepIdx]...), v.keys[sepIdx+1:]...),
	}
	buf, err := t.p.Write(pn)
	if err != nil {
		return err
	}
	if !encodeInterior(buf, nv) {
		return dberr.New(dberr.KindCorruption, "removing a separator should never overflow page %d", pn)
	}
	return nil
}

func (t *Tree) updateSeparator(pn pager.PageNum, v interiorView, sepIdx int, newKey int64) error {
	nv := interiorView{children: append([]pager.PageNum{}, v.children...), keys: append([]int64{}, v.keys...)}
	nv.keys[sepIdx] = newKey
	buf, err := t.p.Write(pn)
	if err != nil {
		return err
	}
	if !encodeInterior(buf, nv) {
		return dberr.New(dberr.KindCorruption, "updating a separator should never overflow page %d", pn)
	}
	return nil
}

// compactRootIfNeeded implements root compaction: if the root is an
// interior page with zero separator keys, copy its sole child's bytes
// into the root page and free the old child, keeping the root page
// number stable.
func (t *Tree) compactRootIfNeeded() error {
	buf, err := t.p.Read(t.root)
	if err != nil {
		return err
	}
	if isLeafPage(buf) {
		return nil
	}
	v := decodeInterior(buf)
	if len(v.keys) != 0 {
		return nil
	}
	sole := v.children[0]
	soleBuf, err := t.p.Read(sole)
	if err != nil {
		return err
	}
	rootBuf, err := t.p.Write(t.root)
	if err != nil {
		return err
	}
	copy(rootBuf, soleBuf)
	return t.p.Free(sole)
}

// Scan invokes fn for every (key, payload) pair in ascending key order.
// Scanning stops early if fn returns false.
func (t *Tree) Scan(fn func(key int64, payload []byte) bool) error {
	return t.ScanRange(nil, nil, fn)
}

// ScanRange invokes fn for every pair with min <= key <= max (open bounds
// when nil), in ascending order.
func (t *Tree) ScanRange(min, max *int64, fn func(key int64, payload []byte) bool) error {
	pn, err := t.firstLeafFrom(min)
	if err != nil {
		return err
	}
	for pn != 0 {
		buf, err := t.p.Read(pn)
		if err != nil {
			return err
		}
		v := decodeLeaf(buf)
		for i, k := range v.keys {
			if min != nil && k < *min {
				continue
			}
			if max != nil && k > *max {
				return nil
			}
			if !fn(k, v.payloads[i]) {
				return nil
			}
		}
		pn = v.nextLeaf
	}
	return nil
}

func (t *Tree) firstLeafFrom(min *int64) (pager.PageNum, error) {
	pn := t.root
	for {
		buf, err := t.p.Read(pn)
		if err != nil {
			return 0, err
		}
		if isLeafPage(buf) {
			return pn, nil
		}
		v := decodeInterior(buf)
		if min == nil {
			pn = v.children[0]
		} else {
			pn = v.children[v.findChild(*min)]
		}
	}
}

// ReclaimTree frees every page reachable from root via a DFS, detecting
// cycles/duplicate references and failing loudly as a corruption signal
// rather than looping forever or double-freeing a page.
func ReclaimTree(p *pager.Pager, root pager.PageNum) error {
	seen := make(map[pager.PageNum]struct{})
	var walk func(pn pager.PageNum) error
	walk = func(pn pager.PageNum) error {
		if _, ok := seen[pn]; ok {
			return dberr.New(dberr.KindCorruption, "cycle or duplicate reference to page %d during reclaim", pn)
		}
		seen[pn] = struct{}{}
		buf, err := p.Read(pn)
		if err != nil {
			return err
		}
		if !isLeafPage(buf) {
			v := decodeInterior(buf)
			for _, c := range v.children {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return err
	}
	for pn := range seen {
		if err := p.Free(pn); err != nil {
			return err
		}
	}
	return nil
}
