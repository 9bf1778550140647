package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/pager"
)

func newTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btree.db")
	p, err := pager.Open(path, pager.Config{})
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestInsertLookupRoundTrip(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := int64(0); i < 50; i++ {
		if err := tr.Insert(i, []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int64(0); i < 50; i++ {
		got, ok, err := tr.Lookup(i)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Lookup(%d): not found", i)
		}
		want := fmt.Sprintf("v%d", i)
		if string(got) != want {
			t.Fatalf("Lookup(%d) = %q, want %q", i, got, want)
		}
	}
	if _, ok, err := tr.Lookup(999); err != nil || ok {
		t.Fatalf("Lookup(999) = (_, %v, %v), want not found", ok, err)
	}
}

func TestInsertTriggersSplit(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rootBefore := tr.Root()
	// Enough entries with sizable payloads to force at least one leaf split.
	for i := int64(0); i < 400; i++ {
		payload := make([]byte, 32)
		for j := range payload {
			payload[j] = byte(i)
		}
		if err := tr.Insert(i, payload); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if tr.Root() == rootBefore {
		t.Log("root page number unchanged after many inserts (root splits keep the root page)")
	}
	for i := int64(0); i < 400; i++ {
		if _, ok, err := tr.Lookup(i); err != nil || !ok {
			t.Fatalf("Lookup(%d) after split = (_, %v, %v)", i, ok, err)
		}
	}
}

func TestInsertReplacesExistingKey(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.Insert(1, []byte("first")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.Insert(1, []byte("second")); err != nil {
		t.Fatalf("Insert (replace): %v", err)
	}
	got, ok, err := tr.Lookup(1)
	if err != nil || !ok {
		t.Fatalf("Lookup(1) = (_, %v, %v)", ok, err)
	}
	if string(got) != "second" {
		t.Fatalf("Lookup(1) = %q, want %q", got, "second")
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := int64(0); i < 10; i++ {
		if err := tr.Insert(i, []byte{byte(i)}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	removed, err := tr.Delete(5)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Fatal("Delete(5) reported not found")
	}
	if _, ok, _ := tr.Lookup(5); ok {
		t.Fatal("key 5 still present after Delete")
	}
	removed, err = tr.Delete(5)
	if err != nil {
		t.Fatalf("Delete (second time): %v", err)
	}
	if removed {
		t.Fatal("Delete of an already-removed key reported removed=true")
	}
	for i := int64(0); i < 10; i++ {
		if i == 5 {
			continue
		}
		if _, ok, err := tr.Lookup(i); err != nil || !ok {
			t.Fatalf("Lookup(%d) after deleting 5 = (_, %v, %v)", i, ok, err)
		}
	}
}

func TestDeleteRebalancesUnderfullNodes(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 500
	for i := int64(0); i < n; i++ {
		payload := make([]byte, 32)
		if err := tr.Insert(i, payload); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	// Delete most of the tree's contents, which would leave pages far
	// below underflowRatio if rebalance never ran.
	for i := int64(0); i < n-5; i++ {
		if _, err := tr.Delete(i); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}
	for i := int64(n - 5); i < n; i++ {
		if _, ok, err := tr.Lookup(i); err != nil || !ok {
			t.Fatalf("Lookup(%d) after mass delete = (_, %v, %v)", i, ok, err)
		}
	}
	var seen []int64
	if err := tr.Scan(func(key int64, _ []byte) bool {
		seen = append(seen, key)
		return true
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(seen) != 5 {
		t.Fatalf("Scan after mass delete returned %d keys, want 5", len(seen))
	}
}

func TestScanRangeOrderedAndBounded(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := int64(0); i < 100; i++ {
		if err := tr.Insert(i, []byte{byte(i)}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	lo, hi := int64(10), int64(20)
	var got []int64
	if err := tr.ScanRange(&lo, &hi, func(key int64, _ []byte) bool {
		got = append(got, key)
		return true
	}); err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	if len(got) != 11 {
		t.Fatalf("ScanRange(10,20) returned %d keys, want 11", len(got))
	}
	for i, k := range got {
		if k != lo+int64(i) {
			t.Fatalf("ScanRange not ordered/contiguous at %d: got %d, want %d", i, k, lo+int64(i))
		}
	}
}

func TestScanRangeEarlyStop(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := int64(0); i < 20; i++ {
		tr.Insert(i, []byte{byte(i)})
	}
	var count int
	tr.Scan(func(key int64, _ []byte) bool {
		count++
		return count < 5
	})
	if count != 5 {
		t.Fatalf("Scan did not stop early: count = %d, want 5", count)
	}
}

func TestInsertRejectsOversizedPayload(t *testing.T) {
	p := newTestPager(t)
	tr, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	huge := make([]byte, pager.PageSize)
	if err := tr.Insert(1, huge); err == nil {
		t.Fatal("expected an error inserting a payload that cannot fit on any page")
	}
}
