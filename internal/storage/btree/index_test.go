package btree

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	name := filepath.Join(t.TempDir(), "idx.ix")
	if err := CreateFile(name, attribute.Int); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ix, err := OpenFile(name, attribute.Int)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestInsertAndScanInOrder(t *testing.T) {
	ix := newTestIndex(t)
	order := []int32{5, 1, 9, 3, 7, 2, 8, 4, 6, 0}
	for _, k := range order {
		rid := attribute.RID{PageNum: uint32(k) + 1, SlotNum: 0}
		if err := ix.InsertEntry(attribute.IntValue(k), rid); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	it, err := ix.OpenScan(nil, true, nil, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	var got []int32
	for {
		_, key, err := it.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, key.IntVal)
	}
	if len(got) != len(order) {
		t.Fatalf("expected %d entries, got %d", len(order), len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("scan not in ascending order: %v", got)
		}
	}
}

func TestRangeScanBounds(t *testing.T) {
	ix := newTestIndex(t)
	for k := int32(0); k < 10; k++ {
		rid := attribute.RID{PageNum: uint32(k) + 1, SlotNum: 0}
		if err := ix.InsertEntry(attribute.IntValue(k), rid); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	low := attribute.IntValue(3)
	high := attribute.IntValue(7)
	it, err := ix.OpenScan(&low, false, &high, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	var got []int32
	for {
		_, key, err := it.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, key.IntVal)
	}
	want := []int32{4, 5, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSplitGrowsTreeAndPreservesOrder(t *testing.T) {
	ix := newTestIndex(t)
	const n = 400
	for k := int32(0); k < n; k++ {
		rid := attribute.RID{PageNum: uint32(k%1000 + 1), SlotNum: uint32(k % 16)}
		if err := ix.InsertEntry(attribute.IntValue(k), rid); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	it, err := ix.OpenScan(nil, true, nil, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	count := 0
	var prev int32 = -1
	for {
		_, key, err := it.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if key.IntVal <= prev {
			t.Fatalf("out of order at count %d: prev=%d cur=%d", count, prev, key.IntVal)
		}
		prev = key.IntVal
		count++
	}
	if count != n {
		t.Fatalf("expected %d entries after splitting, got %d", n, count)
	}
}

func TestScanEmptyIndexIsEOF(t *testing.T) {
	ix := newTestIndex(t)
	it, err := ix.OpenScan(nil, true, nil, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	if _, _, err := it.Next(); err != dberr.IndexEOF {
		t.Fatalf("expected IndexEOF on an empty index, got %v", err)
	}
}

func TestScanExclusiveEqualBoundsYieldsNothing(t *testing.T) {
	ix := newTestIndex(t)
	for k := int32(0); k < 10; k++ {
		if err := ix.InsertEntry(attribute.IntValue(k), attribute.RID{PageNum: uint32(k) + 1, SlotNum: 0}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}
	bound := attribute.IntValue(5)
	it, err := ix.OpenScan(&bound, false, &bound, false)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	if _, _, err := it.Next(); err != dberr.IndexEOF {
		t.Fatalf("expected an empty open interval, got %v", err)
	}
}

func TestDeleteEntryRemovesFromScan(t *testing.T) {
	ix := newTestIndex(t)
	rids := map[int32]attribute.RID{}
	for k := int32(0); k < 20; k++ {
		rid := attribute.RID{PageNum: uint32(k) + 1, SlotNum: 0}
		rids[k] = rid
		if err := ix.InsertEntry(attribute.IntValue(k), rid); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}
	if err := ix.DeleteEntry(attribute.IntValue(7), rids[7]); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}

	it, err := ix.OpenScan(nil, true, nil, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	for {
		_, key, err := it.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if key.IntVal == 7 {
			t.Fatal("deleted key 7 still appears in scan")
		}
	}
}

func TestDeleteEntryNotFound(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.InsertEntry(attribute.IntValue(1), attribute.RID{PageNum: 1, SlotNum: 0}); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	err := ix.DeleteEntry(attribute.IntValue(99), attribute.RID{PageNum: 1, SlotNum: 0})
	if !dberr.Is(err, dberr.BTreeIndexLeafEntryNotFound) {
		t.Fatalf("expected BTreeIndexLeafEntryNotFound, got %v", err)
	}
}

func TestRootCacheReusedAcrossOpens(t *testing.T) {
	name := filepath.Join(t.TempDir(), "cached.ix")
	if err := CreateFile(name, attribute.Int); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ix1, err := OpenFile(name, attribute.Int)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	for k := int32(0); k < 200; k++ {
		if err := ix1.InsertEntry(attribute.IntValue(k), attribute.RID{PageNum: uint32(k) + 1, SlotNum: 0}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}
	root1 := ix1.root
	if err := ix1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := OpenFile(name, attribute.Int)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()
	if ix2.root != root1 {
		t.Fatalf("expected cached root %d to carry over, got %d", root1, ix2.root)
	}
}

// TestIntegerIndexShuffleRangeScanAndDelete inserts a big run of keys
// out of order, confirms a bounded range scan sees exactly the expected
// prefix count, drains and deletes every entry in the tree, then
// inserts a second disjoint range and confirms a bounded scan over it
// sees only those keys: the emptied-out leaves and the freespace lists
// they were spliced back into must not leak stale entries into a later
// scan.
func TestIntegerIndexShuffleRangeScanAndDelete(t *testing.T) {
	ix := newTestIndex(t)
	const n = 3000
	rnd := rand.New(rand.NewSource(2))

	order := rnd.Perm(n)
	for _, k := range order {
		rid := attribute.RID{PageNum: uint32(k) + 1, SlotNum: 0}
		if err := ix.InsertEntry(attribute.IntValue(int32(k)), rid); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	cut := int32(2000)
	high := attribute.IntValue(cut)
	prefix, err := ix.OpenScan(nil, true, &high, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	prefixCount := 0
	for {
		_, _, err := prefix.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		prefixCount++
	}
	if want := int(cut) + 1; prefixCount != want {
		t.Fatalf("expected %d entries in [None, %d], got %d", want, cut, prefixCount)
	}

	full, err := ix.OpenScan(nil, true, nil, true)
	if err != nil {
		t.Fatalf("OpenScan full: %v", err)
	}
	var toDelete []struct {
		key attribute.Value
		rid attribute.RID
	}
	for {
		rid, key, err := full.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next full: %v", err)
		}
		toDelete = append(toDelete, struct {
			key attribute.Value
			rid attribute.RID
		}{key, rid})
	}
	if len(toDelete) != n {
		t.Fatalf("expected %d entries before draining, got %d", n, len(toDelete))
	}
	for _, d := range toDelete {
		if err := ix.DeleteEntry(d.key, d.rid); err != nil {
			t.Fatalf("DeleteEntry(%d): %v", d.key.IntVal, err)
		}
	}

	const second = 2000
	for _, off := range rnd.Perm(second) {
		k := n + off
		rid := attribute.RID{PageNum: uint32(n + off + 1), SlotNum: 0}
		if err := ix.InsertEntry(attribute.IntValue(int32(k)), rid); err != nil {
			t.Fatalf("InsertEntry(second, %d): %v", k, err)
		}
	}

	secondHigh := attribute.IntValue(int32(n) + 500)
	it2, err := ix.OpenScan(nil, true, &secondHigh, true)
	if err != nil {
		t.Fatalf("OpenScan second: %v", err)
	}
	count := 0
	for {
		_, key, err := it2.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next second: %v", err)
		}
		if key.IntVal < n {
			t.Fatalf("a deleted first-range key (%d) reappeared in the second scan", key.IntVal)
		}
		count++
	}
	if want := 501; count != want {
		t.Fatalf("expected %d entries from the second range only, got %d", want, count)
	}
}

// TestVarCharIndexDuplicateKeys inserts two disjoint populations of
// duplicate VarChar keys and checks an equality scan on each sees
// exactly its own population, none of the other's.
func TestVarCharIndexDuplicateKeys(t *testing.T) {
	name := filepath.Join(t.TempDir(), "varchar.ix")
	if err := CreateFile(name, attribute.VarChar); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ix, err := OpenFile(name, attribute.VarChar)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() { ix.Close() })

	// Long enough that only a handful of entries fit per page, so each
	// duplicate run spans many leaves.
	keyA := attribute.VarCharString(strings.Repeat("X", 1234))
	keyB := attribute.VarCharString(strings.Repeat("X", 1500))

	const each = 300
	for i := 0; i < each; i++ {
		if err := ix.InsertEntry(keyA, attribute.RID{PageNum: uint32(i) + 1, SlotNum: 0}); err != nil {
			t.Fatalf("InsertEntry A %d: %v", i, err)
		}
		if err := ix.InsertEntry(keyB, attribute.RID{PageNum: uint32(i) + 1, SlotNum: 1}); err != nil {
			t.Fatalf("InsertEntry B %d: %v", i, err)
		}
	}

	countEqual := func(key attribute.Value) int {
		it, err := ix.OpenScan(&key, true, &key, true)
		if err != nil {
			t.Fatalf("OpenScan: %v", err)
		}
		n := 0
		for {
			_, gotKey, err := it.Next()
			if err == dberr.IndexEOF {
				break
			}
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if attribute.Compare(gotKey, key) != 0 {
				t.Fatalf("equality scan returned a mismatched key")
			}
			n++
		}
		return n
	}

	if n := countEqual(keyA); n != each {
		t.Fatalf("expected %d entries for the 1234-byte key, got %d", each, n)
	}
	if n := countEqual(keyB); n != each {
		t.Fatalf("expected %d entries for the 1500-byte key, got %d", each, n)
	}
}

func TestKeyLargerThanHalfPageRejected(t *testing.T) {
	name := filepath.Join(t.TempDir(), "huge.ix")
	if err := CreateFile(name, attribute.VarChar); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ix, err := OpenFile(name, attribute.VarChar)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() { ix.Close() })

	huge := attribute.VarCharString(strings.Repeat("k", attribute.MaxKeySize))
	err = ix.InsertEntry(huge, attribute.RID{PageNum: 1, SlotNum: 0})
	if !dberr.Is(err, dberr.BTreeKeyTooLarge) {
		t.Fatalf("expected BTreeKeyTooLarge, got %v", err)
	}
}

// TestDuplicateRunDeleteAcrossLeaves pushes one duplicate key through
// enough inserts that the run occupies several leaves, then deletes an
// entry whose RID landed on the first leaf of the run. The delete must
// walk past the leaves the descent would otherwise skip.
func TestDuplicateRunDeleteAcrossLeaves(t *testing.T) {
	name := filepath.Join(t.TempDir(), "dups.ix")
	if err := CreateFile(name, attribute.VarChar); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ix, err := OpenFile(name, attribute.VarChar)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() { ix.Close() })

	key := attribute.VarCharString(strings.Repeat("d", 1000))
	const n = 50
	for i := 0; i < n; i++ {
		if err := ix.InsertEntry(key, attribute.RID{PageNum: uint32(i) + 1, SlotNum: 0}); err != nil {
			t.Fatalf("InsertEntry %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		if err := ix.DeleteEntry(key, attribute.RID{PageNum: uint32(i) + 1, SlotNum: 0}); err != nil {
			t.Fatalf("DeleteEntry %d: %v", i, err)
		}
	}
	it, err := ix.OpenScan(nil, true, nil, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	if _, _, err := it.Next(); err != dberr.IndexEOF {
		t.Fatalf("expected an empty tree after draining the run, got %v", err)
	}
}

// TestCascadingSplitThreeLevels inserts enough ascending keys that the
// root splits more than once, growing the tree to height three, and
// verifies no entry went missing along any cascade.
func TestCascadingSplitThreeLevels(t *testing.T) {
	ix := newTestIndex(t)
	const n = 40000
	for k := int32(0); k < n; k++ {
		rid := attribute.RID{PageNum: uint32(k) + 1, SlotNum: 0}
		if err := ix.InsertEntry(attribute.IntValue(k), rid); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	it, err := ix.OpenScan(nil, true, nil, true)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	count := 0
	var prev int32 = -1
	for {
		rid, key, err := it.Next()
		if err == dberr.IndexEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if key.IntVal != prev+1 {
			t.Fatalf("missing key between %d and %d", prev, key.IntVal)
		}
		if rid.PageNum != uint32(key.IntVal)+1 {
			t.Fatalf("key %d carries wrong rid %v", key.IntVal, rid)
		}
		prev = key.IntVal
		count++
	}
	if count != n {
		t.Fatalf("expected %d entries after repeated root splits, got %d", n, count)
	}
}
