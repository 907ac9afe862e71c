package recordengine

import (
	"bytes"
	"testing"

	"github.com/chriswood/pagedb/internal/storage/pf"
)

func TestInsertIntoPageAndRead(t *testing.T) {
	buf := make([]byte, pf.PageSize)
	InitPage(buf, 1)

	record := []byte("hello")
	slot, ok := InsertIntoPage(buf, CommonFooterSize, record)
	if !ok {
		t.Fatal("expected InsertIntoPage to succeed")
	}
	if slot != 0 {
		t.Fatalf("expected first slot 0, got %d", slot)
	}

	s := ReadSlot(buf, CommonFooterSize, 0)
	got := buf[s.PageOffset : int(s.PageOffset)+int(s.Size)]
	if !bytes.Equal(got, record) {
		t.Fatalf("got %q, want %q", got, record)
	}
}

func TestInsertIntoPageFullReturnsFalse(t *testing.T) {
	buf := make([]byte, pf.PageSize)
	InitPage(buf, 1)

	big := make([]byte, pf.PageSize)
	if _, ok := InsertIntoPage(buf, CommonFooterSize, big); ok {
		t.Fatal("expected InsertIntoPage to report no room")
	}
	footer := ReadFooter(buf)
	if footer.NumSlots != 0 {
		t.Fatalf("a failed insert must not mutate the page, got NumSlots=%d", footer.NumSlots)
	}
}

func TestUpdateInPlaceExtendsLastRecord(t *testing.T) {
	buf := make([]byte, pf.PageSize)
	InitPage(buf, 1)
	InsertIntoPage(buf, CommonFooterSize, []byte("abc"))

	if !UpdateInPlace(buf, CommonFooterSize, 0, []byte("abcdef")) {
		t.Fatal("expected in-place extension of the last record to succeed")
	}
	s := ReadSlot(buf, CommonFooterSize, 0)
	if s.Size != 6 {
		t.Fatalf("expected size 6 after extend, got %d", s.Size)
	}
}

func TestUpdateInPlaceShrinkChargesGap(t *testing.T) {
	buf := make([]byte, pf.PageSize)
	InitPage(buf, 1)
	InsertIntoPage(buf, CommonFooterSize, []byte("first-rec"))
	InsertIntoPage(buf, CommonFooterSize, []byte("second"))

	if !UpdateInPlace(buf, CommonFooterSize, 0, []byte("f")) {
		t.Fatal("expected shrink-in-place of a non-last record to succeed")
	}
	footer := ReadFooter(buf)
	if footer.GapSize == 0 {
		t.Fatal("expected shrinking a non-last record to charge gap_size")
	}
}

func TestUpdateInPlaceGrowIntoGap(t *testing.T) {
	buf := make([]byte, pf.PageSize)
	InitPage(buf, 1)
	InsertIntoPage(buf, CommonFooterSize, []byte("aaaaaaaaaa")) // slot 0, 10 bytes
	InsertIntoPage(buf, CommonFooterSize, []byte("bb"))         // slot 1, 2 bytes

	if !UpdateInPlace(buf, CommonFooterSize, 0, []byte("a")) {
		t.Fatal("shrink slot 0 first")
	}
	if !UpdateInPlace(buf, CommonFooterSize, 0, []byte("aaaaaaaaa")) {
		t.Fatal("expected growing back into the trailing gap to succeed")
	}
	s := ReadSlot(buf, CommonFooterSize, 0)
	if s.Size != 9 {
		t.Fatalf("expected size 9, got %d", s.Size)
	}
}

func TestDeleteSlotTombstonesAndShrinksTrailing(t *testing.T) {
	buf := make([]byte, pf.PageSize)
	InitPage(buf, 1)
	InsertIntoPage(buf, CommonFooterSize, []byte("one"))
	InsertIntoPage(buf, CommonFooterSize, []byte("two"))

	before := ReadFooter(buf)
	DeleteSlot(buf, CommonFooterSize, 1)
	after := ReadFooter(buf)

	if after.NumSlots != 1 {
		t.Fatalf("deleting the trailing slot should shrink NumSlots, got %d", after.NumSlots)
	}
	if after.FreeSpaceOffset >= before.FreeSpaceOffset {
		t.Fatal("expected free_space_offset to shrink after deleting the last record")
	}
}

func TestCompactResetsGapAndPreservesSlotNumbers(t *testing.T) {
	buf := make([]byte, pf.PageSize)
	InitPage(buf, 1)
	InsertIntoPage(buf, CommonFooterSize, []byte("one"))
	InsertIntoPage(buf, CommonFooterSize, []byte("two"))
	InsertIntoPage(buf, CommonFooterSize, []byte("three"))
	DeleteSlot(buf, CommonFooterSize, 1) // middle slot -> charges gap_size, doesn't shrink

	Compact(buf, CommonFooterSize)

	footer := ReadFooter(buf)
	if footer.GapSize != 0 {
		t.Fatalf("expected gap_size 0 after compact, got %d", footer.GapSize)
	}
	s0 := ReadSlot(buf, CommonFooterSize, 0)
	if string(buf[s0.PageOffset:int(s0.PageOffset)+int(s0.Size)]) != "one" {
		t.Fatal("slot 0 content should survive compaction")
	}
	s2 := ReadSlot(buf, CommonFooterSize, 2)
	if string(buf[s2.PageOffset:int(s2.PageOffset)+int(s2.Size)]) != "three" {
		t.Fatal("slot 2 content should survive compaction under its original slot number")
	}
}
