package maint

import (
	"testing"
	"time"

	"github.com/chriswood/pagedb/internal/catalog"
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

func TestReorganizeAllCompactsRegisteredTables(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tbl, err := cat.CreateTable("people", []catalog.ColumnDef{{Name: "id", Type: "int"}})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	fh, err := pf.OpenFile(cat.DataPath(tbl))
	if err != nil {
		t.Fatalf("pf.OpenFile: %v", err)
	}
	e := recordengine.Open(fh)
	desc := recordengine.Descriptor{attribute.Int}
	var rids []attribute.RID
	for i := 0; i < 10; i++ {
		rid, err := e.InsertRecord(desc, []attribute.Value{attribute.IntValue(int32(i))})
		if err != nil {
			t.Fatalf("InsertRecord: %v", err)
		}
		rids = append(rids, rid)
	}
	for i, rid := range rids {
		if i%2 == 0 {
			if err := e.DeleteRecord(rid); err != nil {
				t.Fatalf("DeleteRecord: %v", err)
			}
		}
	}
	if err := fh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := NewScheduler(cat)
	s.reorganizeAll()

	if _, ok := s.LastRun("people"); !ok {
		t.Fatal("expected people to be marked reorganized")
	}

	fh2, err := pf.OpenFile(cat.DataPath(tbl))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer fh2.Close()
	e2 := recordengine.Open(fh2)
	for i, rid := range rids {
		if i%2 == 0 {
			continue
		}
		if _, err := e2.ReadTuple(rid, desc); err != nil {
			t.Fatalf("surviving record %d unreadable after reorganize: %v", i, err)
		}
	}
}

func TestAddReorganizeJobAcceptsCronExpr(t *testing.T) {
	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := NewScheduler(cat)
	if err := s.AddReorganizeJob("*/5 * * * * *"); err != nil {
		t.Fatalf("AddReorganizeJob: %v", err)
	}
	s.Start()
	defer s.Stop()
	time.Sleep(10 * time.Millisecond)
}
