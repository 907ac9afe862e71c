package pf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chriswood/pagedb/internal/storage/dberr"
)

func tempFileName(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func TestCreateFileRejectsExisting(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := CreateFile(name); !dberr.Is(err, dberr.FileAlreadyExists) {
		t.Fatalf("expected FileAlreadyExists, got %v", err)
	}
}

func TestOpenFileMissing(t *testing.T) {
	if _, err := OpenFile(tempFileName(t)); !dberr.Is(err, dberr.FileNotFound) {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}

func TestAppendAndReadPageRoundTrip(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer fh.Close()

	buf := make([]byte, PageSize)
	buf[0] = 0xAB
	pageNum, err := fh.AppendPage(buf)
	if err != nil {
		t.Fatalf("AppendPage: %v", err)
	}
	if pageNum != 1 {
		t.Fatalf("expected first payload page to be 1, got %d", pageNum)
	}
	if fh.NumPages() != 1 {
		t.Fatalf("expected NumPages 1, got %d", fh.NumPages())
	}

	got := make([]byte, PageSize)
	if err := fh.ReadPage(pageNum, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if got[0] != 0xAB {
		t.Fatalf("round-tripped byte mismatch: got %#x", got[0])
	}
}

func TestReadPageOutOfRange(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer fh.Close()

	buf := make([]byte, PageSize)
	if err := fh.ReadPage(5, buf); !dberr.Is(err, dberr.PageNumInvalid) {
		t.Fatalf("expected PageNumInvalid, got %v", err)
	}
}

func TestCloseTwiceFails(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := fh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fh.Close(); !dberr.Is(err, dberr.HandleNotInitialized) {
		t.Fatalf("expected HandleNotInitialized, got %v", err)
	}
}

func TestReopenClosedHandle(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := fh.Open(name); !dberr.Is(err, dberr.HandleAlreadyInitialized) {
		t.Fatalf("expected HandleAlreadyInitialized reopening a live handle, got %v", err)
	}
	if err := fh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fh.Open(name); err != nil {
		t.Fatalf("reopening a closed handle should succeed, got %v", err)
	}
	defer fh.Close()
	if fh.NumPages() != 0 {
		t.Fatalf("expected a fresh header after reopen, got %d pages", fh.NumPages())
	}
}

func TestDestroyFileRefusesWhileOpen(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := DestroyFile(name); !dberr.Is(err, dberr.FileCouldNotDelete) {
		t.Fatalf("expected FileCouldNotDelete, got %v", err)
	}
	if err := fh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := DestroyFile(name); err != nil {
		t.Fatalf("DestroyFile after close: %v", err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
}

func TestRootPointerRoundTrip(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer fh.Close()

	if err := fh.SetRootPointer(42); err != nil {
		t.Fatalf("SetRootPointer: %v", err)
	}
	got, err := fh.RootPointer()
	if err != nil {
		t.Fatalf("RootPointer: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected root pointer 42, got %d", got)
	}
}

func TestHeaderSurvivesReopen(t *testing.T) {
	name := tempFileName(t)
	if err := CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	buf := make([]byte, PageSize)
	if _, err := fh.AppendPage(buf); err != nil {
		t.Fatalf("AppendPage: %v", err)
	}
	if err := fh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenFile(name)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.NumPages() != 1 {
		t.Fatalf("expected NumPages to survive reopen as 1, got %d", reopened.NumPages())
	}
}
