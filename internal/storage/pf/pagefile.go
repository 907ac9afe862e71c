// Package pf implements the paged file manager: fixed-size page
// I/O over a single on-disk file, with page 0 reserved for a structural
// header that tracks page count and the freespace-list directory used
// by the record engine.
//
// A FileHandle is not goroutine-safe; one logical task touches storage
// at a time, and concurrent callers serialize their own access.
package pf

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/chriswood/pagedb/internal/storage/dberr"
)

// PageSize is the fixed size, in bytes, of every page in a paged file.
// Page 0 carries the structural header; pages 1..N carry payload.
const PageSize = 4096

// Version is the on-disk header version this build writes and expects.
const Version = 2

// NumFreespaceLists is the fixed number of freespace-class buckets in the
// file header, index 0 being the sentinel "full page" list.
const NumFreespaceLists = 11

// FreespaceList describes one freespace bucket: pages whose free-byte
// count is >= Cutoff (and < the next list's cutoff) live on this list.
type FreespaceList struct {
	Cutoff   uint16
	ListHead uint32
}

// headerSize is the byte size of the structural prefix of page 0:
// header_size, page_size, version, num_pages, num_freespace_lists, then
// NumFreespaceLists * (cutoff u16 + list_head u32).
const headerSize = 4 + 4 + 4 + 4 + 4 + NumFreespaceLists*(2+4)

// Header mirrors the on-disk file header on page 0. It is kept resident in
// memory for the lifetime of an open handle and flushed to page 0 on
// Close (and opportunistically whenever the freespace directory moves a
// page, so in-process readers always see a consistent view).
type Header struct {
	HeaderSize        uint32
	PageSize          uint32
	Version           uint32
	NumPages          uint32
	NumFreespaceLists uint32
	FreespaceLists    [NumFreespaceLists]FreespaceList
}

func newHeader() *Header {
	h := &Header{
		HeaderSize:        headerSize,
		PageSize:          PageSize,
		Version:           Version,
		NumPages:          0,
		NumFreespaceLists: NumFreespaceLists,
	}
	// Cutoffs spaced linearly across the page, sentinel list 0 reserved
	// for pages with almost no free space.
	step := PageSize / NumFreespaceLists
	for i := range h.FreespaceLists {
		if i == 0 {
			h.FreespaceLists[i] = FreespaceList{Cutoff: 0, ListHead: 0}
			continue
		}
		h.FreespaceLists[i] = FreespaceList{Cutoff: uint16(i * step), ListHead: 0}
	}
	return h
}

func marshalHeader(h *Header, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[4:8], h.PageSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.NumPages)
	binary.LittleEndian.PutUint32(buf[16:20], h.NumFreespaceLists)
	off := 20
	for _, fl := range h.FreespaceLists {
		binary.LittleEndian.PutUint16(buf[off:off+2], fl.Cutoff)
		binary.LittleEndian.PutUint32(buf[off+2:off+6], fl.ListHead)
		off += 6
	}
}

func unmarshalHeader(buf []byte) (*Header, error) {
	h := &Header{}
	h.HeaderSize = binary.LittleEndian.Uint32(buf[0:4])
	h.PageSize = binary.LittleEndian.Uint32(buf[4:8])
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	h.NumPages = binary.LittleEndian.Uint32(buf[12:16])
	h.NumFreespaceLists = binary.LittleEndian.Uint32(buf[16:20])
	if h.HeaderSize != headerSize {
		return nil, dberr.New(dberr.HeaderSizeCorrupt, "pf.OpenFile")
	}
	if h.Version != Version {
		return nil, dberr.New(dberr.HeaderVersionMismatch, "pf.OpenFile")
	}
	if h.PageSize != PageSize {
		return nil, dberr.New(dberr.HeaderPageSizeMismatch, "pf.OpenFile")
	}
	if h.NumFreespaceLists != NumFreespaceLists {
		return nil, dberr.New(dberr.HeaderFreespaceListsMismatch, "pf.OpenFile")
	}
	off := 20
	for i := range h.FreespaceLists {
		h.FreespaceLists[i].Cutoff = binary.LittleEndian.Uint16(buf[off : off+2])
		h.FreespaceLists[i].ListHead = binary.LittleEndian.Uint32(buf[off+2 : off+6])
		off += 6
	}
	return h, nil
}

// registry tracks open handles per file name so DestroyFile can refuse to
// remove a file that is still referenced.
var (
	registryMu sync.Mutex
	registry   = map[string]int{}
)

func registryAcquire(name string) {
	registryMu.Lock()
	registry[name]++
	registryMu.Unlock()
}

func registryRelease(name string) {
	registryMu.Lock()
	if registry[name] > 0 {
		registry[name]--
		if registry[name] == 0 {
			delete(registry, name)
		}
	}
	registryMu.Unlock()
}

func registryCount(name string) int {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[name]
}

// CreateFile creates a fresh paged file at name with a zero-page-count
// header. Fails with FileAlreadyExists if a file already sits at name.
func CreateFile(name string) error {
	if _, err := os.Stat(name); err == nil {
		return dberr.New(dberr.FileAlreadyExists, "pf.CreateFile").WithPath(name)
	} else if !os.IsNotExist(err) {
		return dberr.Wrap(dberr.FileSeekFailed, "pf.CreateFile", err).WithPath(name)
	}

	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return dberr.Wrap(dberr.FileSeekFailed, "pf.CreateFile", err).WithPath(name)
	}
	defer f.Close()

	h := newHeader()
	buf := make([]byte, PageSize)
	marshalHeader(h, buf)
	if _, err := f.WriteAt(buf, 0); err != nil {
		os.Remove(name)
		return dberr.Wrap(dberr.FileSeekFailed, "pf.CreateFile", err).WithPath(name)
	}
	return nil
}

// DestroyFile removes a paged file. Fails with FileCouldNotDelete if any
// live handle still references it.
func DestroyFile(name string) error {
	if registryCount(name) > 0 {
		return dberr.New(dberr.FileCouldNotDelete, "pf.DestroyFile").WithPath(name)
	}
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return dberr.New(dberr.FileNotFound, "pf.DestroyFile").WithPath(name)
	}
	if err := os.Remove(name); err != nil {
		return dberr.Wrap(dberr.FileCouldNotDelete, "pf.DestroyFile", err).WithPath(name)
	}
	return nil
}

// FileHandle is a single-use handle onto an open paged file. Handles are
// not safe for concurrent use: callers externally serialize access.
type FileHandle struct {
	name   string
	file   *os.File
	header *Header
	open   bool
}

// OpenFile opens name and returns a fresh handle over it. Reopening the
// same name from a distinct handle value is allowed; there is no
// filename-level exclusivity beyond the DestroyFile refcount.
func OpenFile(name string) (*FileHandle, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberr.New(dberr.FileNotFound, "pf.OpenFile").WithPath(name)
		}
		return nil, dberr.Wrap(dberr.FileSeekFailed, "pf.OpenFile", err).WithPath(name)
	}

	buf := make([]byte, PageSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.FileCorrupt, "pf.OpenFile", err).WithPath(name)
	}
	h, err := unmarshalHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	registryAcquire(name)
	return &FileHandle{name: name, file: f, header: h, open: true}, nil
}

// Open re-initializes a previously closed handle against name. Handles
// are single-use while open: opening a handle that is already open
// reports HandleAlreadyInitialized.
func (h *FileHandle) Open(name string) error {
	if h.open {
		return dberr.New(dberr.HandleAlreadyInitialized, "pf.Open").WithPath(h.name)
	}
	fresh, err := OpenFile(name)
	if err != nil {
		return err
	}
	*h = *fresh
	return nil
}

// Close flushes the (possibly dirty) header to page 0 and releases the
// OS file descriptor. Double-close is HandleNotInitialized.
func (h *FileHandle) Close() error {
	if !h.open {
		return dberr.New(dberr.HandleNotInitialized, "pf.Close").WithPath(h.name)
	}
	if err := h.flushHeader(); err != nil {
		return err
	}
	if err := h.file.Close(); err != nil {
		return dberr.Wrap(dberr.FileSeekFailed, "pf.Close", err).WithPath(h.name)
	}
	registryRelease(h.name)
	h.open = false
	return nil
}

func (h *FileHandle) requireOpen(op string) error {
	if !h.open {
		return dberr.New(dberr.HandleNotInitialized, op).WithPath(h.name)
	}
	return nil
}

// flushHeader writes the in-memory header back to page 0. It is called
// on Close and after every freespace-directory mutation so that readers
// elsewhere in the same process see a page 0 consistent with the live
// header. Only the header prefix is written, so the root pointer in the
// tail of page 0 is left untouched.
func (h *FileHandle) flushHeader() error {
	if err := h.requireOpen("pf.flushHeader"); err != nil {
		return err
	}
	buf := make([]byte, headerSize)
	marshalHeader(h.header, buf)
	if _, err := h.file.WriteAt(buf, 0); err != nil {
		return dberr.Wrap(dberr.FileSeekFailed, "pf.flushHeader", err).WithPath(h.name)
	}
	return nil
}

// Header returns the live, in-memory file header. Record-engine code
// mutates the FreespaceLists table directly through this pointer and
// calls FlushHeader when the mutation must be durable before returning.
func (h *FileHandle) Header() *Header { return h.header }

// FlushHeader persists the in-memory header to page 0 immediately.
func (h *FileHandle) FlushHeader() error { return h.flushHeader() }

// NumPages returns the number of payload pages (page 0 excluded).
func (h *FileHandle) NumPages() uint32 { return h.header.NumPages }

func (h *FileHandle) offsetOf(pageNum uint32) int64 {
	return int64(pageNum) * PageSize
}

// ReadPage reads page pageNum into buf, which must be exactly PageSize
// bytes. Page 0 is the structural header page.
func (h *FileHandle) ReadPage(pageNum uint32, buf []byte) error {
	if err := h.requireOpen("pf.ReadPage"); err != nil {
		return err
	}
	if len(buf) != PageSize {
		return dberr.New(dberr.RecordSizeInvalid, "pf.ReadPage").WithPath(h.name)
	}
	if pageNum > h.header.NumPages {
		return dberr.New(dberr.PageNumInvalid, "pf.ReadPage").WithPath(h.name)
	}
	if _, err := h.file.ReadAt(buf, h.offsetOf(pageNum)); err != nil {
		return dberr.Wrap(dberr.FileSeekFailed, "pf.ReadPage", err).WithPath(h.name)
	}
	return nil
}

// WritePage overwrites page pageNum with buf (exactly PageSize bytes).
func (h *FileHandle) WritePage(pageNum uint32, buf []byte) error {
	if err := h.requireOpen("pf.WritePage"); err != nil {
		return err
	}
	if len(buf) != PageSize {
		return dberr.New(dberr.RecordSizeInvalid, "pf.WritePage").WithPath(h.name)
	}
	if pageNum > h.header.NumPages {
		return dberr.New(dberr.PageNumInvalid, "pf.WritePage").WithPath(h.name)
	}
	if _, err := h.file.WriteAt(buf, h.offsetOf(pageNum)); err != nil {
		return dberr.Wrap(dberr.FileSeekFailed, "pf.WritePage", err).WithPath(h.name)
	}
	return nil
}

// AppendPage grows the file by one page, writes buf into it, and returns
// the new page's number.
func (h *FileHandle) AppendPage(buf []byte) (uint32, error) {
	if err := h.requireOpen("pf.AppendPage"); err != nil {
		return 0, err
	}
	if len(buf) != PageSize {
		return 0, dberr.New(dberr.RecordSizeInvalid, "pf.AppendPage").WithPath(h.name)
	}
	pageNum := h.header.NumPages + 1
	if _, err := h.file.WriteAt(buf, h.offsetOf(pageNum)); err != nil {
		return 0, dberr.Wrap(dberr.FileSeekFailed, "pf.AppendPage", err).WithPath(h.name)
	}
	h.header.NumPages = pageNum
	if err := h.flushHeader(); err != nil {
		return 0, err
	}
	return pageNum, nil
}

// RootPointer and SetRootPointer let a B+ tree index store its root page
// number in the last 4 bytes of page 0, alongside (but independent of)
// the structural header PF itself owns there.
func (h *FileHandle) RootPointer() (uint32, error) {
	if err := h.requireOpen("pf.RootPointer"); err != nil {
		return 0, err
	}
	var tail [4]byte
	if _, err := h.file.ReadAt(tail[:], PageSize-4); err != nil {
		return 0, dberr.Wrap(dberr.FileSeekFailed, "pf.RootPointer", err).WithPath(h.name)
	}
	return binary.LittleEndian.Uint32(tail[:]), nil
}

func (h *FileHandle) SetRootPointer(page uint32) error {
	if err := h.requireOpen("pf.SetRootPointer"); err != nil {
		return err
	}
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], page)
	if _, err := h.file.WriteAt(tail[:], PageSize-4); err != nil {
		return dberr.Wrap(dberr.FileSeekFailed, "pf.SetRootPointer", err).WithPath(h.name)
	}
	return nil
}

// Name returns the path this handle was opened against.
func (h *FileHandle) Name() string { return h.name }

func (h *FileHandle) String() string {
	return fmt.Sprintf("pf.FileHandle{%s, pages=%d}", h.name, h.header.NumPages)
}
