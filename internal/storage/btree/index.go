package btree

import (
	"sync"

	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

// rootCache is the process-wide filename -> root-page-number cache.
// Its sole state is this mapping, written through to page 0 on every
// change. It outlives any single Index value, the same way pf's
// DestroyFile refcount registry does.
var (
	rootCacheMu sync.Mutex
	rootCache   = map[string]uint32{}
)

func cachedRoot(name string) (uint32, bool) {
	rootCacheMu.Lock()
	defer rootCacheMu.Unlock()
	r, ok := rootCache[name]
	return r, ok
}

func setCachedRoot(name string, root uint32) {
	rootCacheMu.Lock()
	rootCache[name] = root
	rootCacheMu.Unlock()
}

func clearCachedRoot(name string) {
	rootCacheMu.Lock()
	delete(rootCache, name)
	rootCacheMu.Unlock()
}

// Index is one open clustered B+ tree file. Leaf entries carry
// the base table's data RID; non-leaf entries carry a child page number.
type Index struct {
	fh      *pf.FileHandle
	keyType attribute.Type
	name    string
	root    uint32
}

// appendFreshBTPage allocates, initializes and classifies a brand new
// leaf or non-leaf page.
func appendFreshBTPage(fh *pf.FileHandle, isLeaf bool) (uint32, []byte, error) {
	buf := make([]byte, pf.PageSize)
	pageNum, err := fh.AppendPage(buf)
	if err != nil {
		return 0, nil, err
	}
	InitBTPage(buf, pageNum, isLeaf)
	if err := recordengine.Reclassify(fh, buf, FooterSize, pageNum); err != nil {
		return 0, nil, err
	}
	return pageNum, buf, nil
}

// CreateFile creates a new index file with a single empty leaf as its
// root.
func CreateFile(name string, keyType attribute.Type) error {
	if err := pf.CreateFile(name); err != nil {
		return err
	}
	fh, err := pf.OpenFile(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	rootPage, _, err := appendFreshBTPage(fh, true)
	if err != nil {
		return err
	}
	return fh.SetRootPointer(rootPage)
}

// DestroyFile removes an index file, dropping its cached root first.
func DestroyFile(name string) error {
	clearCachedRoot(name)
	return pf.DestroyFile(name)
}

// OpenFile opens an existing index file, priming the process-wide root
// cache from page 0 on first use.
func OpenFile(name string, keyType attribute.Type) (*Index, error) {
	fh, err := pf.OpenFile(name)
	if err != nil {
		return nil, err
	}
	root, ok := cachedRoot(name)
	if !ok {
		root, err = fh.RootPointer()
		if err != nil {
			fh.Close()
			return nil, err
		}
		setCachedRoot(name, root)
	}
	return &Index{fh: fh, keyType: keyType, name: name, root: root}, nil
}

// Close releases the underlying paged-file handle. The process-wide root
// cache is left intact so other open Index values over the same file
// keep a consistent view.
func (ix *Index) Close() error { return ix.fh.Close() }

// Handle returns the underlying paged-file handle.
func (ix *Index) Handle() *pf.FileHandle { return ix.fh }

func (ix *Index) updateRoot(newRoot uint32) error {
	ix.root = newRoot
	setCachedRoot(ix.name, newRoot)
	return ix.fh.SetRootPointer(newRoot)
}

func (ix *Index) readEntryAtSlot(buf []byte, slotNum uint32) (Entry, error) {
	s := recordengine.ReadSlot(buf, FooterSize, slotNum)
	physical := buf[s.PageOffset : int(s.PageOffset)+int(s.Size)]
	return DecodeEntry(physical, ix.keyType)
}

func (ix *Index) readPage(page uint32) ([]byte, Footer, error) {
	buf := make([]byte, pf.PageSize)
	if err := ix.fh.ReadPage(page, buf); err != nil {
		return nil, Footer{}, err
	}
	return buf, ReadBTFooter(buf), nil
}

// collectChain walks a page's intrusive sorted entry chain front to back.
func (ix *Index) collectChain(buf []byte, footer Footer) ([]Entry, error) {
	var out []Entry
	cur := footer.FirstRecordRID
	for !cur.IsNull() {
		e, err := ix.readEntryAtSlot(buf, cur.SlotNum)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		cur = e.NextSlot
	}
	return out, nil
}

// findNonLeafChild returns the child page to descend into for key, among
// a non-leaf page's entries: the largest entry whose key <= the search
// key, or left_child_page if key is smaller than every entry.
func (ix *Index) findNonLeafChild(buf []byte, footer Footer, key attribute.Value) (uint32, error) {
	if footer.FirstRecordRID.IsNull() {
		return footer.LeftChildPage, nil
	}
	first, err := ix.readEntryAtSlot(buf, footer.FirstRecordRID.SlotNum)
	if err != nil {
		return 0, err
	}
	if attribute.Compare(key, first.Key) < 0 {
		return footer.LeftChildPage, nil
	}
	candidate := first.Ref.PageNum
	cur := first
	for !cur.NextSlot.IsNull() {
		nxt, err := ix.readEntryAtSlot(buf, cur.NextSlot.SlotNum)
		if err != nil {
			return 0, err
		}
		if attribute.Compare(nxt.Key, key) > 0 {
			break
		}
		candidate = nxt.Ref.PageNum
		cur = nxt
	}
	return candidate, nil
}

// findLeftmostChild returns the child page owning the first entry that
// could carry key: left_child_page when key <= the page's first key,
// else the last entry whose key is strictly less than key. Range scans
// and deletes descend this way so a run of duplicate keys spanning
// several leaves is entered at its first entry, not its last.
func (ix *Index) findLeftmostChild(buf []byte, footer Footer, key attribute.Value) (uint32, error) {
	child := footer.LeftChildPage
	cur := footer.FirstRecordRID
	for !cur.IsNull() {
		e, err := ix.readEntryAtSlot(buf, cur.SlotNum)
		if err != nil {
			return 0, err
		}
		if attribute.Compare(e.Key, key) >= 0 {
			break
		}
		child = e.Ref.PageNum
		cur = e.NextSlot
	}
	return child, nil
}

// descendLeftmost walks to the leftmost leaf that could hold key.
func (ix *Index) descendLeftmost(key attribute.Value) (uint32, error) {
	page := ix.root
	for {
		buf, footer, err := ix.readPage(page)
		if err != nil {
			return 0, err
		}
		if footer.IsLeaf {
			return page, nil
		}
		page, err = ix.findLeftmostChild(buf, footer, key)
		if err != nil {
			return 0, err
		}
	}
}

// descend walks from the root to the leaf that would hold key, returning
// the leaf page number and the stack of non-leaf ancestor pages visited
// (root first), for use by InsertEntry's cascading split.
func (ix *Index) descend(key attribute.Value) (leaf uint32, ancestors []uint32, err error) {
	page := ix.root
	for {
		buf, footer, err := ix.readPage(page)
		if err != nil {
			return 0, nil, err
		}
		if footer.IsLeaf {
			return page, ancestors, nil
		}
		ancestors = append(ancestors, page)
		page, err = ix.findNonLeafChild(buf, footer, key)
		if err != nil {
			return 0, nil, err
		}
	}
}
