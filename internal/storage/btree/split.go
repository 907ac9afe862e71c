package btree

import (
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

// splitPoint picks the index of the first entry, scanning in sorted
// order, at or after which the accumulated physical size reaches half a
// page. It is clamped so both sides of the split end up with at least
// one entry.
func splitPoint(entries []Entry) int {
	cum := 0
	idx := len(entries) - 1
	for i, e := range entries {
		if cum >= pf.PageSize/2 {
			idx = i
			break
		}
		cum += EncodedSize(e.Key) + recordengine.SlotSize
	}
	if idx < 1 {
		idx = 1
	}
	if idx > len(entries)-1 {
		idx = len(entries) - 1
	}
	return idx
}

// split splits a full page in two, returning the new sibling's page
// number and the key to promote into the parent.
//
// For a leaf split, the entry at the split point stays on the new
// (right) page and its key is promoted; the leaf level keeps every key.
// For a non-leaf split, the entry at the split point is consumed: its
// child pointer becomes the new page's left_child_page and its key is
// promoted, so the separator appears exactly once on the path above.
func (ix *Index) split(page uint32) (uint32, attribute.Value, error) {
	oldBuf := make([]byte, pf.PageSize)
	if err := ix.fh.ReadPage(page, oldBuf); err != nil {
		return 0, attribute.Value{}, err
	}
	footer := ReadBTFooter(oldBuf)

	entries, err := ix.collectChain(oldBuf, footer)
	if err != nil {
		return 0, attribute.Value{}, err
	}
	if len(entries) < 2 {
		return 0, attribute.Value{}, dberr.New(dberr.BTreeCannotFindLeaf, "btree.split")
	}

	idx := splitPoint(entries)
	leftEntries := entries[:idx]
	rest := entries[idx:]

	var rightEntries []Entry
	var newLeftChild uint32
	promoted := rest[0]
	if footer.IsLeaf {
		rightEntries = rest
	} else {
		newLeftChild = promoted.Ref.PageNum
		rightEntries = rest[1:]
	}

	newPage, _, err := appendFreshBTPage(ix.fh, footer.IsLeaf)
	if err != nil {
		return 0, attribute.Value{}, err
	}

	var sourceNextLeaf, newNextLeaf uint32
	if footer.IsLeaf {
		sourceNextLeaf = newPage
		newNextLeaf = footer.NextLeafPage
	}

	if err := ix.rewritePage(page, footer.IsLeaf, footer.LeftChildPage, sourceNextLeaf, leftEntries); err != nil {
		return 0, attribute.Value{}, err
	}
	if err := ix.rewritePage(newPage, footer.IsLeaf, newLeftChild, newNextLeaf, rightEntries); err != nil {
		return 0, attribute.Value{}, err
	}
	return newPage, promoted.Key, nil
}

// rewritePage discards a page's current content and refills it with
// entries in order, preserving its freespace-list membership across the
// rewrite (the page may already be linked into a list from before the
// split, or freshly appended and linked once already).
func (ix *Index) rewritePage(page uint32, isLeaf bool, leftChild, nextLeaf uint32, entries []Entry) error {
	oldBuf := make([]byte, pf.PageSize)
	if err := ix.fh.ReadPage(page, oldBuf); err != nil {
		return err
	}
	oldFooter := recordengine.ReadFooter(oldBuf)
	if err := recordengine.UnlinkFromFreespaceList(ix.fh, page, oldFooter); err != nil {
		return err
	}

	buf := make([]byte, pf.PageSize)
	InitBTPage(buf, page, isLeaf)
	footer := ReadBTFooter(buf)
	footer.LeftChildPage = leftChild
	footer.NextLeafPage = nextLeaf

	for _, e := range entries {
		_, ok, err := ix.insertEntryIntoBuf(buf, &footer, e.Ref, e.Key)
		if err != nil {
			return err
		}
		if !ok {
			return dberr.New(dberr.BTreeCannotFindLeaf, "btree.rewritePage")
		}
	}

	WriteBTFooter(buf, footer)
	return recordengine.Reclassify(ix.fh, buf, FooterSize, page)
}
