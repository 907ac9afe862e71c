package btree

import (
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
)

// IndexIterator walks leaf entries in key order between an optional low
// and high bound. It is single-threaded and lazy; concurrent
// mutation of the index during a scan is undefined, and it is not
// restartable.
type IndexIterator struct {
	ix            *Index
	cur           attribute.RID
	highKey       *attribute.Value
	highInclusive bool
}

// firstEntryFrom returns the first non-null first_record_rid reachable
// starting at leaf, following next_leaf_page across any leaves that the
// no-merge delete policy has left empty.
func (ix *Index) firstEntryFrom(leaf uint32) (attribute.RID, error) {
	for leaf != 0 {
		_, footer, err := ix.readPage(leaf)
		if err != nil {
			return attribute.RID{}, err
		}
		if !footer.FirstRecordRID.IsNull() {
			return footer.FirstRecordRID, nil
		}
		leaf = footer.NextLeafPage
	}
	return attribute.NullRID, nil
}

func (ix *Index) leftmostLeaf() (uint32, error) {
	page := ix.root
	for {
		_, footer, err := ix.readPage(page)
		if err != nil {
			return 0, err
		}
		if footer.IsLeaf {
			return page, nil
		}
		page = footer.LeftChildPage
	}
}

// locateLowerBound finds the entry RID of the first entry satisfying
// the low bound: descend to the leftmost leaf that could carry key,
// then scan forward, across leaf links if necessary, for the first
// entry whose key is greater than key, or equal to it when inclusive.
// Starting leftmost matters when a run of duplicates spans leaves; the
// insert-style descent would land past all but the run's last page.
func (ix *Index) locateLowerBound(key attribute.Value, inclusive bool) (attribute.RID, error) {
	leaf, err := ix.descendLeftmost(key)
	if err != nil {
		return attribute.RID{}, err
	}
	for leaf != 0 {
		buf, footer, err := ix.readPage(leaf)
		if err != nil {
			return attribute.RID{}, err
		}
		cur := footer.FirstRecordRID
		for !cur.IsNull() {
			e, err := ix.readEntryAtSlot(buf, cur.SlotNum)
			if err != nil {
				return attribute.RID{}, err
			}
			cmp := attribute.Compare(e.Key, key)
			if cmp > 0 || (cmp == 0 && inclusive) {
				return cur, nil
			}
			cur = e.NextSlot
		}
		leaf = footer.NextLeafPage
	}
	return attribute.NullRID, nil
}

// OpenScan opens an iterator over entries between the given bounds.
// A nil lowKey starts at the leftmost entry of the tree; a nil highKey
// runs to the rightmost entry.
func (ix *Index) OpenScan(lowKey *attribute.Value, lowInclusive bool, highKey *attribute.Value, highInclusive bool) (*IndexIterator, error) {
	var start attribute.RID
	var err error
	if lowKey != nil {
		start, err = ix.locateLowerBound(*lowKey, lowInclusive)
	} else {
		var leaf uint32
		leaf, err = ix.leftmostLeaf()
		if err == nil {
			start, err = ix.firstEntryFrom(leaf)
		}
	}
	if err != nil {
		return nil, err
	}
	return &IndexIterator{ix: ix, cur: start, highKey: highKey, highInclusive: highInclusive}, nil
}

// Next returns the next (data_rid, key) pair in range, or dberr.IndexEOF
// once the high bound is passed or the tree is exhausted.
func (it *IndexIterator) Next() (attribute.RID, attribute.Value, error) {
	if it.cur.IsNull() {
		return attribute.RID{}, attribute.Value{}, dberr.IndexEOF
	}

	buf, footer, err := it.ix.readPage(it.cur.PageNum)
	if err != nil {
		return attribute.RID{}, attribute.Value{}, err
	}
	e, err := it.ix.readEntryAtSlot(buf, it.cur.SlotNum)
	if err != nil {
		return attribute.RID{}, attribute.Value{}, err
	}

	if it.highKey != nil {
		cmp := attribute.Compare(e.Key, *it.highKey)
		if cmp > 0 || (cmp == 0 && !it.highInclusive) {
			it.cur = attribute.NullRID
			return attribute.RID{}, attribute.Value{}, dberr.IndexEOF
		}
	}

	result, key := e.Ref, e.Key

	if !e.NextSlot.IsNull() {
		it.cur = e.NextSlot
	} else {
		next, err := it.ix.firstEntryFrom(footer.NextLeafPage)
		if err != nil {
			return attribute.RID{}, attribute.Value{}, err
		}
		it.cur = next
	}

	return result, key, nil
}
