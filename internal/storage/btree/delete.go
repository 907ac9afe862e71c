package btree

import (
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

// findLeafEntry scans one leaf's intrusive chain for an entry matching
// key and dataRID exactly, returning its slot plus its predecessor's
// slot (hasPred == false if it is the chain head). past reports that an
// entry with a key greater than key was seen, so no later leaf can hold
// the match either.
func (ix *Index) findLeafEntry(buf []byte, footer Footer, key attribute.Value, dataRID attribute.RID) (slotNum uint32, predSlot uint32, hasPred, found, past bool, err error) {
	cur := footer.FirstRecordRID
	var prevSlot uint32
	havePrev := false
	for !cur.IsNull() {
		e, derr := ix.readEntryAtSlot(buf, cur.SlotNum)
		if derr != nil {
			return 0, 0, false, false, false, derr
		}
		cmp := attribute.Compare(e.Key, key)
		if cmp > 0 {
			return 0, 0, false, false, true, nil
		}
		if cmp == 0 && e.Ref == dataRID {
			return cur.SlotNum, prevSlot, havePrev, true, false, nil
		}
		prevSlot = cur.SlotNum
		havePrev = true
		cur = e.NextSlot
	}
	return 0, 0, false, false, false, nil
}

// DeleteEntry removes the leaf entry for (key, dataRID). A run of
// duplicate keys can span several leaves, so the search starts at the
// leftmost leaf that could hold key and walks next_leaf_page until the
// entry is found or a greater key proves it absent. There is no merge
// or redistribution when a page empties out; the page is simply left
// with zero slots, still reachable from its parent and siblings.
func (ix *Index) DeleteEntry(key attribute.Value, dataRID attribute.RID) error {
	leaf, err := ix.descendLeftmost(key)
	if err != nil {
		return err
	}
	for leaf != 0 {
		buf, footer, err := ix.readPage(leaf)
		if err != nil {
			return err
		}
		slotNum, predSlot, hasPred, found, past, err := ix.findLeafEntry(buf, footer, key, dataRID)
		if err != nil {
			return err
		}
		if found {
			return ix.unlinkLeafEntry(leaf, buf, footer, slotNum, predSlot, hasPred)
		}
		if past {
			break
		}
		leaf = footer.NextLeafPage
	}
	return dberr.New(dberr.BTreeIndexLeafEntryNotFound, "btree.DeleteEntry")
}

// unlinkLeafEntry splices slotNum out of the leaf's sorted chain,
// deletes the underlying record, and compacts the page once its last
// entry is gone so a later insert starts from a clean slate.
func (ix *Index) unlinkLeafEntry(leaf uint32, buf []byte, footer Footer, slotNum, predSlot uint32, hasPred bool) error {
	entry, err := ix.readEntryAtSlot(buf, slotNum)
	if err != nil {
		return err
	}

	if hasPred {
		writeEntryNextSlot(buf, predSlot, entry.NextSlot)
	} else {
		footer.FirstRecordRID = entry.NextSlot
	}

	recordengine.DeleteSlot(buf, FooterSize, slotNum)
	footer.Footer = recordengine.ReadFooter(buf)
	if footer.NumSlots == 0 {
		recordengine.Compact(buf, FooterSize)
		footer.Footer = recordengine.ReadFooter(buf)
		footer.FirstRecordRID = attribute.NullRID
	}
	WriteBTFooter(buf, footer)
	return recordengine.Reclassify(ix.fh, buf, FooterSize, leaf)
}
