package btree

import (
	"encoding/binary"

	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

// writeEntryNextSlot overwrites only the NextSlot field of the entry
// already stored at slotNum, in place. Safe because NextSlot occupies a
// fixed 8-byte prefix of every encoded entry and the rewrite never
// changes the entry's total size.
func writeEntryNextSlot(buf []byte, slotNum uint32, next attribute.RID) {
	s := recordengine.ReadSlot(buf, FooterSize, slotNum)
	off := int(s.PageOffset)
	binary.LittleEndian.PutUint32(buf[off:off+4], next.PageNum)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], next.SlotNum)
}

// linkIntoChain splices the entry newly inserted at newSlot into the
// page's sorted intrusive chain, keeping it ordered by key. footer's
// FirstRecordRID is updated in place if the new entry becomes the head.
func (ix *Index) linkIntoChain(buf []byte, footer *Footer, newSlot uint32, key attribute.Value) error {
	self := attribute.RID{PageNum: footer.PageNumber, SlotNum: newSlot}

	if footer.FirstRecordRID.IsNull() {
		footer.FirstRecordRID = self
		return nil
	}

	first, err := ix.readEntryAtSlot(buf, footer.FirstRecordRID.SlotNum)
	if err != nil {
		return err
	}
	if attribute.Compare(key, first.Key) < 0 {
		writeEntryNextSlot(buf, newSlot, footer.FirstRecordRID)
		footer.FirstRecordRID = self
		return nil
	}

	predSlot := footer.FirstRecordRID.SlotNum
	pred := first
	for !pred.NextSlot.IsNull() {
		nxt, err := ix.readEntryAtSlot(buf, pred.NextSlot.SlotNum)
		if err != nil {
			return err
		}
		if attribute.Compare(nxt.Key, key) > 0 {
			break
		}
		predSlot = pred.NextSlot.SlotNum
		pred = nxt
	}
	writeEntryNextSlot(buf, newSlot, pred.NextSlot)
	writeEntryNextSlot(buf, predSlot, self)
	return nil
}

// insertEntryIntoBuf places one (ref, key) entry into buf's slot
// directory and chain, without touching disk. ok is false if the page
// has no room (BTreeIndexPageFull, handled by the caller as a signal to
// split); err is non-nil only for a hard failure such as a key too large
// for any page.
func (ix *Index) insertEntryIntoBuf(buf []byte, footer *Footer, ref attribute.RID, key attribute.Value) (uint32, bool, error) {
	entryBytes, err := EncodeEntry(Entry{NextSlot: attribute.NullRID, Ref: ref, Key: key})
	if err != nil {
		return 0, false, err
	}
	// An entry must fit in half a page's usable space so any full page
	// holds at least two entries and can always be split.
	if len(entryBytes)+recordengine.SlotSize > recordengine.Capacity(FooterSize)/2 {
		return 0, false, dberr.New(dberr.BTreeKeyTooLarge, "btree.InsertEntry")
	}
	slotNum, ok := recordengine.InsertIntoPage(buf, FooterSize, entryBytes)
	if !ok {
		return 0, false, nil
	}
	footer.Footer = recordengine.ReadFooter(buf)
	if err := ix.linkIntoChain(buf, footer, slotNum, key); err != nil {
		return 0, false, err
	}
	return slotNum, true, nil
}

// insertEntryOnPage reads page, attempts to place one entry on it and
// writes it back on success. ok=false means the page is full.
func (ix *Index) insertEntryOnPage(page uint32, key attribute.Value, ref attribute.RID) (bool, error) {
	buf, footer, err := ix.readPage(page)
	if err != nil {
		return false, err
	}
	_, ok, err := ix.insertEntryIntoBuf(buf, &footer, ref, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	WriteBTFooter(buf, footer)
	if err := recordengine.Reclassify(ix.fh, buf, FooterSize, page); err != nil {
		return false, err
	}
	return true, nil
}

// InsertEntry places (key, rid) into the tree.
// Descent finds the owning leaf; if it has no room, the leaf (and, if
// necessary, a cascading chain of ancestors up to and including the
// root) is split, and the whole operation is retried from the top.
func (ix *Index) InsertEntry(key attribute.Value, rid attribute.RID) error {
	leaf, ancestors, err := ix.descend(key)
	if err != nil {
		return err
	}
	ok, err := ix.insertEntryOnPage(leaf, key, rid)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := ix.splitCascade(leaf, ancestors); err != nil {
		return err
	}
	return ix.InsertEntry(key, rid)
}

// splitCascade splits page (known full) and inserts the promoted
// separator into its parent, splitting the parent in turn if that
// insert also fails to fit, all the way up to the root.
func (ix *Index) splitCascade(page uint32, ancestors []uint32) error {
	newPage, pendingKey, err := ix.split(page)
	if err != nil {
		return err
	}
	pendingRef := attribute.RID{PageNum: newPage}

	for {
		if len(ancestors) == 0 {
			return ix.createNewRoot(page, pendingKey, pendingRef)
		}
		parent := ancestors[len(ancestors)-1]
		ancestors = ancestors[:len(ancestors)-1]

		ok, err := ix.insertEntryOnPage(parent, pendingKey, pendingRef)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		newParent, parentPromoted, err := ix.split(parent)
		if err != nil {
			return err
		}
		// The pending separator still has to land in whichever half of
		// the just-split parent owns its key range before the parent's
		// own separator moves up.
		target := parent
		if attribute.Compare(pendingKey, parentPromoted) >= 0 {
			target = newParent
		}
		ok, err = ix.insertEntryOnPage(target, pendingKey, pendingRef)
		if err != nil {
			return err
		}
		if !ok {
			return dberr.New(dberr.BTreeCannotFindLeaf, "btree.splitCascade")
		}
		pendingKey = parentPromoted
		pendingRef = attribute.RID{PageNum: newParent}
		page = parent
	}
}

// createNewRoot grows the tree by one level: a fresh non-leaf page
// becomes the root, its left_child_page is the old (just-split) root,
// and it holds one entry pointing at the split's new right sibling.
func (ix *Index) createNewRoot(oldRoot uint32, promotedKey attribute.Value, rightChild attribute.RID) error {
	rootPage, buf, err := appendFreshBTPage(ix.fh, false)
	if err != nil {
		return err
	}
	footer := ReadBTFooter(buf)
	footer.LeftChildPage = oldRoot
	WriteBTFooter(buf, footer)
	if err := ix.fh.WritePage(rootPage, buf); err != nil {
		return err
	}

	ok, err := ix.insertEntryOnPage(rootPage, promotedKey, rightChild)
	if err != nil {
		return err
	}
	if !ok {
		return dberr.New(dberr.BTreeKeyTooLarge, "btree.createNewRoot")
	}
	return ix.updateRoot(rootPage)
}
