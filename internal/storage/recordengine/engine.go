package recordengine

import (
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/pf"
)

// Engine is the record engine over one open paged file: plain pages
// whose footer is exactly CommonFooterSize (no B+ tree extension).
type Engine struct {
	fh *pf.FileHandle
}

// Open wraps an already-open paged file handle with record-engine
// operations.
func Open(fh *pf.FileHandle) *Engine { return &Engine{fh: fh} }

// Handle returns the underlying paged-file handle.
func (e *Engine) Handle() *pf.FileHandle { return e.fh }

const footerSize = CommonFooterSize

// InsertRecord encodes values per desc and inserts the resulting
// physical record, returning its RID.
func (e *Engine) InsertRecord(desc Descriptor, values []attribute.Value) (attribute.RID, error) {
	physical, err := EncodeRecord(desc, values)
	if err != nil {
		return attribute.RID{}, err
	}
	return e.insertPhysical(physical)
}

func (e *Engine) insertPhysical(physical []byte) (attribute.RID, error) {
	required := len(physical) + SlotSize
	if required > Capacity(footerSize) {
		return attribute.RID{}, dberr.New(dberr.RecordExceedsPageSize, "recordengine.InsertRecord")
	}

	pageNum := findPageWithRoom(e.fh.Header(), required)
	var buf []byte
	if pageNum == 0 {
		// No list's cutoff covers the request. A fresh empty page always
		// does, even for records bigger than the largest cutoff.
		var err error
		pageNum, buf, err = AppendFreshPage(e.fh, footerSize)
		if err != nil {
			return attribute.RID{}, err
		}
	} else {
		buf = make([]byte, pf.PageSize)
		if err := e.fh.ReadPage(pageNum, buf); err != nil {
			return attribute.RID{}, err
		}
	}
	slotNum, ok := InsertIntoPage(buf, footerSize, physical)
	if !ok {
		// A page on a list with cutoff >= required always has the room;
		// reaching this means the freespace directory is corrupt.
		return attribute.RID{}, dberr.New(dberr.FileCorrupt, "recordengine.InsertRecord")
	}
	if err := Reclassify(e.fh, buf, footerSize, pageNum); err != nil {
		return attribute.RID{}, err
	}
	return attribute.RID{PageNum: pageNum, SlotNum: slotNum}, nil
}

// resolvedSlot is the outcome of following at most one forwarder hop
// from a caller-supplied RID.
type resolvedSlot struct {
	buf      []byte
	pageNum  uint32
	slotNum  uint32
	slot     Slot
	physical []byte
}

func (e *Engine) loadSlot(rid attribute.RID, op string) (buf []byte, slot Slot, err error) {
	buf = make([]byte, pf.PageSize)
	if err = e.fh.ReadPage(rid.PageNum, buf); err != nil {
		return nil, Slot{}, err
	}
	if err = validatePage(buf, rid.PageNum, op); err != nil {
		return nil, Slot{}, err
	}
	footer := ReadFooter(buf)
	// A slot past num_slots was contracted away by a trailing delete.
	if rid.SlotNum >= footer.NumSlots {
		return nil, Slot{}, dberr.New(dberr.RecordDeleted, op)
	}
	slot = ReadSlot(buf, footerSize, rid.SlotNum)
	return buf, slot, nil
}

// resolve follows at most one forwarder hop; forwarders never chain.
func (e *Engine) resolve(rid attribute.RID, op string) (*resolvedSlot, error) {
	buf, slot, err := e.loadSlot(rid, op)
	if err != nil {
		return nil, err
	}
	if slot.IsTombstone() {
		return nil, dberr.New(dberr.RecordDeleted, op)
	}
	if slot.IsForwarder() {
		fwdRID := attribute.RID{PageNum: slot.ForwardPage, SlotNum: slot.ForwardSlot}
		fbuf, fslot, err := e.loadSlot(fwdRID, op)
		if err != nil {
			return nil, err
		}
		if fslot.IsTombstone() {
			return nil, dberr.New(dberr.RecordDeleted, op)
		}
		physical := fbuf[fslot.PageOffset : int(fslot.PageOffset)+int(fslot.Size)]
		return &resolvedSlot{buf: fbuf, pageNum: fwdRID.PageNum, slotNum: fwdRID.SlotNum, slot: fslot, physical: physical}, nil
	}
	physical := buf[slot.PageOffset : int(slot.PageOffset)+int(slot.Size)]
	return &resolvedSlot{buf: buf, pageNum: rid.PageNum, slotNum: rid.SlotNum, slot: slot, physical: physical}, nil
}

// ReadRecord returns the tuple wire bytes for rid.
func (e *Engine) ReadRecord(rid attribute.RID) ([]byte, error) {
	rs, err := e.resolve(rid, "recordengine.ReadRecord")
	if err != nil {
		return nil, err
	}
	return DecodePayload(rs.physical)
}

// ReadTuple decodes every field of rid's record per desc.
func (e *Engine) ReadTuple(rid attribute.RID, desc Descriptor) ([]attribute.Value, error) {
	rs, err := e.resolve(rid, "recordengine.ReadTuple")
	if err != nil {
		return nil, err
	}
	return DecodeTuple(rs.physical, desc)
}

// ReadAttribute decodes a single field of rid's record.
func (e *Engine) ReadAttribute(rid attribute.RID, desc Descriptor, attrIndex int) (attribute.Value, error) {
	rs, err := e.resolve(rid, "recordengine.ReadAttribute")
	if err != nil {
		return attribute.Value{}, err
	}
	return ReadAttribute(rs.physical, desc, attrIndex)
}

// UpdateRecord overwrites rid's record with newly encoded values. If
// the new bytes don't fit where the record currently lives, the record
// is relocated and the origin slot becomes a forwarder.
func (e *Engine) UpdateRecord(rid attribute.RID, desc Descriptor, values []attribute.Value) error {
	physical, err := EncodeRecord(desc, values)
	if err != nil {
		return err
	}
	return e.updatePhysical(rid, physical)
}

func (e *Engine) updatePhysical(rid attribute.RID, physical []byte) error {
	const op = "recordengine.UpdateRecord"
	if len(physical)+SlotSize > Capacity(footerSize) {
		return dberr.New(dberr.RecordExceedsPageSize, op)
	}

	originBuf, originSlot, err := e.loadSlot(rid, op)
	if err != nil {
		return err
	}
	if originSlot.IsTombstone() {
		return dberr.New(dberr.RecordDeleted, op)
	}

	targetPage, targetSlotNum := rid.PageNum, rid.SlotNum
	targetBuf := originBuf
	hadForward := originSlot.IsForwarder()
	if hadForward {
		targetPage, targetSlotNum = originSlot.ForwardPage, originSlot.ForwardSlot
		tb, tslot, err := e.loadSlot(attribute.RID{PageNum: targetPage, SlotNum: targetSlotNum}, op)
		if err != nil {
			return err
		}
		if tslot.IsTombstone() {
			return dberr.New(dberr.RecordDeleted, op)
		}
		targetBuf = tb
	}

	if UpdateInPlace(targetBuf, footerSize, targetSlotNum, physical) {
		if err := Reclassify(e.fh, targetBuf, footerSize, targetPage); err != nil {
			return err
		}
		return e.maybeReorganize(targetPage, targetBuf)
	}

	// Cannot grow in place. If a previous forward target exists, delete
	// it first so forwarder chains never exceed one hop.
	if hadForward {
		DeleteSlot(targetBuf, footerSize, targetSlotNum)
		if err := Reclassify(e.fh, targetBuf, footerSize, targetPage); err != nil {
			return err
		}
	} else {
		// The displaced bytes on the origin page become dead the moment
		// the slot turns into a forwarder; charge them now and persist,
		// since the relocation insert below re-reads pages from disk.
		originFooter := ReadFooter(originBuf)
		originFooter.GapSize += uint32(originSlot.Size)
		WriteFooter(originBuf, originFooter)
		if err := e.fh.WritePage(rid.PageNum, originBuf); err != nil {
			return err
		}
	}

	newRID, err := e.insertPhysical(physical)
	if err != nil {
		return err
	}

	// The insert may have mutated originBuf in place (same page); reload
	// fresh before flipping the origin slot to a forwarder.
	freshOrigin := make([]byte, pf.PageSize)
	if err := e.fh.ReadPage(rid.PageNum, freshOrigin); err != nil {
		return err
	}
	originSlot = ReadSlot(freshOrigin, footerSize, rid.SlotNum)
	originSlot.Size = 0
	originSlot.ForwardPage = newRID.PageNum
	originSlot.ForwardSlot = newRID.SlotNum
	originSlot.IsAnchor = false
	WriteSlot(freshOrigin, footerSize, rid.SlotNum, originSlot)
	if err := Reclassify(e.fh, freshOrigin, footerSize, rid.PageNum); err != nil {
		return err
	}

	newBuf := make([]byte, pf.PageSize)
	if err := e.fh.ReadPage(newRID.PageNum, newBuf); err != nil {
		return err
	}
	newSlot := ReadSlot(newBuf, footerSize, newRID.SlotNum)
	newSlot.IsAnchor = true
	WriteSlot(newBuf, footerSize, newRID.SlotNum, newSlot)
	if err := e.fh.WritePage(newRID.PageNum, newBuf); err != nil {
		return err
	}

	return e.maybeReorganize(rid.PageNum, nil)
}

// maybeReorganize reorganizes pageNum once its gap exceeds half the
// page size.
func (e *Engine) maybeReorganize(pageNum uint32, buf []byte) error {
	if buf == nil {
		buf = make([]byte, pf.PageSize)
		if err := e.fh.ReadPage(pageNum, buf); err != nil {
			return err
		}
	}
	footer := ReadFooter(buf)
	if footer.GapSize > pf.PageSize/2 {
		return e.ReorganizePage(pageNum)
	}
	return nil
}

// DeleteRecord removes rid's record. Deleting an
// already-deleted slot returns RecordDeleted; deleting an anchor slot
// directly (rather than through its forwarding origin) returns
// RecordIsAnchor.
func (e *Engine) DeleteRecord(rid attribute.RID) error {
	const op = "recordengine.DeleteRecord"
	buf, slot, err := e.loadSlot(rid, op)
	if err != nil {
		return err
	}
	if slot.IsTombstone() {
		return dberr.New(dberr.RecordDeleted, op)
	}
	if slot.IsAnchor {
		return dberr.New(dberr.RecordIsAnchor, op)
	}

	if slot.IsForwarder() {
		targetRID := attribute.RID{PageNum: slot.ForwardPage, SlotNum: slot.ForwardSlot}
		tbuf, tslot, err := e.loadSlot(targetRID, op)
		if err != nil {
			return err
		}
		if tslot.IsTombstone() {
			return dberr.New(dberr.RecordDeleted, op)
		}
		DeleteSlot(tbuf, footerSize, targetRID.SlotNum)
		if err := Reclassify(e.fh, tbuf, footerSize, targetRID.PageNum); err != nil {
			return err
		}
		// Reclassifying the target may have rewritten the origin page (same
		// page, or a freespace neighbor); reload before touching it.
		if err := e.fh.ReadPage(rid.PageNum, buf); err != nil {
			return err
		}
		DeleteSlot(buf, footerSize, rid.SlotNum)
		return Reclassify(e.fh, buf, footerSize, rid.PageNum)
	}

	DeleteSlot(buf, footerSize, rid.SlotNum)
	return Reclassify(e.fh, buf, footerSize, rid.PageNum)
}

// ReorganizePage compacts pageNum's live records to the front,
// resetting gap_size to zero while preserving slot numbers.
func (e *Engine) ReorganizePage(pageNum uint32) error {
	buf := make([]byte, pf.PageSize)
	if err := e.fh.ReadPage(pageNum, buf); err != nil {
		return err
	}
	if err := validatePage(buf, pageNum, "recordengine.ReorganizePage"); err != nil {
		return err
	}
	Compact(buf, footerSize)
	return Reclassify(e.fh, buf, footerSize, pageNum)
}

// ReorganizeFile compacts every payload page. It is optional
// maintenance, not required by the B+ tree core.
func (e *Engine) ReorganizeFile() error {
	for p := uint32(1); p <= e.fh.NumPages(); p++ {
		if err := e.ReorganizePage(p); err != nil {
			return err
		}
	}
	return nil
}
