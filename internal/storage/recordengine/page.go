// Package recordengine implements the slotted-page record engine:
// record insert/read/update/delete with tombstone and forwarder slots,
// freespace-class bucketing in the paged file header, and per-page and
// per-file reorganization.
//
// The low-level page primitives in this file (footer, slot) and in
// freespace.go (freespace list splicing) are shared with the B+ tree index package, which
// builds leaf and non-leaf pages as ordinary record-engine pages with
// an extended footer.
package recordengine

import (
	"encoding/binary"

	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/pf"
)

// CommonFooterSize is the byte size of the footer prefix shared by every
// payload page: free_space_offset, num_slots, gap_size,
// page_number, freespace_list_index, prev_page, next_page: seven
// uint32 fields. It always occupies the final CommonFooterSize bytes of
// the page, regardless of any caller-specific footer extension.
const CommonFooterSize = 7 * 4

// SlotSize is the fixed byte size of one slot directory entry.
const SlotSize = 16

// Footer is the common footer prefix, identical for record-engine and
// B+ tree pages.
type Footer struct {
	FreeSpaceOffset    uint32
	NumSlots           uint32
	GapSize            uint32
	PageNumber         uint32
	FreespaceListIndex uint32
	PrevPage           uint32
	NextPage           uint32
}

// Slot addresses one record within a page.
type Slot struct {
	Size        uint16
	PageOffset  uint16
	ForwardPage uint32
	ForwardSlot uint32
	IsAnchor    bool
}

// IsTombstone reports whether s is a deleted slot: no bytes, no forward.
func (s Slot) IsTombstone() bool { return s.Size == 0 && s.ForwardPage == 0 }

// IsForwarder reports whether s relocates its record elsewhere.
func (s Slot) IsForwarder() bool { return s.ForwardPage != 0 }

func commonFooterOffset() int { return pf.PageSize - CommonFooterSize }

// ReadFooter reads the common footer, always anchored at the last
// CommonFooterSize bytes of the page.
func ReadFooter(buf []byte) Footer {
	off := commonFooterOffset()
	var f Footer
	f.FreeSpaceOffset = binary.LittleEndian.Uint32(buf[off : off+4])
	f.NumSlots = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	f.GapSize = binary.LittleEndian.Uint32(buf[off+8 : off+12])
	f.PageNumber = binary.LittleEndian.Uint32(buf[off+12 : off+16])
	f.FreespaceListIndex = binary.LittleEndian.Uint32(buf[off+16 : off+20])
	f.PrevPage = binary.LittleEndian.Uint32(buf[off+20 : off+24])
	f.NextPage = binary.LittleEndian.Uint32(buf[off+24 : off+28])
	return f
}

// WriteFooter writes f back to the page.
func WriteFooter(buf []byte, f Footer) {
	off := commonFooterOffset()
	binary.LittleEndian.PutUint32(buf[off:off+4], f.FreeSpaceOffset)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], f.NumSlots)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], f.GapSize)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], f.PageNumber)
	binary.LittleEndian.PutUint32(buf[off+16:off+20], f.FreespaceListIndex)
	binary.LittleEndian.PutUint32(buf[off+20:off+24], f.PrevPage)
	binary.LittleEndian.PutUint32(buf[off+24:off+28], f.NextPage)
}

// slotsEnd is the offset the slot directory grows backward from: the
// start of the (possibly extended) footer region.
func slotsEnd(footerSize int) int { return pf.PageSize - footerSize }

func slotOffset(footerSize int, slotNum uint32) int {
	return slotsEnd(footerSize) - int(slotNum+1)*SlotSize
}

// ReadSlot reads slot slotNum. Callers must ensure slotNum < NumSlots.
func ReadSlot(buf []byte, footerSize int, slotNum uint32) Slot {
	off := slotOffset(footerSize, slotNum)
	var s Slot
	s.Size = binary.LittleEndian.Uint16(buf[off : off+2])
	s.PageOffset = binary.LittleEndian.Uint16(buf[off+2 : off+4])
	s.ForwardPage = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	s.ForwardSlot = binary.LittleEndian.Uint32(buf[off+8 : off+12])
	s.IsAnchor = buf[off+12] != 0
	return s
}

// WriteSlot writes slot slotNum.
func WriteSlot(buf []byte, footerSize int, slotNum uint32, s Slot) {
	off := slotOffset(footerSize, slotNum)
	binary.LittleEndian.PutUint16(buf[off:off+2], s.Size)
	binary.LittleEndian.PutUint16(buf[off+2:off+4], s.PageOffset)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], s.ForwardPage)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], s.ForwardSlot)
	if s.IsAnchor {
		buf[off+12] = 1
	} else {
		buf[off+12] = 0
	}
	buf[off+13] = 0
	buf[off+14] = 0
	buf[off+15] = 0
}

// SlotsStart returns the first byte of the slot directory given the
// current slot count, equivalently the end of the free-space region.
func SlotsStart(footerSize int, numSlots uint32) int {
	return slotsEnd(footerSize) - int(numSlots)*SlotSize
}

// FreeBytes returns the number of bytes available for a new record plus
// its slot, on the page described by footer/footerSize.
func FreeBytes(footer Footer, footerSize int) int {
	return SlotsStart(footerSize, footer.NumSlots) - int(footer.FreeSpaceOffset)
}

// Capacity returns the maximum payload an empty page with this footer
// size could ever hold (record bytes + one slot).
func Capacity(footerSize int) int {
	return pf.PageSize - footerSize
}

// InitPage zeroes buf and writes an empty common footer stamped with
// pageNumber. Any footer extension (B+ tree fields) is left zeroed; the
// caller fills those in afterward.
func InitPage(buf []byte, pageNumber uint32) {
	for i := range buf {
		buf[i] = 0
	}
	WriteFooter(buf, Footer{PageNumber: pageNumber})
}

// InsertIntoPage attempts to place record (already physically encoded)
// into buf, appending a new slot. It returns ok=false without mutating
// buf if there is insufficient room; the caller decides how to react
// (record-engine retries on another page; the B+ tree treats it as
// BTreeIndexPageFull and splits).
func InsertIntoPage(buf []byte, footerSize int, record []byte) (slotNum uint32, ok bool) {
	footer := ReadFooter(buf)
	required := len(record) + SlotSize
	if FreeBytes(footer, footerSize) < required {
		return 0, false
	}
	off := int(footer.FreeSpaceOffset)
	copy(buf[off:off+len(record)], record)

	slotNum = footer.NumSlots
	WriteSlot(buf, footerSize, slotNum, Slot{
		Size:       uint16(len(record)),
		PageOffset: uint16(off),
	})

	footer.FreeSpaceOffset += uint32(len(record))
	footer.NumSlots++
	WriteFooter(buf, footer)
	return slotNum, true
}

// nextLiveOffsetAfter returns the smallest PageOffset, strictly greater
// than after, among slots that currently hold live bytes on this page
// (forwarders and tombstones contribute nothing). If none exists, it
// returns the current free-space offset.
func nextLiveOffsetAfter(buf []byte, footerSize int, footer Footer, after uint16) uint16 {
	best := uint16(footer.FreeSpaceOffset)
	for i := uint32(0); i < footer.NumSlots; i++ {
		s := ReadSlot(buf, footerSize, i)
		if s.Size == 0 {
			continue
		}
		if s.PageOffset > after && s.PageOffset < best {
			best = s.PageOffset
		}
	}
	return best
}

// UpdateInPlace attempts to overwrite the bytes of slotNum with record
// without relocating it. It succeeds either by extending
// the free-space offset (slotNum holds the physically last live record
// and there is room before the slot directory) or by writing within the
// byte span up to the next live record (shrinking always fits; growing
// fits if a trailing gap from an earlier delete/forward covers it).
func UpdateInPlace(buf []byte, footerSize int, slotNum uint32, record []byte) bool {
	footer := ReadFooter(buf)
	slot := ReadSlot(buf, footerSize, slotNum)
	newSize := uint16(len(record))

	isLast := int(slot.PageOffset)+int(slot.Size) == int(footer.FreeSpaceOffset)
	if isLast {
		delta := int(newSize) - int(slot.Size)
		newFree := int(footer.FreeSpaceOffset) + delta
		if newFree <= SlotsStart(footerSize, footer.NumSlots) && newFree >= int(slot.PageOffset) {
			copy(buf[slot.PageOffset:int(slot.PageOffset)+len(record)], record)
			slot.Size = newSize
			WriteSlot(buf, footerSize, slotNum, slot)
			footer.FreeSpaceOffset = uint32(newFree)
			WriteFooter(buf, footer)
			return true
		}
	}

	if newSize <= slot.Size {
		copy(buf[slot.PageOffset:int(slot.PageOffset)+len(record)], record)
		freed := slot.Size - newSize
		slot.Size = newSize
		WriteSlot(buf, footerSize, slotNum, slot)
		if freed > 0 {
			footer.GapSize += uint32(freed)
			WriteFooter(buf, footer)
		}
		return true
	}

	room := nextLiveOffsetAfter(buf, footerSize, footer, slot.PageOffset) - slot.PageOffset
	if newSize <= room {
		copy(buf[slot.PageOffset:int(slot.PageOffset)+len(record)], record)
		reclaimed := newSize - slot.Size
		slot.Size = newSize
		WriteSlot(buf, footerSize, slotNum, slot)
		if footer.GapSize >= uint32(reclaimed) {
			footer.GapSize -= uint32(reclaimed)
		} else {
			footer.GapSize = 0
		}
		WriteFooter(buf, footer)
		return true
	}
	return false
}

// DeleteSlot tombstones slotNum, contracting a trailing run of dead
// slots and reclaiming free-space-offset bytes, or else charging the
// freed bytes to gap_size.
func DeleteSlot(buf []byte, footerSize int, slotNum uint32) {
	footer := ReadFooter(buf)
	slot := ReadSlot(buf, footerSize, slotNum)
	freed := slot.Size

	slot.Size = 0
	slot.ForwardPage = 0
	slot.ForwardSlot = 0
	slot.IsAnchor = false
	WriteSlot(buf, footerSize, slotNum, slot)

	if slotNum == footer.NumSlots-1 {
		footer.FreeSpaceOffset -= uint32(freed)
		footer.NumSlots--
		for footer.NumSlots > 0 {
			s := ReadSlot(buf, footerSize, footer.NumSlots-1)
			if s.Size == 0 && s.ForwardPage == 0 {
				footer.NumSlots--
				continue
			}
			break
		}
	} else if freed > 0 {
		footer.GapSize += uint32(freed)
	}
	WriteFooter(buf, footer)
}

// Compact rewrites every live record to the front of the page, keeping
// slot numbers stable (callers may hold RIDs) while resetting gap_size
// to zero. Forwarders and tombstones are left
// untouched; they contribute zero bytes either way.
func Compact(buf []byte, footerSize int) {
	footer := ReadFooter(buf)
	type rec struct {
		slotNum uint32
		data    []byte
	}
	var live []rec
	for i := uint32(0); i < footer.NumSlots; i++ {
		s := ReadSlot(buf, footerSize, i)
		if s.Size == 0 {
			continue
		}
		data := make([]byte, s.Size)
		copy(data, buf[s.PageOffset:int(s.PageOffset)+int(s.Size)])
		live = append(live, rec{slotNum: i, data: data})
	}

	off := 0
	for _, r := range live {
		copy(buf[off:off+len(r.data)], r.data)
		s := ReadSlot(buf, footerSize, r.slotNum)
		s.PageOffset = uint16(off)
		WriteSlot(buf, footerSize, r.slotNum, s)
		off += len(r.data)
	}
	// Zero any stale bytes between the new free-space offset and the old
	// one so no dead bytes are misread as live by a buggy future reader.
	for i := off; i < int(footer.FreeSpaceOffset); i++ {
		buf[i] = 0
	}
	footer.FreeSpaceOffset = uint32(off)
	footer.GapSize = 0
	WriteFooter(buf, footer)
}

// validatePage checks that buf's stamped page_number matches expected,
// surfacing PageNumInvalid otherwise.
func validatePage(buf []byte, expected uint32, op string) error {
	f := ReadFooter(buf)
	if f.PageNumber != expected {
		return dberr.New(dberr.PageNumInvalid, op)
	}
	return nil
}
