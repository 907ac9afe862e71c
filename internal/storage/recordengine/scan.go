package recordengine

import (
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/pf"
)

// CompOp enumerates the comparison operators a record scan's predicate
// can apply to one attribute.
type CompOp int

const (
	NoOp CompOp = iota
	EQ
	LT
	GT
	LE
	GE
	NE
)

func (op CompOp) matches(cmp int) bool {
	switch op {
	case NoOp:
		return true
	case EQ:
		return cmp == 0
	case LT:
		return cmp < 0
	case GT:
		return cmp > 0
	case LE:
		return cmp <= 0
	case GE:
		return cmp >= 0
	case NE:
		return cmp != 0
	default:
		return false
	}
}

// RecordIterator walks a record-engine file in physical (page, slot)
// order, yielding RIDs whose record satisfies the predicate, projected
// down to the requested attributes. It is single-threaded
// and lazy, like the B+ tree's IndexIterator.
type RecordIterator struct {
	e            *Engine
	desc         Descriptor
	condAttr     int
	op           CompOp
	value        attribute.Value
	projected    []int
	page         uint32
	slot         uint32
	buf          []byte
	footerNSlots uint32
}

// Scan opens a RecordIterator. condAttr/op/value select which
// live records are yielded; op == NoOp yields every live record.
// projected lists the attribute indexes to return per match, in order.
func (e *Engine) Scan(desc Descriptor, condAttr int, op CompOp, value attribute.Value, projected []int) *RecordIterator {
	return &RecordIterator{
		e:         e,
		desc:      desc,
		condAttr:  condAttr,
		op:        op,
		value:     value,
		projected: projected,
		page:      1,
		slot:      0,
	}
}

// Next advances the iterator and returns the next matching (rid,
// projected bytes) pair, or dberr.RecordEOF once every page has been
// scanned.
func (it *RecordIterator) Next() (attribute.RID, []attribute.Value, error) {
	for {
		if it.buf == nil {
			if it.page > it.e.fh.NumPages() {
				return attribute.RID{}, nil, dberr.RecordEOF
			}
			buf := make([]byte, pf.PageSize)
			if err := it.e.fh.ReadPage(it.page, buf); err != nil {
				return attribute.RID{}, nil, err
			}
			it.buf = buf
			it.footerNSlots = ReadFooter(buf).NumSlots
			it.slot = 0
		}

		if it.slot >= it.footerNSlots {
			it.buf = nil
			it.page++
			continue
		}

		slotNum := it.slot
		it.slot++
		s := ReadSlot(it.buf, footerSize, slotNum)
		if !s.IsLive() {
			// Tombstones and forwarder origins (Size == 0) are skipped;
			// a forwarded record's anchor slot is live and gets visited
			// directly when physical order reaches its own page, so
			// each record is yielded exactly once.
			continue
		}
		physical := it.buf[s.PageOffset : int(s.PageOffset)+int(s.Size)]
		values, err := DecodeTuple(physical, it.desc)
		if err != nil {
			return attribute.RID{}, nil, err
		}
		if it.op != NoOp {
			cmp := attribute.Compare(values[it.condAttr], it.value)
			if !it.op.matches(cmp) {
				continue
			}
		}
		out := make([]attribute.Value, len(it.projected))
		for i, idx := range it.projected {
			out[i] = values[idx]
		}
		return attribute.RID{PageNum: it.page, SlotNum: slotNum}, out, nil
	}
}

// IsLive reports whether the slot currently addresses bytes on its own
// page, i.e. is neither a tombstone nor a forwarder.
func (s Slot) IsLive() bool { return s.Size > 0 }
