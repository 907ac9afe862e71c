package recordengine

import (
	"github.com/chriswood/pagedb/internal/storage/pf"
)

// classify returns the index of the freespace list whose cutoff is the
// largest value <= freeBytes.
func classify(h *pf.Header, freeBytes int) uint32 {
	best := uint32(0)
	for i, fl := range h.FreespaceLists {
		if int(fl.Cutoff) <= freeBytes {
			best = uint32(i)
		}
	}
	return best
}

// unlinkNeighbors fixes up the previous/next pages' links and, if pageNum
// was a list head, the header's head pointer, detaching pageNum from
// whichever list oldIndex/prev/next describe. It never touches pageNum's
// own footer; the caller is about to rewrite or reclassify it.
func unlinkNeighbors(fh *pf.FileHandle, pageNum, oldIndex, prev, next uint32) error {
	if prev != 0 {
		prevBuf := make([]byte, pf.PageSize)
		if err := fh.ReadPage(prev, prevBuf); err != nil {
			return err
		}
		prevFooter := ReadFooter(prevBuf)
		prevFooter.NextPage = next
		WriteFooter(prevBuf, prevFooter)
		if err := fh.WritePage(prev, prevBuf); err != nil {
			return err
		}
	} else if fh.Header().FreespaceLists[oldIndex].ListHead == pageNum {
		fh.Header().FreespaceLists[oldIndex].ListHead = next
	}
	if next != 0 {
		nextBuf := make([]byte, pf.PageSize)
		if err := fh.ReadPage(next, nextBuf); err != nil {
			return err
		}
		nextFooter := ReadFooter(nextBuf)
		nextFooter.PrevPage = prev
		WriteFooter(nextBuf, nextFooter)
		if err := fh.WritePage(next, nextBuf); err != nil {
			return err
		}
	}
	return nil
}

// UnlinkFromFreespaceList detaches pageNum from the freespace list
// described by old (its footer as last known on disk) without writing
// pageNum's own page. Used before a page's content is wholly replaced:
// a B+ tree split rewrites both halves of a page from scratch, and the
// old linkage would otherwise be lost the instant the page is
// reinitialized.
func UnlinkFromFreespaceList(fh *pf.FileHandle, pageNum uint32, old Footer) error {
	if err := unlinkNeighbors(fh, pageNum, old.FreespaceListIndex, old.PrevPage, old.NextPage); err != nil {
		return err
	}
	return fh.FlushHeader()
}

// spliceFront inserts pageNum at the head of freespace list newIndex,
// stamping its footer's link fields in buf and fixing up its new
// neighbor.
func spliceFront(fh *pf.FileHandle, buf []byte, footer Footer, pageNum, newIndex uint32) error {
	newHead := fh.Header().FreespaceLists[newIndex].ListHead
	footer.FreespaceListIndex = newIndex
	footer.PrevPage = 0
	footer.NextPage = newHead
	WriteFooter(buf, footer)
	if err := fh.WritePage(pageNum, buf); err != nil {
		return err
	}
	if newHead != 0 {
		headBuf := make([]byte, pf.PageSize)
		if err := fh.ReadPage(newHead, headBuf); err != nil {
			return err
		}
		hf := ReadFooter(headBuf)
		hf.PrevPage = pageNum
		WriteFooter(headBuf, hf)
		if err := fh.WritePage(newHead, headBuf); err != nil {
			return err
		}
	}
	fh.Header().FreespaceLists[newIndex].ListHead = pageNum
	return fh.FlushHeader()
}

// Reclassify recomputes pageNum's free-byte class from buf and splices it
// out of whatever freespace list it was linked into (if any) and onto
// the front of the new one, updating both lists' neighbor links and head
// pointers in the file header. buf must already reflect the
// page's final content; Reclassify writes the page back itself.
//
// Placement is always re-derived rather than short-circuited on an
// unchanged index, so calling this on a page whose link fields were just
// zeroed by a fresh InitPage is safe: it is simply treated as unlinked
// and spliced in.
func Reclassify(fh *pf.FileHandle, buf []byte, footerSize int, pageNum uint32) error {
	footer := ReadFooter(buf)
	newIndex := classify(fh.Header(), FreeBytes(footer, footerSize))

	oldIndex := footer.FreespaceListIndex
	prev, next := footer.PrevPage, footer.NextPage
	linked := prev != 0 || next != 0 || fh.Header().FreespaceLists[oldIndex].ListHead == pageNum
	if linked {
		if err := unlinkNeighbors(fh, pageNum, oldIndex, prev, next); err != nil {
			return err
		}
	}
	return spliceFront(fh, buf, footer, pageNum, newIndex)
}

// AppendFreshPage appends one new page, initializes its common footer
// (pageNumber = new page number) and classifies it into whichever
// freespace list its empty capacity belongs to (the largest, ordinarily).
// The caller is responsible for writing any footer-extension fields and
// re-writing the page before further use. The B+ tree does not use this
// function; it allocates its pages through its own appendFreshBTPage.
func AppendFreshPage(fh *pf.FileHandle, footerSize int) (uint32, []byte, error) {
	buf := make([]byte, pf.PageSize)
	pageNum, err := fh.AppendPage(buf)
	if err != nil {
		return 0, nil, err
	}
	InitPage(buf, pageNum)
	if err := Reclassify(fh, buf, footerSize, pageNum); err != nil {
		return 0, nil, err
	}
	return pageNum, buf, nil
}

// findPageWithRoom walks the freespace lists in increasing cutoff order
// and returns the page number of the head of the first non-empty list
// whose cutoff is >= required bytes, or 0 if none qualifies.
func findPageWithRoom(h *pf.Header, required int) uint32 {
	for _, fl := range h.FreespaceLists {
		if fl.ListHead != 0 && int(fl.Cutoff) >= required {
			return fl.ListHead
		}
	}
	return 0
}
