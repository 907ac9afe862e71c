package btree

import (
	"encoding/binary"

	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

// extensionSize is the byte size of the B+ tree footer extension:
// is_leaf (1 byte + 3 padding), first_record_rid (two uint32),
// next_leaf_page (uint32), left_child_page (uint32).
const extensionSize = 4 + 8 + 4 + 4

// FooterSize is the total footer region (common prefix + BT extension)
// every leaf/non-leaf page reserves; the slot directory grows backward
// from pf.PageSize - FooterSize.
const FooterSize = recordengine.CommonFooterSize + extensionSize

// Footer is the full B+ tree page footer: the common recordengine
// prefix plus the BT-specific extension fields.
type Footer struct {
	recordengine.Footer
	IsLeaf         bool
	FirstRecordRID attribute.RID
	NextLeafPage   uint32
	LeftChildPage  uint32
}

func extensionOffset() int { return pf.PageSize - FooterSize }

// ReadBTFooter reads the full footer (common + extension) from buf.
func ReadBTFooter(buf []byte) Footer {
	common := recordengine.ReadFooter(buf)
	off := extensionOffset()
	var f Footer
	f.Footer = common
	f.IsLeaf = buf[off] != 0
	f.FirstRecordRID.PageNum = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	f.FirstRecordRID.SlotNum = binary.LittleEndian.Uint32(buf[off+8 : off+12])
	f.NextLeafPage = binary.LittleEndian.Uint32(buf[off+12 : off+16])
	f.LeftChildPage = binary.LittleEndian.Uint32(buf[off+16 : off+20])
	return f
}

// WriteBTFooter writes f back to buf.
func WriteBTFooter(buf []byte, f Footer) {
	recordengine.WriteFooter(buf, f.Footer)
	off := extensionOffset()
	if f.IsLeaf {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	buf[off+1], buf[off+2], buf[off+3] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[off+4:off+8], f.FirstRecordRID.PageNum)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], f.FirstRecordRID.SlotNum)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], f.NextLeafPage)
	binary.LittleEndian.PutUint32(buf[off+16:off+20], f.LeftChildPage)
}

// InitBTPage zeroes buf and stamps an empty footer for pageNumber,
// leaf-ness isLeaf, and an initially absent chain/children.
func InitBTPage(buf []byte, pageNumber uint32, isLeaf bool) {
	recordengine.InitPage(buf, pageNumber)
	WriteBTFooter(buf, Footer{
		Footer:         recordengine.ReadFooter(buf),
		IsLeaf:         isLeaf,
		FirstRecordRID: attribute.NullRID,
	})
}
