// Package btree implements the clustered B+ tree index: leaf and
// non-leaf pages are ordinary record-engine pages whose footer is
// extended with is_leaf, first_record_rid, next_leaf_page and
// left_child_page, and whose records are index entries linked into a
// per-page intrusive sorted chain via each entry's next_slot field.
package btree

import (
	"encoding/binary"

	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
)

// Entry is one index record. For a leaf entry, Ref is the base
// table's data RID; for a non-leaf entry, Ref.PageNum is a child page
// number. NextSlot links to the entry's successor in the page's sorted
// intrusive chain, attribute.NullRID terminating it.
type Entry struct {
	NextSlot attribute.RID
	Ref      attribute.RID
	Key      attribute.Value
}

// entryFixedSize is the size of the NextSlot and Ref RIDs (4 uint32
// fields) preceding the variable-length key.
const entryFixedSize = 4 * 4

// EncodeEntry produces the physical bytes recordengine.InsertIntoPage
// stores for e. A VarChar key over attribute.MaxKeySize is rejected
// here; the bound applies to index keys only, never to table tuples.
func EncodeEntry(e Entry) ([]byte, error) {
	if e.Key.Type == attribute.VarChar && len(e.Key.Bytes) > attribute.MaxKeySize {
		return nil, dberr.New(dberr.AttributeLengthInvalid, "btree.EncodeEntry")
	}
	keyBytes, err := e.Key.AppendTo(nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, entryFixedSize+len(keyBytes))
	binary.LittleEndian.PutUint32(out[0:4], e.NextSlot.PageNum)
	binary.LittleEndian.PutUint32(out[4:8], e.NextSlot.SlotNum)
	binary.LittleEndian.PutUint32(out[8:12], e.Ref.PageNum)
	binary.LittleEndian.PutUint32(out[12:16], e.Ref.SlotNum)
	copy(out[entryFixedSize:], keyBytes)
	return out, nil
}

// DecodeEntry parses an entry of the given key type from physical.
func DecodeEntry(physical []byte, keyType attribute.Type) (Entry, error) {
	if len(physical) < entryFixedSize {
		return Entry{}, dberr.New(dberr.RecordSizeInvalid, "btree.DecodeEntry")
	}
	var e Entry
	e.NextSlot.PageNum = binary.LittleEndian.Uint32(physical[0:4])
	e.NextSlot.SlotNum = binary.LittleEndian.Uint32(physical[4:8])
	e.Ref.PageNum = binary.LittleEndian.Uint32(physical[8:12])
	e.Ref.SlotNum = binary.LittleEndian.Uint32(physical[12:16])
	key, _, err := attribute.Decode(physical, entryFixedSize, keyType)
	if err != nil {
		return Entry{}, err
	}
	e.Key = key
	return e, nil
}

// EncodedSize returns the physical byte size an entry with this key
// value would occupy, without actually encoding it.
func EncodedSize(key attribute.Value) int {
	return entryFixedSize + key.EncodedSize()
}
