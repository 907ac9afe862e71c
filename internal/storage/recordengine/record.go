package recordengine

import (
	"encoding/binary"

	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
)

// Descriptor lists the typed attributes of a tuple, in declared order.
// It carries no names; the catalog layer owns naming.
type Descriptor []attribute.Type

// recordHeaderSize returns the byte size of the physical record header
// for a tuple of n attributes: num_attributes (u32) plus n+1 offsets
// (u32 each): one start offset per attribute, plus a trailing
// end_offset.
func recordHeaderSize(n int) int {
	return 4 + 4*(n+1)
}

// EncodeRecord builds the physical on-page bytes for a tuple: the
// record header (attribute count plus per-field offsets into the
// payload) followed by the wire-encoded payload.
func EncodeRecord(desc Descriptor, values []attribute.Value) ([]byte, error) {
	if len(values) != len(desc) {
		return nil, dberr.New(dberr.AttributeInvalidType, "recordengine.EncodeRecord")
	}
	payload := make([]byte, 0, 64)
	offsets := make([]uint32, len(desc)+1)
	for i, v := range values {
		if v.Type != desc[i] {
			return nil, dberr.New(dberr.AttributeInvalidType, "recordengine.EncodeRecord")
		}
		offsets[i] = uint32(len(payload))
		var err error
		payload, err = v.AppendTo(payload)
		if err != nil {
			return nil, err
		}
	}
	offsets[len(desc)] = uint32(len(payload))

	hdrSize := recordHeaderSize(len(desc))
	out := make([]byte, hdrSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(desc)))
	off := 4
	for _, o := range offsets {
		binary.LittleEndian.PutUint32(out[off:off+4], o)
		off += 4
	}
	copy(out[hdrSize:], payload)
	return out, nil
}

// recordOffsets reads the header of a physical record and returns the
// attribute count, the (n+1)-entry offset table, and the index at which
// the payload begins.
func recordOffsets(physical []byte) (numAttrs int, offsets []uint32, payloadStart int, err error) {
	if len(physical) < 4 {
		return 0, nil, 0, dberr.New(dberr.RecordSizeInvalid, "recordengine.recordOffsets")
	}
	numAttrs = int(binary.LittleEndian.Uint32(physical[0:4]))
	hdrSize := recordHeaderSize(numAttrs)
	if len(physical) < hdrSize {
		return 0, nil, 0, dberr.New(dberr.RecordSizeInvalid, "recordengine.recordOffsets")
	}
	offsets = make([]uint32, numAttrs+1)
	off := 4
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(physical[off : off+4])
		off += 4
	}
	return numAttrs, offsets, hdrSize, nil
}

// DecodePayload strips the physical record header and returns the raw
// tuple wire bytes.
func DecodePayload(physical []byte) ([]byte, error) {
	_, offsets, payloadStart, err := recordOffsets(physical)
	if err != nil {
		return nil, err
	}
	end := payloadStart + int(offsets[len(offsets)-1])
	if end > len(physical) {
		return nil, dberr.New(dberr.RecordSizeInvalid, "recordengine.DecodePayload")
	}
	out := make([]byte, end-payloadStart)
	copy(out, physical[payloadStart:end])
	return out, nil
}

// DecodeTuple decodes every field of a physical record according to
// desc, using the header's offsets for O(1) per-field positioning.
func DecodeTuple(physical []byte, desc Descriptor) ([]attribute.Value, error) {
	numAttrs, offsets, payloadStart, err := recordOffsets(physical)
	if err != nil {
		return nil, err
	}
	if numAttrs != len(desc) {
		return nil, dberr.New(dberr.AttributeInvalidType, "recordengine.DecodeTuple")
	}
	values := make([]attribute.Value, numAttrs)
	for i := 0; i < numAttrs; i++ {
		start := payloadStart + int(offsets[i])
		end := payloadStart + int(offsets[i+1])
		if end > len(physical) || start > end {
			return nil, dberr.New(dberr.RecordSizeInvalid, "recordengine.DecodeTuple")
		}
		v, _, err := attribute.Decode(physical[start:end], 0, desc[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// ReadAttribute decodes only field attrIndex of a physical record,
// seeking directly via the header's offset table.
func ReadAttribute(physical []byte, desc Descriptor, attrIndex int) (attribute.Value, error) {
	if attrIndex < 0 || attrIndex >= len(desc) {
		return attribute.Value{}, dberr.New(dberr.AttributeInvalidType, "recordengine.ReadAttribute")
	}
	numAttrs, offsets, payloadStart, err := recordOffsets(physical)
	if err != nil {
		return attribute.Value{}, err
	}
	if numAttrs != len(desc) {
		return attribute.Value{}, dberr.New(dberr.AttributeInvalidType, "recordengine.ReadAttribute")
	}
	start := payloadStart + int(offsets[attrIndex])
	end := payloadStart + int(offsets[attrIndex+1])
	if end > len(physical) || start > end {
		return attribute.Value{}, dberr.New(dberr.RecordSizeInvalid, "recordengine.ReadAttribute")
	}
	v, _, err := attribute.Decode(physical[start:end], 0, desc[attrIndex])
	return v, err
}
