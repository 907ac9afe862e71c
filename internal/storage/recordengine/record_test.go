package recordengine

import (
	"testing"

	"github.com/chriswood/pagedb/internal/storage/attribute"
)

func TestEncodeDecodeTupleRoundTrip(t *testing.T) {
	desc := Descriptor{attribute.Int, attribute.VarChar, attribute.Real}
	values := []attribute.Value{
		attribute.IntValue(17),
		attribute.VarCharString("hello world"),
		attribute.RealValue(3.25),
	}
	physical, err := EncodeRecord(desc, values)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	got, err := DecodeTuple(physical, desc)
	if err != nil {
		t.Fatalf("DecodeTuple: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(got))
	}
	if got[0].IntVal != 17 {
		t.Errorf("attr 0: got %d, want 17", got[0].IntVal)
	}
	if string(got[1].Bytes) != "hello world" {
		t.Errorf("attr 1: got %q", got[1].Bytes)
	}
	if got[2].RealVal != 3.25 {
		t.Errorf("attr 2: got %v, want 3.25", got[2].RealVal)
	}
}

func TestReadAttributeSingleField(t *testing.T) {
	desc := Descriptor{attribute.Int, attribute.VarChar}
	values := []attribute.Value{attribute.IntValue(9), attribute.VarCharString("xyz")}
	physical, err := EncodeRecord(desc, values)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	v, err := ReadAttribute(physical, desc, 1)
	if err != nil {
		t.Fatalf("ReadAttribute: %v", err)
	}
	if string(v.Bytes) != "xyz" {
		t.Errorf("got %q, want xyz", v.Bytes)
	}
}

func TestEncodeRecordTypeMismatch(t *testing.T) {
	desc := Descriptor{attribute.Int}
	_, err := EncodeRecord(desc, []attribute.Value{attribute.VarCharString("nope")})
	if err == nil {
		t.Fatal("expected a type-mismatch error")
	}
}

func TestDecodePayloadStripsHeader(t *testing.T) {
	desc := Descriptor{attribute.Int}
	physical, err := EncodeRecord(desc, []attribute.Value{attribute.IntValue(5)})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	payload, err := DecodePayload(physical)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(payload) != 4 {
		t.Fatalf("expected a 4-byte Int payload, got %d bytes", len(payload))
	}
}
