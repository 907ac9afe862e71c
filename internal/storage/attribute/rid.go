package attribute

import "fmt"

// RID identifies one record instance: the page it lives on and its slot
// number within that page. PageNum == 0 is reserved as the null RID.
type RID struct {
	PageNum uint32
	SlotNum uint32
}

// NullRID is the sentinel RID used to terminate intrusive chains and to
// mark "no child"/"no forward target".
var NullRID = RID{}

// IsNull reports whether r is the reserved null RID.
func (r RID) IsNull() bool { return r.PageNum == 0 }

func (r RID) String() string { return fmt.Sprintf("(%d,%d)", r.PageNum, r.SlotNum) }
