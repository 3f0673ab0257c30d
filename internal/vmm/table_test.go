package vmm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTable_InsertIsFirstWriteWins(t *testing.T) {
	tb := NewTable()
	k := MappingKey{RequestID: 1, Offset: testPageSize, Layer: 2}
	if !tb.Insert(k, MappingValue{KPage: 1, VPage: 2}) {
		t.Fatalf("first insert rejected")
	}
	if tb.Insert(k, MappingValue{KPage: 3, VPage: 4}) {
		t.Fatalf("second insert accepted")
	}
	if v, _ := tb.Get(k); v != (MappingValue{KPage: 1, VPage: 2}) {
		t.Fatalf("value overwritten: %+v", v)
	}
}

func TestTable_AscendOrder(t *testing.T) {
	tb := NewTable()
	keys := []MappingKey{
		{RequestID: 2, Layer: 0, Offset: 0},
		{RequestID: 1, Layer: 1, Offset: 0},
		{RequestID: 1, Layer: 0, Offset: 2 * testPageSize},
		{RequestID: 1, Layer: 0, Offset: 0},
	}
	for i, k := range keys {
		tb.Insert(k, MappingValue{KPage: PageHandle(i + 1), VPage: PageHandle(i + 10)})
	}
	var got []MappingKey
	tb.Ascend(func(k MappingKey, _ MappingValue) bool {
		got = append(got, k)
		return true
	})
	want := []MappingKey{keys[3], keys[2], keys[1], keys[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	tb.Clear()
	if tb.Len() != 0 || tb.Has(keys[0]) {
		t.Fatalf("clear left entries")
	}
}
