package types

import "testing"

func TestItemID_Key(t *testing.T) {
	ids := []ItemID{1, 255, 256, 1 << 40}
	for _, id := range ids {
		if got := ItemIDFromKey(id.Key()); got != id {
			t.Errorf("ItemIDFromKey(Key(%d)) = %d", id, got)
		}
	}

	// Big-endian keys sort like the ids themselves.
	if string(ItemID(2).Key()) >= string(ItemID(256).Key()) {
		t.Error("key order should follow numeric order")
	}

	if ItemIDFromKey([]byte{1, 2}) != 0 {
		t.Error("short key should decode to zero")
	}
}

func TestSortItemIDs(t *testing.T) {
	ids := []ItemID{9, 3, 7, 1}
	SortItemIDs(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Fatalf("not sorted: %v", ids)
		}
	}
	if !ItemID(0).IsZero() || ItemID(1).IsZero() {
		t.Error("IsZero mismatch")
	}
}
