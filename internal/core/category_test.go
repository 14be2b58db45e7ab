package core

import "testing"

func TestCategoryMapping(t *testing.T) {
	cases := []struct {
		name string
		id   int64
	}{
		{"Еда", 4},
		{"Развлечения", 5},
		{"Транспорт", 6},
		{"Другое", 7},
	}
	for _, tc := range cases {
		if got := CategoryID(tc.name); got != tc.id {
			t.Errorf("CategoryID(%q) = %d, want %d", tc.name, got, tc.id)
		}
		if got := CategoryName(tc.id); got != tc.name {
			t.Errorf("CategoryName(%d) = %q, want %q", tc.id, got, tc.name)
		}
	}
}

func TestCategoryFallback(t *testing.T) {
	if got := CategoryID("Коммуналка"); got != 7 {
		t.Errorf("unknown category should map to 7, got %d", got)
	}
	if got := CategoryName(42); got != DefaultCategory {
		t.Errorf("unknown id should map to %q, got %q", DefaultCategory, got)
	}
}
