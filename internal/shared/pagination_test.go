package shared

import "testing"

func TestPageRequestClampsBounds(t *testing.T) {
	p := PageRequest(0, 0)
	if p.Page != 1 || p.PerPage != 20 {
		t.Fatalf("expected defaults (1, 20), got (%d, %d)", p.Page, p.PerPage)
	}
	if p := PageRequest(3, 1000); p.PerPage != 20 {
		t.Fatalf("oversized per_page must fall back to default, got %d", p.PerPage)
	}
}

func TestNewPaginationComputesTotalPages(t *testing.T) {
	p := NewPagination(2, 10, 41)
	if p.TotalPages != 5 {
		t.Fatalf("expected 5 total pages, got %d", p.TotalPages)
	}
	if p.Total != 41 || p.Page != 2 || p.PerPage != 10 {
		t.Fatalf("unexpected pagination: %+v", p)
	}

	if p := NewPagination(1, 10, 0); p.TotalPages != 0 {
		t.Fatalf("empty set must yield 0 pages, got %d", p.TotalPages)
	}
}
