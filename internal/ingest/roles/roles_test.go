package roles

import (
	"strings"
	"testing"
)

func TestInfer(t *testing.T) {
	cases := []struct {
		name    string
		columns []string
		want    RoleMap
	}{
		{
			name:    "order export",
			columns: []string{"order_date", "item", "qty"},
			want:    RoleMap{Date: "order_date", Group: "item", Target: "qty"},
		},
		{
			name:    "case insensitive",
			columns: []string{"Store", "DATE", "Menu Name", "Total Sales"},
			want:    RoleMap{Date: "DATE", Group: "Menu Name", Target: "Total Sales"},
		},
		{
			name:    "first column in file order wins",
			columns: []string{"ship_date", "order_date", "product", "item", "revenue"},
			want:    RoleMap{Date: "ship_date", Group: "product", Target: "revenue"},
		},
		{
			name:    "unmatched role stays absent",
			columns: []string{"date", "store", "region"},
			want:    RoleMap{Date: "date"},
		},
		{
			name:    "no columns",
			columns: nil,
			want:    RoleMap{},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Infer(tc.columns, DefaultPatterns())
			if got != tc.want {
				t.Fatalf("want=%+v got=%+v", tc.want, got)
			}
		})
	}
}

func TestInferDoesNotReassignColumn(t *testing.T) {
	// "sales_date" matches both the date and the target lists; date is evaluated first.
	got := Infer([]string{"sales_date", "menu"}, DefaultPatterns())
	if got.Date != "sales_date" {
		t.Fatalf("date: want sales_date got=%q", got.Date)
	}
	if got.Target != "" {
		t.Fatalf("target must stay absent once sales_date is taken, got=%q", got.Target)
	}
}

func TestInferIsDeterministic(t *testing.T) {
	cols := []string{"timestamp", "sku", "amount", "product_name", "units"}
	first := Infer(cols, DefaultPatterns())
	for i := 0; i < 50; i++ {
		if got := Infer(cols, DefaultPatterns()); got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestMissing(t *testing.T) {
	m := RoleMap{Group: "item"}
	missing := m.Missing()
	if len(missing) != 2 || missing[0] != RoleDate || missing[1] != RoleTarget {
		t.Fatalf("unexpected missing roles: %v", missing)
	}
}

func TestLoadPatternsOverridesOnlyGivenRoles(t *testing.T) {
	doc := "group:\n  - Store\n  - branch\n"
	p, err := LoadPatterns(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadPatterns: %v", err)
	}
	if got := p.For(RoleGroup); len(got) != 2 || got[0] != "store" {
		t.Fatalf("group patterns: %v", got)
	}
	if got := p.For(RoleDate); len(got) == 0 || got[0] != "date" {
		t.Fatalf("date patterns should keep defaults: %v", got)
	}

	m := Infer([]string{"day", "branch_name", "units"}, p)
	if m.Group != "branch_name" {
		t.Fatalf("override not applied: %+v", m)
	}
}

func TestLoadPatternsRejectsUnknownRole(t *testing.T) {
	if _, err := LoadPatterns(strings.NewReader("price:\n  - cost\n")); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}
