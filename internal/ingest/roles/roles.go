package roles

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleDate   Role = "date"
	RoleGroup  Role = "group"
	RoleTarget Role = "target"
)

// Order is the fixed evaluation priority. A column claimed by an earlier role is
// never offered to a later one.
var Order = []Role{RoleDate, RoleGroup, RoleTarget}

// RoleMap holds the column chosen for each role. An empty string means unresolved.
type RoleMap struct {
	Date   string `json:"date"`
	Group  string `json:"group"`
	Target string `json:"target"`
}

func (m RoleMap) Get(r Role) string {
	switch r {
	case RoleDate:
		return m.Date
	case RoleGroup:
		return m.Group
	case RoleTarget:
		return m.Target
	default:
		return ""
	}
}

func (m *RoleMap) Set(r Role, column string) {
	switch r {
	case RoleDate:
		m.Date = column
	case RoleGroup:
		m.Group = column
	case RoleTarget:
		m.Target = column
	}
}

// Missing lists unresolved roles in evaluation order.
func (m RoleMap) Missing() []Role {
	var out []Role
	for _, r := range Order {
		if strings.TrimSpace(m.Get(r)) == "" {
			out = append(out, r)
		}
	}
	return out
}

type Rule struct {
	Role     Role
	Patterns []string
}

type Patterns []Rule

func DefaultPatterns() Patterns {
	return Patterns{
		{Role: RoleDate, Patterns: []string{"date", "order_date", "orderdate", "timestamp", "day", "time"}},
		{Role: RoleGroup, Patterns: []string{"item", "product", "menu", "name", "category", "sku"}},
		{Role: RoleTarget, Patterns: []string{"sales", "quantity", "qty", "revenue", "amount", "units"}},
	}
}

func (p Patterns) For(r Role) []string {
	for _, rule := range p {
		if rule.Role == r {
			return rule.Patterns
		}
	}
	return nil
}

// Infer picks, for each role in Order, the first column in file order whose
// lower-cased name contains any of the role's patterns.
func Infer(columns []string, patterns Patterns) RoleMap {
	var out RoleMap
	taken := make(map[int]bool, len(columns))
	for _, role := range Order {
		needles := lowered(patterns.For(role))
		if len(needles) == 0 {
			continue
		}
		for i, col := range columns {
			if taken[i] {
				continue
			}
			if matchesAny(strings.ToLower(col), needles) {
				out.Set(role, col)
				taken[i] = true
				break
			}
		}
	}
	return out
}

func matchesAny(name string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

func lowered(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

type patternFile struct {
	Date   []string `yaml:"date"`
	Group  []string `yaml:"group"`
	Target []string `yaml:"target"`
}

// LoadPatterns reads a YAML document with date/group/target pattern lists.
// Lists omitted from the document keep their defaults; role priority never changes.
func LoadPatterns(r io.Reader) (Patterns, error) {
	var pf patternFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode role patterns: %w", err)
	}
	out := DefaultPatterns()
	overrides := map[Role][]string{RoleDate: pf.Date, RoleGroup: pf.Group, RoleTarget: pf.Target}
	for i := range out {
		if list := lowered(overrides[out[i].Role]); len(list) > 0 {
			out[i].Patterns = list
		}
	}
	return out, nil
}
