// Package taxonomy defines the category/subcategory vocabulary used to
// classify ledger records, the provider chain that resolves it (store first,
// compiled-in default second) and the normalization rules applied to
// classification output.
package taxonomy

import "strings"

// Safe defaults applied when classification output names a category that is
// not in the taxonomy at all.
const (
	DefaultCategory    = "Other"
	DefaultSubcategory = "Uncategorized"
)

// Category is one taxonomy entry. Subcategory order matters: the first
// subcategory is the normalization target for an unknown subcategory under a
// known category.
type Category struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

// Set is an ordered taxonomy with case-insensitive lookup. Order is
// significant for prompt construction and for first-subcategory
// normalization, so a Set is always built from a slice, never a map.
type Set struct {
	categories []Category
	index      map[string]int // lowercased name -> position
	subs       map[string]map[string]string
}

// NewSet builds a Set from ordered categories. Duplicate names keep the
// first occurrence.
func NewSet(categories []Category) Set {
	s := Set{
		index: make(map[string]int, len(categories)),
		subs:  make(map[string]map[string]string, len(categories)),
	}
	for _, c := range categories {
		key := strings.ToLower(c.Name)
		if _, dup := s.index[key]; dup {
			continue
		}
		s.index[key] = len(s.categories)
		s.categories = append(s.categories, c)

		m := make(map[string]string, len(c.Subcategories))
		for _, sub := range c.Subcategories {
			subKey := strings.ToLower(sub)
			if _, dup := m[subKey]; !dup {
				m[subKey] = sub
			}
		}
		s.subs[key] = m
	}
	return s
}

// Categories returns the entries in taxonomy order.
func (s Set) Categories() []Category {
	return s.categories
}

// Empty reports whether the set holds no categories.
func (s Set) Empty() bool {
	return len(s.categories) == 0
}

// Lookup finds a category by name, case-insensitively.
func (s Set) Lookup(name string) (Category, bool) {
	i, ok := s.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Category{}, false
	}
	return s.categories[i], true
}

// Canonical validates a category/subcategory pair case-insensitively and
// returns it in the taxonomy's canonical casing. ok is false when either
// side is not in the set.
func (s Set) Canonical(category, subcategory string) (string, string, bool) {
	cat, found := s.Lookup(category)
	if !found {
		return "", "", false
	}
	canonicalSub, found := s.subs[strings.ToLower(cat.Name)][strings.ToLower(strings.TrimSpace(subcategory))]
	if !found {
		return "", "", false
	}
	return cat.Name, canonicalSub, true
}

// Normalize maps arbitrary classification output onto the taxonomy: an
// unknown category becomes Other/Uncategorized, a known category with an
// unknown or empty subcategory gets the category's first subcategory (or
// Uncategorized when the category has none).
func (s Set) Normalize(category, subcategory string) (string, string) {
	cat, found := s.Lookup(category)
	if !found {
		return DefaultCategory, DefaultSubcategory
	}
	if c, sub, ok := s.Canonical(cat.Name, subcategory); ok {
		return c, sub
	}
	if len(cat.Subcategories) > 0 {
		return cat.Name, cat.Subcategories[0]
	}
	return cat.Name, DefaultSubcategory
}
