package schema

import "sort"

// CurrencyMapping is a bidirectional exchange id <-> currency table. It is
// built once per catalog refresh and never mutated afterwards.
type CurrencyMapping struct {
	byID       map[string]Currency
	byCurrency map[Currency]string
}

// NewCurrencyMapping builds a mapping from exchange id -> currency pairs.
// A currency listed under several ids keeps the first one seen in id order.
func NewCurrencyMapping(entries map[string]Currency) CurrencyMapping {
	m := CurrencyMapping{
		byID:       make(map[string]Currency, len(entries)),
		byCurrency: make(map[Currency]string, len(entries)),
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := entries[id]
		if _, dup := m.byCurrency[c]; dup {
			continue
		}
		m.byID[id] = c
		m.byCurrency[c] = id
	}
	return m
}

// IDFor returns the exchange id for c.
func (m CurrencyMapping) IDFor(c Currency) (string, bool) {
	id, ok := m.byCurrency[c]
	return id, ok
}

// CurrencyFor returns the currency for an exchange id present in the catalog.
func (m CurrencyMapping) CurrencyFor(id string) (Currency, bool) {
	c, ok := m.byID[id]
	return c, ok
}

// Len 映射条目数
func (m CurrencyMapping) Len() int { return len(m.byID) }

// Equal reports whether both mappings hold the same entries.
func (m CurrencyMapping) Equal(other CurrencyMapping) bool {
	if len(m.byID) != len(other.byID) {
		return false
	}
	for id, c := range m.byID {
		if oc, ok := other.byID[id]; !ok || oc != c {
			return false
		}
	}
	return true
}

// Entries returns a copy of the id -> currency table.
func (m CurrencyMapping) Entries() map[string]Currency {
	out := make(map[string]Currency, len(m.byID))
	for id, c := range m.byID {
		out[id] = c
	}
	return out
}
