package core

import (
	"sort"
	"strings"
	"unicode"
)

// matchPriority orders criteria for reporting; lower wins.
var matchPriority = map[MatchType]int{
	MatchName:     0,
	MatchEmail:    1,
	MatchPhone:    2,
	MatchLinkedIn: 3,
}

// DuplicateIndex answers duplicate queries against a fixed set of existing
// contacts in time proportional to the incoming record, not the store.
type DuplicateIndex struct {
	contacts []Contact
	byID     map[string]int
	byName   map[string][]int
	byEmail  map[string][]int
	byPhone  map[string][]int
	byURL    map[string][]int
}

// NewDuplicateIndex indexes existing. The slice order is the order in
// which matches are reported.
func NewDuplicateIndex(existing []Contact) *DuplicateIndex {
	idx := &DuplicateIndex{
		byID:    make(map[string]int, len(existing)),
		byName:  make(map[string][]int),
		byEmail: make(map[string][]int),
		byPhone: make(map[string][]int),
		byURL:   make(map[string][]int),
	}
	for _, c := range existing {
		idx.Add(c)
	}
	return idx
}

// Add indexes one more contact, or replaces the indexed version of a
// contact with the same ID.
func (x *DuplicateIndex) Add(c Contact) {
	if pos, ok := x.byID[c.ID]; ok && c.ID != "" {
		x.forget(pos, x.contacts[pos])
		x.contacts[pos] = c
		x.insert(pos, c)
		return
	}
	x.contacts = append(x.contacts, c)
	pos := len(x.contacts) - 1
	if c.ID != "" {
		x.byID[c.ID] = pos
	}
	x.insert(pos, c)
}

// Get returns the indexed version of the contact with id.
func (x *DuplicateIndex) Get(id string) (Contact, bool) {
	pos, ok := x.byID[id]
	if !ok {
		return Contact{}, false
	}
	return x.contacts[pos], true
}

// Len returns the number of indexed contacts.
func (x *DuplicateIndex) Len() int { return len(x.contacts) }

// Find returns one DuplicateMatch per existing contact that matches c on
// any criterion. Each match reports the highest priority criterion for
// that existing contact.
func (x *DuplicateIndex) Find(c Contact) []DuplicateMatch {
	type hit struct {
		typ   MatchType
		value string
	}
	hits := make(map[int]hit)
	record := func(positions []int, typ MatchType, value string) {
		for _, p := range positions {
			if h, ok := hits[p]; ok && matchPriority[h.typ] <= matchPriority[typ] {
				continue
			}
			hits[p] = hit{typ: typ, value: value}
		}
	}

	if k := nameKey(c.Name); k != "" {
		record(x.byName[k], MatchName, c.Name)
	}
	for _, e := range c.ContactInfo.Emails {
		if k := emailKey(e); k != "" {
			record(x.byEmail[k], MatchEmail, e)
		}
	}
	for _, p := range c.ContactInfo.Phones {
		if k := PhoneDigits(p); k != "" {
			record(x.byPhone[k], MatchPhone, p)
		}
	}
	if k := urlKey(c.ContactInfo.LinkedInURL); k != "" {
		record(x.byURL[k], MatchLinkedIn, c.ContactInfo.LinkedInURL)
	}

	if len(hits) == 0 {
		return nil
	}

	positions := make([]int, 0, len(hits))
	for p := range hits {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	matches := make([]DuplicateMatch, 0, len(positions))
	for _, p := range positions {
		h := hits[p]
		matches = append(matches, DuplicateMatch{
			Existing:   x.contacts[p],
			Incoming:   c,
			MatchType:  h.typ,
			MatchValue: h.value,
		})
	}
	return matches
}

// FindDuplicates returns every existing contact that plausibly is the
// same person as incoming. An empty existing set yields no matches.
func FindDuplicates(existing []Contact, incoming Contact) []DuplicateMatch {
	if len(existing) == 0 {
		return nil
	}
	return NewDuplicateIndex(existing).Find(incoming)
}

func (x *DuplicateIndex) insert(pos int, c Contact) {
	if k := nameKey(c.Name); k != "" {
		x.byName[k] = appendUnique(x.byName[k], pos)
	}
	for _, e := range c.ContactInfo.Emails {
		if k := emailKey(e); k != "" {
			x.byEmail[k] = appendUnique(x.byEmail[k], pos)
		}
	}
	for _, p := range c.ContactInfo.Phones {
		if k := PhoneDigits(p); k != "" {
			x.byPhone[k] = appendUnique(x.byPhone[k], pos)
		}
	}
	if k := urlKey(c.ContactInfo.LinkedInURL); k != "" {
		x.byURL[k] = appendUnique(x.byURL[k], pos)
	}
}

func (x *DuplicateIndex) forget(pos int, c Contact) {
	drop := func(m map[string][]int, k string) {
		if k == "" {
			return
		}
		if rest := removePos(m[k], pos); len(rest) > 0 {
			m[k] = rest
		} else {
			delete(m, k)
		}
	}
	drop(x.byName, nameKey(c.Name))
	for _, e := range c.ContactInfo.Emails {
		drop(x.byEmail, emailKey(e))
	}
	for _, p := range c.ContactInfo.Phones {
		drop(x.byPhone, PhoneDigits(p))
	}
	drop(x.byURL, urlKey(c.ContactInfo.LinkedInURL))
}

func appendUnique(positions []int, pos int) []int {
	for _, p := range positions {
		if p == pos {
			return positions
		}
	}
	return append(positions, pos)
}

func removePos(positions []int, pos int) []int {
	out := positions[:0]
	for _, p := range positions {
		if p != pos {
			out = append(out, p)
		}
	}
	return out
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func urlKey(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// PhoneDigits strips every non-digit character from a phone number.
func PhoneDigits(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
