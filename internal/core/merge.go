package core

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// now is replaced in tests.
var now = time.Now

// MergeContacts combines two records describing the same person. The
// result keeps existing's identity, creation time and source.
func MergeContacts(existing, incoming Contact) Contact {
	out := existing.Clone()

	out.Name = mergeText(existing.Name, incoming.Name)
	out.Company = mergeText(existing.Company, incoming.Company)
	out.Role = mergeText(existing.Role, incoming.Role)
	out.Location = mergeText(existing.Location, incoming.Location)

	out.ContactInfo.Emails = unionStrings(out.ContactInfo.Emails, incoming.ContactInfo.Emails, emailKey)
	out.ContactInfo.Phones = unionStrings(out.ContactInfo.Phones, incoming.ContactInfo.Phones, strings.TrimSpace)
	out.ContactInfo.OtherURLs = unionURLs(out.ContactInfo.OtherURLs, incoming.ContactInfo.OtherURLs)

	if u := strings.TrimSpace(incoming.ContactInfo.LinkedInURL); u != "" {
		out.ContactInfo.LinkedInURL = u
	}

	out.Notes = MergeNotes(existing.Notes, incoming.Notes)

	t := now()
	if t.Before(existing.UpdatedAt) {
		t = existing.UpdatedAt
	}
	out.UpdatedAt = t
	return out
}

// mergeText fills an empty value and otherwise prefers the longer one.
func mergeText(existing, incoming string) string {
	if strings.TrimSpace(existing) == "" {
		if strings.TrimSpace(incoming) == "" {
			return existing
		}
		return strings.TrimSpace(incoming)
	}
	incoming = strings.TrimSpace(incoming)
	if incoming == "" || incoming == existing {
		return existing
	}
	if utf8.RuneCountInString(incoming) > utf8.RuneCountInString(existing) {
		return incoming
	}
	return existing
}

// unionStrings returns the entries of both lists with one entry per key,
// existing entries first. The first spelling of a key wins, so case
// variants already present on the existing side collapse too.
func unionStrings(existing, incoming []string, key func(string) string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		k := key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	for _, v := range incoming {
		v = strings.TrimSpace(v)
		k := key(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	if len(out) == len(existing) && slices.Equal(out, existing) {
		return existing
	}
	return out
}

func unionURLs(existing, incoming []OtherURL) []OtherURL {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, u := range existing {
		seen[u.URL] = true
	}
	out := existing
	for _, u := range incoming {
		u.URL = strings.TrimSpace(u.URL)
		if u.URL == "" || seen[u.URL] {
			continue
		}
		seen[u.URL] = true
		out = append(out, u)
	}
	return out
}

// MergeNotes merges two notes fields line by line. Lines labelled the same
// way ("Label: value") keep the longer value; other lines from both sides
// are kept once, existing lines first.
func MergeNotes(existing, incoming string) string {
	ni := NormalizeNotes(incoming)
	if ni == "" || ni == NormalizeNotes(existing) {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return strings.TrimSpace(incoming)
	}

	el, il := parseNotes(existing), parseNotes(incoming)

	incomingByLabel := make(map[string]int)
	for i, l := range il {
		if l.label != "" {
			if _, dup := incomingByLabel[l.label]; !dup {
				incomingByLabel[l.label] = i
			}
		}
	}

	used := make([]bool, len(il))
	var out []string
	present := make(map[string]bool)
	emit := func(s string) {
		if !present[s] {
			present[s] = true
			out = append(out, s)
		}
	}

	for _, l := range el {
		if l.label == "" {
			emit(l.text)
			continue
		}
		i, ok := incomingByLabel[l.label]
		if !ok {
			emit(l.text)
			continue
		}
		used[i] = true
		in := il[i]
		switch {
		case l.label == strings.ToLower(ConnectedLabel) && SameDate(l.value, in.value):
			emit(l.text)
		case utf8.RuneCountInString(in.value) > utf8.RuneCountInString(l.value):
			emit(in.text)
		default:
			emit(l.text)
		}
	}
	for i, l := range il {
		if !used[i] {
			emit(l.text)
		}
	}

	merged := strings.Join(out, "\n")
	if merged == "" {
		if strings.TrimSpace(existing) != "" {
			return existing
		}
		return incoming
	}
	return merged
}
