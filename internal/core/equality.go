package core

import (
	"regexp"
	"strings"
	"time"
)

// ConnectedLabel prefixes the note line LinkedIn imports write.
const ConnectedLabel = "LinkedIn connected"

// connectedLayouts are the date spellings seen in LinkedIn exports and in
// notes users edited by hand.
var connectedLayouts = []string{
	"2-Jan-06", "02-Jan-06", "2-Jan-2006", "02-Jan-2006",
	"2 Jan 06", "02 Jan 06", "2 Jan 2006", "02 Jan 2006",
	"2 January 2006", "02 January 2006",
	"Jan 2, 2006", "January 2, 2006", "Jan 2 2006",
	"2006-01-02", "01/02/2006", "1/2/2006", "1/2/06",
}

var labelRe = regexp.MustCompile(`^([A-Za-z][^:]{0,40}):\s+(\S.*)$`)

// noteLine is one normalized line of a notes field.
type noteLine struct {
	text  string // whitespace collapsed
	label string // lower-cased label, "" when the line has none
	value string
}

// parseNotes splits notes into normalized lines, dropping blank ones.
func parseNotes(notes string) []noteLine {
	var out []noteLine
	for _, raw := range strings.Split(notes, "\n") {
		text := strings.Join(strings.Fields(raw), " ")
		if text == "" {
			continue
		}
		line := noteLine{text: text}
		if m := labelRe.FindStringSubmatch(text); m != nil {
			line.label = strings.ToLower(strings.TrimSpace(m[1]))
			line.value = m[2]
		}
		out = append(out, line)
	}
	return out
}

// NormalizeNotes collapses whitespace within lines and drops blank lines.
func NormalizeNotes(notes string) string {
	lines := parseNotes(notes)
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.text
	}
	return strings.Join(texts, "\n")
}

// splitConnected separates the "LinkedIn connected:" line from the rest.
// date is the canonical form of the connection date, "" when absent.
func splitConnected(notes string) (date string, rest []string) {
	for _, l := range parseNotes(notes) {
		if l.label == strings.ToLower(ConnectedLabel) {
			if date == "" {
				date = canonicalDate(l.value)
			}
			continue
		}
		rest = append(rest, l.text)
	}
	return date, rest
}

// canonicalDate renders a date in ISO form when any known layout parses
// it, otherwise the lower-cased text.
func canonicalDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range connectedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return strings.ToLower(s)
}

// SameDate reports whether two date strings name the same day, tolerating
// format differences such as "9-May-25" and "09 May 2025".
func SameDate(a, b string) bool {
	return canonicalDate(a) == canonicalDate(b)
}

// AreContactsIdentical reports whether a and b carry the same information.
// A LinkedIn URL or connection date present on only one side does not
// count as a difference.
func AreContactsIdentical(a, b Contact) bool {
	if strings.TrimSpace(a.Name) != strings.TrimSpace(b.Name) ||
		strings.TrimSpace(a.Company) != strings.TrimSpace(b.Company) ||
		strings.TrimSpace(a.Role) != strings.TrimSpace(b.Role) ||
		strings.TrimSpace(a.Location) != strings.TrimSpace(b.Location) {
		return false
	}

	if !sameSet(a.ContactInfo.Emails, b.ContactInfo.Emails, emailKey) ||
		!sameSet(a.ContactInfo.Phones, b.ContactInfo.Phones, PhoneDigits) ||
		!sameSet(urlsOf(a.ContactInfo.OtherURLs), urlsOf(b.ContactInfo.OtherURLs), urlKey) {
		return false
	}

	ua, ub := urlKey(a.ContactInfo.LinkedInURL), urlKey(b.ContactInfo.LinkedInURL)
	if ua != "" && ub != "" && ua != ub {
		return false
	}

	da, ra := splitConnected(a.Notes)
	db, rb := splitConnected(b.Notes)
	if da != "" && db != "" && da != db {
		return false
	}
	return strings.Join(ra, "\n") == strings.Join(rb, "\n")
}

// HasLessOrEqualInformation reports whether incoming adds nothing that
// existing lacks, so a merge would be a no-op.
func HasLessOrEqualInformation(existing, incoming Contact) bool {
	if !coveredText(existing.Name, incoming.Name) ||
		!coveredText(existing.Company, incoming.Company) ||
		!coveredText(existing.Role, incoming.Role) ||
		!coveredText(existing.Location, incoming.Location) ||
		!coveredText(existing.ContactInfo.LinkedInURL, incoming.ContactInfo.LinkedInURL) {
		return false
	}

	if !subset(incoming.ContactInfo.Emails, existing.ContactInfo.Emails, emailKey) ||
		!subset(incoming.ContactInfo.Phones, existing.ContactInfo.Phones, PhoneDigits) ||
		!subset(urlsOf(incoming.ContactInfo.OtherURLs), urlsOf(existing.ContactInfo.OtherURLs), urlKey) {
		return false
	}

	de, re := splitConnected(existing.Notes)
	di, ri := splitConnected(incoming.Notes)
	if di != "" && di != de {
		return false
	}
	return subset(ri, re, func(s string) string { return s })
}

// coveredText reports whether incoming is blank or equal to existing,
// ignoring case.
func coveredText(existing, incoming string) bool {
	incoming = strings.TrimSpace(incoming)
	return incoming == "" || strings.EqualFold(strings.TrimSpace(existing), incoming)
}

func urlsOf(urls []OtherURL) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		out = append(out, u.URL)
	}
	return out
}

// subset reports whether every keyed value of sub appears in super.
func subset(sub, super []string, key func(string) string) bool {
	have := make(map[string]bool, len(super))
	for _, v := range super {
		have[key(v)] = true
	}
	for _, v := range sub {
		if k := key(v); k != "" && !have[k] {
			return false
		}
	}
	return true
}

func sameSet(a, b []string, key func(string) string) bool {
	return subset(a, b, key) && subset(b, a, key)
}
