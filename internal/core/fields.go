package core

import (
	"fmt"
	"strings"
)

// Field is a logical contact attribute that export formats spell in many
// different ways.
type Field string

const (
	FieldName      Field = "name"
	FieldFirstName Field = "first_name"
	FieldLastName  Field = "last_name"
	FieldEmail     Field = "email"
	FieldPhone     Field = "phone"
	FieldCompany   Field = "company"
	FieldRole      Field = "role"
	FieldLocation  Field = "location"
	FieldLinkedIn  Field = "linkedin"
	FieldWebsite   Field = "website"
	FieldNotes     Field = "notes"
)

// FieldLookup lists, per logical field, the header spellings to try in
// priority order. Matching is case-insensitive and exact.
type FieldLookup map[Field][]string

// CommonFields covers the spellings seen in hand-made and CRM exports.
// Format parsers extend or override it with their own lookups.
var CommonFields = FieldLookup{
	FieldName:      {"Name", "Full Name", "Display Name", "Contact Name", "Contact"},
	FieldFirstName: {"First Name", "Given Name", "First", "Firstname"},
	FieldLastName:  {"Last Name", "Family Name", "Surname", "Last", "Lastname"},
	FieldEmail:     {"Email", "Emails", "Email Address", "E-mail", "E-mail Address", "Mail"},
	FieldPhone:     {"Phone", "Phones", "Phone Number", "Mobile", "Mobile Phone", "Cell", "Telephone", "Work Phone"},
	FieldCompany:   {"Company", "Organization", "Organisation", "Employer", "Company Name"},
	FieldRole:      {"Role", "Title", "Job Title", "Position", "Occupation"},
	FieldLocation:  {"Location", "City", "Address", "Region", "Country"},
	FieldLinkedIn:  {"LinkedIn URL", "LinkedIn", "LinkedIn Profile", "Profile URL"},
	FieldWebsite:   {"Website", "Web Page", "URL", "Homepage", "Other URLs"},
	FieldNotes:     {"Notes", "Note", "Comments", "Description"},
}

// Get returns the first non-blank value among the candidates for f.
func (l FieldLookup) Get(row Row, f Field) string {
	return row.Lookup(l[f]...)
}

// Known reports whether header is a candidate spelling of any field.
func (l FieldLookup) Known(header string) bool {
	header = strings.TrimSpace(header)
	for _, candidates := range l {
		for _, c := range candidates {
			if strings.EqualFold(c, header) {
				return true
			}
		}
	}
	return false
}

// Lookup returns the trimmed value of the first candidate header that is
// present and non-blank.
func (r Row) Lookup(candidates ...string) string {
	for _, c := range candidates {
		if v, ok := r.get(c); ok && v != "" {
			return v
		}
	}
	return ""
}

// Values returns every non-blank value for the candidates, in order.
func (r Row) Values(candidates ...string) []string {
	var out []string
	for _, c := range candidates {
		if v, ok := r.get(c); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Numbered collects values from headers such as "E-mail 1 - Value" through
// "E-mail max - Value", formatted with pattern.
func (r Row) Numbered(pattern string, max int) []string {
	var out []string
	for i := 1; i <= max; i++ {
		if v, ok := r.get(fmt.Sprintf(pattern, i)); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (r Row) get(header string) (string, bool) {
	if v, ok := r[header]; ok {
		return strings.TrimSpace(v), true
	}
	for k, v := range r {
		if strings.EqualFold(strings.TrimSpace(k), header) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// HasHeader reports whether any header equals name, ignoring case.
func HasHeader(headers []string, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return true
		}
	}
	return false
}

// ContainsHeader reports whether any header contains sub, ignoring case.
func ContainsHeader(headers []string, sub string) bool {
	sub = strings.ToLower(sub)
	for _, h := range headers {
		if strings.Contains(strings.ToLower(h), sub) {
			return true
		}
	}
	return false
}

// SplitList splits a multi-value cell on sep, trimming and dropping blanks.
func SplitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinName builds a display name from name parts, skipping blanks.
func JoinName(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// NoteLine formats a labelled note line, or "" when value is blank.
func NoteLine(label, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return label + ": " + value
}

// JoinNotes joins non-blank note lines with newlines.
func JoinNotes(lines ...string) string {
	var kept []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// IsLinkedInURL reports whether u points at linkedin.com.
func IsLinkedInURL(u string) bool {
	return strings.Contains(strings.ToLower(u), "linkedin.com")
}
