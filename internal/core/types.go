package core

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Source records where a contact originally came from.
type Source string

const (
	SourceLinkedIn Source = "linkedin"
	SourceGoogle   Source = "google"
	SourceManual   Source = "manual"
)

// ParseSource returns the Source for s, falling back to SourceManual.
func ParseSource(s string) Source {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceLinkedIn:
		return SourceLinkedIn
	case SourceGoogle:
		return SourceGoogle
	default:
		return SourceManual
	}
}

// OtherURL is a non-LinkedIn profile or website link.
type OtherURL struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// ContactInfo holds every way of reaching a contact.
type ContactInfo struct {
	Emails      []string   `json:"emails"`
	Phones      []string   `json:"phones"`
	LinkedInURL string     `json:"linkedinUrl,omitempty"`
	OtherURLs   []OtherURL `json:"otherUrls"`
}

// Contact is the canonical, format-independent record of one person.
// Empty strings mean "absent" for the optional text fields.
type Contact struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Company     string      `json:"company,omitempty"`
	Role        string      `json:"role,omitempty"`
	Location    string      `json:"location,omitempty"`
	ContactInfo ContactInfo `json:"contactInfo"`
	Notes       string      `json:"notes"`
	Source      Source      `json:"source"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// HasContactInfo reports whether any email, phone or URL is present.
func (c Contact) HasContactInfo() bool {
	return len(c.ContactInfo.Emails) > 0 ||
		len(c.ContactInfo.Phones) > 0 ||
		c.ContactInfo.LinkedInURL != "" ||
		len(c.ContactInfo.OtherURLs) > 0
}

// IsEmpty reports whether the contact carries no information at all.
func (c Contact) IsEmpty() bool {
	return strings.TrimSpace(c.Name) == "" &&
		strings.TrimSpace(c.Company) == "" &&
		strings.TrimSpace(c.Role) == "" &&
		strings.TrimSpace(c.Location) == "" &&
		strings.TrimSpace(c.Notes) == "" &&
		!c.HasContactInfo()
}

// Clean trims text fields, drops blank and exact-duplicate array entries
// and assigns a placeholder name when the name is missing. It returns false
// when the record has neither a name nor any contact information and
// should be dropped.
func (c *Contact) Clean() bool {
	c.Name = strings.TrimSpace(c.Name)
	c.Company = strings.TrimSpace(c.Company)
	c.Role = strings.TrimSpace(c.Role)
	c.Location = strings.TrimSpace(c.Location)
	c.Notes = strings.TrimSpace(c.Notes)
	c.ContactInfo.Emails = uniqueStrings(c.ContactInfo.Emails)
	c.ContactInfo.Phones = uniqueStrings(c.ContactInfo.Phones)
	c.ContactInfo.LinkedInURL = strings.TrimSpace(c.ContactInfo.LinkedInURL)
	c.ContactInfo.OtherURLs = uniqueURLs(c.ContactInfo.OtherURLs)

	if c.Name != "" {
		return true
	}
	if !c.HasContactInfo() {
		return false
	}
	c.Name = PlaceholderName(*c)
	return true
}

// PlaceholderName derives a deterministic display name from the first
// available piece of contact information.
func PlaceholderName(c Contact) string {
	switch {
	case len(c.ContactInfo.Emails) > 0:
		return c.ContactInfo.Emails[0]
	case len(c.ContactInfo.Phones) > 0:
		return c.ContactInfo.Phones[0]
	case c.ContactInfo.LinkedInURL != "":
		return c.ContactInfo.LinkedInURL
	case len(c.ContactInfo.OtherURLs) > 0:
		return c.ContactInfo.OtherURLs[0].URL
	}
	return ""
}

// Clone returns a deep copy so merges never alias the caller's slices.
func (c Contact) Clone() Contact {
	out := c
	out.ContactInfo.Emails = slices.Clone(c.ContactInfo.Emails)
	out.ContactInfo.Phones = slices.Clone(c.ContactInfo.Phones)
	out.ContactInfo.OtherURLs = slices.Clone(c.ContactInfo.OtherURLs)
	return out
}

// MatchType names the criterion that flagged a duplicate.
type MatchType string

const (
	MatchName     MatchType = "name"
	MatchEmail    MatchType = "email"
	MatchPhone    MatchType = "phone"
	MatchLinkedIn MatchType = "linkedin"
)

// DuplicateMatch claims that Incoming describes the same person as Existing.
type DuplicateMatch struct {
	Existing   Contact   `json:"existing"`
	Incoming   Contact   `json:"incoming"`
	MatchType  MatchType `json:"matchType"`
	MatchValue string    `json:"matchValue"`
}

// OversizedContact is a parsed record whose estimated token cost exceeds
// the per-record ceiling. Index is its position in the resolved list.
type OversizedContact struct {
	Contact    Contact `json:"contact"`
	TokenCount int     `json:"tokenCount"`
	Index      int     `json:"index"`
}

// Row is one CSV data row keyed by the original header text.
type Row map[string]string

// ContactStore is the per-user persistence contract the import pipeline
// relies on. Implementations live in the store package.
type ContactStore interface {
	Add(ctx context.Context, userID string, c Contact) error
	Get(ctx context.Context, userID, id string) (Contact, error)
	List(ctx context.Context, userID string) ([]Contact, error)
	// BulkPut inserts or replaces every contact by ID.
	BulkPut(ctx context.Context, userID string, contacts []Contact) error
	Delete(ctx context.Context, userID, id string) error
	Count(ctx context.Context, userID string) (int, error)
}

// Normalizer turns one raw row of an unrecognized format into a Contact.
// Implementations must be free of side effects beyond their return value.
type Normalizer interface {
	Normalize(ctx context.Context, row Row, headers []string) (Contact, error)
}

// NormalizerFunc adapts a plain function to the Normalizer interface.
type NormalizerFunc func(ctx context.Context, row Row, headers []string) (Contact, error)

// Normalize calls f.
func (f NormalizerFunc) Normalize(ctx context.Context, row Row, headers []string) (Contact, error) {
	return f(ctx, row, headers)
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func uniqueURLs(in []OtherURL) []OtherURL {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[OtherURL]bool, len(in))
	out := make([]OtherURL, 0, len(in))
	for _, u := range in {
		u.Platform = strings.TrimSpace(u.Platform)
		u.URL = strings.TrimSpace(u.URL)
		if u.URL == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
