package formats

import (
	"slices"
	"strings"

	"github.com/JonMunkholm/rolodex/internal/core"
)

func init() {
	core.RegisterFormat(core.FormatDefinition{
		Type:   core.ParserLinkedIn,
		Label:  "LinkedIn Connections",
		Order:  1,
		Source: core.SourceLinkedIn,
		Detect: detectLinkedIn,
		Parse:  parseLinkedIn,
	})
}

var linkedInFields = core.FieldLookup{
	core.FieldFirstName: {"First Name"},
	core.FieldLastName:  {"Last Name"},
	core.FieldEmail:     {"Email Address", "Email"},
	core.FieldCompany:   {"Company"},
	core.FieldRole:      {"Position"},
	core.FieldLinkedIn:  {"URL", "Profile URL"},
}

// linkedInDistinctive are headers LinkedIn exports carry; one of them must
// accompany the name and URL columns. Matching is by case-insensitive
// substring, the same as for the required columns.
var linkedInDistinctive = []string{"Email Address", "Company", "Position", "Connected On"}

func detectLinkedIn(headers []string) bool {
	for _, required := range []string{"First Name", "Last Name", "URL"} {
		if !core.ContainsHeader(headers, required) {
			return false
		}
	}
	for _, h := range linkedInDistinctive {
		if core.ContainsHeader(headers, h) {
			return true
		}
	}
	return false
}

func parseLinkedIn(row core.Row, _ int) (core.Contact, bool) {
	f := linkedInFields
	c := core.Contact{
		Name:    core.JoinName(f.Get(row, core.FieldFirstName), f.Get(row, core.FieldLastName)),
		Company: f.Get(row, core.FieldCompany),
		Role:    f.Get(row, core.FieldRole),
		Source:  core.SourceLinkedIn,
		Notes:   core.NoteLine(core.ConnectedLabel, row.Lookup("Connected On")),
	}
	if email := f.Get(row, core.FieldEmail); email != "" {
		c.ContactInfo.Emails = []string{email}
	}
	c.ContactInfo.LinkedInURL = f.Get(row, core.FieldLinkedIn)
	if c.ContactInfo.LinkedInURL == "" {
		c.ContactInfo.LinkedInURL = urlColumn(row)
	}
	return c, !c.IsEmpty()
}

// urlColumn reads the profile link from any column whose header contains
// "url", the way detection accepted it. A value that is a LinkedIn link
// wins over other URLs; ties go to the alphabetically first header.
func urlColumn(row core.Row) string {
	var keys []string
	for k := range row {
		if strings.Contains(strings.ToLower(k), "url") && strings.TrimSpace(row[k]) != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); core.IsLinkedInURL(v) {
			return v
		}
	}
	if len(keys) > 0 {
		return strings.TrimSpace(row[keys[0]])
	}
	return ""
}
