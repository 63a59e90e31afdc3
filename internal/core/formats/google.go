package formats

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/rolodex/internal/core"
)

func init() {
	core.RegisterFormat(core.FormatDefinition{
		Type:   core.ParserGoogle,
		Label:  "Google Contacts",
		Order:  2,
		Source: core.SourceGoogle,
		Detect: detectGoogle,
		Parse:  parseGoogle,
	})
}

// googleMultiSep separates several values inside one Google export cell.
const googleMultiSep = ":::"

// googleMaxNumbered is how many numbered columns ("E-mail 1 - Value" ...)
// are read per field.
const googleMaxNumbered = 5

var googleNumbered = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^E-mail \d+ - Value$`),
	regexp.MustCompile(`(?i)^Phone \d+ - Value$`),
	regexp.MustCompile(`(?i)^Organization \d+ - Name$`),
	regexp.MustCompile(`(?i)^Address \d+ - Formatted$`),
}

// googleTakeout are header names only Google Takeout exports use. Generic
// names such as "Location" or "Birthday" appear in hand-made files too and
// are not evidence of a Google export.
var googleTakeout = []string{
	"Given Name", "Additional Name", "Family Name", "Yomi Name",
	"Given Name Yomi", "Additional Name Yomi", "Family Name Yomi",
	"Name Prefix", "Name Suffix", "Initials", "Short Name", "Maiden Name",
	"Billing Information", "Directory Server", "Group Membership", "File As",
}

// linkedInBlockers disqualify Google even when Google signals are present.
var linkedInBlockers = []string{"Email Address", "Connected On", "Position"}

func detectGoogle(headers []string) bool {
	for _, h := range linkedInBlockers {
		if core.HasHeader(headers, h) {
			return false
		}
	}

	for _, h := range headers {
		h = strings.TrimSpace(h)
		for _, re := range googleNumbered {
			if re.MatchString(h) {
				return true
			}
		}
	}

	hits := 0
	for _, t := range googleTakeout {
		if core.HasHeader(headers, t) {
			hits++
		}
	}
	return hits >= 2
}

func parseGoogle(row core.Row, _ int) (core.Contact, bool) {
	c := core.Contact{Source: core.SourceGoogle}

	c.Name = row.Lookup("Name", "File As")
	if c.Name == "" {
		c.Name = core.JoinName(
			row.Lookup("Name Prefix"),
			row.Lookup("Given Name", "First Name"),
			row.Lookup("Additional Name", "Middle Name"),
			row.Lookup("Family Name", "Last Name"),
			row.Lookup("Name Suffix"),
		)
	}

	c.ContactInfo.Emails = splitAll(row.Numbered("E-mail %d - Value", googleMaxNumbered))
	if len(c.ContactInfo.Emails) == 0 {
		c.ContactInfo.Emails = splitAll(row.Values(core.CommonFields[core.FieldEmail]...))
	}
	c.ContactInfo.Phones = splitAll(row.Numbered("Phone %d - Value", googleMaxNumbered))
	if len(c.ContactInfo.Phones) == 0 {
		c.ContactInfo.Phones = splitAll(row.Values(core.CommonFields[core.FieldPhone]...))
	}

	c.Company = firstOf(row.Numbered("Organization %d - Name", googleMaxNumbered), row.Lookup("Organization Name"))
	c.Role = firstOf(row.Numbered("Organization %d - Title", googleMaxNumbered), row.Lookup("Organization Title"))
	c.Location = firstOf(row.Numbered("Address %d - Formatted", googleMaxNumbered), row.Lookup("Location"))

	for i := 1; i <= googleMaxNumbered; i++ {
		kind := row.Lookup(fmt.Sprintf("Website %d - Type", i))
		for _, u := range core.SplitList(row.Lookup(fmt.Sprintf("Website %d - Value", i)), googleMultiSep) {
			if core.IsLinkedInURL(u) {
				if c.ContactInfo.LinkedInURL == "" {
					c.ContactInfo.LinkedInURL = u
				}
				continue
			}
			c.ContactInfo.OtherURLs = append(c.ContactInfo.OtherURLs, core.OtherURL{
				Platform: websitePlatform(kind),
				URL:      u,
			})
		}
	}

	c.Notes = core.JoinNotes(
		row.Lookup("Notes"),
		core.NoteLine("Birthday", row.Lookup("Birthday")),
		core.NoteLine("Department", firstOf(row.Numbered("Organization %d - Department", googleMaxNumbered), row.Lookup("Organization Department"))),
		core.NoteLine("Labels", cleanLabels(row.Lookup("Labels", "Group Membership"))),
		core.NoteLine("Relation", firstOf(row.Numbered("Relation %d - Value", googleMaxNumbered))),
		core.NoteLine("Nickname", row.Lookup("Nickname")),
	)

	return c, !c.IsEmpty()
}

// splitAll expands " ::: " separated cells into single values.
func splitAll(cells []string) []string {
	var out []string
	for _, cell := range cells {
		out = append(out, core.SplitList(cell, googleMultiSep)...)
	}
	return out
}

func firstOf(values []string, fallback ...string) string {
	for _, v := range values {
		if parts := core.SplitList(v, googleMultiSep); len(parts) > 0 {
			return parts[0]
		}
	}
	for _, v := range fallback {
		if v != "" {
			return v
		}
	}
	return ""
}

func websitePlatform(kind string) string {
	kind = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(kind), "*"))
	if kind == "" {
		return "website"
	}
	return strings.ToLower(kind)
}

// cleanLabels drops Google's system groups ("* myContacts", "* starred").
func cleanLabels(s string) string {
	var kept []string
	for _, l := range core.SplitList(s, googleMultiSep) {
		if strings.HasPrefix(l, "*") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, ", ")
}
