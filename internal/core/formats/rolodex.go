package formats

import (
	"strings"

	"github.com/JonMunkholm/rolodex/internal/core"
)

func init() {
	core.RegisterFormat(core.FormatDefinition{
		Type:   core.ParserRolodex,
		Label:  "Rolodex Export",
		Order:  0,
		Source: core.SourceManual,
		Detect: detectRolodex,
		Parse:  parseRolodex,
	})
}

// rolodexListSep joins multi-value cells in exports.
const rolodexListSep = ";"

var rolodexOptional = []string{
	"Title", "Role", "Phone", "Phones", "LinkedIn", "LinkedIn URL",
	"Location", "Notes", "Other URLs", "Website", "Source",
}

var rolodexFields = core.FieldLookup{
	core.FieldName:     {"Name"},
	core.FieldEmail:    {"Emails", "Email"},
	core.FieldPhone:    {"Phones", "Phone"},
	core.FieldCompany:  {"Company"},
	core.FieldRole:     {"Role", "Title"},
	core.FieldLocation: {"Location"},
	core.FieldLinkedIn: {"LinkedIn URL", "LinkedIn"},
	core.FieldWebsite:  {"Other URLs", "Website"},
	core.FieldNotes:    {"Notes"},
}

func detectRolodex(headers []string) bool {
	if !core.HasHeader(headers, "Name") || !core.HasHeader(headers, "Company") {
		return false
	}
	if !core.HasHeader(headers, "Email") && !core.HasHeader(headers, "Emails") {
		return false
	}
	for _, h := range rolodexOptional {
		if core.HasHeader(headers, h) {
			return true
		}
	}
	return false
}

func parseRolodex(row core.Row, _ int) (core.Contact, bool) {
	f := rolodexFields
	c := core.Contact{
		Name:     f.Get(row, core.FieldName),
		Company:  f.Get(row, core.FieldCompany),
		Role:     f.Get(row, core.FieldRole),
		Location: f.Get(row, core.FieldLocation),
		Notes:    row.Lookup("Notes"),
		Source:   core.ParseSource(row.Lookup("Source")),
	}
	c.ContactInfo.Emails = core.SplitList(f.Get(row, core.FieldEmail), rolodexListSep)
	c.ContactInfo.Phones = core.SplitList(f.Get(row, core.FieldPhone), rolodexListSep)
	c.ContactInfo.LinkedInURL = f.Get(row, core.FieldLinkedIn)
	for _, part := range core.SplitList(f.Get(row, core.FieldWebsite), rolodexListSep) {
		c.ContactInfo.OtherURLs = append(c.ContactInfo.OtherURLs, parseOtherURL(part))
	}
	return c, !c.IsEmpty()
}

// parseOtherURL reads "platform: url" or a bare url.
func parseOtherURL(s string) core.OtherURL {
	if i := strings.Index(s, ": "); i > 0 && !strings.ContainsAny(s[:i], "/.") {
		return core.OtherURL{Platform: strings.TrimSpace(s[:i]), URL: strings.TrimSpace(s[i+2:])}
	}
	return core.OtherURL{URL: strings.TrimSpace(s)}
}
