package normalize

import (
	"context"
	"strings"

	"github.com/JonMunkholm/rolodex/internal/config"
	"github.com/JonMunkholm/rolodex/internal/core"
)

// Heuristic maps common header spellings onto a Contact without any
// network calls. Columns it does not recognize are kept as note lines.
type Heuristic struct {
	Fields core.FieldLookup
}

// NewHeuristic returns a Heuristic over core.CommonFields.
func NewHeuristic() *Heuristic {
	return &Heuristic{Fields: core.CommonFields}
}

var listSeparators = strings.NewReplacer(",", ";", "|", ";", ":::", ";")

func splitCell(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, core.SplitList(listSeparators.Replace(v), ";")...)
	}
	return out
}

func (h *Heuristic) Normalize(_ context.Context, row core.Row, headers []string) (core.Contact, error) {
	f := h.Fields
	if f == nil {
		f = core.CommonFields
	}

	name := f.Get(row, core.FieldName)
	if name == "" {
		name = core.JoinName(f.Get(row, core.FieldFirstName), f.Get(row, core.FieldLastName))
	}

	c := core.Contact{
		Name:     name,
		Company:  f.Get(row, core.FieldCompany),
		Role:     f.Get(row, core.FieldRole),
		Location: f.Get(row, core.FieldLocation),
		Source:   core.SourceManual,
	}
	c.ContactInfo.Emails = splitCell(row.Values(f[core.FieldEmail]...))
	c.ContactInfo.Phones = splitCell(row.Values(f[core.FieldPhone]...))
	c.ContactInfo.LinkedInURL = f.Get(row, core.FieldLinkedIn)
	for _, u := range splitCell(row.Values(f[core.FieldWebsite]...)) {
		if core.IsLinkedInURL(u) {
			if c.ContactInfo.LinkedInURL == "" {
				c.ContactInfo.LinkedInURL = u
			}
			continue
		}
		c.ContactInfo.OtherURLs = append(c.ContactInfo.OtherURLs, core.OtherURL{URL: u})
	}

	lines := []string{f.Get(row, core.FieldNotes)}
	for _, header := range headers {
		if f.Known(header) {
			continue
		}
		if v, ok := row[header]; ok {
			lines = append(lines, core.NoteLine(strings.TrimSpace(header), v))
		}
	}
	c.Notes = core.JoinNotes(lines...)
	return c, nil
}

// FromConfig returns the LLM client when an API key is configured and the
// heuristic otherwise.
func FromConfig(cfg config.LLMConfig) (core.Normalizer, error) {
	if cfg.APIKey == "" {
		return NewHeuristic(), nil
	}
	return NewClient(Options{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
}
