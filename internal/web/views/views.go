// Package views renders the HTMX partials of the import flow as templ
// components.
package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/rolodex/internal/core"
)

var e = templ.EscapeString

// ErrorAlert renders a user-facing error with its action and code.
func ErrorAlert(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert"><p class="alert-message">%s</p>`,
			e(msg.Message))
		if err != nil {
			return err
		}
		if msg.Action != "" {
			if _, err := fmt.Fprintf(w, `<p class="alert-action">%s</p>`, e(msg.Action)); err != nil {
				return err
			}
		}
		if msg.Code != "" {
			if _, err := fmt.Fprintf(w, `<p class="alert-code">Error code: %s</p>`, e(msg.Code)); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</div>`)
		return err
	})
}

// CapacityBadge shows stored/maximum contacts, flagged when nearly full.
func CapacityBadge(c core.CapacityStatus) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		class := "badge"
		switch {
		case c.AtLimit:
			class += " badge-full"
		case c.Approaching:
			class += " badge-warning"
		}
		_, err := fmt.Fprintf(w,
			`<span class="%s" title="%d slots available">%d / %d contacts</span>`,
			class, c.Available, c.Count, c.Max)
		return err
	})
}

// ProgressBar renders a labelled progress element.
func ProgressBar(p core.Progress) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		pct := 0
		if p.Total > 0 {
			pct = min(p.Current*100/p.Total, 100)
		}
		_, err := fmt.Fprintf(w,
			`<div class="progress"><progress value="%d" max="100"></progress><span class="progress-label">%s</span><span class="progress-count">%d / %d</span></div>`,
			pct, e(p.Message), p.Current, p.Total)
		return err
	})
}

// ImportProgress renders the import state: the progress bar while
// running, the duplicate under review, the summary or the failure. It
// polls itself until the import settles.
func ImportProgress(v core.SessionView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		poll := ""
		if v.Error == nil && v.Summary == nil && v.Status != core.StatusIdle {
			poll = fmt.Sprintf(` hx-get="/imports/%s/progress" hx-trigger="every 1s" hx-swap="outerHTML"`, e(v.ID))
		}
		if _, err := fmt.Fprintf(w,
			`<section class="import" id="import-%s" data-status="%s"%s><h3>%s</h3>`,
			e(v.ID), e(string(v.Status)), poll, e(v.FileName)); err != nil {
			return err
		}

		var err error
		switch {
		case v.Error != nil:
			err = ErrorAlert(*v.Error).Render(ctx, w)
		case v.Summary != nil:
			err = summary(*v.Summary).Render(ctx, w)
		case v.Status == core.StatusResolving && v.Current != nil:
			err = duplicate(*v.Current, v.Remaining).Render(ctx, w)
		default:
			err = ProgressBar(v.Progress).Render(ctx, w)
		}
		if err != nil {
			return err
		}

		for _, msg := range v.Errors {
			if _, err := fmt.Fprintf(w, `<p class="row-error">%s</p>`, e(msg)); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</section>`)
		return err
	})
}

func summary(s core.Summary) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<dl class="summary"><dt>Saved</dt><dd>%d</dd><dt>Merged</dt><dd>%d</dd><dt>Skipped</dt><dd>%d</dd><dt>Already present</dt><dd>%d</dd><dt>Failed</dt><dd>%d</dd></dl>`,
			s.Saved, s.Merged, s.Skipped, s.AutoSkipped, s.Failed)
		return err
	})
}

func duplicate(m core.DuplicateMatch, remaining int) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="duplicate" data-match="%s"><p>%s matches existing contact %s (%d left to review)</p></div>`,
			e(string(m.MatchType)), e(m.Incoming.Name), e(m.Existing.Name), remaining)
		return err
	})
}
