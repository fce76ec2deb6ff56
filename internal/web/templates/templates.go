// Package templates renders the HTML fragments the admin UI swaps in with
// HTMX: the error alert and the rule test preview.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/backoffice/internal/core"
)

// ErrorAlert renders a dismissible error box with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert" data-code="%s">`+
				`<p class="alert-message">%s</p>`+
				`<p class="alert-action">%s</p>`+
				`<p class="alert-code">Code: %s</p>`+
				`</div>`,
			templ.EscapeString(code),
			templ.EscapeString(message),
			templ.EscapeString(action),
			templ.EscapeString(code),
		)
		return err
	})
}

// RuleTestPreview renders the result of a combined rule test as a field
// table followed by the skip flag and any messages.
func RuleTestPreview(res core.RuleTestResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}

		ew.printf(`<div class="rule-test" data-skipped="%t">`, res.Skipped)
		ew.printf(`<p class="rule-test-counts">%d basic rules, %d advanced rules</p>`,
			res.BasicRulesApplied, res.AdvancedRulesApplied)

		if res.Skipped {
			ew.printf(`<p class="rule-test-skip">Row would be skipped</p>`)
		}

		if res.Record != nil {
			ew.printf(`<table class="rule-test-record"><thead><tr><th>Field</th><th>Value</th></tr></thead><tbody>`)
			for _, f := range res.Record.Fields() {
				ew.printf(`<tr><td>%s</td><td>%s</td></tr>`,
					templ.EscapeString(f), templ.EscapeString(res.Record.Get(f).Text()))
			}
			ew.printf(`</tbody></table>`)
		}

		messageList(ew, "rule-test-warnings", res.Warnings)
		messageList(ew, "rule-test-errors", res.RuleErrors)
		messageList(ew, "rule-test-validation", res.ValidationErrors)

		ew.printf(`</div>`)
		return ew.err
	})
}

func messageList(ew *errWriter, class string, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	ew.printf(`<ul class="%s">`, class)
	for _, m := range msgs {
		ew.printf(`<li>%s</li>`, templ.EscapeString(m))
	}
	ew.printf(`</ul>`)
}

// errWriter keeps the first write error so fragments can be written
// without checking every call.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
