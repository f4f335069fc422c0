package sitemaps

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const adminStyle = `body{font-family:Arial,sans-serif;font-size:12pt;background:#eee;padding:16px}` +
	`table{border-collapse:collapse}td,th{padding:4px 12px;text-align:left}` +
	`.msg{background:#dfd;padding:8px;margin-bottom:12px}.err{background:#fdd;padding:8px}`

// AdminStatus is what the admin dashboard shows.
type AdminStatus struct {
	SiteName     string
	SiteURL      string
	CacheBackend string
	Counts       StoreCounts
	Documents    []string
	Message      string
	CSRFToken    string
}

func adminPage(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>",
			templ.EscapeString(title), adminStyle); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

// AdminLoginView renders the login form.
func AdminLoginView(showError bool, csrfToken string) templ.Component {
	return adminPage("Sitemaps admin", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<h1>Sitemaps admin</h1>"); err != nil {
			return err
		}
		if showError {
			if _, err := io.WriteString(w, `<p class="err">Invalid password.</p>`); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, `<form method="post" action="/admin/login/">`+
			`<input type="hidden" name="_csrf" value="%s">`+
			`<input type="password" name="password" autofocus> <button type="submit">Log in</button></form>`,
			templ.EscapeString(csrfToken))
		return err
	}))
}

// AdminDashboardView renders store counts, cache state and document links.
func AdminDashboardView(s AdminStatus) templ.Component {
	return adminPage(s.SiteName+" sitemaps", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<h1>%s sitemaps</h1><p><a href="%s">%s</a></p>`,
			templ.EscapeString(s.SiteName), templ.EscapeString(s.SiteURL), templ.EscapeString(s.SiteURL)); err != nil {
			return err
		}
		if s.Message != "" {
			if _, err := fmt.Fprintf(w, `<p class="msg">%s</p>`, templ.EscapeString(s.Message)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "<table>"+
			"<tr><th>Posts</th><td>%d</td></tr>"+
			"<tr><th>Pages</th><td>%d</td></tr>"+
			"<tr><th>Terms</th><td>%d</td></tr>"+
			"<tr><th>Users</th><td>%d</td></tr>"+
			"<tr><th>Attachments</th><td>%d</td></tr>"+
			"<tr><th>Cache</th><td>%s</td></tr></table>",
			s.Counts.Posts, s.Counts.Pages, s.Counts.Terms, s.Counts.Users, s.Counts.Attachments,
			templ.EscapeString(s.CacheBackend)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<form method="post" action="/admin/purge/">`+
			`<input type="hidden" name="_csrf" value="%s"><button type="submit">Purge sitemap cache</button></form>`,
			templ.EscapeString(s.CSRFToken)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<form method="post" action="/admin/logout/">`+
			`<input type="hidden" name="_csrf" value="%s"><button type="submit">Log out</button></form>`,
			templ.EscapeString(s.CSRFToken)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "<h2>Documents</h2><ul>"); err != nil {
			return err
		}
		for _, d := range s.Documents {
			if _, err := fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, templ.EscapeString(d), templ.EscapeString(d)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul>")
		return err
	}))
}
