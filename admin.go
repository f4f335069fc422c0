package sitemaps

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (a *App) setupAdminRoutes() {
	g := a.Echo.Group("/admin", a.adminMiddleware()...)
	g.GET("/", a.handleAdmin)
	g.POST("/login/", a.handleAdminLogin)
	g.POST("/logout/", handleAdminLogout)
	g.POST("/purge/", a.handleAdminPurge)
	g.POST("/posts/:id/images/", a.handleImageUpload)
	g.DELETE("/attachments/:id/", a.handleAttachmentDelete)
}

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, AdminLoginView(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	a.Logger.Warn("failed admin login", slog.String("remote_ip", ip))
	return RenderStatus(c, http.StatusUnauthorized, AdminLoginView(true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

// handleAdminPurge drops every cached date and image list so the next
// sitemap request reads the store.
func (a *App) handleAdminPurge(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := a.Cache.Purge(c.Request().Context()); err != nil {
		return err
	}
	a.Logger.Info("sitemap cache purged")
	return c.Redirect(http.StatusSeeOther, "/admin/?msg=Cache+purged.")
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	ctx := c.Request().Context()
	counts, err := a.Store.Counts(ctx)
	if err != nil {
		return err
	}
	routes, err := a.Generator.Routes(ctx)
	if err != nil {
		return err
	}
	docs := make([]string, 0, len(routes))
	for _, r := range routes {
		docs = append(docs, a.Links.Sitemap(r.Filename()))
	}
	return Render(c, AdminDashboardView(AdminStatus{
		SiteName:     a.Config.Name,
		SiteURL:      a.Links.Home(),
		CacheBackend: a.Config.Cache.Backend,
		Counts:       counts,
		Documents:    docs,
		Message:      msg,
		CSRFToken:    CsrfToken(c),
	}))
}
