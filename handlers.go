package sitemaps

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (a *App) handleSitemap(c echo.Context) error {
	route := Resolve(c.Request().URL.Path, a.Config.Feeds)
	switch route.Kind {
	case RouteNone:
		return echo.ErrNotFound
	case RouteRedirect:
		RequestsTotal.WithLabelValues(route.Feed(), "ok").Inc()
		return c.Redirect(http.StatusMovedPermanently, a.Links.Sitemap(route.Target))
	case RouteIndexStyle, RouteChildStyle:
		return a.renderStylesheet(c, route)
	}

	start := time.Now()
	doc, err := a.Generator.Document(c.Request().Context(), route)
	if err != nil {
		RecordRender(route.Feed(), "error", 0, time.Since(start).Seconds())
		return fmt.Errorf("render %s: %w", route.Filename(), err)
	}
	RecordRender(route.Feed(), "ok", documentLen(doc), time.Since(start).Seconds())
	return a.renderDocument(c, doc, a.Generator.Stylesheet(route))
}

func (a *App) renderStylesheet(c echo.Context, route Route) error {
	body, err := fs.ReadFile(Stylesheets, "xsl/"+route.Filename())
	if err != nil {
		return err
	}
	RequestsTotal.WithLabelValues(route.Feed(), "ok").Inc()
	return c.Blob(http.StatusOK, contentTypeXML, body)
}

// handleRobots advertises the sitemap index to crawlers.
func (a *App) handleRobots(c echo.Context) error {
	body := fmt.Sprintf("User-agent: *\nAllow: /\nDisallow: /admin/\n\nSitemap: %s\n", a.Links.Sitemap(FileIndex))
	return c.String(http.StatusOK, body)
}

func (a *App) handleHealth(c echo.Context) error {
	if err := a.Store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Logger.Error("server error",
			slog.String("method", c.Request().Method),
			slog.String("uri", c.Request().RequestURI),
			slog.String("error", err.Error()))
		_ = c.String(code, http.StatusText(code))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
