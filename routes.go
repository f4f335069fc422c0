package sitemaps

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// RouteKind identifies what a request basename resolved to.
type RouteKind int

const (
	RouteNone RouteKind = iota
	RouteIndexStyle
	RouteChildStyle
	RouteRedirect
	RouteIndex
	RoutePages
	RouteNews
	RouteTags
	RouteCategories
	RouteTaxonomies
	RouteUsers
	RouteDay
)

// Fixed document filenames.
const (
	FileIndex       = "sitemap.xml"
	FileIndexAlias  = "sitemap-index.xml"
	FilePages       = "sitemap-pages.xml"
	FileNews        = "sitemap-news.xml"
	FileTags        = "sitemap-tags.xml"
	FileCategories  = "sitemap-categories.xml"
	FileTaxonomies  = "sitemap-taxonomies.xml"
	FileUsers       = "sitemap-users.xml"
	FileIndexStyle  = "sitemap-index-style.xsl"
	FileChildStyle  = "sitemap-child-style.xsl"
	dayFileLayout   = "20060102"
	dayFilePrefix   = "sitemap-"
	dayFileSuffix   = ".xml"
	legacyXMLSuffix = "-xml"
)

// legacyFeeds maps the second segment of an old "sitemap-<name>-xml" URL to
// the document it moved to.
var legacyFeeds = map[string]string{
	"index":      FileIndex,
	"pages":      FilePages,
	"news":       FileNews,
	"tags":       FileTags,
	"categories": FileCategories,
	"taxonomies": FileTaxonomies,
	"users":      FileUsers,
}

// Route is the outcome of resolving a request path.
type Route struct {
	Kind RouteKind
	// Target is the document filename a redirect points at.
	Target string
	// Day is set for RouteDay.
	Day time.Time
}

// Feed returns the metrics label of the route.
func (r Route) Feed() string {
	switch r.Kind {
	case RouteIndexStyle, RouteChildStyle:
		return "stylesheet"
	case RouteRedirect:
		return "redirect"
	case RouteIndex:
		return "index"
	case RoutePages:
		return "pages"
	case RouteNews:
		return "news"
	case RouteTags:
		return "tags"
	case RouteCategories:
		return "categories"
	case RouteTaxonomies:
		return "taxonomies"
	case RouteUsers:
		return "users"
	case RouteDay:
		return "day"
	}
	return "none"
}

// Filename returns the canonical document name for a route.
func (r Route) Filename() string {
	switch r.Kind {
	case RouteIndexStyle:
		return FileIndexStyle
	case RouteChildStyle:
		return FileChildStyle
	case RouteRedirect:
		return r.Target
	case RouteIndex:
		return FileIndex
	case RoutePages:
		return FilePages
	case RouteNews:
		return FileNews
	case RouteTags:
		return FileTags
	case RouteCategories:
		return FileCategories
	case RouteTaxonomies:
		return FileTaxonomies
	case RouteUsers:
		return FileUsers
	case RouteDay:
		return DayFilename(r.Day)
	}
	return ""
}

// DayFilename returns the day bucket document name, e.g. sitemap-20240102.xml.
func DayFilename(day time.Time) string {
	return dayFilePrefix + day.UTC().Format(dayFileLayout) + dayFileSuffix
}

// RequestBasename normalises a request path to the name dispatch matches on.
// Query strings must already be stripped.
func RequestBasename(requestPath string) string {
	requestPath = strings.TrimSpace(requestPath)
	if requestPath == "" {
		return ""
	}
	base := path.Base(requestPath)
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSpace(base)
}

// Resolve maps a request path to a Route. The first matching rule wins;
// a path nothing matches resolves to RouteNone.
func Resolve(requestPath string, feeds FeedConfig) Route {
	req := RequestBasename(requestPath)
	if req == "" {
		return Route{}
	}

	switch req {
	case FileIndexStyle:
		return Route{Kind: RouteIndexStyle}
	case FileChildStyle:
		return Route{Kind: RouteChildStyle}
	case "sitemap-xml", "sitemap-index-xml":
		return Route{Kind: RouteRedirect, Target: FileIndex}
	case "sitemap-pages-xml":
		return Route{Kind: RouteRedirect, Target: FilePages}
	case "sitemap-news-xml":
		return Route{Kind: RouteRedirect, Target: FileNews}
	}

	if strings.Contains(req, dayFilePrefix) && strings.Contains(req, legacyXMLSuffix) {
		return resolveLegacy(req)
	}

	switch {
	case req == FileIndex || req == FileIndexAlias:
		return Route{Kind: RouteIndex}
	case req == FilePages:
		return Route{Kind: RoutePages}
	case req == FileNews && feeds.NewsEnabled():
		return Route{Kind: RouteNews}
	case req == FileTags && feeds.TagsEnabled():
		return Route{Kind: RouteTags}
	case req == FileCategories:
		return Route{Kind: RouteCategories}
	case req == FileTaxonomies && feeds.TaxonomiesEnabled():
		return Route{Kind: RouteTaxonomies}
	case req == FileUsers:
		return Route{Kind: RouteUsers}
	}

	if day, ok := parseDayFilename(req); ok {
		return Route{Kind: RouteDay, Day: day}
	}
	return Route{}
}

// resolveLegacy handles "sitemap-<seg>-xml" URLs from older releases.
func resolveLegacy(req string) Route {
	parts := strings.Split(req, "-")
	if len(parts) < 3 {
		return Route{}
	}
	seg := parts[1]
	if target, ok := legacyFeeds[seg]; ok {
		return Route{Kind: RouteRedirect, Target: target}
	}
	n, err := strconv.ParseUint(seg, 10, 64)
	if err != nil {
		return Route{}
	}
	return Route{Kind: RouteRedirect, Target: dayFilePrefix + strconv.FormatUint(n, 10) + dayFileSuffix}
}

// parseDayFilename accepts exactly sitemap-YYYYMMDD.xml with a real date.
func parseDayFilename(req string) (time.Time, bool) {
	if !strings.HasPrefix(req, dayFilePrefix) || !strings.HasSuffix(req, dayFileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(req, dayFilePrefix), dayFileSuffix)
	if len(stamp) != len(dayFileLayout) {
		return time.Time{}, false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return time.Time{}, false
		}
	}
	day, err := time.ParseInLocation(dayFileLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
