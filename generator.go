package sitemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Cache keys.
const (
	keyAllDates     = "all_dates"
	keyImagesPrefix = "images_"
)

// Lastmod formats. Every timestamp is rendered in UTC.
const (
	lastmodLayout = "2006-01-02T15:04:05+00:00"
	dayEndSuffix  = "T23:59:00+00:00"
)

// archiveAge is how far back tag, category, user and taxonomy archives
// claim their last modification.
const archiveAge = 48 * time.Hour

// Generator builds sitemap documents from a content source.
type Generator struct {
	content     ContentSource
	links       *Permalinks
	cache       Cache
	hooks       Hooks
	feeds       FeedConfig
	cacheTTL    time.Duration
	stylesheets bool
	now         func() time.Time
	logger      *slog.Logger
	captions    *bluemonday.Policy
}

// GeneratorConfig bundles what a Generator needs.
type GeneratorConfig struct {
	Content     ContentSource
	Links       *Permalinks
	Cache       Cache
	Hooks       Hooks
	Feeds       FeedConfig
	CacheTTL    time.Duration
	Stylesheets bool
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewGenerator creates a Generator. A nil cache disables caching.
func NewGenerator(cfg GeneratorConfig) *Generator {
	cfg.Feeds.setDefaults()
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Generator{
		content:     cfg.Content,
		links:       cfg.Links,
		cache:       cfg.Cache,
		hooks:       cfg.Hooks,
		feeds:       cfg.Feeds,
		cacheTTL:    cfg.CacheTTL,
		stylesheets: cfg.Stylesheets,
		now:         cfg.Now,
		logger:      cfg.Logger,
		captions:    bluemonday.StrictPolicy(),
	}
}

// Document builds the document a route resolved to.
func (g *Generator) Document(ctx context.Context, r Route) (any, error) {
	switch r.Kind {
	case RouteIndex:
		return g.Index(ctx)
	case RoutePages:
		return g.Pages(ctx)
	case RouteNews:
		return g.News(ctx)
	case RouteTags:
		return g.Tags(ctx)
	case RouteCategories:
		return g.Categories(ctx)
	case RouteTaxonomies:
		return g.Taxonomies(ctx)
	case RouteUsers:
		return g.Users(ctx)
	case RouteDay:
		return g.Day(ctx, r.Day)
	}
	return nil, fmt.Errorf("route %q has no document", r.Feed())
}

// Stylesheet returns the XSL href a rendered document should reference, or
// "" when stylesheets are disabled.
func (g *Generator) Stylesheet(r Route) string {
	if !g.stylesheets {
		return ""
	}
	if r.Kind == RouteIndex {
		return "/" + FileIndexStyle
	}
	return "/" + FileChildStyle
}

// Routes lists every document the index currently references, the index
// first.
func (g *Generator) Routes(ctx context.Context) ([]Route, error) {
	routes := append([]Route{{Kind: RouteIndex}}, g.fixedRoutes()...)
	dates, err := g.publishedDates(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range dates {
		day, err := time.ParseInLocation(dayLayout, d, time.UTC)
		if err != nil {
			continue
		}
		routes = append(routes, Route{Kind: RouteDay, Day: day})
	}
	return routes, nil
}

func (g *Generator) fixedRoutes() []Route {
	routes := []Route{{Kind: RoutePages}}
	if g.feeds.TagsEnabled() {
		routes = append(routes, Route{Kind: RouteTags})
	}
	routes = append(routes, Route{Kind: RouteCategories}, Route{Kind: RouteUsers})
	if g.feeds.TaxonomiesEnabled() {
		routes = append(routes, Route{Kind: RouteTaxonomies})
	}
	if g.feeds.NewsEnabled() {
		routes = append(routes, Route{Kind: RouteNews})
	}
	return routes
}

// Index lists the fixed feeds followed by one day bucket per publish date.
func (g *Generator) Index(ctx context.Context) (*SitemapIndex, error) {
	idx := &SitemapIndex{XMLNS: SitemapNS, Sitemaps: []SitemapRef{}}
	today := g.now().UTC().Format(dayLayout) + dayEndSuffix
	for _, r := range g.fixedRoutes() {
		idx.Sitemaps = append(idx.Sitemaps, SitemapRef{
			Loc:     SafeURL(g.links.Sitemap(r.Filename())),
			LastMod: today,
		})
	}

	dates, err := g.publishedDates(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range dates {
		slug := strings.ReplaceAll(d, "-", "")
		idx.Sitemaps = append(idx.Sitemaps, SitemapRef{
			Loc:     SafeURL(g.links.Sitemap(dayFilePrefix + slug + dayFileSuffix)),
			LastMod: d + dayEndSuffix,
		})
	}
	return idx, nil
}

// Pages lists every published page.
func (g *Generator) Pages(ctx context.Context) (*URLSet, error) {
	pages, err := g.content.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	set := newURLSet(false)
	for _, e := range g.hooks.pages(ctx, g.entries(pages)) {
		set.URLs = append(set.URLs, URL{
			Loc:      SafeURL(e.URL),
			LastMod:  formatLastmod(e.Time),
			Priority: PriorityPage,
		})
	}
	return set, nil
}

// Tags lists every tag archive.
func (g *Generator) Tags(ctx context.Context) (*URLSet, error) {
	tags, err := g.content.ListTerms(ctx, TaxonomyTag)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return g.termSet(g.hooks.tags(ctx, tags), PriorityTerm), nil
}

// Categories lists every category archive.
func (g *Generator) Categories(ctx context.Context) (*URLSet, error) {
	cats, err := g.content.ListTerms(ctx, TaxonomyCategory)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return g.termSet(g.hooks.categories(ctx, cats), PriorityTerm), nil
}

// Taxonomies lists every term of every configured custom taxonomy.
func (g *Generator) Taxonomies(ctx context.Context) (*URLSet, error) {
	var terms []Term
	for _, tax := range g.feeds.CustomTaxonomies {
		t, err := g.content.ListTerms(ctx, tax)
		if err != nil {
			return nil, fmt.Errorf("list %s terms: %w", tax, err)
		}
		terms = append(terms, t...)
	}
	return g.termSet(terms, PriorityOther), nil
}

// Users lists every author archive.
func (g *Generator) Users(ctx context.Context) (*URLSet, error) {
	users, err := g.content.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	lastmod := formatLastmod(g.now().Add(-archiveAge))
	set := newURLSet(false)
	for _, u := range g.hooks.users(ctx, users) {
		set.URLs = append(set.URLs, URL{
			Loc:      SafeURL(g.links.Author(u)),
			LastMod:  lastmod,
			Priority: PriorityOther,
		})
	}
	return set, nil
}

// News lists recent posts from the news category.
func (g *Generator) News(ctx context.Context) (*URLSet, error) {
	set := newURLSet(true)
	if !g.feeds.NewsEnabled() {
		return set, nil
	}
	since := g.now().Add(-time.Duration(g.feeds.News.Days) * 24 * time.Hour)
	posts, err := g.content.ListNewsPosts(ctx, g.feeds.News.Category, since, g.feeds.News.Limit)
	if err != nil {
		return nil, fmt.Errorf("list news posts: %w", err)
	}
	for _, e := range g.hooks.news(ctx, g.entries(posts)) {
		set.URLs = append(set.URLs, URL{
			Loc:        SafeURL(e.URL),
			LastMod:    formatLastmod(e.Time),
			ChangeFreq: ChangeWeekly,
			Priority:   PriorityPost,
		})
	}
	return set, nil
}

// Day lists the posts published on day together with their images.
func (g *Generator) Day(ctx context.Context, day time.Time) (*URLSet, error) {
	posts, err := g.content.ListPostsPublishedOn(ctx, day, g.feeds.PostTypes)
	if err != nil {
		return nil, fmt.Errorf("list posts on %s: %w", day.Format(dayLayout), err)
	}
	set := newURLSet(true)
	for _, e := range g.hooks.day(ctx, g.entries(posts)) {
		u := URL{
			Loc:        SafeURL(e.URL),
			LastMod:    formatLastmod(e.Time),
			ChangeFreq: ChangeWeekly,
			Priority:   PriorityPost,
		}
		images, err := g.images(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			// Emptiness is judged on the stored caption, so markup-only
			// captions still list the image.
			loc := SafeURL(img.URL)
			if loc == "" || img.Caption == "" {
				continue
			}
			u.Images = append(u.Images, ImageEntry{Loc: loc, Caption: g.stripMarkup(img.Caption)})
		}
		set.URLs = append(set.URLs, u)
	}
	return set, nil
}

func (g *Generator) termSet(terms []Term, priority string) *URLSet {
	lastmod := formatLastmod(g.now().Add(-archiveAge))
	set := newURLSet(false)
	for _, t := range terms {
		set.URLs = append(set.URLs, URL{
			Loc:      SafeURL(g.links.Term(t)),
			LastMod:  lastmod,
			Priority: priority,
		})
	}
	return set
}

func (g *Generator) entries(posts []Post) []Entry {
	out := make([]Entry, 0, len(posts))
	for _, p := range posts {
		out = append(out, Entry{ID: p.ID, URL: g.links.Post(p), Time: p.PublishedAt})
	}
	return out
}

// stripMarkup removes tags from a caption and returns plain text; XML
// escaping happens at encode time.
func (g *Generator) stripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(g.captions.Sanitize(s)))
}

func (g *Generator) publishedDates(ctx context.Context) ([]string, error) {
	return cached(ctx, g, keyAllDates, func(ctx context.Context) ([]string, error) {
		dates, err := g.content.ListPublishedDates(ctx, g.feeds.PostTypes)
		if err != nil {
			return nil, fmt.Errorf("list published dates: %w", err)
		}
		return dates, nil
	})
}

func (g *Generator) images(ctx context.Context, postID int64) ([]Attachment, error) {
	return cached(ctx, g, ImagesCacheKey(postID), func(ctx context.Context) ([]Attachment, error) {
		atts, err := g.content.ListAttachments(ctx, postID)
		if err != nil {
			return nil, fmt.Errorf("list attachments of post %d: %w", postID, err)
		}
		return atts, nil
	})
}

// ImagesCacheKey is the cache key of a post's attachment list.
func ImagesCacheKey(postID int64) string {
	return keyImagesPrefix + strconv.FormatInt(postID, 10)
}

// cached returns the value stored under key, loading and storing it on a
// miss. Cache failures are logged and treated as misses.
func cached[T any](ctx context.Context, g *Generator, key string, load func(context.Context) (T, error)) (T, error) {
	kind := cacheKind(key)
	if g.cache != nil {
		raw, ok, err := g.cache.Get(ctx, key)
		switch {
		case err != nil:
			RecordCacheLookup(kind, "error")
			g.logger.Warn("cache get failed", slog.String("key", key), slog.String("error", err.Error()))
		case ok:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				RecordCacheLookup(kind, "hit")
				return v, nil
			}
			RecordCacheLookup(kind, "error")
			g.logger.Warn("cache entry undecodable", slog.String("key", key))
		default:
			RecordCacheLookup(kind, "miss")
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if g.cache != nil {
		raw, err := json.Marshal(v)
		if err == nil {
			err = g.cache.Set(ctx, key, raw, g.cacheTTL)
		}
		if err != nil {
			g.logger.Warn("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return v, nil
}

func formatLastmod(t time.Time) string {
	return t.UTC().Format(lastmodLayout)
}
