package sitemaps

import (
	"fmt"
	"strings"
)

// PermalinkConfig holds the URL patterns content is published under.
//
// Supported placeholders: %year% %monthnum% %day% %postname% %pagename%
// %post_type% %slug% %taxonomy% %author%.
type PermalinkConfig struct {
	Post       string `yaml:"post"`
	Page       string `yaml:"page"`
	CustomType string `yaml:"custom_type"`
	Tag        string `yaml:"tag"`
	Category   string `yaml:"category"`
	Author     string `yaml:"author"`
	Term       string `yaml:"term"`
}

func (c *PermalinkConfig) setDefaults() {
	if c.Post == "" {
		c.Post = "/%year%/%monthnum%/%day%/%postname%/"
	}
	if c.Page == "" {
		c.Page = "/%pagename%/"
	}
	if c.CustomType == "" {
		c.CustomType = "/%post_type%/%postname%/"
	}
	if c.Tag == "" {
		c.Tag = "/tag/%slug%/"
	}
	if c.Category == "" {
		c.Category = "/category/%slug%/"
	}
	if c.Author == "" {
		c.Author = "/author/%author%/"
	}
	if c.Term == "" {
		c.Term = "/%taxonomy%/%slug%/"
	}
}

// Permalinks turns store rows into absolute site URLs.
type Permalinks struct {
	base string
	cfg  PermalinkConfig
}

// NewPermalinks creates a Permalinks rooted at the site base URL.
func NewPermalinks(base string, cfg PermalinkConfig) *Permalinks {
	cfg.setDefaults()
	return &Permalinks{base: strings.TrimSuffix(base, "/"), cfg: cfg}
}

// Post returns the permalink of a post, page or custom type entry.
func (l *Permalinks) Post(p Post) string {
	t := p.PublishedAt.UTC()
	r := strings.NewReplacer(
		"%year%", fmt.Sprintf("%04d", t.Year()),
		"%monthnum%", fmt.Sprintf("%02d", int(t.Month())),
		"%day%", fmt.Sprintf("%02d", t.Day()),
		"%postname%", p.Slug,
		"%pagename%", p.Slug,
		"%post_type%", p.Type,
	)
	pattern := l.cfg.CustomType
	switch p.Type {
	case PostTypePost, "":
		pattern = l.cfg.Post
	case PostTypePage:
		pattern = l.cfg.Page
	}
	return BuildURL(l.base, r.Replace(pattern))
}

// Term returns the archive URL of a tag, category or custom taxonomy term.
func (l *Permalinks) Term(t Term) string {
	pattern := l.cfg.Term
	switch t.Taxonomy {
	case TaxonomyTag:
		pattern = l.cfg.Tag
	case TaxonomyCategory:
		pattern = l.cfg.Category
	}
	r := strings.NewReplacer("%slug%", t.Slug, "%taxonomy%", t.Taxonomy)
	return BuildURL(l.base, r.Replace(pattern))
}

// Author returns the posts archive URL of a user.
func (l *Permalinks) Author(u User) string {
	name := u.Nicename
	if name == "" {
		name = Slugify(u.Login)
	}
	return BuildURL(l.base, strings.ReplaceAll(l.cfg.Author, "%author%", name))
}

// Sitemap returns the absolute URL of a sitemap document such as
// "sitemap-pages.xml".
func (l *Permalinks) Sitemap(filename string) string {
	return BuildURL(l.base, "/"+strings.TrimPrefix(filename, "/"))
}

// Home returns the site root URL.
func (l *Permalinks) Home() string {
	return BuildURL(l.base, "/")
}
