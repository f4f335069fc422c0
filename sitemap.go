package sitemaps

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// XML namespaces.
const (
	SitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	ImageNS   = "http://www.google.com/schemas/sitemap-image/1.1"
)

// contentTypeXML is sent with every document and stylesheet.
const contentTypeXML = "application/xml; charset=utf-8"

// ChangeFreq is the optional changefreq hint of a URL entry.
type ChangeFreq string

const ChangeWeekly ChangeFreq = "weekly"

// Priorities used by the feeds.
const (
	PriorityPost  = "0.8"
	PriorityPage  = "0.7"
	PriorityTerm  = "0.7"
	PriorityOther = "0.6"
)

// SitemapIndex is the top-level document listing child sitemaps.
type SitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	XMLNS    string       `xml:"xmlns,attr"`
	Sitemaps []SitemapRef `xml:"sitemap"`
}

// SitemapRef points at a child sitemap.
type SitemapRef struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// URLSet is a child sitemap.
type URLSet struct {
	XMLName    xml.Name `xml:"urlset"`
	XMLNS      string   `xml:"xmlns,attr"`
	XMLNSImage string   `xml:"xmlns:image,attr,omitempty"`
	URLs       []URL    `xml:"url"`
}

// URL is one entry of a child sitemap.
type URL struct {
	Loc        string       `xml:"loc"`
	LastMod    string       `xml:"lastmod,omitempty"`
	ChangeFreq ChangeFreq   `xml:"changefreq,omitempty"`
	Priority   string       `xml:"priority,omitempty"`
	Images     []ImageEntry `xml:"image:image"`
}

// ImageEntry is a Google image-sitemap extension element.
type ImageEntry struct {
	Loc     string `xml:"image:loc"`
	Caption string `xml:"image:caption"`
}

func newURLSet(withImages bool) *URLSet {
	s := &URLSet{XMLNS: SitemapNS, URLs: []URL{}}
	if withImages {
		s.XMLNSImage = ImageNS
	}
	return s
}

// documentLen returns the number of entries a document lists.
func documentLen(doc any) int {
	switch d := doc.(type) {
	case *SitemapIndex:
		return len(d.Sitemaps)
	case *URLSet:
		return len(d.URLs)
	}
	return 0
}

// WriteDocument writes the XML declaration, an optional stylesheet
// processing instruction and the indented document.
func WriteDocument(w io.Writer, doc any, stylesheet string) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if stylesheet != "" {
		if _, err := fmt.Fprintf(w, "<?xml-stylesheet type=\"text/xsl\" href=\"%s\"?>\n", xmlAttrEscape(stylesheet)); err != nil {
			return err
		}
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (a *App) renderDocument(c echo.Context, doc any, stylesheet string) error {
	c.Response().Header().Set(echo.HeaderContentType, contentTypeXML)
	c.Response().WriteHeader(http.StatusOK)
	if c.Request().Method == http.MethodHead {
		return nil
	}
	return WriteDocument(c.Response(), doc, stylesheet)
}

func xmlAttrEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
