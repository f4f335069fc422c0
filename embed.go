package sitemaps

import "embed"

// Stylesheets holds the XSL views browsers use to render sitemap documents:
// sitemap-index-style.xsl and sitemap-child-style.xsl.
//
//go:embed xsl/*.xsl
var Stylesheets embed.FS
