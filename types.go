package sitemaps

import "time"

// Content types and statuses understood by the store.
const (
	PostTypePost  = "post"
	PostTypePage  = "page"
	StatusPublish = "publish"
	StatusDraft   = "draft"
)

// Built-in taxonomies.
const (
	TaxonomyTag      = "post_tag"
	TaxonomyCategory = "category"
)

// Post is any addressable piece of content: posts, pages and custom types.
type Post struct {
	ID          int64
	Type        string
	Status      string
	Slug        string
	Title       string
	AuthorID    int64
	PublishedAt time.Time
}

// Term belongs to a taxonomy (tags, categories or a custom taxonomy).
type Term struct {
	ID       int64
	Taxonomy string
	Slug     string
	Name     string
}

// User is a content author with a public archive page.
type User struct {
	ID          int64
	Login       string
	Nicename    string
	DisplayName string
}

// Attachment is an image attached to a post.
type Attachment struct {
	ID       int64
	PostID   int64
	URL      string
	Caption  string
	Filename string
}

// Entry is the (ID, URL, time) triple a feed is rendered from. Entries live
// for a single request.
type Entry struct {
	ID   int64
	URL  string
	Time time.Time
}

// StoreCounts summarises the store for the admin status page.
type StoreCounts struct {
	Posts       int
	Pages       int
	Terms       int
	Users       int
	Attachments int
}
