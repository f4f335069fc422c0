package sitemaps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = sql.ErrNoRows

// storeTimeLayout is how publish times are persisted. Values are UTC and
// sort lexically, which the date queries rely on.
const storeTimeLayout = "2006-01-02 15:04:05"

// sqlitePragmas enables WAL so sitemap reads proceed while the importer or
// admin writes.
const sqlitePragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=cache_size(-8000)"

// dayLayout formats a calendar day as stored by date().
const dayLayout = "2006-01-02"

// ContentSource is the read side of the content store that feeds are
// rendered from.
type ContentSource interface {
	ListPages(ctx context.Context) ([]Post, error)
	ListPostsPublishedOn(ctx context.Context, day time.Time, types []string) ([]Post, error)
	ListNewsPosts(ctx context.Context, category string, since time.Time, limit int) ([]Post, error)
	ListPublishedDates(ctx context.Context, types []string) ([]string, error)
	ListTerms(ctx context.Context, taxonomy string) ([]Term, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListAttachments(ctx context.Context, postID int64) ([]Attachment, error)
}

// Store wraps a SQLite database holding posts, terms, users and attachments.
type Store struct {
	db *sql.DB
}

var _ ContentSource = (*Store)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// Pragmas go through the DSN so every pooled connection gets them.
	db, err := sql.Open("sqlite", path+"?"+sqlitePragmas)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    login TEXT NOT NULL UNIQUE,
    nicename TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL DEFAULT 'post',
    status TEXT NOT NULL DEFAULT 'publish',
    slug TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    author_id INTEGER NOT NULL DEFAULT 0,
    published_at TEXT NOT NULL,
    UNIQUE (type, slug)
);

CREATE TABLE IF NOT EXISTS terms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    taxonomy TEXT NOT NULL,
    slug TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    UNIQUE (taxonomy, slug)
);

CREATE TABLE IF NOT EXISTS term_relationships (
    post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    term_id INTEGER NOT NULL REFERENCES terms(id) ON DELETE CASCADE,
    PRIMARY KEY (post_id, term_id)
);

CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    url TEXT NOT NULL DEFAULT '',
    caption TEXT NOT NULL DEFAULT '',
    filename TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_posts_status_type_date ON posts(status, type, published_at);
CREATE INDEX IF NOT EXISTS idx_attachments_post ON attachments(post_id);
`)
	return err
}

const postColumns = `p.id, p.type, p.status, p.slug, p.title, p.author_id, p.published_at`

func scanPosts(rows *sql.Rows) ([]Post, error) {
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		var p Post
		var published string
		if err := rows.Scan(&p.ID, &p.Type, &p.Status, &p.Slug, &p.Title, &p.AuthorID, &published); err != nil {
			return nil, err
		}
		t, err := time.ParseInLocation(storeTimeLayout, published, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("post %d: parse published_at %q: %w", p.ID, published, err)
		}
		p.PublishedAt = t
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ListPages returns every published page, newest first.
func (s *Store) ListPages(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts p
WHERE p.type = ? AND p.status = ?
ORDER BY p.published_at DESC, p.id DESC`, PostTypePage, StatusPublish)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

// ListPostsPublishedOn returns published posts of the given types whose
// publish time falls on day (UTC), newest first.
func (s *Store) ListPostsPublishedOn(ctx context.Context, day time.Time, types []string) ([]Post, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := []any{StatusPublish, day.UTC().Format(dayLayout)}
	for _, t := range types {
		args = append(args, t)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts p
WHERE p.status = ? AND date(p.published_at) = ? AND p.type IN (`+placeholders(len(types))+`)
ORDER BY p.published_at DESC, p.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

// ListNewsPosts returns published posts filed under the category slug and
// published after since, newest first, capped at limit.
func (s *Store) ListNewsPosts(ctx context.Context, category string, since time.Time, limit int) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts p
JOIN term_relationships r ON r.post_id = p.id
JOIN terms t ON t.id = r.term_id
WHERE t.taxonomy = ? AND t.slug = ?
  AND p.type = ? AND p.status = ? AND p.published_at > ?
ORDER BY p.published_at DESC, p.id DESC
LIMIT ?`, TaxonomyCategory, category, PostTypePost, StatusPublish, since.UTC().Format(storeTimeLayout), limit)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

// ListPublishedDates returns every distinct day (YYYY-MM-DD) on which a post
// of one of the given types was published, newest first. Days shared by
// several types appear once.
func (s *Store) ListPublishedDates(ctx context.Context, types []string) ([]string, error) {
	seen := make(map[string]struct{})
	var dates []string
	for _, postType := range types {
		rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date(published_at) AS d FROM posts
WHERE status = ? AND type = ?
ORDER BY d DESC`, StatusPublish, postType)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var d string
			if err := rows.Scan(&d); err != nil {
				rows.Close()
				return nil, err
			}
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			dates = append(dates, d)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// ListTerms returns every term of a taxonomy ordered by name.
func (s *Store) ListTerms(ctx context.Context, taxonomy string) ([]Term, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, taxonomy, slug, name FROM terms WHERE taxonomy = ? ORDER BY name, slug`, taxonomy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var t Term
		if err := rows.Scan(&t.ID, &t.Taxonomy, &t.Slug, &t.Name); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// ListUsers returns every user ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, login, nicename, display_name FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Login, &u.Nicename, &u.DisplayName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListAttachments returns the images attached to a post.
func (s *Store) ListAttachments(ctx context.Context, postID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, post_id, url, caption, filename FROM attachments WHERE post_id = ? ORDER BY id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.PostID, &a.URL, &a.Caption, &a.Filename); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// GetPost returns a post by ID regardless of status.
func (s *Store) GetPost(ctx context.Context, id int64) (Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, id)
	if err != nil {
		return Post{}, err
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return Post{}, err
	}
	if len(posts) == 0 {
		return Post{}, ErrNotFound
	}
	return posts[0], nil
}

// GetAttachment returns an attachment by ID.
func (s *Store) GetAttachment(ctx context.Context, id int64) (Attachment, error) {
	var a Attachment
	err := s.db.QueryRowContext(ctx, `SELECT id, post_id, url, caption, filename FROM attachments WHERE id = ?`, id).
		Scan(&a.ID, &a.PostID, &a.URL, &a.Caption, &a.Filename)
	if err != nil {
		return Attachment{}, err
	}
	return a, nil
}

// FilenameTaken reports whether an attachment already uses filename.
func (s *Store) FilenameTaken(ctx context.Context, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments WHERE filename = ?`, filename).Scan(&n)
	return n > 0, err
}

// SavePost upserts a post keyed by (type, slug) and returns its ID. Missing
// type and status default to a published post.
func (s *Store) SavePost(ctx context.Context, p Post) (int64, error) {
	return savePost(ctx, s.db, p)
}

func savePost(ctx context.Context, q dbtx, p Post) (int64, error) {
	if p.Type == "" {
		p.Type = PostTypePost
	}
	if p.Status == "" {
		p.Status = StatusPublish
	}
	if p.Slug == "" {
		return 0, errors.New("save post: slug is required")
	}
	if p.PublishedAt.IsZero() {
		return 0, fmt.Errorf("save post %q: published time is required", p.Slug)
	}
	var id int64
	err := q.QueryRowContext(ctx, `INSERT INTO posts (type, status, slug, title, author_id, published_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (type, slug) DO UPDATE SET
    status = excluded.status,
    title = excluded.title,
    author_id = excluded.author_id,
    published_at = excluded.published_at
RETURNING id`,
		p.Type, p.Status, p.Slug, p.Title, p.AuthorID, p.PublishedAt.UTC().Format(storeTimeLayout)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save post %q: %w", p.Slug, err)
	}
	return id, nil
}

// SaveTerm upserts a term keyed by (taxonomy, slug) and returns its ID.
func (s *Store) SaveTerm(ctx context.Context, t Term) (int64, error) {
	return saveTerm(ctx, s.db, t)
}

func saveTerm(ctx context.Context, q dbtx, t Term) (int64, error) {
	if t.Taxonomy == "" || t.Slug == "" {
		return 0, errors.New("save term: taxonomy and slug are required")
	}
	if t.Name == "" {
		t.Name = t.Slug
	}
	var id int64
	err := q.QueryRowContext(ctx, `INSERT INTO terms (taxonomy, slug, name) VALUES (?, ?, ?)
ON CONFLICT (taxonomy, slug) DO UPDATE SET name = excluded.name
RETURNING id`, t.Taxonomy, t.Slug, t.Name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save term %s/%s: %w", t.Taxonomy, t.Slug, err)
	}
	return id, nil
}

// SaveUser upserts a user keyed by login and returns its ID.
func (s *Store) SaveUser(ctx context.Context, u User) (int64, error) {
	return saveUser(ctx, s.db, u)
}

func saveUser(ctx context.Context, q dbtx, u User) (int64, error) {
	if u.Login == "" {
		return 0, errors.New("save user: login is required")
	}
	if u.Nicename == "" {
		u.Nicename = Slugify(u.Login)
	}
	var id int64
	err := q.QueryRowContext(ctx, `INSERT INTO users (login, nicename, display_name) VALUES (?, ?, ?)
ON CONFLICT (login) DO UPDATE SET nicename = excluded.nicename, display_name = excluded.display_name
RETURNING id`, u.Login, u.Nicename, u.DisplayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save user %q: %w", u.Login, err)
	}
	return id, nil
}

// AttachTerms links a post to terms. Existing links are kept.
func (s *Store) AttachTerms(ctx context.Context, postID int64, termIDs ...int64) error {
	return attachTerms(ctx, s.db, postID, termIDs...)
}

func attachTerms(ctx context.Context, q dbtx, postID int64, termIDs ...int64) error {
	for _, termID := range termIDs {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO term_relationships (post_id, term_id) VALUES (?, ?)`, postID, termID); err != nil {
			return fmt.Errorf("attach term %d to post %d: %w", termID, postID, err)
		}
	}
	return nil
}

// SaveAttachment inserts an attachment and returns its ID.
func (s *Store) SaveAttachment(ctx context.Context, a Attachment) (int64, error) {
	return saveAttachment(ctx, s.db, a)
}

func saveAttachment(ctx context.Context, q dbtx, a Attachment) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO attachments (post_id, url, caption, filename) VALUES (?, ?, ?, ?)`,
		a.PostID, a.URL, a.Caption, a.Filename)
	if err != nil {
		return 0, fmt.Errorf("save attachment for post %d: %w", a.PostID, err)
	}
	return res.LastInsertId()
}

// DeleteAttachment removes an attachment by ID.
func (s *Store) DeleteAttachment(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	return err
}

// Counts returns row counts for the admin status page.
func (s *Store) Counts(ctx context.Context) (StoreCounts, error) {
	var c StoreCounts
	err := s.db.QueryRowContext(ctx, `SELECT
    (SELECT COUNT(*) FROM posts WHERE type != ? AND status = ?),
    (SELECT COUNT(*) FROM posts WHERE type = ? AND status = ?),
    (SELECT COUNT(*) FROM terms),
    (SELECT COUNT(*) FROM users),
    (SELECT COUNT(*) FROM attachments)`,
		PostTypePage, StatusPublish, PostTypePage, StatusPublish).
		Scan(&c.Posts, &c.Pages, &c.Terms, &c.Users, &c.Attachments)
	return c, err
}
