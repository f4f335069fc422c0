package sitemaps

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seeded holds the IDs seedContent created.
type seeded struct {
	alice, bob           int64
	hello, older, draft  int64
	recipe, about        int64
	news, general, goTag int64
}

// seedContent fills a store with a small site:
//
//	2024-01-01  page  about
//	2024-03-01  post  older        (category general)
//	2024-03-05  post  draft-post   (draft)
//	2024-03-09  post  hello-world  (category news, tag go, three images)
//	2024-03-09  recipe pancakes
func seedContent(t *testing.T, s *Store) seeded {
	t.Helper()
	ctx := context.Background()
	var ids seeded
	var err error

	ids.alice, err = s.SaveUser(ctx, User{Login: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	ids.bob, err = s.SaveUser(ctx, User{Login: "Bob Smith"})
	require.NoError(t, err)

	ids.news, err = s.SaveTerm(ctx, Term{Taxonomy: TaxonomyCategory, Slug: "news", Name: "News"})
	require.NoError(t, err)
	ids.general, err = s.SaveTerm(ctx, Term{Taxonomy: TaxonomyCategory, Slug: "general", Name: "General"})
	require.NoError(t, err)
	ids.goTag, err = s.SaveTerm(ctx, Term{Taxonomy: TaxonomyTag, Slug: "go", Name: "Go"})
	require.NoError(t, err)
	_, err = s.SaveTerm(ctx, Term{Taxonomy: "genre", Slug: "jazz"})
	require.NoError(t, err)

	ids.hello, err = s.SavePost(ctx, Post{Slug: "hello-world", Title: "Hello", AuthorID: ids.alice,
		PublishedAt: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	ids.older, err = s.SavePost(ctx, Post{Slug: "older", AuthorID: ids.bob,
		PublishedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	ids.draft, err = s.SavePost(ctx, Post{Slug: "draft-post", Status: StatusDraft,
		PublishedAt: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	ids.recipe, err = s.SavePost(ctx, Post{Type: "recipe", Slug: "pancakes",
		PublishedAt: time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	ids.about, err = s.SavePost(ctx, Post{Type: PostTypePage, Slug: "about",
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	require.NoError(t, s.AttachTerms(ctx, ids.hello, ids.news, ids.goTag))
	require.NoError(t, s.AttachTerms(ctx, ids.older, ids.general))

	for _, a := range []Attachment{
		{PostID: ids.hello, URL: "https://cdn.example.com/a.jpg", Caption: "<b>Sunset</b> &amp; sea"},
		{PostID: ids.hello, URL: "https://cdn.example.com/b.jpg", Caption: ""},
		{PostID: ids.hello, URL: "javascript:alert(1)", Caption: "bad"},
	} {
		_, err := s.SaveAttachment(ctx, a)
		require.NoError(t, err)
	}
	return ids
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestSavePostUpserts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.SavePost(ctx, Post{Slug: "a", Title: "First", PublishedAt: fixedNow})
	require.NoError(t, err)
	again, err := s.SavePost(ctx, Post{Slug: "a", Title: "Second", PublishedAt: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	p, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Second", p.Title)
	assert.Equal(t, PostTypePost, p.Type)
	assert.Equal(t, StatusPublish, p.Status)
	assert.True(t, p.PublishedAt.Equal(fixedNow))

	// Same slug, different type is a different row.
	page, err := s.SavePost(ctx, Post{Type: PostTypePage, Slug: "a", PublishedAt: fixedNow})
	require.NoError(t, err)
	assert.NotEqual(t, id, page)
}

func TestSavePostRequiresSlugAndTime(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.SavePost(ctx, Post{PublishedAt: fixedNow})
	assert.Error(t, err)
	_, err = s.SavePost(ctx, Post{Slug: "no-time"})
	assert.Error(t, err)
}

func TestGetPostNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetPost(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPublishedDates(t *testing.T) {
	s := setupTestStore(t)
	seedContent(t, s)
	ctx := context.Background()

	dates, err := s.ListPublishedDates(ctx, []string{PostTypePost})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-09", "2024-03-01"}, dates)

	// Shared days appear once; draft days never appear.
	dates, err = s.ListPublishedDates(ctx, []string{PostTypePost, "recipe"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-09", "2024-03-01"}, dates)

	dates, err = s.ListPublishedDates(ctx, []string{PostTypePage, PostTypePost})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-09", "2024-03-01", "2024-01-01"}, dates)
}

func TestListPostsPublishedOn(t *testing.T) {
	s := setupTestStore(t)
	ids := seedContent(t, s)
	ctx := context.Background()
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	posts, err := s.ListPostsPublishedOn(ctx, day, []string{PostTypePost})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, ids.hello, posts[0].ID)

	posts, err = s.ListPostsPublishedOn(ctx, day, []string{PostTypePost, "recipe"})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, ids.recipe, posts[0].ID, "newest first")

	posts, err = s.ListPostsPublishedOn(ctx, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), []string{PostTypePost})
	require.NoError(t, err)
	assert.Empty(t, posts, "drafts are not listed")

	posts, err = s.ListPostsPublishedOn(ctx, day, nil)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestListNewsPosts(t *testing.T) {
	s := setupTestStore(t)
	ids := seedContent(t, s)
	ctx := context.Background()

	posts, err := s.ListNewsPosts(ctx, "news", fixedNow.Add(-48*time.Hour), 1000)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, ids.hello, posts[0].ID)

	posts, err = s.ListNewsPosts(ctx, "news", fixedNow, 1000)
	require.NoError(t, err)
	assert.Empty(t, posts)

	posts, err = s.ListNewsPosts(ctx, "general", time.Time{}, 1000)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, ids.older, posts[0].ID)

	posts, err = s.ListNewsPosts(ctx, "general", time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestListTermsAndUsers(t *testing.T) {
	s := setupTestStore(t)
	seedContent(t, s)
	ctx := context.Background()

	cats, err := s.ListTerms(ctx, TaxonomyCategory)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "general", cats[0].Slug)
	assert.Equal(t, "news", cats[1].Slug)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Nicename)
	assert.Equal(t, "bob-smith", users[1].Nicename)
}

func TestAttachments(t *testing.T) {
	s := setupTestStore(t)
	ids := seedContent(t, s)
	ctx := context.Background()

	atts, err := s.ListAttachments(ctx, ids.hello)
	require.NoError(t, err)
	require.Len(t, atts, 3)

	id, err := s.SaveAttachment(ctx, Attachment{PostID: ids.older, URL: "https://example.com/uploads/x.jpg", Filename: "x.jpg"})
	require.NoError(t, err)

	taken, err := s.FilenameTaken(ctx, "x.jpg")
	require.NoError(t, err)
	assert.True(t, taken)

	got, err := s.GetAttachment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ids.older, got.PostID)

	require.NoError(t, s.DeleteAttachment(ctx, id))
	_, err = s.GetAttachment(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	taken, err = s.FilenameTaken(ctx, "x.jpg")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestCounts(t *testing.T) {
	s := setupTestStore(t)
	seedContent(t, s)

	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StoreCounts{Posts: 3, Pages: 1, Terms: 4, Users: 2, Attachments: 3}, c)
}

func TestStorePragmasApplyToEveryConnection(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Hold every pooled connection at once so each one is checked.
	for i := 0; i < 4; i++ {
		conn, err := s.db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		var fk, timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 1, fk, "connection %d", i)
		assert.Equal(t, 5000, timeout, "connection %d", i)
	}
}

func TestStoreCascadesAttachments(t *testing.T) {
	s := setupTestStore(t)
	ids := seedContent(t, s)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, ids.hello)
	require.NoError(t, err)
	atts, err := s.ListAttachments(ctx, ids.hello)
	require.NoError(t, err)
	assert.Empty(t, atts)
}
