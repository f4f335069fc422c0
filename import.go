package sitemaps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ImportFile is the YAML document accepted by Store.Import.
//
//	users:
//	  - login: alice
//	    display_name: Alice
//	terms:
//	  - taxonomy: category
//	    slug: news
//	posts:
//	  - slug: hello-world
//	    title: Hello world
//	    author: alice
//	    published_at: 2024-01-02T10:00:00Z
//	    terms: [category/news, post_tag/go]
//	    images:
//	      - url: https://example.com/a.jpg
//	        caption: A picture
type ImportFile struct {
	Users []ImportUser `yaml:"users"`
	Terms []ImportTerm `yaml:"terms"`
	Posts []ImportPost `yaml:"posts"`
}

type ImportUser struct {
	Login       string `yaml:"login"`
	Nicename    string `yaml:"nicename"`
	DisplayName string `yaml:"display_name"`
}

type ImportTerm struct {
	Taxonomy string `yaml:"taxonomy"`
	Slug     string `yaml:"slug"`
	Name     string `yaml:"name"`
}

type ImportPost struct {
	Type        string        `yaml:"type"`
	Status      string        `yaml:"status"`
	Slug        string        `yaml:"slug"`
	Title       string        `yaml:"title"`
	Author      string        `yaml:"author"`
	PublishedAt time.Time     `yaml:"published_at"`
	Terms       []string      `yaml:"terms"`
	Images      []ImportImage `yaml:"images"`
}

type ImportImage struct {
	URL     string `yaml:"url"`
	Caption string `yaml:"caption"`
}

// ImportStats counts what an import wrote.
type ImportStats struct {
	Users       int
	Terms       int
	Posts       int
	Attachments int
}

func (s ImportStats) String() string {
	return fmt.Sprintf("%d users, %d terms, %d posts, %d attachments", s.Users, s.Terms, s.Posts, s.Attachments)
}

// Import reads an ImportFile from r and upserts its content in a single
// transaction; on error nothing is written. Terms named by posts but not
// listed under terms are created on the fly. Authors must be listed under
// users or already exist. Each imported post's term links and imported
// images are replaced by what the file lists; uploaded images are kept.
func (s *Store) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	var f ImportFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return ImportStats{}, nil
		}
		return ImportStats{}, fmt.Errorf("import: decode: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportStats{}, fmt.Errorf("import: begin: %w", err)
	}
	defer tx.Rollback()

	stats, err := importFile(ctx, tx, f)
	if err != nil {
		return ImportStats{}, fmt.Errorf("import: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("import: commit: %w", err)
	}
	return stats, nil
}

func importFile(ctx context.Context, q dbtx, f ImportFile) (ImportStats, error) {
	var stats ImportStats

	authors := make(map[string]int64)
	for _, u := range f.Users {
		id, err := saveUser(ctx, q, User{Login: u.Login, Nicename: u.Nicename, DisplayName: u.DisplayName})
		if err != nil {
			return stats, err
		}
		authors[u.Login] = id
		stats.Users++
	}

	terms := make(map[string]int64)
	termID := func(t Term) (int64, error) {
		key := t.Taxonomy + "/" + t.Slug
		if id, ok := terms[key]; ok {
			return id, nil
		}
		id, err := saveTerm(ctx, q, t)
		if err != nil {
			return 0, err
		}
		terms[key] = id
		stats.Terms++
		return id, nil
	}
	for _, t := range f.Terms {
		if _, err := termID(Term{Taxonomy: t.Taxonomy, Slug: t.Slug, Name: t.Name}); err != nil {
			return stats, err
		}
	}

	for _, p := range f.Posts {
		var authorID int64
		if p.Author != "" {
			id, err := lookupAuthor(ctx, q, authors, p.Author)
			if err != nil {
				return stats, fmt.Errorf("post %q: %w", p.Slug, err)
			}
			authorID = id
		}

		postID, err := savePost(ctx, q, Post{
			Type:        p.Type,
			Status:      p.Status,
			Slug:        p.Slug,
			Title:       p.Title,
			AuthorID:    authorID,
			PublishedAt: p.PublishedAt,
		})
		if err != nil {
			return stats, err
		}
		stats.Posts++

		var termIDs []int64
		for _, ref := range FilterEmpty(p.Terms) {
			taxonomy, slug, ok := strings.Cut(ref, "/")
			if !ok || taxonomy == "" || slug == "" {
				return stats, fmt.Errorf("post %q: term %q is not taxonomy/slug", p.Slug, ref)
			}
			id, err := termID(Term{Taxonomy: taxonomy, Slug: slug})
			if err != nil {
				return stats, err
			}
			termIDs = append(termIDs, id)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM term_relationships WHERE post_id = ?`, postID); err != nil {
			return stats, fmt.Errorf("post %q: reset terms: %w", p.Slug, err)
		}
		if err := attachTerms(ctx, q, postID, termIDs...); err != nil {
			return stats, err
		}

		// Images with a filename were uploaded through the admin and survive.
		if _, err := q.ExecContext(ctx, `DELETE FROM attachments WHERE post_id = ? AND filename = ''`, postID); err != nil {
			return stats, fmt.Errorf("post %q: reset images: %w", p.Slug, err)
		}
		for _, img := range p.Images {
			if _, err := saveAttachment(ctx, q, Attachment{PostID: postID, URL: img.URL, Caption: img.Caption}); err != nil {
				return stats, err
			}
			stats.Attachments++
		}
	}
	return stats, nil
}

func lookupAuthor(ctx context.Context, q dbtx, known map[string]int64, login string) (int64, error) {
	if id, ok := known[login]; ok {
		return id, nil
	}
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM users WHERE login = ?`, login).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("author %q: %w", login, err)
	}
	known[login] = id
	return id, nil
}
