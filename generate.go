package sitemaps

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"
)

// WriteStats summarises a static export.
type WriteStats struct {
	Documents int
	URLs      int
}

// WriteAll renders every document the index references, plus the XSL
// stylesheets, into dir. Files are replaced atomically so a web server
// reading dir never sees a partial document. At most workers documents
// are rendered at once.
func (g *Generator) WriteAll(ctx context.Context, dir string, workers int) (WriteStats, error) {
	if workers < 1 {
		workers = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteStats{}, fmt.Errorf("create output dir: %w", err)
	}

	routes, err := g.Routes(ctx)
	if err != nil {
		return WriteStats{}, err
	}

	urls := make([]int, len(routes))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, r := range routes {
		eg.Go(func() error {
			doc, err := g.Document(egCtx, r)
			if err != nil {
				return fmt.Errorf("%s: %w", r.Filename(), err)
			}
			if err := writeDocumentFile(filepath.Join(dir, r.Filename()), doc, g.Stylesheet(r)); err != nil {
				return err
			}
			urls[i] = documentLen(doc)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return WriteStats{}, err
	}

	if g.stylesheets {
		for _, name := range []string{FileIndexStyle, FileChildStyle} {
			data, err := fs.ReadFile(Stylesheets, "xsl/"+name)
			if err != nil {
				return WriteStats{}, err
			}
			if err := renameio.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
				return WriteStats{}, fmt.Errorf("write %s: %w", name, err)
			}
		}
	}

	stats := WriteStats{Documents: len(routes)}
	for _, n := range urls {
		stats.URLs += n
	}
	g.logger.Info("sitemaps written",
		slog.String("dir", dir),
		slog.Int("documents", stats.Documents),
		slog.Int("urls", stats.URLs))
	return stats, nil
}

func writeDocumentFile(path string, doc any, stylesheet string) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending %s: %w", filepath.Base(path), err)
	}
	defer pending.Cleanup()

	if err := WriteDocument(pending, doc, stylesheet); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
