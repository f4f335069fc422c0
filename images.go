package sitemaps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	maxImageWidth = 800
	jpegQuality   = 80
	maxUploadSize = 10 << 20 // 10MB
	uploadsSubdir = "uploads"
)

// processImage decodes an image from src, shrinks it to maxImageWidth if
// wider, and encodes it as JPEG.
func processImage(src io.Reader) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// slugifyFilename converts a filename (without extension) to a URL-safe slug.
func slugifyFilename(name string) string {
	base := Slugify(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "image"
	}
	return base
}

// uniqueFilename appends a counter until neither the uploads directory nor
// the attachments table uses the name.
func (a *App) uniqueFilename(ctx context.Context, base string) (string, error) {
	dir := filepath.Join(a.Config.StaticDir, uploadsSubdir)
	candidate := base + ".jpg"
	for counter := 2; ; counter++ {
		_, statErr := os.Stat(filepath.Join(dir, candidate))
		taken, err := a.Store.FilenameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if statErr != nil && !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, counter)
	}
}

// handleImageUpload attaches an uploaded image to a post so it appears in
// the post's day bucket with its caption.
func (a *App) handleImageUpload(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	ctx := c.Request().Context()

	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid post id")
	}
	if _, err := a.Store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.String(http.StatusNotFound, "Post not found")
		}
		return err
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.String(http.StatusBadRequest, "No image file provided")
	}
	if file.Size > maxUploadSize {
		return c.String(http.StatusBadRequest, "File too large (max 10MB)")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := processImage(src)
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid image: "+err.Error())
	}

	filename, err := a.uniqueFilename(ctx, slugifyFilename(file.Filename))
	if err != nil {
		return err
	}

	dir := filepath.Join(a.Config.StaticDir, uploadsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	att := Attachment{
		PostID:   postID,
		URL:      BuildURL(a.Config.URL, "/"+uploadsSubdir+"/"+filename),
		Caption:  strings.TrimSpace(c.FormValue("caption")),
		Filename: filename,
	}
	id, err := a.Store.SaveAttachment(ctx, att)
	if err != nil {
		return err
	}
	att.ID = id
	a.forgetImages(ctx, postID)

	a.Logger.Info("attachment uploaded",
		slog.Int64("post_id", postID),
		slog.Int64("attachment_id", id),
		slog.String("filename", filename))
	return c.JSON(http.StatusCreated, att)
}

func (a *App) handleAttachmentDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid attachment id")
	}
	att, err := a.Store.GetAttachment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.String(http.StatusNotFound, "Attachment not found")
		}
		return err
	}

	if att.Filename != "" {
		_ = os.Remove(filepath.Join(a.Config.StaticDir, uploadsSubdir, filepath.Base(att.Filename)))
	}
	if err := a.Store.DeleteAttachment(ctx, id); err != nil {
		return err
	}
	a.forgetImages(ctx, att.PostID)
	return c.NoContent(http.StatusNoContent)
}

// forgetImages drops the cached image list of a post. A failure only
// delays the change until the entry expires.
func (a *App) forgetImages(ctx context.Context, postID int64) {
	if err := a.Cache.Delete(ctx, ImagesCacheKey(postID)); err != nil {
		a.Logger.Warn("cache delete failed",
			slog.Int64("post_id", postID),
			slog.String("error", err.Error()))
	}
}
