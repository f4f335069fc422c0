package sitemaps

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminPassword = "secret"
	testSessionSecret = "0123456789abcdef0123456789abcdef"
)

// adminClient is a cookie-carrying client for the admin routes.
type adminClient struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
	csrf    string
}

func newAdminClient(t *testing.T) (*adminClient, seeded) {
	t.Helper()
	app, ids := newTestApp(t, func(c *SiteConfig) {
		c.AdminPassword = testAdminPassword
		c.SessionSecret = testSessionSecret
	})
	ac := &adminClient{t: t, app: app, cookies: make(map[string]*http.Cookie)}

	rec := ac.do(httptest.NewRequest(http.MethodGet, "/admin/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `name="password"`)
	csrf, ok := ac.cookies["_csrf"]
	require.True(t, ok, "csrf cookie is issued on the login page")
	ac.csrf = csrf.Value
	return ac, ids
}

func (ac *adminClient) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range ac.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ac.app.Echo.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(ac.cookies, c.Name)
			continue
		}
		ac.cookies[c.Name] = c
	}
	return rec
}

func (ac *adminClient) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("_csrf", ac.csrf)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ac.do(req)
}

func (ac *adminClient) login() {
	ac.t.Helper()
	rec := ac.postForm("/admin/login/", url.Values{"password": {testAdminPassword}})
	require.Equal(ac.t, http.StatusSeeOther, rec.Code)
	require.Contains(ac.t, ac.cookies, sessionName)
}

func (ac *adminClient) upload(postID int64, filename, caption string, data []byte) *httptest.ResponseRecorder {
	ac.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(ac.t, err)
	_, err = part.Write(data)
	require.NoError(ac.t, err)
	require.NoError(ac.t, w.WriteField("caption", caption))
	require.NoError(ac.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/posts/"+strconv.FormatInt(postID, 10)+"/images/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-CSRF-Token", ac.csrf)
	return ac.do(req)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAdminLoginAndDashboard(t *testing.T) {
	ac, _ := newAdminClient(t)
	ac.login()

	rec := ac.do(httptest.NewRequest(http.MethodGet, "/admin/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<th>Posts</th><td>3</td>")
	assert.Contains(t, body, "<th>Cache</th><td>memory</td>")
	assert.Contains(t, body, `<a href="http://example.com/">`)
	assert.Contains(t, body, "http://example.com/sitemap-20240309.xml")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAdminLoginWrongPassword(t *testing.T) {
	ac, _ := newAdminClient(t)

	rec := ac.postForm("/admin/login/", url.Values{"password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid password.")
	assert.NotContains(t, ac.cookies, sessionName)
}

func TestAdminLoginRateLimited(t *testing.T) {
	ac, _ := newAdminClient(t)

	for i := 0; i < 5; i++ {
		rec := ac.postForm("/admin/login/", url.Values{"password": {"nope"}})
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}
	rec := ac.postForm("/admin/login/", url.Values{"password": {testAdminPassword}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAdminRejectsMissingCSRF(t *testing.T) {
	ac, _ := newAdminClient(t)

	form := url.Values{"password": {testAdminPassword}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ac.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminLogout(t *testing.T) {
	ac, _ := newAdminClient(t)
	ac.login()

	rec := ac.postForm("/admin/logout/", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = ac.do(httptest.NewRequest(http.MethodGet, "/admin/", nil))
	assert.Contains(t, rec.Body.String(), `name="password"`)
}

func TestAdminPurge(t *testing.T) {
	ac, _ := newAdminClient(t)
	cache := ac.app.Cache.(*MemoryCache)

	serve(ac.app, http.MethodGet, "/sitemap-20240309.xml")
	require.Positive(t, cache.Len())

	// Anonymous purge is refused.
	rec := ac.postForm("/admin/purge/", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Positive(t, cache.Len())

	ac.login()
	rec = ac.postForm("/admin/purge/", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/?msg=Cache+purged.", rec.Header().Get("Location"))
	assert.Equal(t, 0, cache.Len())
}

func TestAdminImageUpload(t *testing.T) {
	ac, ids := newAdminClient(t)
	ac.login()

	// Warm the image cache so the upload has to invalidate it.
	before := serve(ac.app, http.MethodGet, "/sitemap-20240309.xml").Body.String()
	require.NotContains(t, before, "Harbour")

	rec := ac.upload(ids.hello, "My Photo.PNG", "Harbour <i>at dusk</i>", testPNG(t, 1000, 500))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var att Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &att))
	assert.Equal(t, ids.hello, att.PostID)
	assert.Equal(t, "my-photo.jpg", att.Filename)
	assert.Equal(t, "http://example.com/uploads/my-photo.jpg", att.URL)

	f, err := os.Open(filepath.Join(ac.app.Config.StaticDir, uploadsSubdir, "my-photo.jpg"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 400, cfg.Height)

	after := serve(ac.app, http.MethodGet, "/sitemap-20240309.xml").Body.String()
	assert.Contains(t, after, "<image:loc>http://example.com/uploads/my-photo.jpg</image:loc>")
	assert.Contains(t, after, "<image:caption>Harbour at dusk</image:caption>")

	// The same name again gets a counter.
	rec = ac.upload(ids.hello, "my photo.png", "Again", testPNG(t, 10, 10))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &att))
	assert.Equal(t, "my-photo-2.jpg", att.Filename)

	// Uploaded files are served with a long cache lifetime.
	res := serve(ac.app, http.MethodGet, "/uploads/my-photo.jpg")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Cache-Control"), "immutable")
}

func TestAdminImageUploadErrors(t *testing.T) {
	ac, ids := newAdminClient(t)
	ac.login()

	rec := ac.upload(9999, "a.png", "x", testPNG(t, 4, 4))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ac.upload(ids.hello, "a.png", "x", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAttachmentDelete(t *testing.T) {
	ac, ids := newAdminClient(t)
	ac.login()

	rec := ac.upload(ids.older, "gone.png", "Gone soon", testPNG(t, 20, 20))
	require.Equal(t, http.StatusCreated, rec.Code)
	var att Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &att))

	day := serve(ac.app, http.MethodGet, "/sitemap-20240301.xml").Body.String()
	require.Contains(t, day, "Gone soon")

	req := httptest.NewRequest(http.MethodDelete, "/admin/attachments/"+strconv.FormatInt(att.ID, 10)+"/", nil)
	req.Header.Set("X-CSRF-Token", ac.csrf)
	rec = ac.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := os.Stat(filepath.Join(ac.app.Config.StaticDir, uploadsSubdir, att.Filename))
	assert.True(t, os.IsNotExist(err))
	_, err = ac.app.Store.GetAttachment(context.Background(), att.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	day = serve(ac.app, http.MethodGet, "/sitemap-20240301.xml").Body.String()
	assert.NotContains(t, day, "Gone soon")

	again := httptest.NewRequest(http.MethodDelete, "/admin/attachments/"+strconv.FormatInt(att.ID, 10)+"/", nil)
	again.Header.Set("X-CSRF-Token", ac.csrf)
	rec = ac.do(again)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
