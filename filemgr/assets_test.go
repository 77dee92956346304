package filemgr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 800, 400))
	for x := 0; x < 800; x++ {
		img.Set(x, x%400, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newStore(t *testing.T) (*DiskStore, string) {
	root := t.TempDir()
	log := zerolog.Nop()
	return NewDiskStore(root, "http://cdn.test/uploads/", &log), root
}

func TestAssetPathShape(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	p := AssetPath("acct-1", "Poster Final.PNG", now)
	assert.Regexp(t, regexp.MustCompile(`^events/acct-1/1767225600123-[0-9a-f]{12}\.png$`), p)
	assert.NotEqual(t, p, AssetPath("acct-1", "Poster Final.PNG", now))
}

func TestUploadWritesAssetMetaAndThumbnail(t *testing.T) {
	s, root := newStore(t)
	ctx := context.Background()

	err := s.Upload(ctx, "events/acct-1/1-abc.png", bytes.NewReader(pngBytes(t)), UploadOptions{CacheControl: "3600"})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "events", "acct-1", "1-abc.png"))
	assert.FileExists(t, filepath.Join(root, "events", "acct-1", "1-abc.png"+metaSuffix))
	assert.FileExists(t, filepath.Join(root, "thumbs", "events", "acct-1", "1-abc.jpg"))
	assert.Equal(t, "http://cdn.test/uploads/events/acct-1/1-abc.png", s.PublicURL("events/acct-1/1-abc.png"))
}

func TestUploadRefusesOverwriteUnlessUpsert(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	body := pngBytes(t)

	require.NoError(t, s.Upload(ctx, "events/a/x.png", bytes.NewReader(body), UploadOptions{}))
	err := s.Upload(ctx, "events/a/x.png", bytes.NewReader(body), UploadOptions{})
	assert.ErrorIs(t, err, ErrAssetExists)

	require.NoError(t, s.Upload(ctx, "events/a/x.png", bytes.NewReader(body), UploadOptions{Upsert: true}))
}

func TestUploadValidatesType(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	err := s.Upload(ctx, "events/a/notes.txt", bytes.NewReader([]byte("hello")), UploadOptions{})
	assert.ErrorIs(t, err, ErrInvalidExtension)

	err = s.Upload(ctx, "events/a/fake.png", bytes.NewReader([]byte("plain text pretending")), UploadOptions{})
	assert.ErrorIs(t, err, ErrInvalidMIME)
}

func TestUploadRejectsOversize(t *testing.T) {
	s, _ := newStore(t)
	s.maxSize = 16

	err := s.Upload(context.Background(), "events/a/big.png", bytes.NewReader(pngBytes(t)), UploadOptions{})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestRemoveDeletesEverything(t *testing.T) {
	s, root := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "events/a/y.png", bytes.NewReader(pngBytes(t)), UploadOptions{}))

	require.NoError(t, s.Remove(ctx, "events/a/y.png"))
	require.NoError(t, s.Remove(ctx, "events/a/y.png"))

	_, err := os.Stat(filepath.Join(root, "events", "a", "y.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "thumbs", "events", "a", "y.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestServeAssetsAppliesCachePolicy(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Upload(context.Background(), "events/a/z.png", bytes.NewReader(pngBytes(t)), UploadOptions{CacheControl: "3600"}))

	router := httprouter.New()
	router.GET("/uploads/*filepath", s.ServeAssets())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/events/a/z.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/events/a/z.png.meta", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/events/a/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
