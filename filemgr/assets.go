package filemgr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
)

type UploadOptions struct {
	// CacheControl is the max-age in seconds served with the asset.
	CacheControl string
	// Upsert allows replacing an existing object at the same path.
	Upsert bool
	// ContentType is the client supplied type, used when sniffing is inconclusive.
	ContentType string
}

type assetMeta struct {
	CacheControl string `json:"cache_control"`
	ContentType  string `json:"content_type"`
}

// DiskStore is the asset storage bucket, rooted at a local directory and
// served under baseURL.
type DiskStore struct {
	root    string
	baseURL string
	maxSize int64
	log     *zerolog.Logger
}

func NewDiskStore(root, baseURL string, log *zerolog.Logger) *DiskStore {
	return &DiskStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: DefaultMaxSize,
		log:     log,
	}
}

// AssetPath names an event image: events/{accountid}/{unixmillis}-{random}{ext}.
func AssetPath(accountID, original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return path.Join(PictureSubfolders[PicBanner], accountID, fmt.Sprintf("%d-%s%s", now.UnixMilli(), random, ext))
}

func (s *DiskStore) Upload(ctx context.Context, objectPath string, r io.Reader, opts UploadOptions) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(objectPath))
	if !isExtensionAllowed(ext, PicBanner) {
		return fmt.Errorf("%w: %s", ErrInvalidExtension, ext)
	}

	buf, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(buf)) > s.maxSize {
		return ErrFileTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mimeType := http.DetectContentType(buf)
	if mimeType == "application/octet-stream" && opts.ContentType != "" {
		mimeType = opts.ContentType
	}
	if !isMIMEAllowed(mimeType, PicBanner) {
		return fmt.Errorf("%w: %s", ErrInvalidMIME, mimeType)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(full), err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Upsert {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	out, err := os.OpenFile(full, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return ErrAssetExists
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", objectPath, err)
	}
	if _, err := out.Write(buf); err != nil {
		out.Close()
		_ = os.Remove(full)
		return fmt.Errorf("write %s: %w", objectPath, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(full)
		return fmt.Errorf("close %s: %w", objectPath, err)
	}

	meta, _ := json.Marshal(assetMeta{CacheControl: opts.CacheControl, ContentType: mimeType})
	if err := os.WriteFile(full+metaSuffix, meta, 0o644); err != nil {
		_ = os.Remove(full)
		return fmt.Errorf("write meta for %s: %w", objectPath, err)
	}

	if err := s.writeThumbnail(objectPath, buf); err != nil {
		s.log.Warn().Err(err).Str("path", objectPath).Msg("thumbnail skipped")
	}
	s.log.Info().Str("path", objectPath).Int("size", len(buf)).Str("mime", mimeType).Msg("asset stored")
	return nil
}

func (s *DiskStore) writeThumbnail(objectPath string, buf []byte) error {
	img, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Resize(img, thumbWidth, 0, imaging.Lanczos)

	full, err := s.resolve(ThumbnailPath(objectPath))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(full), err)
	}
	out, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	defer out.Close()
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}

// ThumbnailPath is where the resized copy of objectPath lives.
func ThumbnailPath(objectPath string) string {
	base := strings.TrimSuffix(objectPath, path.Ext(objectPath))
	return path.Join(PictureSubfolders[PicThumb], base+".jpg")
}

func (s *DiskStore) PublicURL(objectPath string) string {
	return s.baseURL + "/" + strings.TrimLeft(path.Clean("/"+objectPath), "/")
}

// Remove deletes the asset with its thumbnail and metadata. Missing files
// are not an error.
func (s *DiskStore) Remove(_ context.Context, objectPath string) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	targets := []string{full, full + metaSuffix}
	if thumb, err := s.resolve(ThumbnailPath(objectPath)); err == nil {
		targets = append(targets, thumb)
	}
	for _, p := range targets {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// ServeAssets serves stored objects under a *filepath route and applies the
// cache policy recorded at upload time.
func (s *DiskStore) ServeAssets() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		objectPath := ps.ByName("filepath")
		if strings.HasSuffix(objectPath, metaSuffix) {
			http.NotFound(w, r)
			return
		}
		full, err := s.resolve(objectPath)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		f, err := os.Open(full)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		if raw, err := os.ReadFile(full + metaSuffix); err == nil {
			var meta assetMeta
			if json.Unmarshal(raw, &meta) == nil {
				if meta.CacheControl != "" {
					w.Header().Set("Cache-Control", "public, max-age="+meta.CacheControl)
				}
				if meta.ContentType != "" {
					w.Header().Set("Content-Type", meta.ContentType)
				}
			}
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}

// resolve maps an object path inside root, refusing anything that escapes it.
func (s *DiskStore) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(objectPath))
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
