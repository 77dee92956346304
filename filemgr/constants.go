package filemgr

import "errors"

type PictureType string

const (
	PicBanner PictureType = "banner"
	PicThumb  PictureType = "thumb"
)

var (
	AllowedExtensions = map[PictureType][]string{
		PicBanner: {".jpg", ".jpeg", ".png", ".gif", ".webp"},
		PicThumb:  {".jpg"},
	}

	AllowedMIMEs = map[PictureType][]string{
		PicBanner: {"image/jpeg", "image/png", "image/gif", "image/webp"},
		PicThumb:  {"image/jpeg"},
	}

	PictureSubfolders = map[PictureType]string{
		PicBanner: "events",
		PicThumb:  "thumbs",
	}

	ErrInvalidExtension = errors.New("invalid file extension")
	ErrInvalidMIME      = errors.New("invalid MIME type")
	ErrFileTooLarge     = errors.New("file size exceeds limit")
	ErrAssetExists      = errors.New("asset already exists")
	ErrInvalidPath      = errors.New("invalid asset path")
)

const (
	// DefaultMaxSize caps a single upload.
	DefaultMaxSize int64 = 10 << 20
	thumbWidth           = 400
	metaSuffix           = ".meta"
)

func isExtensionAllowed(ext string, picType PictureType) bool {
	for _, a := range AllowedExtensions[picType] {
		if ext == a {
			return true
		}
	}
	return false
}

func isMIMEAllowed(mimeType string, picType PictureType) bool {
	for _, a := range AllowedMIMEs[picType] {
		if mimeType == a {
			return true
		}
	}
	return false
}
