package constants

import "strings"

// Source formats recorded on an analysis.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
	HTML  = "HTML"
	TXT   = "TXT"
)

// FileTypes holds the allowed values for the format column of an analysis.
var FileTypes = []string{PDF, IMAGE, HTML, TXT}

// AllowedExtensions holds the default allowed file extensions for report ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"webp": {},
	"heic": {},
	"heif": {},
	"html": {},
	"htm":  {},
	"txt":  {},
}

// MaxUploadMBDefault caps the size of a single uploaded report.
const MaxUploadMBDefault = 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without the dot) may be ingested.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// IsHEICExt reports whether ext names an Apple HEIC/HEIF photo.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}

// MapExtToFormat maps a file extension to one of the source formats.
// Unknown extensions map to "".
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "tif", "tiff", "bmp", "webp", "heic", "heif":
		return IMAGE
	case "html", "htm":
		return HTML
	case "txt":
		return TXT
	default:
		return ""
	}
}
