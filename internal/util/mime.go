package util

import (
	"mime"
	"net/http"
	"strings"
)

// DetectContentType sniffs the MIME type of data.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}

// NormalizeMIME lowercases a Content-Type value and drops its parameters.
func NormalizeMIME(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// IsImageMIME reports whether contentType is an image format the media
// hosts accept.
func IsImageMIME(contentType string) bool {
	switch NormalizeMIME(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif", "image/tiff", "image/heif", "image/avif":
		return true
	default:
		return false
	}
}

// GetImageExtension maps an image MIME type to a file extension, defaulting
// to .jpg.
func GetImageExtension(contentType string) string {
	switch NormalizeMIME(contentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/tiff":
		return ".tiff"
	case "image/heif":
		return ".heif"
	case "image/avif":
		return ".avif"
	default:
		return ".jpg"
	}
}

// FormatFromMIME returns the short format name reported back to the form,
// e.g. "png" for image/png.
func FormatFromMIME(contentType string) string {
	return strings.TrimPrefix(GetImageExtension(contentType), ".")
}

// ShouldConvertToJPEG decides whether a large image is re-encoded as JPEG.
// Images with real transparency stay in their format.
func ShouldConvertToJPEG(contentType string, hasTransparency bool) bool {
	if hasTransparency {
		return false
	}
	switch NormalizeMIME(contentType) {
	case "image/jpeg", "image/jpg":
		return false
	default:
		return true
	}
}
