package constants

import "strings"

// MimeTypes maps file extensions to their corresponding MIME types
var MimeTypes = map[string]string{
	// Image formats
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",

	// Video formats
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".avi": "video/x-msvideo",

	// Document formats
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",

	// Audio formats
	".ogg":  "audio/ogg",
	".opus": "audio/ogg; codecs=opus",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
}

// extensionsByMime picks one canonical extension per MIME type.
var extensionsByMime = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/wav":       ".wav",
	"audio/aac":       ".aac",
	"audio/mp4":       ".m4a",
}

// MimeTypeForExt returns the MIME type for a file extension (with leading
// dot), falling back to application/octet-stream.
func MimeTypeForExt(ext string) string {
	if mt, ok := MimeTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

// ExtForMimeType returns the canonical extension (with leading dot) for a
// MIME type, or the empty string when unknown. Codec parameters are ignored.
func ExtForMimeType(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return extensionsByMime[mimeType]
}
