package media

import (
	"path/filepath"
	"strings"
)

// Kind classifies an attachment for message previews.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
)

const octetStream = "application/octet-stream"

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/aac":       ".aac",
	"audio/wav":       ".wav",
	"application/pdf": ".pdf",
	"application/zip": ".zip",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
}

// baseType lowercases a content type and strips parameters such as
// "; codecs=opus".
func baseType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
}

// Classify returns the kind of an attachment. A missing or generic content
// type is guessed from the extension of filename.
func Classify(contentType, filename string) Kind {
	mime := baseType(contentType)
	if mime == "" || mime == octetStream {
		mime = ContentType(filename)
	}
	switch {
	case mime == "image/webp":
		return KindSticker
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

// Extension returns the file extension for a content type, falling back to
// the extension of filename.
func Extension(contentType, filename string) string {
	if ext, ok := mimeExtensions[baseType(contentType)]; ok {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 1 && len(ext) <= 8 && SanitizeFilename(ext) == ext {
		return ext
	}
	return ""
}

// ContentType guesses the content type of filename from its extension.
func ContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	for mime, e := range mimeExtensions {
		if e == ext {
			return mime
		}
	}
	return octetStream
}

var unsafeChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_", "\x00", "_",
)

// SanitizeFilename makes name safe to use as a single path element.
func SanitizeFilename(name string) string {
	name = unsafeChars.Replace(name)
	if name == "." || name == ".." {
		return "_"
	}
	return name
}
