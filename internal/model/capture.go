package model

import (
	"mime"
	"path/filepath"
	"strings"
)

// CaptureKind tags what an uploaded blob is. Ingest dispatches on it to pick
// the bucket and decide whether transcription runs at all.
type CaptureKind string

const (
	KindUnknown CaptureKind = ""
	KindAudio   CaptureKind = "audio"
	KindPhoto   CaptureKind = "photo"
	KindVideo   CaptureKind = "video"
)

// Capture is raw media as received from a client.
type Capture struct {
	Kind        CaptureKind
	Data        []byte
	FileName    string
	ContentType string
}

// Transcribable reports whether the capture goes through the transcription stage.
func (c Capture) Transcribable() bool {
	return c.Kind == KindAudio
}

// KindFromContentType maps a MIME type onto a capture kind. Parameters such as
// "; codecs=opus" are ignored.
func KindFromContentType(contentType string) CaptureKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	switch {
	case strings.HasPrefix(mediaType, "audio/"):
		return KindAudio
	case strings.HasPrefix(mediaType, "image/"):
		return KindPhoto
	case strings.HasPrefix(mediaType, "video/"):
		return KindVideo
	}
	return KindUnknown
}

var defaultExtensions = map[string]string{
	"audio/webm":      ".webm",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/heic":      ".heic",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

// Extension returns the file extension for the capture, preferring the one in
// the original file name.
func (c Capture) Extension() string {
	if ext := filepath.Ext(c.FileName); ext != "" {
		return strings.ToLower(ext)
	}
	mediaType, _, err := mime.ParseMediaType(c.ContentType)
	if err != nil {
		mediaType = strings.ToLower(c.ContentType)
	}
	if ext, ok := defaultExtensions[mediaType]; ok {
		return ext
	}
	switch c.Kind {
	case KindAudio:
		return ".webm"
	case KindPhoto:
		return ".jpg"
	case KindVideo:
		return ".mp4"
	}
	return ".bin"
}
