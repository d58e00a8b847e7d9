package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// VideoStatus is the lifecycle state of a stored video object.
type VideoStatus string

const (
	StatusUploading  VideoStatus = "uploading"
	StatusReady      VideoStatus = "ready"
	StatusProcessing VideoStatus = "processing"
	StatusProcessed  VideoStatus = "processed"
	StatusFailed     VideoStatus = "failed"
)

// forward-only lifecycle; ready -> ready is the idempotent re-confirm
var allowedTransitions = map[VideoStatus][]VideoStatus{
	StatusUploading:  {StatusReady, StatusFailed},
	StatusReady:      {StatusReady, StatusProcessing, StatusFailed},
	StatusProcessing: {StatusProcessed, StatusFailed},
}

// IsValid reports whether s is one of the known statuses.
func (s VideoStatus) IsValid() bool {
	switch s {
	case StatusUploading, StatusReady, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next respects the lifecycle.
func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsReadable reports whether a read URL may be issued for a video in this status.
func (s VideoStatus) IsReadable() bool {
	return s == StatusReady || s == StatusProcessing || s == StatusProcessed
}

// Video is the metadata record of one uploaded video object.
// The bytes live in the blob store under StorageKey.
type Video struct {
	ID                string      `bson:"_id" json:"id"`
	OwnerID           string      `bson:"ownerId" json:"ownerId"`
	OriginalFilename  string      `bson:"originalFilename" json:"originalFilename"`
	ContentType       string      `bson:"contentType" json:"contentType"`
	DeclaredSizeBytes int64       `bson:"declaredSizeBytes" json:"declaredSizeBytes"`
	ActualSizeBytes   int64       `bson:"actualSizeBytes,omitempty" json:"actualSizeBytes,omitempty"` // from the blob store at confirm time
	StorageKey        string      `bson:"storageKey" json:"storageKey"`
	Status            VideoStatus `bson:"status" json:"status"`
	FailureReason     string      `bson:"failureReason,omitempty" json:"failureReason,omitempty"`

	UploadedAt  time.Time  `bson:"uploadedAt" json:"uploadedAt"`
	ConfirmedAt *time.Time `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	ProcessedAt *time.Time `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`

	// Optional domain metadata, attached at issuance or confirmation.
	DurationSeconds *float64          `bson:"durationSeconds,omitempty" json:"durationSeconds,omitempty"`
	FPS             *float64          `bson:"fps,omitempty" json:"fps,omitempty"`
	Angle           *string           `bson:"angle,omitempty" json:"angle,omitempty"`
	Resolution      *string           `bson:"resolution,omitempty" json:"resolution,omitempty"`
	Metadata        map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`

	// Never persisted; computed per read.
	ReadURL          string     `bson:"-" json:"readUrl,omitempty"`
	ReadURLExpiresAt *time.Time `bson:"-" json:"readUrlExpiresAt,omitempty"`
}

// contentTypeExtensions is the whitelist of accepted video MIME types and
// the file extension each is stored under.
var contentTypeExtensions = map[string]string{
	"video/mp4":        "mp4",
	"video/quicktime":  "mov",
	"video/x-m4v":      "m4v",
	"video/webm":       "webm",
	"video/3gpp":       "3gp",
	"video/3gpp2":      "3g2",
	"video/x-msvideo":  "avi",
	"video/x-matroska": "mkv",
	"video/mpeg":       "mpg",
}

// IsSupportedContentType reports whether contentType is on the video whitelist.
func IsSupportedContentType(contentType string) bool {
	_, ok := contentTypeExtensions[NormalizeContentType(contentType)]
	return ok
}

// SupportedContentTypes lists the whitelist, for error messages.
func SupportedContentTypes() []string {
	out := make([]string, 0, len(contentTypeExtensions))
	for ct := range contentTypeExtensions {
		out = append(out, ct)
	}
	return out
}

// NormalizeContentType lowercases and strips any parameters ("video/mp4; codecs=avc1").
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// ExtensionFor picks the storage extension for an upload. The content type
// wins; the filename is only consulted for types without a mapping.
func ExtensionFor(contentType, filename string) string {
	if ext, ok := contentTypeExtensions[NormalizeContentType(contentType)]; ok {
		return ext
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "bin"
		}
	}
	if ext == "" || len(ext) > 8 {
		return "bin"
	}
	return ext
}

// StorageKey derives the blob key for a video: videos/{ownerId}/{millis}-{id}.{ext}.
// The owner segment is path-escaped so one owner can never address another's prefix.
func StorageKey(ownerID, videoID, ext string, at time.Time) string {
	owner := url.PathEscape(ownerID)
	if owner == "." || owner == ".." {
		owner = strings.ReplaceAll(owner, ".", "%2E")
	}
	return path.Join("videos", owner, fmt.Sprintf("%d-%s.%s", at.UnixMilli(), videoID, ext))
}

// ContentTypeForFilename guesses a whitelisted video type from the file
// extension, or returns "" when the extension is unknown.
func ContentTypeForFilename(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		return ""
	}
	best := ""
	for ct, e := range contentTypeExtensions {
		// deterministic if two types ever share an extension
		if e == ext && (best == "" || ct < best) {
			best = ct
		}
	}
	return best
}
