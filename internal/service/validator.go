package service

import (
	"alcyxob/video-uploads/internal/domain"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Violation codes.
const (
	CodeRequired        = "required"
	CodeUnsupportedType = "unsupported_content_type"
	CodeOutOfRange      = "out_of_range"
	CodeTooLong         = "too_long"
	CodeTooMany         = "too_many"
	CodeInvalidStatus   = "invalid_status"
	CodeInvalidKey      = "invalid_key"
	CodeExceedsMaxBytes = "exceeds_max_bytes"
)

// DefaultMaxBytes is the reference upload ceiling, 500 MiB.
const DefaultMaxBytes int64 = 500 << 20

const (
	maxFilenameRunes  = 255
	maxFPS            = 1000
	maxShortTextRunes = 64
	maxMetadataKeys   = 32
	maxMetadataKey    = 64
	maxMetadataValue  = 1024
)

// Policy holds the limits uploads are checked against.
type Policy struct {
	MaxBytes int64
}

// DefaultPolicy returns the reference policy.
func DefaultPolicy() Policy {
	return Policy{MaxBytes: DefaultMaxBytes}
}

// UploadRequest is the client-declared description of an upload.
type UploadRequest struct {
	Filename        string
	ContentType     string
	SizeBytes       int64
	DurationSeconds *float64
	FPS             *float64
	Angle           *string
}

// Hints are the optional domain metadata a client may attach.
type Hints struct {
	DurationSeconds *float64
	FPS             *float64
	Angle           *string
	Resolution      *string
	Metadata        map[string]string
}

// ValidateUploadRequest checks req against policy and returns every
// violation it finds. A nil result means the request is accepted.
func ValidateUploadRequest(req UploadRequest, policy Policy) []Violation {
	var violations []Violation

	if strings.TrimSpace(req.ContentType) == "" {
		violations = append(violations, Violation{"contentType", CodeRequired, "contentType is required"})
	} else if !domain.IsSupportedContentType(req.ContentType) {
		supported := domain.SupportedContentTypes()
		sort.Strings(supported)
		violations = append(violations, Violation{"contentType", CodeUnsupportedType,
			fmt.Sprintf("contentType %q is not supported; use one of %s", req.ContentType, strings.Join(supported, ", "))})
	}

	switch {
	case req.SizeBytes <= 0:
		violations = append(violations, Violation{"size", CodeOutOfRange, "size must be greater than 0"})
	case req.SizeBytes > policy.MaxBytes:
		violations = append(violations, Violation{"size", CodeOutOfRange,
			fmt.Sprintf("size must not exceed %d bytes", policy.MaxBytes)})
	}

	name := strings.TrimSpace(req.Filename)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		violations = append(violations, Violation{"filename", CodeRequired, "filename is required"})
	case n > maxFilenameRunes:
		violations = append(violations, Violation{"filename", CodeTooLong,
			fmt.Sprintf("filename must be at most %d characters", maxFilenameRunes)})
	}

	violations = append(violations, ValidateHints(Hints{
		DurationSeconds: req.DurationSeconds,
		FPS:             req.FPS,
		Angle:           req.Angle,
	})...)
	return violations
}

// ValidateHints checks the optional metadata on its own, for confirmation.
func ValidateHints(h Hints) []Violation {
	var violations []Violation

	if h.DurationSeconds != nil && !(*h.DurationSeconds > 0) {
		violations = append(violations, Violation{"duration", CodeOutOfRange, "duration must be greater than 0"})
	}
	if h.FPS != nil && !(*h.FPS > 0 && *h.FPS <= maxFPS) {
		violations = append(violations, Violation{"fps", CodeOutOfRange,
			fmt.Sprintf("fps must be greater than 0 and at most %d", maxFPS)})
	}
	if h.Angle != nil && utf8.RuneCountInString(*h.Angle) > maxShortTextRunes {
		violations = append(violations, Violation{"angle", CodeTooLong,
			fmt.Sprintf("angle must be at most %d characters", maxShortTextRunes)})
	}
	if h.Resolution != nil && utf8.RuneCountInString(*h.Resolution) > maxShortTextRunes {
		violations = append(violations, Violation{"resolution", CodeTooLong,
			fmt.Sprintf("resolution must be at most %d characters", maxShortTextRunes)})
	}

	if len(h.Metadata) > maxMetadataKeys {
		violations = append(violations, Violation{"metadata", CodeTooMany,
			fmt.Sprintf("metadata may hold at most %d entries", maxMetadataKeys)})
	}
	keys := make([]string, 0, len(h.Metadata))
	for k := range h.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field := "metadata." + k
		switch {
		case k == "" || strings.ContainsAny(k, ".$"):
			violations = append(violations, Violation{field, CodeInvalidKey, "metadata keys must be non-empty and must not contain '.' or '$'"})
		case utf8.RuneCountInString(k) > maxMetadataKey:
			violations = append(violations, Violation{field, CodeTooLong,
				fmt.Sprintf("metadata keys must be at most %d characters", maxMetadataKey)})
		case utf8.RuneCountInString(h.Metadata[k]) > maxMetadataValue:
			violations = append(violations, Violation{field, CodeTooLong,
				fmt.Sprintf("metadata values must be at most %d characters", maxMetadataValue)})
		}
	}
	return violations
}
