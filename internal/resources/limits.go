package resources

import "strings"

// Default per-category size ceilings, overridable by configuration.
const (
	DefaultMaxImageSize = 50 * 1024 * 1024
	DefaultMaxVideoSize = 500 * 1024 * 1024
	DefaultMaxAudioSize = 100 * 1024 * 1024
)

// Limits carries the per-major-MIME-type size ceilings in bytes. A zero
// ceiling means the category is unbounded.
type Limits struct {
	MaxImageSize int64
	MaxVideoSize int64
	MaxAudioSize int64
}

// DefaultLimits returns the stock ceilings: image 50 MB, video 500 MB,
// audio 100 MB.
func DefaultLimits() Limits {
	return Limits{
		MaxImageSize: DefaultMaxImageSize,
		MaxVideoSize: DefaultMaxVideoSize,
		MaxAudioSize: DefaultMaxAudioSize,
	}
}

// ceilingFor maps a MIME type's major type to its ceiling, or 0 when the
// category has none.
func (l Limits) ceilingFor(mimeType string) int64 {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return l.MaxImageSize
	case strings.HasPrefix(mimeType, "video/"):
		return l.MaxVideoSize
	case strings.HasPrefix(mimeType, "audio/"):
		return l.MaxAudioSize
	default:
		return 0
	}
}
