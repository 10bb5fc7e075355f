package domain

// ResourceType tags the three supported resource input formats.
type ResourceType string

const (
	ResourceLocalPath ResourceType = "local_path"
	ResourceRemoteURL ResourceType = "remote_url"
	ResourceBase64    ResourceType = "base64"
)

// ResourceInput references binary media supplied to a task: a local file
// path, a remote URL to download, or inline base64 data. Values are
// immutable once constructed.
type ResourceInput struct {
	Type     ResourceType   `json:"type"`
	Data     string         `json:"data"`
	MimeType string         `json:"mime_type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ResourceOutput describes a media file produced by a task, with enough
// metadata for callers to render it without touching the file.
type ResourceOutput struct {
	Type     string         `json:"type"`
	Path     string         `json:"path"`
	URL      string         `json:"url,omitempty"`
	MimeType string         `json:"mime_type"`
	Size     int64          `json:"size"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
