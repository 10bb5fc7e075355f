// Package resources normalizes task resource inputs into local files the
// plugins can consume. Remote and inline inputs land in a content-addressed
// cache with per-category size ceilings enforced before anything is handed
// to a plugin.
package resources

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/logging"
)

const (
	downloadChunkSize      = 8 * 1024
	defaultDownloadTimeout = 300 * time.Second
)

// Processor resolves resource inputs to local file paths.
type Processor struct {
	cacheDir        string
	limits          Limits
	client          *resty.Client
	downloadTimeout time.Duration
}

// NewProcessor creates a processor caching under cacheDir, which is created
// if missing. A zero downloadTimeout selects the default of five minutes.
func NewProcessor(cacheDir string, limits Limits, downloadTimeout time.Duration) (*Processor, error) {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "filmeto_cache")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", cacheDir, err)
	}
	if downloadTimeout <= 0 {
		downloadTimeout = defaultDownloadTimeout
	}
	client := resty.New().
		SetDoNotParseResponse(true).
		SetTimeout(downloadTimeout)
	return &Processor{
		cacheDir:        cacheDir,
		limits:          limits,
		client:          client,
		downloadTimeout: downloadTimeout,
	}, nil
}

// CacheDir returns the cache root.
func (p *Processor) CacheDir() string { return p.cacheDir }

// Process normalizes one resource input into a local file path, dispatching
// on the input's tag.
func (p *Processor) Process(ctx context.Context, input domain.ResourceInput) (string, error) {
	switch input.Type {
	case domain.ResourceLocalPath:
		return p.processLocalPath(input)
	case domain.ResourceRemoteURL:
		return p.processRemoteURL(ctx, input)
	case domain.ResourceBase64:
		return p.processBase64(ctx, input)
	default:
		return "", domain.NewResourceError(
			fmt.Sprintf("unsupported resource type: %s", input.Type),
			map[string]any{"type": string(input.Type)},
		)
	}
}

func (p *Processor) processLocalPath(input domain.ResourceInput) (string, error) {
	absPath, err := filepath.Abs(input.Data)
	if err != nil {
		return "", domain.NewResourceError(
			fmt.Sprintf("resolve path %s: %v", input.Data, err),
			map[string]any{"path": input.Data},
		).WithCause(err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", domain.NewResourceError(
			fmt.Sprintf("file not found: %s", input.Data),
			map[string]any{"path": input.Data},
		).WithCause(err)
	}
	if !info.Mode().IsRegular() {
		return "", domain.NewResourceError(
			fmt.Sprintf("path is not a regular file: %s", input.Data),
			map[string]any{"path": input.Data},
		)
	}

	if err := p.validateSize(info.Size(), input.MimeType); err != nil {
		return "", err
	}
	return absPath, nil
}

func (p *Processor) processRemoteURL(ctx context.Context, input domain.ResourceInput) (string, error) {
	log := logging.FromContext(ctx)
	url := input.Data
	cachePath := p.cachePath(sha256Hex([]byte(url)), input.MimeType)

	if _, err := os.Stat(cachePath); err == nil {
		log.Debug("resource cache hit", "url", url, "path", cachePath)
		return cachePath, nil
	}

	log.Info("downloading resource", "url", url)
	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", domain.NewResourceError(
			fmt.Sprintf("download %s: %v", url, err),
			map[string]any{"url": url},
		).WithCause(err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", domain.NewResourceError(
			fmt.Sprintf("download %s: HTTP %d", url, resp.StatusCode()),
			map[string]any{"url": url, "status": resp.StatusCode()},
		)
	}

	// Reject obviously oversized downloads before streaming a byte.
	if length := resp.RawResponse.ContentLength; length > 0 {
		if err := p.validateSize(length, input.MimeType); err != nil {
			return "", err
		}
	}

	written, err := p.streamToCache(cachePath, body, p.limits.ceilingFor(input.MimeType))
	if err != nil {
		if te, ok := err.(*domain.TaskError); ok {
			te.Details["url"] = url
			te.Details["mime_type"] = input.MimeType
			return "", te
		}
		return "", domain.NewResourceError(
			fmt.Sprintf("download %s: %v", url, err),
			map[string]any{"url": url},
		).WithCause(err)
	}

	log.Info("downloaded resource", "url", url, "bytes", written, "path", cachePath)
	return cachePath, nil
}

func (p *Processor) processBase64(ctx context.Context, input domain.ResourceInput) (string, error) {
	log := logging.FromContext(ctx)

	payload := input.Data
	// Strip an optional data-URL prefix, e.g. "data:image/png;base64,".
	if idx := strings.Index(payload, ","); idx >= 0 {
		payload = payload[idx+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", domain.NewResourceError(
			fmt.Sprintf("decode base64 data: %v", err),
			map[string]any{"mime_type": input.MimeType},
		).WithCause(err)
	}

	if err := p.validateSize(int64(len(decoded)), input.MimeType); err != nil {
		return "", err
	}

	// Hash the decoded bytes, so equivalent payloads submitted with or
	// without a data-URL prefix share one cache entry.
	cachePath := p.cachePath(sha256Hex(decoded), input.MimeType)
	if _, err := os.Stat(cachePath); err == nil {
		log.Debug("resource cache hit for inline data", "path", cachePath)
		return cachePath, nil
	}

	if err := p.writeAtomic(cachePath, decoded); err != nil {
		return "", domain.NewResourceError(
			fmt.Sprintf("save decoded data: %v", err),
			map[string]any{"path": cachePath},
		).WithCause(err)
	}

	log.Debug("decoded inline resource", "bytes", len(decoded), "path", cachePath)
	return cachePath, nil
}

// streamToCache writes r to path via a uniquely named .part file in fixed
// chunks, checking the running total against the ceiling; the partial file
// is deleted when the ceiling is exceeded or the copy fails. Each writer
// gets its own temp file, so concurrent fetches of the same key never
// truncate each other; the last rename wins with identical content. The
// cache entry exists only once fully written.
func (p *Processor) streamToCache(path string, r io.Reader, ceiling int64) (int64, error) {
	f, err := os.CreateTemp(p.cacheDir, filepath.Base(path)+"-*.part")
	if err != nil {
		return 0, fmt.Errorf("create cache file: %w", err)
	}
	partPath := f.Name()

	var total int64
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if ceiling > 0 && total > ceiling {
				f.Close()
				os.Remove(partPath)
				return 0, domain.NewResourceError(
					fmt.Sprintf("download exceeds %d byte limit", ceiling),
					map[string]any{"size": total, "max_size": ceiling},
				)
			}
			if _, err := f.Write(buf[:n]); err != nil {
				f.Close()
				os.Remove(partPath)
				return 0, fmt.Errorf("write cache file: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(partPath)
			return 0, fmt.Errorf("read download stream: %w", readErr)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(partPath, path); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("finalize cache file: %w", err)
	}
	return total, nil
}

func (p *Processor) writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(p.cacheDir, filepath.Base(path)+"-*.part")
	if err != nil {
		return err
	}
	partPath := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(partPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return err
	}
	if err := os.Rename(partPath, path); err != nil {
		os.Remove(partPath)
		return err
	}
	return nil
}

func (p *Processor) validateSize(size int64, mimeType string) error {
	ceiling := p.limits.ceilingFor(mimeType)
	if ceiling > 0 && size > ceiling {
		return domain.NewResourceError(
			fmt.Sprintf("file size %d bytes exceeds maximum %d bytes for %s", size, ceiling, mimeType),
			map[string]any{"size": size, "max_size": ceiling, "mime_type": mimeType},
		)
	}
	return nil
}

func (p *Processor) cachePath(key, mimeType string) string {
	return filepath.Join(p.cacheDir, key+extensionForMime(mimeType))
}

// extensionForMime derives a cache file extension from the declared MIME
// type, falling back to none when the type is unknown.
func extensionForMime(mimeType string) string {
	if mt := mimetype.Lookup(strings.ToLower(mimeType)); mt != nil {
		return mt.Extension()
	}
	return ""
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Cleanup deletes cache entries whose last modification is older than
// maxAge, returning the number deleted. Stale .part files from aborted
// downloads are removed on the same schedule.
func (p *Processor) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	log := logging.FromContext(ctx)
	entries, err := os.ReadDir(p.cacheDir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(p.cacheDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("failed to delete cache file", "path", path, "error", err)
			continue
		}
		deleted++
	}

	log.Info("cleaned up resource cache", "deleted", deleted, "max_age", maxAge)
	return deleted, nil
}

// CacheSize sums the bytes currently held in the cache.
func (p *Processor) CacheSize() (int64, error) {
	entries, err := os.ReadDir(p.cacheDir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
