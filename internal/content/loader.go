// Package content resolves the raw bytes behind a media record, either the
// inline upload buffer or the record's content URL.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

// ErrContentUnavailable is returned when no bytes can be obtained for a record.
var ErrContentUnavailable = errors.New("content unavailable")

// Blob is the resolved content of a media record.
type Blob struct {
	Data     []byte
	MimeType string
	FileName string
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Timeout bounds a single URL download (default: 5m).
	Timeout time.Duration

	// MaxBytes caps the downloaded size (default: 100 MiB).
	MaxBytes int64

	// AllowFiles enables file:// URLs and bare local paths.
	AllowFiles bool
}

// Loader fetches media bytes for analysis.
type Loader struct {
	client     *http.Client
	maxBytes   int64
	allowFiles bool
}

// NewLoader creates a Loader with the given configuration.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 100 << 20
	}
	return &Loader{
		client:     &http.Client{Timeout: cfg.Timeout},
		maxBytes:   cfg.MaxBytes,
		allowFiles: cfg.AllowFiles,
	}
}

// Load returns the record's bytes with a resolved MIME type.
// Every failure wraps ErrContentUnavailable.
func (l *Loader) Load(ctx context.Context, rec *types.MediaRecord) (*Blob, error) {
	if err := rec.ValidateSource(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	var (
		data     []byte
		mimeType = rec.MimeType
		fileName = rec.FileName
		err      error
	)

	if len(rec.Content) > 0 {
		data = rec.Content
	} else {
		data, mimeType, fileName, err = l.fetch(ctx, rec.ContentURL, mimeType, fileName)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrContentUnavailable, rec.ContentURL, err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty content for %s", ErrContentUnavailable, rec.ID)
	}

	return &Blob{
		Data:     data,
		MimeType: ResolveMimeType(mimeType, fileName, data, rec.Modality),
		FileName: fileName,
	}, nil
}

func (l *Loader) fetch(ctx context.Context, raw, mimeType, fileName string) ([]byte, string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", "", err
	}

	switch u.Scheme {
	case "http", "https":
		return l.fetchHTTP(ctx, u, mimeType, fileName)
	case "file", "":
		if !l.allowFiles {
			return nil, "", "", fmt.Errorf("local files are disabled")
		}
		p := u.Path
		if u.Scheme == "" {
			p = raw
		}
		data, err := l.readFile(p)
		if err != nil {
			return nil, "", "", err
		}
		if fileName == "" {
			fileName = filepath.Base(p)
		}
		return data, mimeType, fileName, nil
	default:
		return nil, "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (l *Loader) fetchHTTP(ctx context.Context, u *url.URL, mimeType, fileName string) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, "", "", err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, "", "", fmt.Errorf("content exceeds %d bytes", l.maxBytes)
	}

	if mimeType == "" {
		if ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && ct != "application/octet-stream" {
			mimeType = ct
		}
	}
	if fileName == "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			fileName = base
		}
	}
	return data, mimeType, fileName, nil
}

func (l *Loader) readFile(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("content exceeds %d bytes", l.maxBytes)
	}
	return os.ReadFile(p)
}

// ResolveMimeType picks the most specific type available: the declared one,
// the file extension, content sniffing, then a modality default.
func ResolveMimeType(declared, fileName string, data []byte, modality types.Modality) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		switch ext {
		case ".m4a":
			return "audio/mp4"
		case ".heic":
			return "image/heic"
		}
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if ct, _, err := mime.ParseMediaType(byExt); err == nil {
				return ct
			}
		}
	}
	if len(data) > 0 {
		if sniffed := http.DetectContentType(data); sniffed != "application/octet-stream" && !strings.HasPrefix(sniffed, "text/") {
			if ct, _, err := mime.ParseMediaType(sniffed); err == nil {
				return ct
			}
		}
	}
	switch modality {
	case types.ModalityPhoto:
		return "image/jpeg"
	case types.ModalityVideo:
		return "video/mp4"
	case types.ModalityAudio:
		return "audio/mp4"
	}
	return "application/octet-stream"
}
