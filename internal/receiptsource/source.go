// Package receiptsource loads receipt images from local files or Cloud Storage.
package receiptsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/aeva/internal/aigateway"
	"github.com/dvloznov/aeva/internal/domain"
)

// MaxImageBytes bounds a receipt image; larger inline payloads are rejected
// by the model API.
const MaxImageBytes = 20 << 20

var (
	// ErrUnsupportedType is returned for content that is not an image or PDF.
	ErrUnsupportedType = errors.New("unsupported receipt file type")
	// ErrTooLarge is returned when a file exceeds MaxImageBytes.
	ErrTooLarge = errors.New("receipt file too large")
)

// Receipt is a loaded receipt file.
type Receipt struct {
	Name  string
	Image aigateway.Image
}

// ObjectFetcher reads a Cloud Storage object.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, object string) ([]byte, error)
}

// Loader opens receipt URIs. The Cloud Storage client is created on first use.
type Loader struct {
	credentialsFile string

	mu      sync.Mutex
	fetcher ObjectFetcher
}

// New creates a Loader. An empty credentialsFile uses Application Default Credentials.
func New(credentialsFile string) *Loader {
	return &Loader{credentialsFile: credentialsFile}
}

// NewWithFetcher creates a Loader that reads gs:// URIs through f.
func NewWithFetcher(f ObjectFetcher) *Loader {
	return &Loader{fetcher: f}
}

// Open loads a local path or a gs://bucket/object URI.
func (l *Loader) Open(ctx context.Context, uri string) (Receipt, error) {
	uri = strings.TrimSpace(uri)
	if strings.HasPrefix(uri, "gs://") {
		bucket, object, err := ParseGCSURI(uri)
		if err != nil {
			return Receipt{}, fmt.Errorf("receiptsource.Open: %w", err)
		}
		f, err := l.objectFetcher(ctx)
		if err != nil {
			return Receipt{}, fmt.Errorf("receiptsource.Open: %w", err)
		}
		data, err := f.Fetch(ctx, bucket, object)
		if err != nil {
			return Receipt{}, fmt.Errorf("receiptsource.Open: %w", err)
		}
		return newReceipt(path.Base(object), data)
	}

	data, err := readLimited(uri)
	if err != nil {
		return Receipt{}, fmt.Errorf("receiptsource.Open: %w", err)
	}
	return newReceipt(filepath.Base(uri), data)
}

// FromBytes wraps uploaded bytes, sniffing the MIME type.
func FromBytes(name string, data []byte) (Receipt, error) {
	return newReceipt(name, data)
}

// Close releases the Cloud Storage client if one was created.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *Loader) objectFetcher(ctx context.Context) (ObjectFetcher, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fetcher != nil {
		return l.fetcher, nil
	}
	var opts []option.ClientOption
	if l.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(l.credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	l.fetcher = &gcsFetcher{client: client}
	return l.fetcher, nil
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

func newReceipt(name string, data []byte) (Receipt, error) {
	if len(data) == 0 {
		return Receipt{}, fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}
	if len(data) > MaxImageBytes {
		return Receipt{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	mime := sniff(data)
	if mime == "" {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnsupportedType, http.DetectContentType(data))
	}
	return Receipt{Name: name, Image: aigateway.Image{Data: data, MIMEType: mime}}, nil
}

// sniff returns the MIME type when data is an image or PDF, and "" otherwise.
func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.Index(ct, ";"); i != -1 {
		ct = ct[:i]
	}
	if strings.HasPrefix(ct, "image/") || ct == "application/pdf" {
		return ct
	}
	return ""
}

func readLimited(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open file %q: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", name, err)
	}
	return data, nil
}

type gcsFetcher struct {
	client *storage.Client
}

func (g *gcsFetcher) Fetch(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, object, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

func (g *gcsFetcher) Close() error {
	return g.client.Close()
}
