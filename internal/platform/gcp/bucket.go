package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// ResourceBucket reads metadata of course resources stored in one bucket.
type ResourceBucket interface {
	// KeyFromURL maps a resource URL to an object key in this bucket.
	KeyFromURL(rawURL string) (string, bool)
	GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error)
	// PrefixSize sums the sizes of all objects under prefix.
	PrefixSize(ctx context.Context, prefix string) (int64, error)
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

type resourceBucket struct {
	log           *logger.Logger
	cfg           StorageConfig
	storageClient *storage.Client
	httpClient    *http.Client
}

func NewResourceBucket(ctx context.Context, log *logger.Logger, cfg StorageConfig) (ResourceBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("object storage disabled")
	}
	serviceLog := log.With("service", "ResourceBucket")

	rb := &resourceBucket{
		log:        serviceLog,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if !cfg.IsEmulatorMode() {
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		rb.storageClient = client
	}

	serviceLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"bucket", cfg.Bucket,
		"emulator_host", cfg.EmulatorHost,
		"cdn_domain", cfg.CDNDomain,
	)
	return rb, nil
}

func (rb *resourceBucket) KeyFromURL(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	path := strings.TrimPrefix(u.Path, "/")

	switch {
	case u.Scheme == "gs":
		if u.Host != rb.cfg.Bucket {
			return "", false
		}
		return nonEmpty(path)
	case u.Host == "storage.googleapis.com" || u.Host == "storage.cloud.google.com":
		bucket, key, ok := strings.Cut(path, "/")
		if !ok || bucket != rb.cfg.Bucket {
			return "", false
		}
		return nonEmpty(key)
	case u.Host == rb.cfg.Bucket+".storage.googleapis.com":
		return nonEmpty(path)
	case rb.cfg.CDNDomain != "" && sameHost(u, rb.cfg.CDNDomain):
		return nonEmpty(path)
	case rb.cfg.IsEmulatorMode() && sameHost(u, rb.cfg.EmulatorHost):
		// {host}/{bucket}/{key} or {host}/storage/v1/b/{bucket}/o/{key}
		if rest, ok := strings.CutPrefix(path, "storage/v1/b/"+rb.cfg.Bucket+"/o/"); ok {
			key, err := url.PathUnescape(rest)
			if err != nil {
				return "", false
			}
			return nonEmpty(key)
		}
		bucket, key, ok := strings.Cut(path, "/")
		if !ok || bucket != rb.cfg.Bucket {
			return "", false
		}
		return nonEmpty(key)
	}
	return "", false
}

func nonEmpty(key string) (string, bool) {
	key = strings.TrimSpace(key)
	return key, key != ""
}

func sameHost(u *url.URL, base string) bool {
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, b.Host)
}

func (rb *resourceBucket) GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if rb.cfg.IsEmulatorMode() {
		var payload emulatorObject
		status, err := rb.emulatorGet(ctx, rb.emulatorObjectURL(key), &payload)
		if err != nil {
			if status == http.StatusNotFound {
				return nil, ErrObjectNotFound
			}
			return nil, err
		}
		return payload.attrs(), nil
	}

	attrs, err := rb.storageClient.Bucket(rb.cfg.Bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}

func (rb *resourceBucket) PrefixSize(ctx context.Context, prefix string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if rb.cfg.IsEmulatorMode() {
		var total int64
		pageToken := ""
		for {
			q := url.Values{}
			q.Set("prefix", prefix)
			if pageToken != "" {
				q.Set("pageToken", pageToken)
			}
			var page struct {
				Items         []emulatorObject `json:"items"`
				NextPageToken string           `json:"nextPageToken"`
			}
			listURL := fmt.Sprintf("%s/storage/v1/b/%s/o?%s", rb.cfg.EmulatorHost, url.PathEscape(rb.cfg.Bucket), q.Encode())
			if _, err := rb.emulatorGet(ctx, listURL, &page); err != nil {
				return 0, err
			}
			for _, it := range page.Items {
				total += it.attrs().Size
			}
			if page.NextPageToken == "" {
				return total, nil
			}
			pageToken = page.NextPageToken
		}
	}

	it := rb.storageClient.Bucket(rb.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var total int64
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return total, nil
		}
		if err != nil {
			return 0, fmt.Errorf("list objects under %q: %w", prefix, err)
		}
		total += attrs.Size
	}
}

type emulatorObject struct {
	Name        string `json:"name"`
	Size        string `json:"size"`
	ContentType string `json:"contentType"`
	Updated     string `json:"updated"`
	ETag        string `json:"etag"`
}

func (o emulatorObject) attrs() *ObjectAttrs {
	size, _ := strconv.ParseInt(strings.TrimSpace(o.Size), 10, 64)
	var updated time.Time
	if ts := strings.TrimSpace(o.Updated); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			updated = parsed
		}
	}
	return &ObjectAttrs{Size: size, ContentType: o.ContentType, Updated: updated, ETag: o.ETag}
}

func (rb *resourceBucket) emulatorObjectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s",
		rb.cfg.EmulatorHost,
		url.PathEscape(rb.cfg.Bucket),
		url.PathEscape(key),
	)
}

func (rb *resourceBucket) emulatorGet(ctx context.Context, target string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed creating emulator request: %w", err)
	}
	resp, err := rb.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed emulator request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("emulator request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode emulator response: %w", err)
	}
	return resp.StatusCode, nil
}
