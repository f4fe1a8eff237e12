package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFallbackPath = ".secrets.local"

// accessFunc fetches a secret version payload by its full resource name.
type accessFunc func(ctx context.Context, name string) (string, error)

// Fetcher resolves secret:// references using Google Secret Manager with
// caching and a local fallback file for development environments.
type Fetcher struct {
	access     accessFunc
	close      func() error
	logger     *zap.Logger
	projectID  string
	fallback   string
	fallbackMu sync.Once
	fallbackKV map[string]string
	fallbackEr error

	mu    sync.RWMutex
	cache map[string]string
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithProject sets the default project used for unqualified references.
func WithProject(projectID string) Option {
	return func(f *Fetcher) {
		f.projectID = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) {
		f.fallback = strings.TrimSpace(path)
	}
}

// WithAccessFunc injects a custom secret accessor (primarily for tests).
func WithAccessFunc(fn accessFunc) Option {
	return func(f *Fetcher) {
		f.access = fn
	}
}

// NewFetcher builds a Fetcher. When the Secret Manager client cannot be
// created the fetcher degrades to fallback-file-only resolution.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:   zap.NewNop(),
		fallback: defaultFallbackPath,
		cache:    make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.access == nil {
		client, err := secretmanager.NewClient(ctx, []option.ClientOption{}...)
		if err != nil {
			f.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.access = func(ctx context.Context, name string) (string, error) {
				resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
				if err != nil {
					return "", err
				}
				if resp == nil || resp.Payload == nil {
					return "", fmt.Errorf("secret manager returned empty payload for %s", name)
				}
				return string(resp.Payload.GetData()), nil
			}
			f.close = client.Close
		}
	}

	return f, nil
}

// Close releases resources held by the fetcher.
func (f *Fetcher) Close() error {
	if f.close != nil {
		return f.close()
	}
	return nil
}

// ResolveSecret retrieves the secret value for the supplied secret:// reference,
// consulting cache and the fallback file as needed. It satisfies the config
// package's SecretResolver contract.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	cached, ok := f.cache[parsed.canonical]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if f.access != nil && parsed.project(f.projectID) != "" {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", parsed.project(f.projectID), parsed.secret, parsed.version)
		value, fetchErr := f.access(ctx, name)
		if fetchErr == nil {
			f.store(parsed.canonical, value)
			return value, nil
		}
		if !isFallbackError(fetchErr) {
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", parsed.canonical), zap.Error(fetchErr))
	}

	value, ok := f.lookupFallback(parsed.canonical)
	if !ok {
		return "", fmt.Errorf("secrets: fallback value not found for %s", parsed.canonical)
	}
	f.store(parsed.canonical, value)
	return value, nil
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) lookupFallback(canonical string) (string, bool) {
	f.loadFallback()
	if f.fallbackEr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackEr))
		return "", false
	}
	value, ok := f.fallbackKV[canonical]
	return value, ok
}

func (f *Fetcher) loadFallback() {
	f.fallbackMu.Do(func() {
		f.fallbackKV = map[string]string{}

		path := strings.TrimSpace(f.fallback)
		if path == "" {
			return
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}

		file, err := os.Open(absPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.fallbackEr = fmt.Errorf("secrets: unable to open fallback file %s: %w", absPath, err)
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key == "" {
				continue
			}
			if strings.HasPrefix(key, "sm://") {
				key = "secret://" + strings.TrimPrefix(key, "sm://")
			}
			if parsed, err := parseReference(key); err == nil {
				key = parsed.canonical
			}
			f.fallbackKV[key] = value
		}
		if err := scanner.Err(); err != nil {
			f.fallbackEr = fmt.Errorf("secrets: failed reading %s: %w", absPath, err)
		}
	})
}

type parsedReference struct {
	canonical       string
	secret          string
	version         string
	projectOverride string
}

func (p parsedReference) project(fallback string) string {
	if p.projectOverride != "" {
		return p.projectOverride
	}
	return fallback
}

func parseReference(ref string) (parsedReference, error) {
	if strings.TrimSpace(ref) == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	values := u.Query()
	version := strings.TrimSpace(values.Get("version"))
	if version == "" {
		version = "latest"
	}

	return parsedReference{
		canonical:       canonical.String(),
		secret:          secret,
		version:         version,
		projectOverride: strings.TrimSpace(values.Get("project")),
	}, nil
}

func isFallbackError(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
