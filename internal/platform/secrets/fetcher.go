package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const meterName = "github.com/hanko-field/orderengine/internal/platform/secrets"

// Sources reported on the resolve duration metric.
const (
	sourceCache    = "cache"
	sourceRemote   = "secret_manager"
	sourceFallback = "fallback"
	sourceError    = "error"
)

// accessRetry retries transient Secret Manager failures before the fallback file is consulted.
var accessRetry = gax.WithRetry(func() gax.Retryer {
	return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
	})
})

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references for the config loader. Values come from Secret Manager when a
// project is known and the client could be created, otherwise from the local fallback file.
type Fetcher struct {
	logger *zap.Logger
	now    func() time.Time

	env            string
	defaultProject string
	projects       map[string]string
	pins           map[string]string

	client      secretManagerClient
	ownsClient  bool
	clientOpts  []option.ClientOption
	fallback    *fallbackFile
	ttl         time.Duration
	meter       metric.Meter
	resolveTime metric.Float64Histogram

	mu    sync.RWMutex
	cache map[string]cached
}

type cached struct {
	value  string
	key    string
	stored time.Time
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment sets the label used to pick a project from the project map and env-scoped version pins.
func WithEnvironment(env string) Option {
	return func(f *Fetcher) {
		if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
			f.env = env
		}
	}
}

// WithDefaultProject sets the project used when neither the reference nor the project map names one.
func WithDefaultProject(project string) Option {
	return func(f *Fetcher) { f.defaultProject = strings.TrimSpace(project) }
}

// WithProjectMap maps environment labels to Secret Manager projects.
func WithProjectMap(projects map[string]string) Option {
	return func(f *Fetcher) {
		for env, project := range projects {
			f.projects[strings.ToLower(strings.TrimSpace(env))] = strings.TrimSpace(project)
		}
	}
}

// WithVersionPins pins references to versions. Keys are either "secret://name" or "env:secret://name".
func WithVersionPins(pins map[string]string) Option {
	return func(f *Fetcher) {
		for ref, version := range pins {
			if version = strings.TrimSpace(version); version != "" {
				f.pins[strings.TrimSpace(ref)] = version
			}
		}
	}
}

// WithFallbackFile sets the local key=value file consulted when Secret Manager is unreachable.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.fallback = &fallbackFile{path: strings.TrimSpace(path)} }
}

// WithCacheTTL bounds how long a resolved value is reused. Zero caches until Invalidate.
func WithCacheTTL(ttl time.Duration) Option {
	return func(f *Fetcher) { f.ttl = ttl }
}

// WithSecretManagerClient injects the client instead of dialling one.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithClientOptions are applied when the Fetcher dials its own client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) { f.clientOpts = append(f.clientOpts, opts...) }
}

// WithMeter records metrics on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(f *Fetcher) { f.meter = m }
}

// NewFetcher builds a Fetcher. A client that cannot be created is not an error: the Fetcher then serves
// only the fallback file.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:   zap.NewNop(),
		now:      time.Now,
		env:      strings.ToLower(strings.TrimSpace(os.Getenv("ORDERS_SECURITY_ENVIRONMENT"))),
		projects: map[string]string{},
		pins:     map[string]string{},
		fallback: &fallbackFile{path: ".secrets.local"},
		cache:    map[string]cached{},
	}
	if f.env == "" {
		f.env = "local"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.meter == nil {
		f.meter = otel.GetMeterProvider().Meter(meterName)
	}
	hist, err := f.meter.Float64Histogram("secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent resolving a secret reference, by source"),
	)
	if err != nil {
		f.logger.Warn("secrets: resolve metric disabled", zap.Error(err))
	} else {
		f.resolveTime = hist
	}

	if f.client == nil {
		client, err := secretManagerClientFactory(ctx, f.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, serving fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases a client the Fetcher dialled itself.
func (f *Fetcher) Close() error {
	if !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref. Secret Manager permission and availability failures fall back to
// the local file; any other failure, NotFound included, is returned.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	started := time.Now()
	source := sourceError
	defer func() { f.observe(ctx, started, source) }()

	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}
	version := f.version(ref)
	cacheKey := ref.versioned(version)

	if v, ok := f.cached(cacheKey); ok {
		source = sourceCache
		return v, nil
	}

	if project := f.project(ref); project != "" && f.client != nil {
		v, err := f.access(ctx, ref.resourceName(project, version))
		if err == nil {
			f.store(cacheKey, ref.key, v)
			source = sourceRemote
			return v, nil
		}
		if !recoverable(err) {
			return "", fmt.Errorf("secrets: resolve %s: %w", ref.key, err)
		}
		f.logger.Debug("secrets: secret manager failed, using fallback file", zap.String("ref", ref.key), zap.Error(err))
	}

	v, ok, err := f.fallback.lookup(ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("secrets: %s not found in fallback file", ref.key)
	}
	f.store(cacheKey, ref.key, v)
	source = sourceFallback
	return v, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := parseReference(raw)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, entry := range f.cache {
		if entry.key == ref.key {
			delete(f.cache, k)
		}
	}
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	entry, ok := f.cache[key]
	f.mu.RUnlock()
	if !ok || (f.ttl > 0 && f.now().Sub(entry.stored) > f.ttl) {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(cacheKey, refKey, value string) {
	f.mu.Lock()
	f.cache[cacheKey] = cached{value: value, key: refKey, stored: f.now()}
	f.mu.Unlock()
}

func (f *Fetcher) access(ctx context.Context, name string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, accessRetry)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("empty payload for " + name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) project(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if p := f.projects[f.env]; p != "" {
		return p
	}
	return f.defaultProject
}

func (f *Fetcher) version(ref reference) string {
	if ref.version != "" {
		return ref.version
	}
	if v, ok := f.pins[f.env+":"+ref.key]; ok {
		return v
	}
	if v, ok := f.pins[ref.key]; ok {
		return v
	}
	return latestVersion
}

func (f *Fetcher) observe(ctx context.Context, started time.Time, source string) {
	if f.resolveTime == nil {
		return
	}
	ms := float64(time.Since(started)) / float64(time.Millisecond)
	f.resolveTime.Record(ctx, ms, metric.WithAttributes(attribute.String("source", source)))
}

func recoverable(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
