package stitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/services"
)

// Fetcher loads the bytes behind a reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, error) { return f(ctx, ref) }

// FetchError reports which reference could not be loaded. Index is the
// zero-based position in the fetched list; Label names the clip the way
// Output.Order does.
type FetchError struct {
	Index int
	Label string
	Ref   string
	Err   error
}

func (e *FetchError) Error() string {
	label := e.Label
	if label == "" {
		label = PromptLabel(e.Index)
	}
	return fmt.Sprintf("fetch %s (%s): %v", label, e.Ref, e.Err)
}

// PromptLabel names the prompt at zero-based index i: prompt-01, prompt-02...
func PromptLabel(i int) string {
	return fmt.Sprintf("prompt-%02d", i+1)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Registry routes references to fetchers by URL scheme. References without a
// scheme are local paths.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry returns a registry that only resolves local files.
func NewRegistry() *Registry {
	r := &Registry{fetchers: make(map[string]Fetcher)}
	r.Register("file", FileFetcher{})
	return r
}

// Register binds scheme to f, replacing any previous binding.
func (r *Registry) Register(scheme string, f Fetcher) {
	r.fetchers[strings.ToLower(scheme)] = f
}

// Fetch resolves ref.
func (r *Registry) Fetch(ctx context.Context, ref string) ([]byte, error) {
	scheme := Scheme(ref)
	f, ok := r.fetchers[scheme]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "stitching", "fetch", fmt.Sprintf("no fetcher for scheme %q", scheme), nil)
	}
	return f.Fetch(ctx, ref)
}

// Scheme returns the lowercase URL scheme of ref, or "file" for plain paths.
func Scheme(ref string) string {
	if idx := strings.Index(ref, "://"); idx > 0 {
		return strings.ToLower(ref[:idx])
	}
	return "file"
}

// RefExtension returns the file extension of the path component of ref.
func RefExtension(ref string) string {
	p := ref
	if parsed, err := url.Parse(ref); err == nil && parsed.Scheme != "" {
		p = parsed.Path
	}
	return strings.ToLower(path.Ext(p))
}

// FetchAll loads refs with at most limit fetches in flight. Results keep the
// order of refs. The first failure cancels the rest and is returned as a
// *FetchError.
func FetchAll(ctx context.Context, f Fetcher, refs []string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 1
	}
	out := make([][]byte, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := f.Fetch(gctx, ref)
			if err != nil {
				return &FetchError{Index: i, Label: PromptLabel(i), Ref: ref, Err: err}
			}
			if len(data) == 0 {
				return &FetchError{Index: i, Label: PromptLabel(i), Ref: ref, Err: services.Wrap(services.ErrValidation, "stitching", "fetch", "empty clip", nil)}
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FileFetcher reads local paths and file:// URLs.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := ref
	if strings.HasPrefix(strings.ToLower(ref), "file://") {
		parsed, err := url.Parse(ref)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "stitching", "fetch", "invalid file URL", err)
		}
		p = parsed.Path
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "stitching", "fetch", p, err)
		}
		return nil, services.Wrap(services.ErrTransient, "stitching", "fetch", p, err)
	}
	return data, nil
}

// HTTPFetcher downloads http(s) references with bounded retry on network
// errors, 429, and 5xx responses.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher builds a fetcher with the given per-request timeout and
// retry count.
func NewHTTPFetcher(timeout time.Duration, retries int) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", "feedbackpipe/1").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == 429 || code >= 500
		})
	return &HTTPFetcher{client: client}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	resp, err := h.client.R().SetContext(ctx).Get(ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "stitching", "fetch", "download failed", err)
	}
	switch {
	case resp.IsSuccess():
		return resp.Body(), nil
	case resp.StatusCode() == 404 || resp.StatusCode() == 410:
		return nil, services.Wrap(services.ErrNotFound, "stitching", "fetch", fmt.Sprintf("status %d", resp.StatusCode()), nil)
	default:
		return nil, services.Wrap(services.ErrTransient, "stitching", "fetch", fmt.Sprintf("status %d", resp.StatusCode()), nil)
	}
}

// ObjectGetter is the subset of the S3 client the fetcher uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads s3://bucket/key references.
type S3Fetcher struct {
	client ObjectGetter
}

// NewS3Fetcher wraps an existing client.
func NewS3Fetcher(client ObjectGetter) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// NewS3FetcherFromConfig builds an S3 client from the [s3] section. Static
// keys are used when set; otherwise the default AWS credential chain applies.
func NewS3FetcherFromConfig(ctx context.Context, cfg config.S3) (*S3Fetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "stitching", "s3 config", "load AWS config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Fetcher{client: client}, nil
}

// ParseS3Ref splits s3://bucket/key.
func ParseS3Ref(ref string) (bucket, key string, err error) {
	parsed, err := url.Parse(ref)
	if err != nil || !strings.EqualFold(parsed.Scheme, "s3") {
		return "", "", fmt.Errorf("not an s3 reference: %q", ref)
	}
	bucket = parsed.Host
	key = strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 reference %q must name a bucket and key", ref)
	}
	return bucket, key, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "stitching", "fetch", "", err)
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var status interface{ HTTPStatusCode() int }
		if errors.As(err, &noKey) || (errors.As(err, &status) && status.HTTPStatusCode() == 404) {
			return nil, services.Wrap(services.ErrNotFound, "stitching", "fetch", "s3 object missing", err)
		}
		return nil, services.Wrap(services.ErrTransient, "stitching", "fetch", "s3 get object", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "stitching", "fetch", "read s3 object", err)
	}
	return data, nil
}

// RegistryFromConfig wires every fetcher the configuration supports. The S3
// client is only built when an s3:// reference is configured.
func RegistryFromConfig(ctx context.Context, cfg *config.Config) (*Registry, error) {
	r := NewRegistry()
	timeout := time.Duration(cfg.Stitching.FetchTimeoutSeconds) * time.Second
	httpFetcher := NewHTTPFetcher(timeout, cfg.Stitching.FetchRetries)
	r.Register("http", httpFetcher)
	r.Register("https", httpFetcher)

	refs := append([]string{cfg.Stitching.PlaceholderImage}, cfg.Stitching.PromptClips...)
	for _, ref := range refs {
		if Scheme(ref) != "s3" {
			continue
		}
		s3Fetcher, err := NewS3FetcherFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		r.Register("s3", s3Fetcher)
		break
	}
	return r, nil
}
