// Package assets fetches the static inputs of the atlas (dataset and grid)
// from a local path, an http(s) URL or an s3://bucket/key location.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrUnsupported is returned for URI schemes Fetch cannot read.
var ErrUnsupported = errors.New("unsupported asset scheme")

// MaxSize caps a single asset.
const MaxSize = 256 << 20

// S3Options configures the s3:// scheme. Empty fields fall back to the AWS
// default configuration chain.
type S3Options struct {
	Region    string
	Endpoint  string // optional, for MinIO and other S3-compatible stores
	PathStyle bool
}

// Fetcher reads assets. The zero value reads files and uses
// http.DefaultClient.
type Fetcher struct {
	HTTP *http.Client
	S3   S3Options

	// s3Client overrides the client built from S3, for tests.
	s3Client *s3.Client
}

// Fetch reads the asset at uri with a default Fetcher.
func Fetch(ctx context.Context, uri string) ([]byte, error) {
	return (&Fetcher{}).Fetch(ctx, uri)
}

// Fetch reads the asset at uri.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		// Plain paths, including Windows drive letters.
		return readFile(uri)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, uri)
	case "s3":
		return f.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, u.Scheme)
	}
}

func readFile(path string) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening asset: %w", err)
	}
	defer fh.Close()
	return readAll(fh, path)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	client := f.HTTP
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", uri, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", uri, resp.Status)
	}
	return readAll(resp.Body, uri)
}

func (f *Fetcher) fetchS3(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 asset needs s3://bucket/key, got bucket %q key %q", bucket, key)
	}
	client, err := f.client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return readAll(out.Body, "s3://"+bucket+"/"+key)
}

func (f *Fetcher) client(ctx context.Context) (*s3.Client, error) {
	if f.s3Client != nil {
		return f.s3Client, nil
	}
	region := f.S3.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = f.S3.PathStyle
		if f.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(f.S3.Endpoint)
		}
	}), nil
}

func readAll(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("reading %s: asset larger than %d bytes", name, MaxSize)
	}
	return data, nil
}

// Resolve joins a relative asset reference to base. Absolute paths and
// URIs with a scheme are returned unchanged.
func Resolve(base, ref string) string {
	if base == "" || ref == "" {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return ref
	}
	if u, err := url.Parse(base); err == nil && len(u.Scheme) > 1 {
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		return u.ResolveReference(r).String()
	}
	return strings.TrimRight(base, "/") + "/" + ref
}
