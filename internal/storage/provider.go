package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"media-task-queue/internal/config"
)

// Locator addresses a stored artifact.
type Locator struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Provider is the artifact storage capability the worker pool depends on.
// Store is synchronous: it either returns a locator for the saved artifact
// or fails.
type Provider interface {
	Store(ctx context.Context, localPath string) (Locator, error)
}

// SelectProvider chooses a provider once at startup from validated
// configuration. An S3 endpoint or bucket selects the remote provider;
// otherwise artifacts are saved locally.
func SelectProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	if cfg.S3Endpoint != "" || cfg.S3Bucket != "" {
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3_ENDPOINT_URL is set")
		}
		return NewS3Provider(ctx, cfg)
	}
	return NewLocalProvider(cfg), nil
}

// LocalProvider copies artifacts into the resolved storage root and hands
// back a download URL served by this service.
type LocalProvider struct {
	cfg config.Config
}

func NewLocalProvider(cfg config.Config) *LocalProvider {
	return &LocalProvider{cfg: cfg}
}

func (p *LocalProvider) Store(_ context.Context, localPath string) (Locator, error) {
	root := ResolveRoot(p.cfg)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Locator{}, fmt.Errorf("create storage dir: %w", err)
	}

	name := uniqueName(filepath.Base(localPath))
	dst := filepath.Join(root, name)
	if err := copyFile(localPath, dst); err != nil {
		return Locator{}, err
	}
	return Locator{
		URL:      p.cfg.BaseURL + "/v1/storage/download/" + name,
		Filename: name,
	}, nil
}

// S3Provider uploads artifacts to an S3-compatible bucket.
type S3Provider struct {
	client *s3.Client
	bucket string
}

// NewS3Provider builds the remote provider, honoring a custom endpoint and
// path-style addressing for S3-compatible stores.
func NewS3Provider(ctx context.Context, cfg config.Config) (*S3Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.S3Endpoint,
					HostnameImmutable: cfg.S3PathStyle,
					SigningRegion:     cfg.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	})
	return &S3Provider{client: client, bucket: cfg.S3Bucket}, nil
}

func (p *S3Provider) Store(ctx context.Context, localPath string) (Locator, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Locator{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	key := uniqueName(filepath.Base(localPath))
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Locator{}, fmt.Errorf("put object: %w", err)
	}
	return Locator{
		URL:      fmt.Sprintf("s3://%s/%s", p.bucket, key),
		Filename: key,
	}, nil
}

// uniqueName appends a timestamp to the base name so repeated jobs on the
// same input do not overwrite each other.
func uniqueName(base string) string {
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%s%s", name, time.Now().Format("20060102_150405.000"), ext)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}
