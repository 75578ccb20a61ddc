package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
)

var (
	// ErrResourceUnavailable means the archive source could not be fetched
	// after the configured retries. Fatal to the whole job.
	ErrResourceUnavailable = errors.New("archive source unavailable")

	// ErrInvalidArchive means the fetched file is not a valid container.
	ErrInvalidArchive = errors.New("not a valid archive")
)

// Staged is a locally readable archive plus its cleanup handle. Cleanup is
// idempotent and removes temp artifacts only for downloaded sources.
type Staged struct {
	Path string

	downloaded bool
	once       sync.Once
}

// Cleanup removes staged temp artifacts. Safe to call more than once.
func (s *Staged) Cleanup() {
	s.once.Do(func() {
		if !s.downloaded {
			return
		}
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("stager: failed to remove staged file %s: %v", s.Path, err)
		}
	})
}

// Stager resolves a job's archive source (local path, s3:// URL, or
// MinIO-style http(s) URL) to a local file.
type Stager struct {
	cfg        config.StagerConfig
	downloader *s3manager.Downloader
}

// NewStager creates a stager with an S3 downloader for remote sources.
func NewStager(cfg config.StagerConfig) (*Stager, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.S3Region),
	}

	// For local testing with MinIO
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &Stager{
		cfg:        cfg,
		downloader: s3manager.NewDownloader(sess),
	}, nil
}

// Stage produces a local readable archive for the given source and validates
// that it opens as a zip container.
func (s *Stager) Stage(ctx context.Context, source string) (*Staged, error) {
	staged, err := s.resolve(ctx, source)
	if err != nil {
		return nil, err
	}

	if err := validateArchive(staged.Path); err != nil {
		staged.Cleanup()
		return nil, err
	}

	return staged, nil
}

func (s *Stager) resolve(ctx context.Context, source string) (*Staged, error) {
	if !isRemote(source) {
		if _, err := os.Stat(source); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
		}
		return &Staged{Path: source}, nil
	}

	bucket, key, err := parseSource(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}

	return s.download(ctx, bucket, key)
}

// download fetches the object with retry logic mirroring the ingestion
// retry loop: linear backoff, context aware.
func (s *Stager) download(ctx context.Context, bucket, key string) (*Staged, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.RetryCount; attempt++ {
		staged, err := s.downloadOnce(ctx, bucket, key)
		if err == nil {
			return staged, nil
		}

		lastErr = err
		log.Printf("stager: download attempt %d failed: %v", attempt+1, err)
		if attempt < s.cfg.RetryCount-1 {
			waitTime := time.Duration(attempt+1) * time.Second
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, ctx.Err())
			case <-time.After(waitTime):
			}
		}
	}

	return nil, fmt.Errorf("%w: failed after %d attempts: %v", ErrResourceUnavailable, s.cfg.RetryCount, lastErr)
}

func (s *Stager) downloadOnce(ctx context.Context, bucket, key string) (*Staged, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	path := filepath.Join(s.cfg.TempDir, fmt.Sprintf("ufdr_%s.zip", uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	n, err := s.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}

	log.Printf("stager: downloaded %d bytes to %s", n, path)
	return &Staged{Path: path, downloaded: true}, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "s3://") ||
		strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://")
}

// parseSource splits a remote source into bucket and key. http(s) sources
// follow the MinIO path convention: http://endpoint/bucket/key.
func parseSource(source string) (bucket, key string, err error) {
	if strings.HasPrefix(source, "s3://") {
		rest := strings.TrimPrefix(source, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid s3 source %q", source)
		}
		return parts[0], parts[1], nil
	}

	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("invalid source URL %q: %v", source, err)
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("source URL %q has no bucket/key path", source)
	}
	key, err = url.PathUnescape(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("source URL %q has malformed key: %v", source, err)
	}
	return parts[0], key, nil
}

func validateArchive(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return zr.Close()
}
