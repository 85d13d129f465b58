package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/boa-dev/conformoor/pkg/config"
)

// Compile-time interface check.
var _ Store = (*s3Store)(nil)

type s3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a Store backed by S3-compatible storage.
func NewS3Store(cfg *config.APIS3Config) Store {
	return &s3Store{
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
}

// GetRefFile reads {prefix}/refs/{ref}/{commit}/{filename} from S3.
// Returns (nil, nil) when the key does not exist.
func (s *s3Store) GetRefFile(
	ctx context.Context, ref, commit, filename string,
) ([]byte, error) {
	return s.GetFile(ctx, refKey(ref, commit, filename))
}

// GetFile reads an archive key relative to the prefix.
// Returns (nil, nil) when the key does not exist.
func (s *s3Store) GetFile(
	ctx context.Context, p string,
) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", p, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", p, err)
	}

	return data, nil
}

// ListCommits lists commit hashes (common prefixes) under
// {prefix}/refs/{ref}/.
func (s *s3Store) ListCommits(
	ctx context.Context, ref string,
) ([]string, error) {
	prefix := s.key("refs/"+ref) + "/"

	paginator := s3.NewListObjectsV2Paginator(
		s.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(s.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		},
	)

	var commits []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf(
				"listing commit prefixes under %q: %w", prefix, err,
			)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				commits = append(commits,
					path.Base(strings.TrimRight(*cp.Prefix, "/")))
			}
		}
	}

	return commits, nil
}

// PutRefFile writes {prefix}/refs/{ref}/{commit}/{filename} to S3.
func (s *s3Store) PutRefFile(
	ctx context.Context, ref, commit, filename string, data []byte,
) error {
	key := s.key(refKey(ref, commit, filename))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object %q: %w", key, err)
	}

	return nil
}

func (s *s3Store) key(p string) string {
	if s.prefix == "" {
		return p
	}

	return s.prefix + "/" + p
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

func newS3Client(cfg *config.APIS3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
