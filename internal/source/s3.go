package source

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/parser"
	"github.com/nishad/biobank/internal/table"
)

// S3Scheme prefixes object references.
const S3Scheme = "s3://"

// S3Config holds connection settings for S3 or an S3-compatible store such
// as MinIO. Empty credentials fall back to the default AWS chain.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty"`
	PathStyle       bool   `yaml:"path_style"`
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	const op errors.Op = "source.s3_client"

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.E(op, errors.KindConfig, err, "loading AWS configuration")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// IsS3 reports whether ref names an object in S3.
func IsS3(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), S3Scheme)
}

// ParseS3URI splits "s3://bucket/key" into bucket and key.
func ParseS3URI(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(ref), S3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%q is not an s3:// reference", ref)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%q must name a bucket and a key", ref)
	}
	return bucket, key, nil
}

// S3Source reads inputs from S3 objects.
type S3Source struct {
	client *s3.Client
	uris   map[string]string
	sheets Sheets
}

// NewS3Source creates a source over the given s3:// references.
func NewS3Source(client *s3.Client, uris map[string]string, sheets Sheets) *S3Source {
	return &S3Source{client: client, uris: uris, sheets: sheets}
}

// Load implements Source.
func (s *S3Source) Load(ctx context.Context, id string) (*table.Table, error) {
	const op errors.Op = "source.s3"

	ref := s.uris[id]
	if strings.TrimSpace(ref) == "" {
		return nil, errors.SourceUnavailable(op, id)
	}
	bucket, key, err := ParseS3URI(ref)
	if err != nil {
		return nil, errors.E(op, errors.KindValidation, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.E(op, errors.KindSourceUnavailable, err, fmt.Sprintf("input %q not found at %s", id, ref))
		}
		return nil, errors.E(op, errors.KindIO, err, ref)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err, ref)
	}

	t, err := parser.Parse(bytes.NewReader(data), path.Base(key), parser.Options{Sheet: s.sheets.For(id), Name: id})
	if err != nil {
		return nil, errors.WrapMsg(op, ref, err)
	}
	return t, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if stderrors.As(err, &noKey) {
		return true
	}
	var noBucket *types.NoSuchBucket
	if stderrors.As(err, &noBucket) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
