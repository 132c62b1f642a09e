// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package storage issues presigned S3 URLs for profile pictures. Clients
// upload and download directly against the bucket; bytes never pass through
// the API server.
package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bugreport/bugreport/internal/auth"
)

// Key layout and URL lifetime.
const (
	KeyPrefix       = "profile-pictures/"
	PresignExpiry   = 15 * time.Minute
	maxFilenameRune = 100
)

// Config selects the bucket and credentials.
type Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO. Path-style
	// addressing is used when it is set.
	Endpoint string
}

type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Upload is a presigned PUT target.
type Upload struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

// ProfilePictures presigns profile picture uploads and downloads.
type ProfilePictures struct {
	presign presigner
	bucket  string
	clock   auth.Clock
}

// NewProfilePictures builds an S3 presign client from static credentials.
func NewProfilePictures(ctx context.Context, cfg Config) (*ProfilePictures, error) {
	if cfg.Bucket == "" {
		return nil, oops.Code("STORAGE_CONFIG_INVALID").Errorf("bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, oops.Code("STORAGE_CONFIG_INVALID").With("operation", "load aws config").Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &ProfilePictures{presign: s3.NewPresignClient(client), bucket: cfg.Bucket, clock: auth.SystemClock{}}, nil
}

// UploadURL presigns a PUT for a new picture owned by userID.
func (p *ProfilePictures) UploadURL(ctx context.Context, userID ulid.ULID, filename string) (*Upload, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return nil, auth.NewValidationError("STORAGE_INVALID_FILENAME", "filename", "Invalid filename", "Filename")
	}
	key := KeyPrefix + userID.String() + "/" + uuid.NewString() + "-" + name

	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return nil, auth.NewUnavailableError("STORAGE_PRESIGN_FAILED", "presign upload", err)
	}
	return &Upload{URL: req.URL, Key: key, ExpiresAt: p.clock.Now().Add(PresignExpiry)}, nil
}

// DownloadURL presigns a GET for an existing key.
func (p *ProfilePictures) DownloadURL(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", auth.NewValidationError("STORAGE_INVALID_KEY", "key", "Invalid key", "Prefix")
	}
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", auth.NewUnavailableError("STORAGE_PRESIGN_FAILED", "presign download", err)
	}
	return req.URL, nil
}

// SanitizeFilename keeps the base name and replaces every character outside
// [A-Za-z0-9._-] with '-'. It returns "" when nothing usable remains.
func SanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if base == "." || base == "/" {
		return ""
	}

	var b strings.Builder
	n := 0
	for _, r := range base {
		if n == maxFilenameRune {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
		n++
	}
	return strings.Trim(b.String(), ".-")
}
