package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config selects the S3-compatible bucket for finished artifacts.
type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	Prefix        string
	AccessKey     string
	SecretKey     string
	PresignExpiry time.Duration
}

// Archiver copies finished job artifacts into an S3-compatible object store.
// Archiving is best-effort: the local artifact under the jobs directory stays
// the source of truth for the HTTP API.
type Archiver struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	prefix        string
	presignExpiry time.Duration
	log           zerolog.Logger
}

// NewArchiver creates an archiver from config.
func NewArchiver(cfg Config, log zerolog.Logger) (*Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &Archiver{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		presignExpiry: cfg.PresignExpiry,
		log:           log.With().Str("component", "archive").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (a *Archiver) HeadBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &a.bucket,
	})
	return err
}

// Save uploads one artifact file under <prefix>/<jobID>/<basename>.
func (a *Archiver) Save(ctx context.Context, jobID, filePath, contentType string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	objKey := a.objectKey(jobID, path.Base(filePath))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &objKey,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", objKey, err)
	}

	a.log.Debug().Str("job_id", jobID).Str("key", objKey).Msg("artifact archived")
	return nil
}

// URL returns a presigned download URL for an archived artifact.
func (a *Archiver) URL(ctx context.Context, jobID, name string) (string, error) {
	objKey := a.objectKey(jobID, name)
	req, err := a.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &objKey,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = a.presignExpiry
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Open streams an archived artifact back.
func (a *Archiver) Open(ctx context.Context, jobID, name string) (io.ReadCloser, error) {
	objKey := a.objectKey(jobID, name)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &objKey,
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// Exists reports whether an archived artifact is present.
func (a *Archiver) Exists(ctx context.Context, jobID, name string) bool {
	objKey := a.objectKey(jobID, name)
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &a.bucket,
		Key:    &objKey,
	})
	return err == nil
}

func (a *Archiver) objectKey(jobID, name string) string {
	if a.prefix != "" {
		return a.prefix + "/" + jobID + "/" + name
	}
	return jobID + "/" + name
}
