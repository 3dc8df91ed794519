package transport

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"hostbackup/internal/engine"
)

// S3Transport stores artifacts as objects in an Amazon S3 bucket.
type S3Transport struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Transport creates an S3 transport from destination configuration.
func NewS3Transport(config *S3Config) (*S3Transport, error) {
	if config == nil {
		return nil, engine.NewValidationError("s3 transport configuration is required", nil)
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"", // token
		),
	})
	if err != nil {
		return nil, engine.NewTransportError("failed to create AWS session", err)
	}

	return &S3Transport{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: normalizePrefix(config.Prefix),
	}, nil
}

// Upload streams a local file to the bucket.
func (t *S3Transport) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return engine.NewTransportError("failed to open local file", err)
	}
	defer f.Close()

	_, err = t.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(t.key(remotePath)),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return engine.NewTransportError(fmt.Sprintf("failed to upload %s to S3", remotePath), err)
	}
	return nil
}

// Download streams an object from the bucket to a local file.
func (t *S3Transport) Download(ctx context.Context, remotePath, localPath string) error {
	result, err := t.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(remotePath)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return engine.NewNotFoundError("file not found at destination: "+remotePath, err)
		}
		return engine.NewTransportError(fmt.Sprintf("failed to download %s from S3", remotePath), err)
	}
	defer result.Body.Close()

	return writeLocalFile(localPath, result.Body)
}

// ListFiles lists objects directly under a key prefix.
func (t *S3Transport) ListFiles(ctx context.Context, remotePath string) ([]FileInfo, error) {
	prefix := t.key(remotePath)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var files []FileInfo
	err := t.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(t.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			files = append(files, FileInfo{
				File:  path.Base(aws.StringValue(obj.Key)),
				Size:  aws.Int64Value(obj.Size),
				MTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, engine.NewTransportError("failed to list objects in S3", err)
	}
	return files, nil
}

// FileExists reports whether an object exists in the bucket.
func (t *S3Transport) FileExists(ctx context.Context, remotePath string) (bool, error) {
	_, err := t.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(remotePath)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, engine.NewTransportError("failed to check object in S3", err)
	}
	return true, nil
}

// Delete removes an object. S3 deletes are idempotent, so an absent object
// reports success.
func (t *S3Transport) Delete(ctx context.Context, remotePath string) error {
	_, err := t.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(remotePath)),
	})
	if err != nil {
		return engine.NewTransportError(fmt.Sprintf("failed to delete %s from S3", remotePath), err)
	}
	return nil
}

// TestConnection verifies the bucket is reachable with the configured
// credentials.
func (t *S3Transport) TestConnection(ctx context.Context) error {
	_, err := t.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(t.bucket),
	})
	if err != nil {
		return engine.NewTransportError("S3 bucket is not reachable", err)
	}
	return nil
}

func (t *S3Transport) key(remotePath string) string {
	return t.prefix + strings.TrimPrefix(remotePath, "/")
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
