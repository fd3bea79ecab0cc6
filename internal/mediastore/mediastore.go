// Package mediastore archives generated media, such as Mini Program QR
// images, to S3-compatible object storage.
package mediastore

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Config contains configuration for the S3-compatible backend
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Object describes one archived item
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store provides archive operations against S3-compatible storage
type Store struct {
	client     *s3.S3
	bucket     string
	pathPrefix string
}

// NewStore creates a new media archive client
func NewStore(config Config) (*Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:    aws.String(config.Endpoint),
		Region:      aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Store{
		client:     s3.New(sess),
		bucket:     config.Bucket,
		pathPrefix: "qr-archives/",
	}, nil
}

// objectKey builds a date-partitioned key for a new archive entry
func (s *Store) objectKey(name string, at time.Time) string {
	return s.pathPrefix + at.Format("2006-01-02") + "/" + path.Base(name)
}

// Put archives a media payload and returns its object key. The name
// becomes the final path segment under the current date partition.
func (s *Store) Put(name, contentType string, data io.Reader) (string, error) {
	now := time.Now().UTC()
	key := s.objectKey(name, now)

	// The SDK needs an io.ReadSeeker, so buffer the payload first
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("failed to read data: %w", err)
	}

	_, err := s.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
		Metadata: map[string]*string{
			"media-name":   aws.String(name),
			"archive-time": aws.String(now.Format(time.RFC3339)),
		},
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	return key, nil
}

// Get retrieves an archived media object by key
func (s *Store) Get(key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}

	return result.Body, nil
}

// List returns the objects archived on a specific date
func (s *Store) List(date time.Time) ([]Object, error) {
	prefix := s.pathPrefix + date.Format("2006-01-02") + "/"

	result, err := s.client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}

	objects := make([]Object, 0, len(result.Contents))
	for _, obj := range result.Contents {
		objects = append(objects, Object{
			Key:          aws.StringValue(obj.Key),
			Size:         aws.Int64Value(obj.Size),
			LastModified: aws.TimeValue(obj.LastModified),
		})
	}
	return objects, nil
}

// Delete removes an archived media object
func (s *Store) Delete(key string) error {
	_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}

	return nil
}
