package storage

import (
	"bytes"
	"context"
	"errors"
	"flipbook/config"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// S3Storage places content in an S3 (or compatible) bucket and hands out public URLs
type S3Storage struct {
	cfg      config.S3
	s3Client *s3.S3
	uploader *s3manager.Uploader
	// host of the resolved endpoint, locators without a public URL must point at it
	endpointHost string
}

// NewS3Storage creates the client from explicit settings. The SDK does not retry on its own,
// retries are a decision of the caller.
func NewS3Storage(cfg config.S3) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is not set")
	}
	awsConfig := aws.NewConfig().
		WithRegion(cfg.Region).
		WithCredentials(credentials.NewStaticCredentials(cfg.Key, cfg.Secret, "")).
		WithS3ForcePathStyle(cfg.ForcePathStyle).
		WithMaxRetries(0)
	if cfg.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}
	client := s3.New(sess)
	endpoint, err := url.Parse(client.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("s3: invalid endpoint %q", client.Endpoint)
	}
	return &S3Storage{
		cfg:          cfg,
		s3Client:     client,
		uploader:     s3manager.NewUploaderWithClient(client),
		endpointHost: endpoint.Host,
	}, nil
}

// GetRemotePath returns the object key for obj. Keys are random so names never clash.
func (s *S3Storage) GetRemotePath(obj Object) string {
	return path.Join(s.cfg.Prefix, strconv.FormatUint(obj.AlbumID, 10), uuid.NewString()+obj.Ext)
}

func (s *S3Storage) Place(ctx context.Context, obj Object) (string, error) {
	key := s.GetRemotePath(obj)
	input := s3manager.UploadInput{
		Bucket: &s.cfg.Bucket,
		Key:    aws.String(key),
		Body:   bytes.NewReader(obj.Data),
	}
	if obj.MimeType != "" {
		input.ContentType = aws.String(obj.MimeType)
	}
	if s.cfg.SSEEncryption != "" {
		input.ServerSideEncryption = &s.cfg.SSEEncryption
	}
	out, err := s.uploader.UploadWithContext(ctx, &input)
	if err != nil {
		return "", err
	}
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + key, nil
	}
	return out.Location, nil
}

// remoteKey extracts the object key from a locator produced by Place
func (s *S3Storage) remoteKey(locator string) (string, bool) {
	var key string
	if s.cfg.PublicURL != "" {
		base := strings.TrimRight(s.cfg.PublicURL, "/") + "/"
		if !strings.HasPrefix(locator, base) {
			return "", false
		}
		key = strings.TrimPrefix(locator, base)
	} else {
		u, err := url.Parse(locator)
		if err != nil || u.Host == "" {
			return "", false
		}
		key = strings.TrimPrefix(u.Path, "/")
		switch u.Host {
		case s.endpointHost:
			// Path style: /<bucket>/<key>
			if !strings.HasPrefix(key, s.cfg.Bucket+"/") {
				return "", false
			}
			key = strings.TrimPrefix(key, s.cfg.Bucket+"/")
		case s.cfg.Bucket + "." + s.endpointHost:
			// Virtual hosted style
		default:
			return "", false
		}
	}
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix != "" && !strings.HasPrefix(key, prefix+"/") {
		return "", false
	}
	return key, key != ""
}

func (s *S3Storage) Owns(locator string) bool {
	_, ok := s.remoteKey(locator)
	return ok
}

func (s *S3Storage) Remove(ctx context.Context, locator string) error {
	key, ok := s.remoteKey(locator)
	if !ok {
		return ErrUnknownLocator
	}
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    aws.String(key),
	})
	return err
}
