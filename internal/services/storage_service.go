package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const signedURLExpiry = time.Hour

type StorageService interface {
	UploadFile(ctx context.Context, file io.Reader, size int64, objectName string, contentType string) (string, error)
	GetSignedURL(ctx context.Context, objectName string) (string, error)
}

type MinioStorageService struct {
	client *minio.Client
	bucket string
}

func NewMinioStorageService(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStorageService, error) {
	client, err := minio.New(strings.TrimSpace(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStorageService{
		client: client,
		bucket: bucket,
	}, nil
}

func (s *MinioStorageService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStorageService) UploadFile(
	ctx context.Context,
	file io.Reader,
	size int64,
	objectName string,
	contentType string,
) (string, error) {
	objectName = strings.Trim(path.Clean(objectName), "/")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.client.PutObject(ctx, s.bucket, objectName, file, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}

	return objectName, nil
}

func (s *MinioStorageService) GetSignedURL(ctx context.Context, objectName string) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, signedURLExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("get signed url: %w", err)
	}
	return signed.String(), nil
}
