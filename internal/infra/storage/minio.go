package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

// maxDocumentBytes caps what Fetch reads into memory.
const maxDocumentBytes = 64 << 20

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

func missing(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Stat returns the object size.
func (s *Store) Stat(ctx context.Context, ref string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucketName, ref, minio.StatObjectOptions{})
	if err != nil {
		if missing(err) {
			return 0, fmt.Errorf("%w: object %s", jobs.ErrMissingDependency, ref)
		}
		return 0, err
	}
	return info.Size, nil
}

// Fetch reads the whole object. A missing object is fatal for the job.
func (s *Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxDocumentBytes+1))
	if err != nil {
		if missing(err) {
			return nil, fmt.Errorf("%w: object %s", jobs.ErrMissingDependency, ref)
		}
		return nil, err
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", jobs.ErrUnsupportedFormat, ref, maxDocumentBytes)
	}
	return data, nil
}

// Upload stores a local file under key and returns the key as the file ref.
func (s *Store) Upload(ctx context.Context, localPath, key string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}

	// mimeType sederhana
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.FPutObject(ctx, s.bucketName, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Ping is used by the health check.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucketName)
	}
	return nil
}
