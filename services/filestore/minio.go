package filestore

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type minioStorage struct {
	client *minio.Client
	bucket string
}

var _ core.FileStorage = (*minioStorage)(nil)

// NewMinioStorage connects to the configured server and creates the bucket if needed.
func NewMinioStorage(ctx context.Context, conf core.MinioConfig) (*minioStorage, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating minio client")
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "checking bucket")
	}
	if !exists {
		if err = client.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "creating bucket")
		}
	}
	return &minioStorage{client: client, bucket: conf.Bucket}, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s minioStorage) Save(ctx context.Context, key string, upload core.Upload) error {
	size := upload.Size
	if size <= 0 {
		size = -1
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, upload.Content, size, minio.PutObjectOptions{
		ContentType: upload.ContentType,
		UserMetadata: map[string]string{
			"filename": upload.Name,
		},
	})
	return errors.Wrap(err, "putting object")
}

func (s minioStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy; Stat surfaces a missing key
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "getting object")
	}
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "getting object info")
	}
	return obj, nil
}

func (s minioStorage) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return errors.Wrap(err, "removing object")
	}
	return nil
}
