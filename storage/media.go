package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MediaStore arquiva mídia recebida via webhook em um bucket S3-compatível.
// A URL de download da Meta expira em minutos; o arquivamento preserva o
// conteúdo para auditoria e para o histórico do chat.
type MediaStore struct {
	client *minio.Client
	bucket string
}

func NewMediaStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MediaStore, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MediaStore{client: cli, bucket: bucket}, nil
}

// Save grava o objeto e devolve o caminho bucket/objeto gravado.
func (s *MediaStore) Save(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", s.bucket, objectName), nil
}
