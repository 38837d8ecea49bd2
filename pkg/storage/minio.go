// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"hotel-rag-go/internal/config"
	"hotel-rag-go/pkg/log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOImageStore 把用户上传的图片保存到 MinIO。
type MinIOImageStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOImageStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIOImageStore(ctx context.Context, cfg config.MinIOConfig) (*MinIOImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}

	log.Info("MinIO 客户端初始化成功")
	return &MinIOImageStore{client: client, bucket: cfg.BucketName}, nil
}

// ObjectName 返回图片在桶内的对象名：images/<session>/<uuid>.<ext>。
func ObjectName(sessionID, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("images/%s/%s.%s", sessionID, uuid.NewString(), ext)
}

// SaveImage 上传图片并返回对象名作为历史记录中的引用。
func (s *MinIOImageStore) SaveImage(ctx context.Context, sessionID, filename string, data []byte) (string, error) {
	objectName := ObjectName(sessionID, filename)
	contentType := "image/" + strings.TrimPrefix(path.Ext(objectName), ".")
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传图片到 MinIO 失败: %w", err)
	}
	return objectName, nil
}

// PresignedURL generates a presigned URL for a stored image.
func (s *MinIOImageStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// InlineImageStore 不落盘，只记录文件名。未启用 MinIO 时使用。
type InlineImageStore struct{}

func (InlineImageStore) SaveImage(_ context.Context, _ string, filename string, _ []byte) (string, error) {
	if filename == "" {
		filename = "image"
	}
	return "inline:" + filename, nil
}
