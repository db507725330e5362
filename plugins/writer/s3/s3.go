// Package s3 将报表写入 S3 兼容对象存储（MinIO/AWS 等）。
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"dimcode/pkg/contract"
)

// Options: 对象存储 Writer 选项。
// 密钥可直接给出，或通过 *_env 指定从环境变量读取（推荐）。
type Options struct {
	Endpoint     string `json:"endpoint"`
	Region       string `json:"region"`
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	AccessKey    string `json:"access_key"`
	AccessKeyEnv string `json:"access_key_env"`
	SecretKey    string `json:"secret_key"`
	SecretKeyEnv string `json:"secret_key_env"`
	UseSSL       bool   `json:"use_ssl"`
	ContentType  string `json:"content_type"`
}

// objectClient: 使用到的最小 minio 能力面（便于测试替换）。
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Store struct {
	client      objectClient
	bucket      string
	region      string
	prefix      string
	contentType string

	initOnce sync.Once
	initErr  error
}

var _ contract.Writer = (*Store)(nil)

// New 校验选项并构造 minio 客户端（不发起网络请求）。
func New(opts *Options) (*Store, error) {
	if opts == nil {
		return nil, fmt.Errorf("s3: %w: options required", contract.ErrInvalidInput)
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3: %w: endpoint is required", contract.ErrInvalidInput)
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3: %w: bucket is required", contract.ErrInvalidInput)
	}
	access := firstNonEmpty(opts.AccessKey, envOf(opts.AccessKeyEnv))
	secret := firstNonEmpty(opts.SecretKey, envOf(opts.SecretKeyEnv))
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3: %w: access key and secret key are required", contract.ErrInvalidInput)
	}
	region := firstNonEmpty(opts.Region, "us-east-1")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: init client: %w", err)
	}
	return newStore(client, bucket, region, opts.Prefix, opts.ContentType), nil
}

func newStore(c objectClient, bucket, region, prefix, contentType string) *Store {
	return &Store{
		client:      c,
		bucket:      bucket,
		region:      region,
		prefix:      strings.Trim(strings.TrimSpace(prefix), "/"),
		contentType: firstNonEmpty(contentType, "text/csv; charset=utf-8"),
	}
}

// Write 读取完整报表并以单个对象上传；首次写入时确保桶存在。
func (s *Store) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	key, err := s.objectKey(id)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("s3: ensure bucket: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: s.contentType,
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// objectKey: prefix + 规范化 id；禁止 '..' 逃逸与空键。
func (s *Store) objectKey(id contract.ArtifactID) (string, error) {
	k := strings.TrimLeft(string(contract.NormalizeArtifactID(string(id))), "/")
	if k == "" || k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", contract.ErrPathInvalid
	}
	if s.prefix == "" {
		return k, nil
	}
	return path.Join(s.prefix, k), nil
}

func envOf(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
