package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/configs"
	"github.com/sirupsen/logrus"
)

// KeyPrefix is the folder archived videos are stored under.
const KeyPrefix = "reelpost"

// OSSConfig contains configuration for OSS
type OSSConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	BucketName      string
	Endpoint        string
	Region          string
}

// OSSConfigFromEnv copies the archive settings out of the process config.
func OSSConfigFromEnv(env configs.OSSEnv) *OSSConfig {
	return &OSSConfig{
		AccessKeyID:     env.AccessKeyID,
		AccessKeySecret: env.AccessKeySecret,
		BucketName:      env.BucketName,
		Endpoint:        env.Endpoint,
		Region:          env.Region,
	}
}

// OSSArchiver copies finished videos to Aliyun OSS.
type OSSArchiver struct {
	config *OSSConfig
	client *oss.Client
}

// NewOSSArchiver validates the credentials and builds the client.
func NewOSSArchiver(config *OSSConfig) (*OSSArchiver, error) {
	if config.AccessKeyID == "" {
		return nil, errors.Wrap(configs.ErrMissingCredential, "OSS_ACCESS_KEY_ID is required")
	}
	if config.AccessKeySecret == "" {
		return nil, errors.Wrap(configs.ErrMissingCredential, "OSS_ACCESS_KEY_SECRET is required")
	}
	if config.BucketName == "" {
		return nil, errors.Wrap(configs.ErrMissingCredential, "OSS_BUCKET_NAME is required")
	}
	if config.Endpoint == "" {
		config.Endpoint = "oss-cn-beijing.aliyuncs.com"
	}
	if config.Region == "" {
		config.Region = "cn-beijing"
	}

	cfg := oss.LoadDefaultConfig().
		WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.AccessKeySecret,
		)).
		WithRegion(config.Region).
		WithEndpoint(config.Endpoint)

	return &OSSArchiver{
		config: config,
		client: oss.NewClient(cfg),
	}, nil
}

// Archive uploads localPath under key and returns its public URL.
func (a *OSSArchiver) Archive(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to open video file")
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "failed to stat video file")
	}

	logrus.Infof("Archiving video to OSS: local_path=%s, oss_key=%s, size=%s",
		localPath, key, humanize.Bytes(uint64(stat.Size())))

	result, err := a.client.PutObject(ctx, &oss.PutObjectRequest{
		Bucket:        oss.Ptr(a.config.BucketName),
		Key:           oss.Ptr(key),
		ContentType:   oss.Ptr("video/mp4"),
		ContentLength: oss.Ptr(stat.Size()),
		Body:          f,
	})
	if err != nil {
		return "", errors.Wrap(err, "OSS upload failed")
	}

	url := PublicURL(a.config.BucketName, a.config.Endpoint, key)
	logrus.Infof("Archived video: url=%s, etag=%s", url, oss.ToString(result.ETag))
	return url, nil
}

// ObjectKey builds "<prefix>/<yyyy>/<mm>/<dd>/<id><ext>".
func ObjectKey(id, localPath string, at time.Time) string {
	ext := filepath.Ext(localPath)
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("%s/%s/%s%s", KeyPrefix, at.UTC().Format("2006/01/02"), id, strings.ToLower(ext))
}

// PublicURL is the virtual-hosted style URL of key.
func PublicURL(bucket, endpoint, key string) string {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", bucket, strings.TrimSuffix(endpoint, "/"), key)
}
