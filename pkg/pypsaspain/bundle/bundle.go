// Package bundle mirrors the prepared data bundle (cost tables,
// membership tables, base networks, price files) from S3-compatible
// object storage into a local directory.
package bundle

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
)

// Client downloads bundle objects from one bucket.
type Client struct {
	mc     *minio.Client
	bucket string
}

// SyncStats summarizes one Sync call.
type SyncStats struct {
	Downloaded int
	Skipped    int
	Bytes      int64
}

// NewClient validates the bundle configuration and builds the object
// storage client.
func NewClient(cfg config.BundleConfig) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("bundle endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("bundle access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bundle bucket is required")
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("init bundle client: %v", err)
	}

	return &Client{
		mc:     mc,
		bucket: bucket,
	}, nil
}

// Sync downloads every object under prefix into destDir, preserving
// the key structure below the prefix. Existing local files are kept
// when their size and content hash still match the remote object,
// unless overwrite is set.
func (c *Client) Sync(ctx context.Context, prefix, destDir string, overwrite bool) (*SyncStats, error) {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %v", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", c.bucket)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create destination directory: %v", err)
	}

	prefix = strings.TrimLeft(prefix, "/")
	stats := &SyncStats{}

	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %v", obj.Err)
		}
		if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}

		rel := strings.TrimPrefix(obj.Key, prefix)
		rel = strings.TrimLeft(rel, "/")
		if rel == "" || strings.Contains(rel, "..") {
			klog.InfoS("Warning: skipping object with unusable key", "key", obj.Key)
			continue
		}

		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if !overwrite && upToDate(target, obj) {
			klog.V(2).InfoS("Bundle file up to date", "key", obj.Key, "path", target)
			stats.Skipped++
			continue
		}

		if err := c.mc.FGetObject(ctx, c.bucket, obj.Key, target, minio.GetObjectOptions{}); err != nil {
			return nil, fmt.Errorf("download %s: %v", obj.Key, err)
		}

		klog.V(2).InfoS("Downloaded bundle file",
			"key", obj.Key,
			"path", target,
			"bytes", obj.Size)
		stats.Downloaded++
		stats.Bytes += obj.Size
	}

	klog.InfoS("Bundle sync complete",
		"bucket", c.bucket,
		"prefix", prefix,
		"downloaded", stats.Downloaded,
		"skipped", stats.Skipped,
		"bytes", stats.Bytes)

	return stats, nil
}

// upToDate reports whether the local file already matches the remote
// object. Sizes must agree; when the remote etag is a plain content
// hash it must match too. Multipart etags cannot be recomputed
// locally, so size alone decides for those.
func upToDate(path string, obj minio.ObjectInfo) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Size() != obj.Size {
		return false
	}

	etag := strings.Trim(obj.ETag, `"`)
	if etag == "" || strings.Contains(etag, "-") {
		return true
	}

	sum, err := fileMD5(path)
	if err != nil {
		return false
	}
	return sum == etag
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
