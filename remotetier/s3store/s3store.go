// Package s3store implements remotetier.ObjectStore over any
// S3-compatible object store, using minio-go.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tiercache/tiercache/remotetier"
)

// kindInline/kindAsset tag the one-byte header s3store prefixes every
// object with, so a Get can reconstruct which Record field (Inline or
// Asset) the bytes originally came from, even though S3 itself has no
// concept of that distinction.
const (
	kindInline byte = 0
	kindAsset  byte = 1
)

// Config configures a Store.
type Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	Secure          bool
}

// Store is a remotetier.ObjectStore backed by an S3-compatible
// object store.
type Store struct {
	client *minio.Core
	bucket string
	prefix string
}

// New returns a Store backed by a static-credential minio.Core client.
func New(cfg Config) (*Store, error) {
	client, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: new client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Store) objectKey(id string) string {
	if s.prefix == "" {
		return id
	}
	return path.Join(s.prefix, id)
}

// Get implements remotetier.ObjectStore.
func (s *Store) Get(ctx context.Context, id string) (*remotetier.Record, error) {
	obj, info, _, err := s.client.GetObject(ctx, s.bucket, s.objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, remotetier.ErrUnknownRecord
		}
		return nil, fmt.Errorf("s3store: get %s: %w", id, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("s3store: read %s: %w", id, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("s3store: empty object %s", id)
	}

	rec := decodeRecord(id, info.LastModified, body)
	return &rec, nil
}

// decodeRecord decodes the one-byte kind header this store prefixes
// every object with, and reconstructs the Record's Inline/Asset split.
func decodeRecord(id string, modTime time.Time, body []byte) remotetier.Record {
	rec := remotetier.Record{ID: id, ModTime: modTime}
	kind, payload := body[0], body[1:]
	if kind == kindAsset {
		rec.Asset = payload
	} else {
		rec.Inline = payload
	}
	return rec
}

// Put implements remotetier.ObjectStore.
func (s *Store) Put(ctx context.Context, rec *remotetier.Record) error {
	kind := kindInline
	data := rec.Inline
	if len(rec.Asset) > 0 {
		kind = kindAsset
		data = rec.Asset
	}

	body := make([]byte, 0, len(data)+1)
	body = append(body, kind)
	body = append(body, data...)

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		s.objectKey(rec.ID),
		bytes.NewReader(body),
		int64(len(body)),
		"", "",
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	if err != nil {
		if isPermissionError(err) {
			return fmt.Errorf("s3store: put %s: %w: %w", rec.ID, remotetier.ErrPermissionDenied, err)
		}
		return fmt.Errorf("s3store: put %s: %w", rec.ID, err)
	}
	return nil
}

// Delete implements remotetier.ObjectStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectKey(id), minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return remotetier.ErrUnknownRecord
		}
		return fmt.Errorf("s3store: delete %s: %w", id, err)
	}
	return nil
}

// ListIDs implements remotetier.ObjectStore.
func (s *Store) ListIDs(ctx context.Context, recordType string) ([]string, error) {
	prefix := s.objectKey(recordType + ":")

	var ids []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3store: list %s: %w", prefix, obj.Err)
		}
		key := obj.Key
		if s.prefix != "" {
			key = key[len(s.prefix)+1:]
		}
		ids = append(ids, key)
	}
	return ids, nil
}

func isPermissionError(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "AccessDenied"
}
