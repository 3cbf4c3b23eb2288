package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const snapshotContentType = "application/json"

// LatestKey is the object holding the most recent snapshot of a room.
func LatestKey(roomID string) string {
	return "rooms/" + roomID + "/latest.json"
}

// HistoryKey is the immutable per-save object for a room.
func HistoryKey(roomID string, at time.Time) string {
	return "rooms/" + roomID + "/snapshots/" + strconv.FormatInt(at.UnixNano(), 10) + ".json"
}

// MinIOStorage archives saved snapshots in a MinIO bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg *MinIOConfig) (*MinIOStorage, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket, now: time.Now}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Archive writes content to the room's history and replaces its latest object.
func (s *MinIOStorage) Archive(ctx context.Context, roomID string, content json.RawMessage) error {
	at := s.now()
	for _, key := range []string{HistoryKey(roomID, at), LatestKey(roomID)} {
		if err := s.put(ctx, key, content); err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
	}
	return nil
}

func (s *MinIOStorage) put(ctx context.Context, key string, content []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: snapshotContentType})
	return err
}

// Latest returns the most recent archived snapshot of a room, or
// document.ErrNotFound when nothing was archived yet.
func (s *MinIOStorage) Latest(ctx context.Context, roomID string) (json.RawMessage, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, LatestKey(roomID), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()
	// perform a stat to ensure object exists
	if _, err := obj.Stat(); err != nil {
		return nil, translate(err)
	}
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", LatestKey(roomID), err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("archived snapshot for %s is not valid JSON", roomID)
	}
	return json.RawMessage(b), nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucket)
	}
	return nil
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return document.ErrNotFound
	}
	return err
}
