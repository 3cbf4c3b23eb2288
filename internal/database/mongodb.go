package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const appName = "go-collab"

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Backoff controls ConnectWithRetry.
type Backoff struct {
	Attempts int
	Initial  time.Duration
}

// DefaultBackoff tolerates a database that starts a few seconds after us.
var DefaultBackoff = Backoff{Attempts: 5, Initial: time.Second}

// ConnectWithRetry retries ConnectMongo with doubling delays until it
// succeeds, the attempts run out or ctx is cancelled.
func ConnectWithRetry(ctx context.Context, cfg config.MongoDBConfig, b Backoff) (*mongo.Client, error) {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	delay := b.Initial
	var lastErr error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		client, err := ConnectMongo(ctx, cfg.URI, cfg.Timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, b.Attempts, err)
		if attempt == b.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("could not connect to MongoDB after %d attempts: %w", b.Attempts, lastErr)
}
