// Package db stores transcript chunk embeddings in SurrealDB over an
// auto-reconnecting websocket.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// WebSocket upgrades fail when ALPN negotiates HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
	Dimension int
}

// Client wraps a SurrealDB connection with auto-reconnect.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger *slog.Logger
}

// NewClient dials SurrealDB, signs in and selects the namespace and database.
// ctx bounds the initial connect only; reconnects run in the background.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())
	codec := surrealcbor.New()

	// gorillaws appends /rpc itself.
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	log.Debug("connecting to surrealdb", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	log.Info("surrealdb connection established",
		"namespace", cfg.Namespace,
		"database", cfg.Database,
	)
	return &Client{conn: conn, db: db, cfg: cfg, logger: log}, nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Debug("closing surrealdb connection")
	return c.conn.Close(ctx)
}

// InitSchema defines the chunk table and its indexes.
func (c *Client) InitSchema(ctx context.Context) error {
	if c.cfg.Dimension <= 0 {
		return fmt.Errorf("init schema: invalid dimension %d", c.cfg.Dimension)
	}
	if _, err := surrealdb.Query[any](ctx, c.db, schemaSQL(c.cfg.Dimension), nil); err != nil {
		return fmt.Errorf("init schema: %w", wrapQueryError(err))
	}
	c.logger.Debug("schema initialized", "dimension", c.cfg.Dimension)
	return nil
}

// WipeData deletes every chunk while keeping the schema.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all chunks", "table", chunkTable)
	if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+chunkTable, nil); err != nil {
		return fmt.Errorf("delete %s: %w", chunkTable, err)
	}
	return nil
}
