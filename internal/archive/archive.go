// Package archive keeps raw statement files in Google Cloud Storage after a
// successful upload. Archiving is best-effort: a failure is logged by the
// caller and never blocks ingestion.
package archive

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

const statementPrefix = "statements/"

const uploadTimeout = 2 * time.Minute

// GCS archives statements into one bucket, grouped by upload date. The
// client is created once and held; Application Default Credentials are
// assumed when no explicit credentials are configured.
type GCS struct {
	client *storage.Client
	bucket string
	log    zerolog.Logger
}

// NewGCS dials the storage client for the given bucket.
func NewGCS(ctx context.Context, bucket string, log zerolog.Logger) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: creating storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, log: log}, nil
}

// Save writes one statement file under statements/YYYY/MM/DD/<filename>.
func (g *GCS) Save(ctx context.Context, filename string, data []byte) error {
	objectName := statementPrefix + time.Now().UTC().Format("2006/01/02") + "/" + filename

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive: writing %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: finalizing %s: %w", objectName, err)
	}

	g.log.Debug().
		Str("bucket", g.bucket).
		Str("object", objectName).
		Int("bytes", len(data)).
		Msg("Statement archived")

	return nil
}

// List returns the archived statement object names, newest path last.
func (g *GCS) List(ctx context.Context) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: statementPrefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: listing objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Noop is the archiver used when no bucket is configured.
type Noop struct{}

// Save discards the statement.
func (Noop) Save(context.Context, string, []byte) error { return nil }

// List reports an empty archive.
func (Noop) List(context.Context) ([]string, error) { return nil, nil }
