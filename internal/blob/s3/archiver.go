package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// multipartThreshold is the buffer size above which archives switch from a
// single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// Archiver persists swept auction snapshots to object storage as JSONL, one
// snapshot per line. Expired auctions leave the registry on every sweep; the
// archive is the only durable trace of them and their bids.
type Archiver struct {
	writer *Writer
	logger *slog.Logger
}

// NewArchiver creates an Archiver uploading through the given writer.
func NewArchiver(writer *Writer, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		logger: logger,
	}
}

// Archive serializes the snapshots to JSONL and uploads them under
// archive/auctions/, keyed by sweep time. Empty sweeps upload nothing.
func (a *Archiver) Archive(ctx context.Context, snapshots []domain.AuctionSnapshot, sweptAt time.Time) error {
	if len(snapshots) == 0 {
		return nil
	}

	buf, err := marshalJSONL(snapshots)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(sweptAt)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.InfoContext(ctx, "archiver: snapshot batch uploaded",
		slog.String("path", path),
		slog.Int("auctions", len(snapshots)),
	)
	return nil
}

// archivePath builds the S3 key for a sweep's archive file, partitioned by
// day with a nanosecond timestamp for uniqueness within the day.
//
//	archive/auctions/2025-09-01/1756702800123456789.jsonl
func archivePath(sweptAt time.Time) string {
	return fmt.Sprintf("archive/auctions/%s/%d.jsonl",
		sweptAt.UTC().Format("2006-01-02"), sweptAt.UnixNano())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
