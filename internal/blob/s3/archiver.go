package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

const (
	KindPrices  = "prices"
	KindSpreads = "spreads"
	KindAlerts  = "alerts"

	contentTypeJSONL = "application/x-ndjson"

	// DefaultMultipartThreshold switches uploads to the multipart manager.
	DefaultMultipartThreshold int64 = 16 * 1024 * 1024
)

// PriceArchiveStore is the slice of domain.PriceStore the exporter reads.
type PriceArchiveStore interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.PriceObservation, error)
}

// SpreadArchiveStore is the slice of domain.SpreadStore the exporter reads.
type SpreadArchiveStore interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.SpreadRecord, error)
}

// AlertArchiveStore is the slice of domain.AlertStore the exporter reads.
type AlertArchiveStore interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.Alert, error)
}

// Exporter implements domain.Archiver. Each call writes one UTC day of rows
// as JSONL to archive/<kind>/<YYYY-MM-DD>.jsonl. Source rows are left in
// place.
type Exporter struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	prices  PriceArchiveStore
	spreads SpreadArchiveStore
	alerts  AlertArchiveStore
	audit   domain.AuditStore
	logger  *slog.Logger

	// MultipartThreshold is the payload size at which PutMultipart is used.
	MultipartThreshold int64
}

// NewExporter wires an Exporter. reader and audit may be nil; without a
// reader existing day files are overwritten.
func NewExporter(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	prices PriceArchiveStore,
	spreads SpreadArchiveStore,
	alerts AlertArchiveStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Exporter {
	return &Exporter{
		writer:             writer,
		reader:             reader,
		prices:             prices,
		spreads:            spreads,
		alerts:             alerts,
		audit:              audit,
		logger:             logger.With(slog.String("component", "s3_exporter")),
		MultipartThreshold: DefaultMultipartThreshold,
	}
}

// ArchivePrices exports the day's price observations.
func (e *Exporter) ArchivePrices(ctx context.Context, day time.Time) (int64, error) {
	return export(ctx, e, KindPrices, day, e.prices.ListBetween)
}

// ArchiveSpreads exports the day's spread records.
func (e *Exporter) ArchiveSpreads(ctx context.Context, day time.Time) (int64, error) {
	return export(ctx, e, KindSpreads, day, e.spreads.ListBetween)
}

// ArchiveAlerts exports the day's alerts.
func (e *Exporter) ArchiveAlerts(ctx context.Context, day time.Time) (int64, error) {
	return export(ctx, e, KindAlerts, day, e.alerts.ListBetween)
}

func export[T any](
	ctx context.Context,
	e *Exporter,
	kind string,
	day time.Time,
	list func(ctx context.Context, from, to time.Time) ([]T, error),
) (int64, error) {
	from := dayStart(day)
	to := from.AddDate(0, 0, 1)
	path := ArchivePath(kind, from)

	if e.reader != nil {
		exists, err := e.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
		}
		if exists {
			e.logger.InfoContext(ctx, "archive already present, skipping", slog.String("path", path))
			return 0, nil
		}
	}

	rows, err := list(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", kind, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	if int64(len(buf)) >= e.MultipartThreshold {
		err = e.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = e.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(rows))
	e.logger.InfoContext(ctx, "archive written",
		slog.String("path", path),
		slog.Int64("rows", count),
		slog.Int("bytes", len(buf)),
	)

	if e.audit != nil {
		if err := e.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":  path,
			"count": count,
			"day":   from.Format(time.DateOnly),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// ArchivePath is the object key for one kind and UTC day.
//
//	archive/prices/2025-01-31.jsonl
func ArchivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, dayStart(day).Format(time.DateOnly))
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// marshalJSONL writes one compact JSON document per line.
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
