package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/store/memory"
)

type put struct {
	path        string
	body        []byte
	contentType string
	multipart   bool
}

type fakeWriter struct {
	puts []put
	err  error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	b, _ := io.ReadAll(data)
	w.puts = append(w.puts, put{path: path, body: b, contentType: contentType})
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	if w.err != nil {
		return w.err
	}
	b, _ := io.ReadAll(data)
	w.puts = append(w.puts, put{path: path, body: b, multipart: true})
	return nil
}

type fakeReader struct {
	existing map[string]bool
}

func (r *fakeReader) Exists(_ context.Context, path string) (bool, error) {
	return r.existing[path], nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var archiveDay = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*memory.PriceStore, *memory.SpreadStore, *memory.AlertStore) {
	t.Helper()
	ctx := context.Background()

	prices := memory.NewPriceStore()
	for _, ts := range []time.Time{archiveDay.Add(-time.Minute), archiveDay, archiveDay.Add(12 * time.Hour), archiveDay.Add(24 * time.Hour)} {
		obs, err := domain.NewPriceObservation("DE", ts, 60)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := prices.Insert(ctx, obs); err != nil {
			t.Fatal(err)
		}
	}

	spreads := memory.NewSpreadStore()
	if _, err := spreads.Insert(ctx, domain.SpreadRecord{
		MarketPair: domain.NewMarketPair("FR", "DE"),
		Timestamp:  archiveDay.Add(time.Hour),
		Spread:     decimal.RequireFromString("20"),
	}); err != nil {
		t.Fatal(err)
	}

	return prices, spreads, memory.NewAlertStore()
}

func TestArchivePath(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	got := ArchivePath(KindSpreads, time.Date(2025, 2, 1, 0, 30, 0, 0, cet))
	if got != "archive/spreads/2025-01-31.jsonl" {
		t.Errorf("ArchivePath = %s", got)
	}
}

func TestExporter_WritesOneUTCDay(t *testing.T) {
	prices, spreads, alerts := seed(t)
	audit := memory.NewAuditStore()
	w := &fakeWriter{}
	e := NewExporter(w, nil, prices, spreads, alerts, audit, quiet())

	n, err := e.ArchivePrices(context.Background(), archiveDay.Add(15*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("archived %d prices, want 2", n)
	}
	if len(w.puts) != 1 {
		t.Fatalf("%d uploads, want 1", len(w.puts))
	}
	p := w.puts[0]
	if p.path != "archive/prices/2025-01-31.jsonl" || p.contentType != contentTypeJSONL || p.multipart {
		t.Errorf("upload = %+v", p)
	}

	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(p.body))
	for sc.Scan() {
		var row domain.PriceObservation
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("%d lines, want 2", lines)
	}

	entries := audit.Entries()
	if len(entries) != 1 || entries[0].Event != "archive.prices" {
		t.Errorf("audit = %+v", entries)
	}
}

func TestExporter_SpreadRowsCarryPair(t *testing.T) {
	prices, spreads, alerts := seed(t)
	w := &fakeWriter{}
	e := NewExporter(w, nil, prices, spreads, alerts, nil, quiet())

	if _, err := e.ArchiveSpreads(context.Background(), archiveDay); err != nil {
		t.Fatal(err)
	}
	if len(w.puts) != 1 || !bytes.Contains(w.puts[0].body, []byte(`"market_pair":"DE-FR"`)) {
		t.Errorf("spread export missing pair: %+v", w.puts)
	}
}

func TestExporter_EmptyDayWritesNothing(t *testing.T) {
	prices, spreads, alerts := seed(t)
	w := &fakeWriter{}
	e := NewExporter(w, nil, prices, spreads, alerts, nil, quiet())

	n, err := e.ArchiveAlerts(context.Background(), archiveDay)
	if err != nil || n != 0 || len(w.puts) != 0 {
		t.Errorf("n=%d err=%v puts=%d", n, err, len(w.puts))
	}
}

func TestExporter_SkipsExisting(t *testing.T) {
	prices, spreads, alerts := seed(t)
	w := &fakeWriter{}
	r := &fakeReader{existing: map[string]bool{"archive/prices/2025-01-31.jsonl": true}}
	e := NewExporter(w, r, prices, spreads, alerts, nil, quiet())

	n, err := e.ArchivePrices(context.Background(), archiveDay)
	if err != nil || n != 0 || len(w.puts) != 0 {
		t.Errorf("n=%d err=%v puts=%d", n, err, len(w.puts))
	}
}

func TestExporter_LargePayloadUsesMultipart(t *testing.T) {
	prices, spreads, alerts := seed(t)
	w := &fakeWriter{}
	e := NewExporter(w, nil, prices, spreads, alerts, nil, quiet())
	e.MultipartThreshold = 1

	if _, err := e.ArchivePrices(context.Background(), archiveDay); err != nil {
		t.Fatal(err)
	}
	if len(w.puts) != 1 || !w.puts[0].multipart {
		t.Errorf("expected multipart upload, got %+v", w.puts)
	}
}

func TestExporter_UploadError(t *testing.T) {
	prices, spreads, alerts := seed(t)
	boom := errors.New("boom")
	e := NewExporter(&fakeWriter{err: boom}, nil, prices, spreads, alerts, nil, quiet())

	n, err := e.ArchivePrices(context.Background(), archiveDay)
	if !errors.Is(err, boom) || n != 0 {
		t.Errorf("n=%d err=%v", n, err)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal", true, "https://minio.internal"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}
