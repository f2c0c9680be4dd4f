package postgres

import (
	"context"
	"net/url"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// fakeRows replays fixed rows through pgx.Rows.
type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, v := range r.rows[r.i-1] {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func alertRow(pair string) []any {
	return []any{
		uuid.NewString(), pair, decimal.NewFromInt(20), decimal.RequireFromString("17.50"),
		"MEDIUM", "m", false, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestScanAlerts(t *testing.T) {
	got, err := scanAlerts(&fakeRows{rows: [][]any{alertRow("FR-DE")}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].MarketPair != domain.NewMarketPair("DE", "FR") || got[0].Priority != domain.PriorityMedium {
		t.Errorf("alerts = %+v", got)
	}

	_, err = scanAlerts(&fakeRows{rows: [][]any{alertRow("DE-FR"), alertRow("DEFR")}})
	if err == nil || !strings.Contains(err.Error(), `malformed market pair "DEFR"`) {
		t.Errorf("err = %v, want malformed pair error", err)
	}
}

func TestQueries_KeepWritesIdempotent(t *testing.T) {
	tests := []struct {
		name, query, want string
	}{
		{"price insert", insertPrice, "ON CONFLICT (market, timestamp) DO NOTHING"},
		{"spread insert", insertSpread, "ON CONFLICT (market_pair, timestamp) DO NOTHING"},
		{"latest price", latestPrices, "DISTINCT ON (market)"},
		{"latest price order", latestPrices, "ORDER BY market, timestamp DESC"},
		{"latest price window", latestPrices, "timestamp >= $1"},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.query, tt.want) {
			t.Errorf("%s query missing %q", tt.name, tt.want)
		}
	}
}

// testClient connects to INTHEGRID_TEST_POSTGRES_DSN inside a throwaway
// schema. The test is skipped when the variable is unset.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("INTHEGRID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INTHEGRID_TEST_POSTGRES_DSN not set")
	}
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		t.Skipf("INTHEGRID_TEST_POSTGRES_DSN must be a postgres:// URL")
	}
	ctx := context.Background()

	admin, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	schema := "inthegrid_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if _, err := admin.Pool().Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_, _ = admin.Pool().Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	c, err := New(ctx, ClientConfig{DSN: u.String()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestPriceStore_Postgres(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	s := NewPriceStore(c.Pool())
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	obs := func(m domain.MarketCode, ts time.Time, p string) domain.PriceObservation {
		return domain.PriceObservation{Market: m, Timestamp: ts, Price: decimal.RequireFromString(p)}
	}

	ok, err := s.Insert(ctx, obs("DE", t0, "60.00"))
	if err != nil || !ok {
		t.Fatalf("first insert = %v, %v", ok, err)
	}
	ok, err = s.Insert(ctx, obs("DE", t0, "99.00"))
	if err != nil || ok {
		t.Fatalf("duplicate insert = %v, %v; want false, nil", ok, err)
	}

	n, err := s.InsertBatch(ctx, []domain.PriceObservation{
		obs("DE", t0, "61.00"),
		obs("DE", t0.Add(time.Minute), "62.00"),
		obs("FR", t0.Add(-time.Hour), "80.00"),
		obs("FR", t0.Add(time.Minute), "81.00"),
	})
	if err != nil || n != 3 {
		t.Fatalf("batch = %d, %v; want 3 new rows", n, err)
	}

	latest, err := s.LatestPerMarket(ctx, nil, t0)
	if err != nil {
		t.Fatal(err)
	}
	got := map[domain.MarketCode]string{}
	for _, o := range latest {
		got[o.Market] = o.Price.StringFixed(2)
	}
	if len(got) != 2 || got["DE"] != "62.00" || got["FR"] != "81.00" {
		t.Errorf("latest = %v", got)
	}

	only, err := s.LatestPerMarket(ctx, []domain.MarketCode{"FR"}, t0)
	if err != nil || len(only) != 1 || only[0].Market != "FR" {
		t.Errorf("filtered latest = %+v, %v", only, err)
	}

	stored, err := s.ListBetween(ctx, t0, t0.Add(time.Minute))
	if err != nil || len(stored) != 1 || stored[0].Price.StringFixed(2) != "60.00" {
		t.Errorf("window = %+v, %v; want the original DE row", stored, err)
	}
}

func TestSpreadAndAlertStores_Postgres(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	spreads := NewSpreadStore(c.Pool())
	alerts := NewAlertStore(c.Pool())
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	rec := domain.SpreadRecord{
		MarketPair:       domain.NewMarketPair("FR", "DE"),
		Timestamp:        t0,
		Spread:           decimal.NewFromInt(20),
		NetOpportunity:   decimal.RequireFromString("17.50"),
		TransmissionCost: decimal.RequireFromString("2.50"),
		LowMarket:        "DE",
		LowPrice:         decimal.NewFromInt(60),
		HighMarket:       "FR",
		HighPrice:        decimal.NewFromInt(80),
	}
	for i, want := range []bool{true, false} {
		ok, err := spreads.Insert(ctx, rec)
		if err != nil || ok != want {
			t.Fatalf("insert %d = %v, %v; want %v", i, ok, err, want)
		}
	}
	rec.Timestamp = t0.Add(10 * time.Second)
	if _, err := spreads.Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	maxID, err := spreads.MaxID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	after, err := spreads.ListAfter(ctx, 0, 10)
	if err != nil || len(after) != 2 || after[1].ID != maxID || after[0].ID >= after[1].ID {
		t.Fatalf("ListAfter = %+v, %v", after, err)
	}
	if after[0].MarketPair.String() != "DE-FR" || after[0].NetOpportunity.StringFixed(2) != "17.50" {
		t.Errorf("row = %+v", after[0])
	}

	a := domain.Alert{
		ID:             uuid.NewString(),
		MarketPair:     rec.MarketPair,
		Spread:         rec.Spread,
		NetOpportunity: rec.NetOpportunity,
		Priority:       domain.PriorityMedium,
		Message:        "m",
		CreatedAt:      t0,
	}
	if err := alerts.Insert(ctx, a); err != nil {
		t.Fatal(err)
	}
	open, err := alerts.HasUnacknowledged(ctx, a.MarketPair, t0.Add(-time.Minute))
	if err != nil || !open {
		t.Errorf("HasUnacknowledged = %v, %v; want true", open, err)
	}
	open, err = alerts.HasUnacknowledged(ctx, a.MarketPair, t0.Add(time.Minute))
	if err != nil || open {
		t.Errorf("HasUnacknowledged after window = %v, %v; want false", open, err)
	}
	listed, err := alerts.ListBetween(ctx, t0, t0.Add(time.Hour))
	if err != nil || len(listed) != 1 || listed[0].ID != a.ID {
		t.Errorf("ListBetween = %+v, %v", listed, err)
	}
}
