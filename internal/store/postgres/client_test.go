package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: " postgres://x@y/z ", Host: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "db", Database: "grid", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/grid?sslmode=disable",
		},
		{
			name: "ipv6 host is bracketed",
			cfg:  ClientConfig{Host: "::1", Port: 6432, Database: "grid", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@[::1]:6432/grid?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "prices_pkey"})
	if !errors.Is(translate(dup), domain.ErrDuplicate) {
		t.Errorf("unique violation not mapped to ErrDuplicate")
	}

	other := &pgconn.PgError{Code: "57P01"}
	if errors.Is(translate(other), domain.ErrDuplicate) {
		t.Errorf("admin shutdown mapped to ErrDuplicate")
	}
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Errorf("migrations = %v, want 001_init.sql first", names)
	}
}
