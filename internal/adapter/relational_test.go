package adapter

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

func relationalFixture(t *testing.T, withTimestamps bool) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "kb.db")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	schema := "CREATE TABLE notes (content TEXT"
	if withTimestamps {
		schema += ", updated_at INTEGER"
	}
	schema += ")"
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	rows := []string{
		"rotate credentials every ninety days",
		"credentials live in the vault",
		"lunch menu for the offsite",
	}
	for i, content := range rows {
		if withTimestamps {
			ts := time.Now().Add(-time.Duration(i) * time.Hour).UnixMilli()
			if _, err := db.Exec("INSERT INTO notes (content, updated_at) VALUES (?, ?)", content, ts); err != nil {
				t.Fatalf("insert: %v", err)
			}
		} else {
			if _, err := db.Exec("INSERT INTO notes (content) VALUES (?)", content); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
	}
	return dsn
}

func TestRelationalStoreTokenRatioScoring(t *testing.T) {
	dsn := relationalFixture(t, false)

	a, err := New(domain.Source{ID: "rel", Kind: domain.KindRelationalStore,
		Config: map[string]string{"dsn": dsn, "table": "notes"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := a.Query(context.Background(), "rotate credentials", QueryOpts{Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2 (both credential rows)", len(results))
	}

	scores := map[string]float64{}
	for _, r := range results {
		scores[r.Content] = r.RawScore
	}
	if s := scores["rotate credentials every ninety days"]; s != 1.0 {
		t.Errorf("full match = %f, want 1.0", s)
	}
	if s := scores["credentials live in the vault"]; math.Abs(s-0.5) > 1e-9 {
		t.Errorf("half match = %f, want 0.5", s)
	}
}

func TestRelationalStoreTimestampColumn(t *testing.T) {
	dsn := relationalFixture(t, true)

	a, _ := New(domain.Source{ID: "rel", Kind: domain.KindRelationalStore,
		Config: map[string]string{"dsn": dsn, "table": "notes", "content_column": "content", "timestamp_column": "updated_at"}})

	results, err := a.Query(context.Background(), "credentials", QueryOpts{Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	for _, r := range results {
		if r.Timestamp.IsZero() {
			t.Error("timestamp column not mapped")
		}
	}
}

func TestRelationalStoreRejectsBadIdentifiers(t *testing.T) {
	tests := []map[string]string{
		{"dsn": "/x.db", "table": "notes; DROP TABLE notes"},
		{"dsn": "/x.db", "table": "notes", "content_column": "body--"},
		{"dsn": "/x.db", "table": "notes", "timestamp_column": "1starts_with_digit"},
	}
	for _, config := range tests {
		if _, err := New(domain.Source{ID: "rel", Kind: domain.KindRelationalStore, Config: config}); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("config %v: err = %v, want ErrValidation", config, err)
		}
	}
}

func TestRelationalStoreProbe(t *testing.T) {
	dsn := relationalFixture(t, false)

	a, _ := New(domain.Source{ID: "rel", Kind: domain.KindRelationalStore,
		Config: map[string]string{"dsn": dsn, "table": "notes"}})

	probe, err := a.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if !probe.Connected {
		t.Fatalf("probe = %+v, want connected", probe)
	}
}

func TestRelationalStoreProbeMissingTable(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Touch the file so the sqlite driver can open it read-write later.
	if _, err := db.Exec("CREATE TABLE unrelated (x INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	db.Close()

	a, _ := New(domain.Source{ID: "rel", Kind: domain.KindRelationalStore,
		Config: map[string]string{"dsn": dsn, "table": "notes"}})

	probe, err := a.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if probe.Connected {
		t.Error("probe connected with a missing table")
	}
}

func TestRelationalStoreEmptyQueryTokens(t *testing.T) {
	dsn := relationalFixture(t, false)

	a, _ := New(domain.Source{ID: "rel", Kind: domain.KindRelationalStore,
		Config: map[string]string{"dsn": dsn, "table": "notes"}})

	results, err := a.Query(context.Background(), "a", QueryOpts{Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len = %d, want 0 for an untokenizable query", len(results))
	}
}
