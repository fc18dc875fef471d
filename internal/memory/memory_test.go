package memory

import (
	"context"
	"testing"

	"github.com/fusebox-ai/fusebox/internal/domain"
	"github.com/fusebox-ai/fusebox/internal/store"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestAddAndSearch(t *testing.T) {
	s := testStore(t)

	if _, err := s.Add("p1", "the staging cluster runs in eu-west-1", "infra"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("p1", "code reviews require two approvals", "process"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// New entries must be searchable after a vocabulary rebuild.
	if err := s.RebuildEmbedder(); err != nil {
		t.Fatalf("RebuildEmbedder: %v", err)
	}

	results, err := s.Search(context.Background(), "p1", "staging cluster region", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}

	top := results[0]
	if top.SourceID != domain.MemorySourceID {
		t.Errorf("source = %s, want %s", top.SourceID, domain.MemorySourceID)
	}
	if top.Kind != domain.ResultMemory {
		t.Errorf("kind = %s, want memory", top.Kind)
	}
	if top.Content != "the staging cluster runs in eu-west-1" {
		t.Errorf("top content = %q", top.Content)
	}
	if top.RawScore <= 0 || top.RawScore > 1 {
		t.Errorf("raw score = %f, want (0,1]", top.RawScore)
	}
	if top.Metadata["memoryId"] == "" || top.Metadata["category"] != "infra" {
		t.Errorf("metadata = %v", top.Metadata)
	}
}

func TestSearchProjectIsolation(t *testing.T) {
	s := testStore(t)

	if _, err := s.Add("p1", "payment service uses stripe webhooks", "infra"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.RebuildEmbedder(); err != nil {
		t.Fatalf("RebuildEmbedder: %v", err)
	}

	results, err := s.Search(context.Background(), "p2", "stripe webhooks", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len = %d, want 0 across projects", len(results))
	}
}

func TestSearchBoostsRetrieved(t *testing.T) {
	s := testStore(t)

	m, err := s.Add("p1", "the incident channel is ops-alerts", "process")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.RebuildEmbedder(); err != nil {
		t.Fatalf("RebuildEmbedder: %v", err)
	}

	if _, err := s.Search(context.Background(), "p1", "incident channel", 10, 0); err != nil {
		t.Fatalf("Search: %v", err)
	}

	got, err := s.db.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("access count = %d, want 1 after retrieval", got.AccessCount)
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	s := testStore(t)

	results, err := s.Search(context.Background(), "p1", "anything", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len = %d, want 0", len(results))
	}
}

func TestAddRequiresContent(t *testing.T) {
	s := testStore(t)

	if _, err := s.Add("p1", "", "note"); err == nil {
		t.Error("expected validation error for empty content")
	}
}

func TestSearchCancelledContext(t *testing.T) {
	s := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Search(ctx, "p1", "query", 10, 0); err == nil {
		t.Error("expected context error")
	}
}
