package registry

import (
	"errors"
	"testing"

	"github.com/fusebox-ai/fusebox/internal/domain"
	"github.com/fusebox-ai/fusebox/internal/store"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func fileSource(name string) domain.Source {
	return domain.Source{
		ID:        name,
		Name:      name,
		Kind:      domain.KindFileTree,
		Config:    map[string]string{"root": "/tmp/docs"},
		Priority:  1,
		Enabled:   true,
		ProjectID: "p1",
	}
}

func TestAddSetsTimestamps(t *testing.T) {
	r := testRegistry(t)

	src, err := r.Add(fileSource("docs"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if src.CreatedAt.IsZero() || src.UpdatedAt.IsZero() {
		t.Error("expected timestamps set")
	}
}

func TestAddValidation(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name string
		src  domain.Source
	}{
		{"missing id", domain.Source{Name: "x", Kind: domain.KindFileTree, Config: map[string]string{"root": "/x"}}},
		{"missing name", domain.Source{ID: "x", Kind: domain.KindFileTree, Config: map[string]string{"root": "/x"}}},
		{"missing type", domain.Source{ID: "x", Name: "x"}},
		{"unknown type", domain.Source{ID: "x", Name: "x", Kind: "carrier_pigeon"}},
		{"memory type reserved", domain.Source{ID: "x", Name: "x", Kind: domain.KindMemory}},
		{"missing required config", domain.Source{ID: "x", Name: "x", Kind: domain.KindSearchEngine}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Add(tt.src); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAddDuplicateID(t *testing.T) {
	r := testRegistry(t)

	src := fileSource("docs")
	src.ID = "fixed"
	if _, err := r.Add(src); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add(src); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("duplicate add err = %v, want ErrValidation", err)
	}
}

func TestUpdatePatch(t *testing.T) {
	r := testRegistry(t)

	src, err := r.Add(fileSource("docs"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	name := "renamed"
	prio := 9
	enabled := false
	updated, err := r.Update(src.ID, domain.SourcePatch{
		Name:     &name,
		Priority: &prio,
		Enabled:  &enabled,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "renamed" || updated.Priority != 9 || updated.Enabled {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.Kind != domain.KindFileTree {
		t.Errorf("kind changed to %s", updated.Kind)
	}

	// Config replacement is re-validated against the kind.
	if _, err := r.Update(src.ID, domain.SourcePatch{Config: map[string]string{}}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("invalid config patch err = %v, want ErrValidation", err)
	}
}

func TestUpdateUnknown(t *testing.T) {
	r := testRegistry(t)

	name := "x"
	if _, err := r.Update("nope", domain.SourcePatch{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := testRegistry(t)

	src, err := r.Add(fileSource("docs"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Remove(src.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove(src.ID); err != nil {
		t.Errorf("second Remove: %v, want nil", err)
	}
	if _, ok := r.Get(src.ID); ok {
		t.Error("source still present after remove")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	r1, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src, err := r1.Add(fileSource("docs"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// A fresh registry over the same store sees the persisted source.
	r2, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, ok := r2.Get(src.ID)
	if !ok {
		t.Fatal("persisted source not loaded")
	}
	if got.Name != "docs" || got.Kind != domain.KindFileTree {
		t.Errorf("loaded = %+v", got)
	}
}

func TestSnapshotFiltersAndIsolates(t *testing.T) {
	r := testRegistry(t)

	a := fileSource("alpha")
	a.Priority = 5
	b := fileSource("beta")
	b.Priority = 1
	c := fileSource("gamma")
	c.Enabled = false
	d := fileSource("delta")
	d.ProjectID = "p2"

	for _, src := range []domain.Source{a, b, c, d} {
		if _, err := r.Add(src); err != nil {
			t.Fatalf("Add %s: %v", src.Name, err)
		}
	}

	snap := r.Snapshot("p1", true)
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
	if snap[0].Name != "alpha" || snap[1].Name != "beta" {
		t.Errorf("order = %s, %s; want alpha, beta (priority desc)", snap[0].Name, snap[1].Name)
	}

	// Mutating the snapshot must not touch registry state.
	snap[0].Config["root"] = "/elsewhere"
	got, _ := r.Get(snap[0].ID)
	if got.Config["root"] != "/tmp/docs" {
		t.Error("snapshot mutation leaked into registry")
	}

	if all := r.Snapshot("", true); len(all) != 3 {
		t.Errorf("all-projects snapshot len = %d, want 3", len(all))
	}
}

func TestSnapshotIncludesGlobalSources(t *testing.T) {
	r := testRegistry(t)

	global := fileSource("shared")
	global.ProjectID = ""
	scoped := fileSource("scoped")

	for _, src := range []domain.Source{global, scoped} {
		if _, err := r.Add(src); err != nil {
			t.Fatalf("Add %s: %v", src.Name, err)
		}
	}

	// A source with no project belongs to every project's searches.
	snap := r.Snapshot("p1", true)
	if len(snap) != 2 {
		t.Fatalf("p1 snapshot len = %d, want 2 (scoped + global)", len(snap))
	}

	other := r.Snapshot("p2", true)
	if len(other) != 1 || other[0].Name != "shared" {
		t.Errorf("p2 snapshot = %+v, want only the global source", other)
	}
}
