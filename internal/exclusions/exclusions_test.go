package exclusions

import (
	"path/filepath"
	"testing"
)

func TestAddRemovePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")

	set, err := Load(path)
	if err != nil {
		t.Fatalf("load empty set: %v", err)
	}
	if err := set.Add("4915700000001"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := set.Add("4915700000002"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !set.Contains("4915700000001") {
		t.Fatal("expected membership after add")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Contains("4915700000002") {
		t.Fatal("expected persisted membership after reload")
	}

	if err := reloaded.Remove("4915700000002"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reloaded.Contains("4915700000002") {
		t.Fatal("expected removal to take effect")
	}

	final, err := Load(path)
	if err != nil {
		t.Fatalf("reload after remove: %v", err)
	}
	got := final.List()
	if len(got) != 1 || got[0] != "4915700000001" {
		t.Fatalf("unexpected final set: %v", got)
	}
}

func TestIdempotentMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")
	set, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := set.Add("111"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := set.Add("111"); err != nil {
		t.Fatalf("repeat add: %v", err)
	}
	if err := set.Remove("absent"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if got := set.List(); len(got) != 1 {
		t.Fatalf("expected single entry, got %v", got)
	}
}
