package analyze

import (
	"testing"

	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/fileblocks"
)

func TestCreateFromBlocks_SkipsInvalidAndMissingDescription(t *testing.T) {
	dir := t.TempDir()
	store := feature.NewFSStore(nil)

	blocks := []fileblocks.FileBlock{
		{Path: "add-dark-mode.json", Content: `{"description": "Add dark mode", "category": "frontend", "priority": 2}`},
		{Path: "not-json.json", Content: `not json at all`},
		{Path: "no-description.json", Content: `{"category": "backend"}`},
	}

	created, err := createFromBlocks(dir, store, blocks)
	if err != nil {
		t.Fatalf("createFromBlocks failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 feature created, got %d", len(created))
	}
	if created[0].Description != "Add dark mode" {
		t.Errorf("unexpected description %q", created[0].Description)
	}
	if created[0].Category != "frontend" {
		t.Errorf("unexpected category %q", created[0].Category)
	}
	if created[0].Status != feature.StatusBacklog {
		t.Errorf("expected backlog status, got %s", created[0].Status)
	}

	all, err := store.List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 persisted feature, got %d", len(all))
	}
}

func TestCreateFromBlocks_NoBlocks(t *testing.T) {
	dir := t.TempDir()
	store := feature.NewFSStore(nil)

	created, err := createFromBlocks(dir, store, nil)
	if err != nil {
		t.Fatalf("createFromBlocks failed: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no features created, got %d", len(created))
	}
}
