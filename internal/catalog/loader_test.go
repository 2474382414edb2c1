package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/studyflow/internal/catalog"
	"github.com/p-n-ai/studyflow/internal/learning"
)

const goTemplate = `id: go-basics
title: Go Basics
description: First steps with Go.
learning_level: beginner
tags: [go, programming]
topics:
  - name: Variables
    description: Declaring and using variables.
    difficulty: easy
    estimated_time: 20
    xp_reward: 50
  - name: Functions
    description: Writing functions.
    difficulty: medium
    estimated_time: 30
    xp_reward: 100
`

func setupTestCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sub := filepath.Join(dir, "programming")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(sub, "go-basics.yaml"), []byte(goTemplate), 0o644)
	os.WriteFile(filepath.Join(sub, "go-basics.syllabus.md"), []byte("# Go\n- variables\n- functions\n"), 0o644)
	return dir
}

func TestLoader_LoadTemplates(t *testing.T) {
	loader, err := catalog.NewLoader(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	all := loader.All()
	if len(all) != 1 {
		t.Fatalf("All() returned %d templates, want 1", len(all))
	}
	if all[0].TotalXP() != 150 {
		t.Errorf("TotalXP() = %d, want 150", all[0].TotalXP())
	}
}

func TestLoader_Get(t *testing.T) {
	loader, err := catalog.NewLoader(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	tmpl, found := loader.Get("go-basics")
	if !found {
		t.Fatal("Get(go-basics) not found")
	}
	if !strings.Contains(tmpl.SyllabusText, "variables") {
		t.Errorf("SyllabusText = %q, want the sibling syllabus file", tmpl.SyllabusText)
	}

	if _, found := loader.Get("NONEXISTENT"); found {
		t.Error("Get(NONEXISTENT) should not be found")
	}
}

func TestLoader_SkipsInvalid(t *testing.T) {
	dir := setupTestCatalog(t)
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [unclosed"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte("owner: someone\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "bad-level.yaml"), []byte(`id: bad
title: Bad
learning_level: expert
topics:
  - name: A
    difficulty: easy
    xp_reward: 10
`), 0o644)

	loader, err := catalog.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if n := len(loader.All()); n != 1 {
		t.Errorf("All() returned %d templates, want 1", n)
	}
}

func TestLoader_DuplicateID(t *testing.T) {
	dir := setupTestCatalog(t)
	os.WriteFile(filepath.Join(dir, "copy.yaml"), []byte(goTemplate), 0o644)

	if _, err := catalog.NewLoader(dir); err == nil {
		t.Error("NewLoader() should fail on duplicate template ids")
	}
}

func TestLoader_EmptyRoot(t *testing.T) {
	loader, err := catalog.NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader(\"\") error = %v", err)
	}
	if len(loader.All()) != 0 {
		t.Error("empty root should give an empty catalog")
	}
}

func TestLoader_MissingRoot(t *testing.T) {
	if _, err := catalog.NewLoader(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewLoader() should fail when the directory does not exist")
	}
}

func TestTemplate_Course(t *testing.T) {
	loader, _ := catalog.NewLoader(setupTestCatalog(t))
	tmpl, _ := loader.Get("go-basics")

	draft, err := tmpl.Course().Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if draft.LearningLevel != learning.LevelBeginner {
		t.Errorf("LearningLevel = %q", draft.LearningLevel)
	}
	if len(draft.Topics) != 2 || draft.Topics[1].Difficulty != learning.DifficultyMedium {
		t.Errorf("Topics = %+v", draft.Topics)
	}
	if draft.TotalXP() != 150 {
		t.Errorf("TotalXP() = %d, want 150", draft.TotalXP())
	}
}
