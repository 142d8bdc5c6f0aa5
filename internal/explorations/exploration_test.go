package explorations_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/JaimeStill/tally/internal/explorations"
)

func loadFixtures(t *testing.T) *explorations.Catalog {
	t.Helper()
	c, err := explorations.LoadDir("testdata")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return c
}

func TestLoadDir(t *testing.T) {
	c := loadFixtures(t)
	ctx := context.Background()

	ids, err := c.IDs(ctx)
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if !slices.Equal(ids, []string{"exp_fractions"}) {
		t.Errorf("IDs() = %v, want [exp_fractions]", ids)
	}

	latest, err := c.Get(ctx, "exp_fractions")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if latest.Version != 2 {
		t.Errorf("Get().Version = %d, want 2", latest.Version)
	}

	v1, err := c.GetVersion(ctx, "exp_fractions", 1)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if len(v1.States) != 2 {
		t.Errorf("len(v1.States) = %d, want 2", len(v1.States))
	}

	if _, err := c.GetVersion(ctx, "exp_fractions", 3); !errors.Is(err, explorations.ErrNotFound) {
		t.Errorf("GetVersion(3) err = %v, want ErrNotFound", err)
	}
	if _, err := c.Get(ctx, "missing"); !errors.Is(err, explorations.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestGetManySkipsUnknown(t *testing.T) {
	c := loadFixtures(t)

	got, err := c.GetMany(context.Background(), []string{"exp_fractions", "missing"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 1 || got["exp_fractions"] == nil {
		t.Errorf("GetMany() = %v, want only exp_fractions", got)
	}
}

func TestStateNames(t *testing.T) {
	c := loadFixtures(t)
	e, _ := c.Get(context.Background(), "exp_fractions")

	want := []string{"Introduction", "End", "Halves"}
	if got := e.StateNames(); !slices.Equal(got, want) {
		t.Errorf("StateNames() = %v, want %v", got, want)
	}
}

func TestInteractionID(t *testing.T) {
	c := loadFixtures(t)
	e, _ := c.Get(context.Background(), "exp_fractions")

	tests := []struct {
		state string
		want  string
	}{
		{"Introduction", "TextInput"},
		{"Halves", "MultipleChoiceInput"},
		{"End", "EndExploration"},
	}

	for _, tt := range tests {
		got, err := e.InteractionID(tt.state)
		if err != nil {
			t.Fatalf("InteractionID(%s): %v", tt.state, err)
		}
		if got != tt.want {
			t.Errorf("InteractionID(%s) = %s, want %s", tt.state, got, tt.want)
		}
	}

	if _, err := e.InteractionID("Nowhere"); !errors.Is(err, explorations.ErrStateNotFound) {
		t.Errorf("err = %v, want ErrStateNotFound", err)
	}
}

func TestTrainingExamples(t *testing.T) {
	c := loadFixtures(t)
	e, _ := c.Get(context.Background(), "exp_fractions")

	state := e.States["Introduction"]
	if !state.HasTrainingData() {
		t.Fatal("HasTrainingData() = false, want true")
	}

	examples := state.TrainingExamples()

	wantDocs := []string{"a half", "half of it", "fifty percent", "one third", "a third"}
	if len(examples) != len(wantDocs) {
		t.Fatalf("len(examples) = %d, want %d", len(examples), len(wantDocs))
	}

	for i, doc := range wantDocs {
		if examples[i].Doc != doc {
			t.Errorf("examples[%d].Doc = %q, want %q", i, examples[i].Doc, doc)
		}
	}

	if got := examples[2].Labels; !slices.Equal(got, []string{"0", "1"}) {
		t.Errorf("shared document labels = %v, want [0 1]", got)
	}
	if got := examples[3].Labels; !slices.Equal(got, []string{"1"}) {
		t.Errorf("examples[3].Labels = %v, want [1]", got)
	}

	halves := e.States["Halves"]
	if halves.HasTrainingData() || len(halves.TrainingExamples()) != 0 {
		t.Error("state without training data produced examples")
	}
}

func TestGroupLabel(t *testing.T) {
	for _, i := range []int{0, 1, 12} {
		got, ok := explorations.GroupIndex(explorations.GroupLabel(i))
		if !ok || got != i {
			t.Errorf("GroupIndex(GroupLabel(%d)) = %d, %v", i, got, ok)
		}
	}

	for _, label := range []string{"", "_default", "-1"} {
		if _, ok := explorations.GroupIndex(label); ok {
			t.Errorf("GroupIndex(%q) ok = true, want false", label)
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "version: 1\ninit_state_name: A\nstates:\n  A: {}\n"},
		{"zero version", "id: e\nversion: 0\ninit_state_name: A\nstates:\n  A: {}\n"},
		{"no states", "id: e\nversion: 1\ninit_state_name: A\n"},
		{"unknown init state", "id: e\nversion: 1\ninit_state_name: B\nstates:\n  A: {}\n"},
		{"reserved character", "id: e\nversion: 1\ninit_state_name: A\nstates:\n  A: {}\n  'B#1': {}\n"},
		{"malformed yaml", "id: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := explorations.Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadDirReportsBadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: e\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := explorations.LoadDir(dir); err == nil {
		t.Error("expected error for invalid exploration file")
	}
}
