package classifier_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/JaimeStill/tally/pkg/classifier"
)

func TestDefaultRegistryIDs(t *testing.T) {
	got := classifier.NewDefaultRegistry().IDs()
	want := []string{
		classifier.LDAStringClassifierID,
		classifier.NaiveBayesStringClassifierID,
	}

	if !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
}

func TestRegistryNew(t *testing.T) {
	reg := classifier.NewDefaultRegistry()

	t.Run("known id", func(t *testing.T) {
		m, err := reg.New(classifier.LDAStringClassifierID)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if m.AlgorithmID() != classifier.LDAStringClassifierID {
			t.Errorf("AlgorithmID() = %s", m.AlgorithmID())
		}
		if m.SchemaVersion() < 1 {
			t.Errorf("SchemaVersion() = %d, want positive", m.SchemaVersion())
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := reg.New("abc")
		if !errors.Is(err, classifier.ErrUnknownAlgorithm) {
			t.Errorf("err = %v, want ErrUnknownAlgorithm", err)
		}
	})

	t.Run("load unknown id", func(t *testing.T) {
		_, err := reg.Load("abc", map[string]any{})
		if !errors.Is(err, classifier.ErrUnknownAlgorithm) {
			t.Errorf("err = %v, want ErrUnknownAlgorithm", err)
		}
	})
}

func TestRegistryRegister(t *testing.T) {
	reg := classifier.NewRegistry()
	ctor := func() classifier.Model { return classifier.NewNaiveBayes() }

	if err := reg.Register("custom", ctor); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Has("custom") {
		t.Error("Has(custom) = false after Register")
	}
	if err := reg.Register("custom", ctor); err == nil {
		t.Error("expected error registering duplicate id")
	}
	if err := reg.Register("", ctor); err == nil {
		t.Error("expected error registering empty id")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Error("expected error registering nil constructor")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		doc  string
		want []string
	}{
		{"", []string{}},
		{"Red", []string{"red"}},
		{"one half, one-third!", []string{"one", "half", "one", "third"}},
		{"  x=2y  ", []string{"x", "2y"}},
		{"Ünïcode Wörds", []string{"ünïcode", "wörds"}},
	}

	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			got := classifier.Tokenize(tt.doc)
			if len(got) != len(tt.want) || (len(got) > 0 && !slices.Equal(got, tt.want)) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.doc, got, tt.want)
			}
		})
	}
}
