package classifier_test

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/JaimeStill/tally/pkg/classifier"
)

var colorExamples = []classifier.Example{
	{Doc: "red", Labels: []string{"color"}},
	{Doc: "red", Labels: []string{"color"}},
	{Doc: "blue", Labels: []string{"other"}},
}

func algorithms(t *testing.T) (*classifier.Registry, []string) {
	t.Helper()
	reg := classifier.NewDefaultRegistry()
	return reg, reg.IDs()
}

func trained(t *testing.T, reg *classifier.Registry, id string, examples []classifier.Example) classifier.Model {
	t.Helper()
	m, err := reg.New(id)
	if err != nil {
		t.Fatalf("New(%s): %v", id, err)
	}
	if err := m.Train(examples); err != nil {
		t.Fatalf("Train: %v", err)
	}
	return m
}

func predictOne(t *testing.T, m classifier.Model, doc string) string {
	t.Helper()
	handles, err := m.SubmitForPrediction([]string{doc})
	if err != nil {
		t.Fatalf("SubmitForPrediction: %v", err)
	}
	label, err := m.Predict(handles[0])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	return label
}

func TestPredictSurvivesSerialization(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			live := trained(t, reg, id, colorExamples)

			data, err := live.Serialize()
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}

			restored, err := reg.Load(id, data)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			for _, doc := range []string{"red", "blue", "Red!", "green", "red blue", ""} {
				want := predictOne(t, live, doc)
				got := predictOne(t, restored, doc)
				if got != want {
					t.Errorf("predict(%q): restored %q, live %q", doc, got, want)
				}
			}

			if got := predictOne(t, restored, "red"); got != "color" {
				t.Errorf("predict(red) = %q, want color", got)
			}
			if got := predictOne(t, restored, "blue"); got != "other" {
				t.Errorf("predict(blue) = %q, want other", got)
			}
		})
	}
}

func TestSerializeIsStable(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			m := trained(t, reg, id, colorExamples)
			first, err := m.Serialize()
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}

			restored, err := reg.Load(id, first)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			second, err := restored.Serialize()
			if err != nil {
				t.Fatalf("Serialize restored: %v", err)
			}

			if !reflect.DeepEqual(first, second) {
				t.Error("serialized state changed across a round trip")
			}
		})
	}
}

func TestEmptyTrainingMatchesNothing(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			m := trained(t, reg, id, nil)

			if got := predictOne(t, m, "anything at all"); got != classifier.DefaultLabel {
				t.Errorf("predict = %q, want %q", got, classifier.DefaultLabel)
			}

			if _, err := m.Serialize(); err != nil {
				t.Errorf("Serialize empty model: %v", err)
			}
		})
	}
}

func TestUnknownWordsMatchNothing(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			m := trained(t, reg, id, colorExamples)
			if got := predictOne(t, m, "purple"); got != classifier.DefaultLabel {
				t.Errorf("predict(purple) = %q, want %q", got, classifier.DefaultLabel)
			}
		})
	}
}

var groupExamples = []classifier.Example{
	{Doc: "red", Labels: []string{"0"}},
	{Doc: "crimson red", Labels: []string{"0"}},
	{Doc: "scarlet", Labels: []string{"0"}},
	{Doc: "blue", Labels: []string{"1"}},
	{Doc: "navy blue", Labels: []string{"1"}},
	{Doc: "azure", Labels: []string{"1"}},
	{Doc: "green", Labels: []string{"2"}},
	{Doc: "emerald green", Labels: []string{"2"}},
	{Doc: "lime", Labels: []string{"2"}},
}

func TestPredictsOwnTrainingDocuments(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			m := trained(t, reg, id, groupExamples)
			for _, ex := range groupExamples {
				if got := predictOne(t, m, ex.Doc); got != ex.Labels[0] {
					t.Errorf("predict(%q) = %q, want %q", ex.Doc, got, ex.Labels[0])
				}
			}
		})
	}
}

func TestLabelTiesIgnoreTrainingOrder(t *testing.T) {
	reg, ids := algorithms(t)

	tied := []classifier.Example{
		{Doc: "a", Labels: []string{"b"}},
		{Doc: "a", Labels: []string{"a"}},
	}
	orders := map[string][]classifier.Example{
		"b first": append(slices.Clone(groupExamples), tied[0], tied[1]),
		"a first": append(slices.Clone(groupExamples), tied[1], tied[0]),
	}

	for _, id := range ids {
		for name, examples := range orders {
			t.Run(id+"/"+name, func(t *testing.T) {
				m := trained(t, reg, id, examples)
				if got := predictOne(t, m, "a"); got != "a" {
					t.Errorf("predict(a) = %q, want a", got)
				}
			})
		}
	}
}

func TestLDAReordersToSameCounts(t *testing.T) {
	reg := classifier.NewDefaultRegistry()

	reversed := slices.Clone(groupExamples)
	slices.Reverse(reversed)

	a, err := trained(t, reg, classifier.LDAStringClassifierID, groupExamples).Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	b, err := trained(t, reg, classifier.LDAStringClassifierID, reversed).Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	if !reflect.DeepEqual(a["label_example_counts"], b["label_example_counts"]) {
		t.Errorf("label example counts differ: %v vs %v", a["label_example_counts"], b["label_example_counts"])
	}
	for _, doc := range []string{"crimson", "navy", "emerald", "red blue green"} {
		ma, _ := reg.Load(classifier.LDAStringClassifierID, a)
		mb, _ := reg.Load(classifier.LDAStringClassifierID, b)
		if got, want := predictOne(t, mb, doc), predictOne(t, ma, doc); got != want {
			t.Errorf("predict(%q) = %q after reordering, want %q", doc, got, want)
		}
	}
}

func TestLDAUnlabeledExamplesTrainDefault(t *testing.T) {
	reg := classifier.NewDefaultRegistry()
	examples := append(slices.Clone(groupExamples),
		classifier.Example{Doc: "maybe"},
		classifier.Example{Doc: "not sure maybe"},
	)

	m := trained(t, reg, classifier.LDAStringClassifierID, examples)
	if got := predictOne(t, m, "maybe"); got != classifier.DefaultLabel {
		t.Errorf("predict(maybe) = %q, want %q", got, classifier.DefaultLabel)
	}
	if got := predictOne(t, m, "scarlet"); got != "0" {
		t.Errorf("predict(scarlet) = %q, want 0", got)
	}
}

func TestNotReady(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			m, err := reg.New(id)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			if _, err := m.Predict(classifier.Handle{}); !errors.Is(err, classifier.ErrModelNotReady) {
				t.Errorf("Predict err = %v, want ErrModelNotReady", err)
			}
			if _, err := m.SubmitForPrediction([]string{"red"}); !errors.Is(err, classifier.ErrModelNotReady) {
				t.Errorf("SubmitForPrediction err = %v, want ErrModelNotReady", err)
			}
			if _, err := m.Serialize(); !errors.Is(err, classifier.ErrModelNotReady) {
				t.Errorf("Serialize err = %v, want ErrModelNotReady", err)
			}
		})
	}
}

func TestForeignHandle(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			a := trained(t, reg, id, colorExamples)
			b := trained(t, reg, id, colorExamples)

			handles, err := a.SubmitForPrediction([]string{"red"})
			if err != nil {
				t.Fatalf("SubmitForPrediction: %v", err)
			}

			if _, err := b.Predict(handles[0]); !errors.Is(err, classifier.ErrForeignHandle) {
				t.Errorf("Predict err = %v, want ErrForeignHandle", err)
			}
		})
	}
}

func TestRetrainInvalidatesHandles(t *testing.T) {
	reg := classifier.NewDefaultRegistry()
	m := trained(t, reg, classifier.LDAStringClassifierID, colorExamples)

	handles, err := m.SubmitForPrediction([]string{"red"})
	if err != nil {
		t.Fatalf("SubmitForPrediction: %v", err)
	}

	if err := m.Train(colorExamples[:1]); err != nil {
		t.Fatalf("Train: %v", err)
	}

	if _, err := m.Predict(handles[0]); !errors.Is(err, classifier.ErrForeignHandle) {
		t.Errorf("Predict err = %v, want ErrForeignHandle", err)
	}
}

func corpus(n int) []classifier.Example {
	topics := []struct {
		label string
		words []string
	}{
		{"fractions", []string{"half", "quarter", "numerator", "denominator", "third"}},
		{"geometry", []string{"angle", "triangle", "square", "circle", "radius"}},
		{"algebra", []string{"variable", "equation", "solve", "unknown", "term"}},
	}

	examples := make([]classifier.Example, n)
	for i := range n {
		topic := topics[i%len(topics)]
		a := topic.words[i%len(topic.words)]
		b := topic.words[(i/len(topics))%len(topic.words)]
		examples[i] = classifier.Example{
			Doc:    fmt.Sprintf("%s %s answer%d", a, b, i),
			Labels: []string{topic.label},
		}
	}
	return examples
}

func TestPrefixTraining(t *testing.T) {
	reg, ids := algorithms(t)
	examples := corpus(300)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			var previous []string
			for _, n := range []int{100, 200, 300} {
				a, err := trained(t, reg, id, examples[:n]).Serialize()
				if err != nil {
					t.Fatalf("Serialize: %v", err)
				}
				b, err := trained(t, reg, id, slices.Clone(examples[:n])).Serialize()
				if err != nil {
					t.Fatalf("Serialize: %v", err)
				}

				if !reflect.DeepEqual(a, b) {
					t.Fatalf("prefix %d: training is not reproducible", n)
				}

				words := toStrings(t, a["word_list"])
				if len(words) < len(previous) || !slices.Equal(words[:len(previous)], previous) {
					t.Fatalf("prefix %d: word ids of the shorter prefix were renumbered", n)
				}
				previous = words
			}
		})
	}
}

func TestPredictsTopics(t *testing.T) {
	reg, ids := algorithms(t)
	examples := corpus(90)

	tests := []struct {
		doc  string
		want string
	}{
		{"numerator and denominator", "fractions"},
		{"the triangle angle", "geometry"},
		{"solve the equation", "algebra"},
	}

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			m := trained(t, reg, id, examples)
			for _, tt := range tests {
				if got := predictOne(t, m, tt.doc); got != tt.want {
					t.Errorf("predict(%q) = %q, want %q", tt.doc, got, tt.want)
				}
			}
		})
	}
}

func TestConcurrentPredictions(t *testing.T) {
	reg, ids := algorithms(t)
	examples := corpus(60)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			m := trained(t, reg, id, examples)
			want := predictOne(t, m, "half quarter")

			var wg sync.WaitGroup
			errs := make(chan error, 16)
			for range 16 {
				wg.Go(func() {
					handles, err := m.SubmitForPrediction([]string{"half quarter"})
					if err != nil {
						errs <- err
						return
					}
					got, err := m.Predict(handles[0])
					if err != nil {
						errs <- err
						return
					}
					if got != want {
						errs <- fmt.Errorf("got %q, want %q", got, want)
					}
				})
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				t.Error(err)
			}
		})
	}
}

func TestDeserializeRejectsBadData(t *testing.T) {
	reg, ids := algorithms(t)

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			bad := []map[string]any{
				nil,
				{"label_list": "not a list"},
				{"label_list": []any{"a"}, "word_list": []any{"w"}, "label_word_counts": []any{}},
			}

			for i, data := range bad {
				m, err := reg.New(id)
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				if err := m.Deserialize(data); !errors.Is(err, classifier.ErrInvalidModelData) {
					t.Errorf("case %d: err = %v, want ErrInvalidModelData", i, err)
				}
			}
		})
	}
}

func toStrings(t *testing.T, v any) []string {
	t.Helper()
	items, ok := v.([]any)
	if !ok {
		t.Fatalf("word_list is %T, want []any", v)
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.(string)
	}
	return out
}

func BenchmarkTrain(b *testing.B) {
	reg := classifier.NewDefaultRegistry()
	examples := corpus(500)

	for _, id := range reg.IDs() {
		for n := 100; n <= len(examples); n += 100 {
			b.Run(fmt.Sprintf("%s/%d", id, n), func(b *testing.B) {
				for b.Loop() {
					m, _ := reg.New(id)
					if err := m.Train(examples[:n]); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkPredict(b *testing.B) {
	reg := classifier.NewDefaultRegistry()
	examples := corpus(500)
	docs := make([]string, len(examples))
	for i, ex := range examples {
		docs[i] = ex.Doc
	}

	for _, id := range reg.IDs() {
		m, _ := reg.New(id)
		if err := m.Train(examples); err != nil {
			b.Fatal(err)
		}
		data, err := m.Serialize()
		if err != nil {
			b.Fatal(err)
		}

		for n := 100; n <= len(docs); n += 100 {
			b.Run(fmt.Sprintf("%s/%d", id, n), func(b *testing.B) {
				for b.Loop() {
					restored, err := reg.Load(id, data)
					if err != nil {
						b.Fatal(err)
					}
					handles, err := restored.SubmitForPrediction(docs[:n])
					if err != nil {
						b.Fatal(err)
					}
					for _, h := range handles {
						if _, err := restored.Predict(h); err != nil {
							b.Fatal(err)
						}
					}
				}
			})
		}
	}
}
