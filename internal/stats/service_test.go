package stats_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/classifiers"
	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/internal/stats"
	"github.com/JaimeStill/tally/pkg/classifier"
	"github.com/JaimeStill/tally/pkg/lifecycle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quizExploration(id string, version int) *explorations.Exploration {
	return &explorations.Exploration{
		ID:            id,
		Version:       version,
		InitStateName: "Question",
		States: map[string]explorations.State{
			"Question": {Interaction: explorations.Interaction{
				ID: "TextInput",
				AnswerGroups: []explorations.AnswerGroup{
					{Outcome: explorations.Outcome{Dest: "Choice"}},
					{Outcome: explorations.Outcome{Dest: "Question"}},
				},
			}},
			"Choice": {Interaction: explorations.Interaction{
				ID: "MultipleChoiceInput",
				AnswerGroups: []explorations.AnswerGroup{
					{Outcome: explorations.Outcome{Dest: "End"}},
				},
			}},
			"End": {Interaction: explorations.Interaction{}},
		},
	}
}

// fakeClassifier maps documents to labels; unknown documents get the default label.
type fakeClassifier struct {
	labels map[string]string
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, expID, stateName string, docs []string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, len(docs))
	for i, d := range docs {
		label, ok := f.labels[d]
		if !ok {
			label = classifier.DefaultLabel
		}
		out[i] = label
	}
	return out, nil
}

type fixture struct {
	sys     stats.System
	store   stats.Store
	log     *answers.Log
	catalog *explorations.Catalog
}

func newFixture(t *testing.T, store stats.Store, c stats.Classifier) fixture {
	t.Helper()

	catalog, err := explorations.NewCatalog(
		quizExploration("exp_quiz", 1),
		quizExploration("exp_quiz", 2),
		quizExploration("exp_other", 1),
	)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	answerCfg := answers.Config{MaxShardSize: "1KB", RetryBase: "1ms"}
	if err := answerCfg.Finalize(nil); err != nil {
		t.Fatalf("answers Finalize: %v", err)
	}
	reg := prometheus.NewRegistry()
	log, err := answers.NewLog(answers.NewMemoryStore(), answerCfg, reg, discardLogger())
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}

	cfg := stats.Config{AggregateInterval: "1h", EventBatch: 3}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("stats Finalize: %v", err)
	}

	if store == nil {
		store = stats.NewMemoryStore()
	}

	sys, err := stats.New(log, catalog, store, c, reg, discardLogger(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return fixture{sys: sys, store: store, log: log, catalog: catalog}
}

func (f fixture) exploration(t *testing.T, id string, version int) *explorations.Exploration {
	t.Helper()
	exp, err := f.catalog.GetVersion(context.Background(), id, version)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	return exp
}

func submitted(value any, category string) answers.SubmittedAnswer {
	return answers.SubmittedAnswer{
		Answer:                       value,
		ClassificationCategorization: category,
		SessionID:                    "session-1",
		TimeSpentInSec:               2,
	}
}

func (f fixture) record(t *testing.T, exp *explorations.Exploration, state, category string, values ...any) {
	t.Helper()
	list := make([]answers.SubmittedAnswer, len(values))
	for i, v := range values {
		list[i] = submitted(v, category)
	}
	if err := f.sys.RecordAnswers(context.Background(), exp, state, list); err != nil {
		t.Fatalf("RecordAnswers: %v", err)
	}
}

func (f fixture) aggregate(t *testing.T) *stats.PassResult {
	t.Helper()
	result, err := f.sys.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	return result
}

func format(list []stats.AnswerFrequency) string {
	out := ""
	for i, a := range list {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%v:%d", a.Answer, a.Frequency)
		if a.State != "" {
			out += "@" + a.State
		}
	}
	return out
}

func TestRecordAndReadStateAnswers(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	exp := f.exploration(t, "exp_quiz", 2)

	f.record(t, exp, "Question", answers.CategoryExplicit, "a half", "one third")

	sa, err := f.sys.GetStateAnswers(ctx, "exp_quiz", 2, "Question")
	if err != nil {
		t.Fatalf("GetStateAnswers: %v", err)
	}
	if sa == nil || len(sa.Answers) != 2 {
		t.Fatalf("GetStateAnswers = %+v, want 2 answers", sa)
	}
	if sa.InteractionID != "TextInput" {
		t.Errorf("InteractionID = %s, want TextInput", sa.InteractionID)
	}
	if sa.Answers[0].InteractionID != "TextInput" {
		t.Errorf("answer InteractionID = %s, want TextInput", sa.Answers[0].InteractionID)
	}

	missing, err := f.sys.GetStateAnswers(ctx, "exp_quiz", 1, "Question")
	if err != nil {
		t.Fatalf("GetStateAnswers: %v", err)
	}
	if missing != nil {
		t.Errorf("GetStateAnswers for unanswered version = %+v, want nil", missing)
	}
}

func TestRecordAnswerErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	exp := f.exploration(t, "exp_quiz", 1)

	err := f.sys.RecordAnswer(ctx, exp, "Nowhere", submitted("x", answers.CategoryExplicit))
	if !errors.Is(err, explorations.ErrStateNotFound) {
		t.Errorf("unknown state: err = %v, want ErrStateNotFound", err)
	}
	if got := stats.MapHTTPStatus(err); got != 404 {
		t.Errorf("MapHTTPStatus = %d, want 404", got)
	}

	bad := submitted("x", "guessed")
	err = f.sys.RecordAnswer(ctx, exp, "Question", bad)
	if !errors.Is(err, answers.ErrInvalidAnswer) {
		t.Errorf("bad category: err = %v, want ErrInvalidAnswer", err)
	}
	if got := stats.MapHTTPStatus(err); got != 400 {
		t.Errorf("MapHTTPStatus = %d, want 400", got)
	}
}

func TestRecordAnswersClassifiesPending(t *testing.T) {
	fc := &fakeClassifier{labels: map[string]string{"a half": "0", "a third": "1"}}
	f := newFixture(t, nil, fc)
	ctx := context.Background()
	exp := f.exploration(t, "exp_quiz", 2)

	list := []answers.SubmittedAnswer{
		submitted("a half", answers.CategoryPending),
		submitted("no idea", answers.CategoryPending),
		submitted("a third", answers.CategoryPending),
		submitted(42.0, answers.CategoryPending),
		submitted("exact", answers.CategoryExplicit),
	}
	if err := f.sys.RecordAnswers(ctx, exp, "Question", list); err != nil {
		t.Fatalf("RecordAnswers: %v", err)
	}
	if fc.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", fc.calls)
	}

	sa, err := f.sys.GetStateAnswers(ctx, "exp_quiz", 2, "Question")
	if err != nil {
		t.Fatalf("GetStateAnswers: %v", err)
	}

	want := []struct {
		category string
		group    int
	}{
		{answers.CategoryStatisticalClassifier, 0},
		{answers.CategoryDefaultOutcome, 2},
		{answers.CategoryStatisticalClassifier, 1},
		{answers.CategoryDefaultOutcome, 2},
		{answers.CategoryExplicit, 0},
	}
	for i, w := range want {
		got := sa.Answers[i]
		if got.ClassificationCategorization != w.category || got.AnswerGroupIndex != w.group {
			t.Errorf("answer %d = %s/%d, want %s/%d",
				i, got.ClassificationCategorization, got.AnswerGroupIndex, w.category, w.group)
		}
	}
	if list[0].ClassificationCategorization != answers.CategoryPending {
		t.Error("RecordAnswers modified the caller's slice")
	}
}

func TestRecordAnswersWithoutClassifier(t *testing.T) {
	fc := &fakeClassifier{err: fmt.Errorf("%w: exp_quiz/Question", classifiers.ErrNotFound)}
	f := newFixture(t, nil, fc)
	ctx := context.Background()
	exp := f.exploration(t, "exp_quiz", 2)

	f.record(t, exp, "Question", answers.CategoryPending, "anything")

	sa, err := f.sys.GetStateAnswers(ctx, "exp_quiz", 2, "Question")
	if err != nil {
		t.Fatalf("GetStateAnswers: %v", err)
	}
	if got := sa.Answers[0].ClassificationCategorization; got != answers.CategoryDefaultOutcome {
		t.Errorf("category = %s, want %s", got, answers.CategoryDefaultOutcome)
	}
}

func TestRecordAnswersClassifierFailure(t *testing.T) {
	fc := &fakeClassifier{err: classifier.ErrModelNotReady}
	f := newFixture(t, nil, fc)
	exp := f.exploration(t, "exp_quiz", 2)

	err := f.sys.RecordAnswer(context.Background(), exp, "Question", submitted("x", answers.CategoryPending))
	if !errors.Is(err, classifier.ErrModelNotReady) {
		t.Fatalf("RecordAnswer = %v, want ErrModelNotReady", err)
	}

	sa, _ := f.sys.GetStateAnswers(context.Background(), "exp_quiz", 2, "Question")
	if sa != nil {
		t.Error("failed classification still appended answers")
	}
}

func TestTopStateRuleAnswers(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.record(t, f.exploration(t, "exp_quiz", 1), "Question", answers.CategoryDefaultOutcome, "b", "a", "b")
	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryDefaultOutcome, "a", "c")
	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryExplicit, "x", "x", "x")

	missing, err := f.sys.GetTopStateRuleAnswers(ctx, "exp_quiz", "Question", []string{answers.CategoryDefaultOutcome})
	if err != nil {
		t.Fatalf("GetTopStateRuleAnswers: %v", err)
	}
	if missing == nil || len(missing) != 0 {
		t.Errorf("before aggregation = %v, want empty list", missing)
	}

	f.aggregate(t)

	top, err := f.sys.GetTopStateRuleAnswers(ctx, "exp_quiz", "Question", []string{answers.CategoryDefaultOutcome})
	if err != nil {
		t.Fatalf("GetTopStateRuleAnswers: %v", err)
	}
	if got, want := format(top), "b:2 a:2 c:1"; got != want {
		t.Errorf("default answers = %q, want %q", got, want)
	}

	both, err := f.sys.GetTopStateRuleAnswers(ctx, "exp_quiz", "Question",
		[]string{answers.CategoryExplicit, "unused", answers.CategoryDefaultOutcome})
	if err != nil {
		t.Fatalf("GetTopStateRuleAnswers: %v", err)
	}
	if got, want := format(both), "x:3 b:2 a:2 c:1"; got != want {
		t.Errorf("explicit then default = %q, want %q", got, want)
	}

	count, err := f.sys.CountTopStateRuleAnswers(ctx, "exp_quiz", "Question", answers.CategoryDefaultOutcome)
	if err != nil {
		t.Fatalf("CountTopStateRuleAnswers: %v", err)
	}
	if count != 5 {
		t.Errorf("CountTopStateRuleAnswers = %d, want 5", count)
	}
}

func TestTopStateRuleAnswersMultiPositional(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryDefaultOutcome, "q")
	f.record(t, f.exploration(t, "exp_other", 1), "Question", answers.CategoryDefaultOutcome, "o", "o")
	f.aggregate(t)

	refs := []stats.StateRef{
		{ExpID: "exp_other", StateName: "Question"},
		{ExpID: "exp_quiz", StateName: "Choice"},
		{ExpID: "exp_quiz", StateName: "Question"},
	}
	lists, err := f.sys.GetTopStateRuleAnswersMulti(ctx, refs, []string{answers.CategoryDefaultOutcome})
	if err != nil {
		t.Fatalf("GetTopStateRuleAnswersMulti: %v", err)
	}
	if len(lists) != 3 {
		t.Fatalf("lists = %d, want 3", len(lists))
	}

	want := []string{"o:2", "", "q:1"}
	for i, w := range want {
		if lists[i] == nil {
			t.Errorf("list %d is nil, want empty", i)
		}
		if got := format(lists[i]); got != w {
			t.Errorf("list %d = %q, want %q", i, got, w)
		}
	}
}

func TestUnresolvedAnswersForDefaultRule(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	quiz := f.exploration(t, "exp_quiz", 2)

	f.record(t, quiz, "Question", answers.CategoryDefaultOutcome, "q1", "q2", "q2")
	f.record(t, quiz, "Choice", answers.CategoryDefaultOutcome, "c1", "c1", "c1", "c2", "c3")
	f.record(t, quiz, "Choice", answers.CategoryExplicit, "resolved")
	f.record(t, f.exploration(t, "exp_other", 1), "Question", answers.CategoryExplicit, "fine")
	f.aggregate(t)

	result, err := f.sys.GetExpsUnresolvedAnswersForDefaultRule(ctx, []string{"exp_quiz", "exp_missing", "exp_other", "exp_quiz"})
	if err != nil {
		t.Fatalf("GetExpsUnresolvedAnswersForDefaultRule: %v", err)
	}

	if _, ok := result["exp_missing"]; ok {
		t.Error("unknown exploration present in result")
	}

	other, ok := result["exp_other"]
	if !ok {
		t.Fatal("exp_other missing from result")
	}
	if other.Frequency != 0 || len(other.UnresolvedAnswers) != 0 {
		t.Errorf("exp_other = %+v, want zero frequency and no answers", other)
	}

	quizResult := result["exp_quiz"]
	if got, want := format(quizResult.UnresolvedAnswers), "c1:3@Choice q2:2@Question q1:1@Question c2:1@Choice c3:1@Choice"; got != want {
		t.Errorf("unresolved = %q, want %q", got, want)
	}

	for id, entry := range result {
		sum := 0
		for i, a := range entry.UnresolvedAnswers {
			sum += a.Frequency
			if i > 0 && a.Frequency > entry.UnresolvedAnswers[i-1].Frequency {
				t.Errorf("%s: entry %d frequency %d above previous", id, i, a.Frequency)
			}
		}
		if sum != entry.Frequency {
			t.Errorf("%s: frequency = %d, sum of entries = %d", id, entry.Frequency, sum)
		}
	}
}

func TestExplorationStats(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	events := []stats.Event{
		{Type: stats.EventStart, ExpID: "exp_quiz", ExpVersion: 2, StateName: "Question", SessionID: "s1"},
		{Type: stats.EventStateHit, ExpID: "exp_quiz", ExpVersion: 2, StateName: "Question", SessionID: "s1", FirstVisit: true},
		{Type: stats.EventStateHit, ExpID: "exp_quiz", ExpVersion: 2, StateName: "Question", SessionID: "s1"},
		{Type: stats.EventNoAnswer, ExpID: "exp_quiz", ExpVersion: 2, StateName: "Question", SessionID: "s1"},
		{Type: stats.EventStart, ExpID: "exp_quiz", ExpVersion: 2, StateName: "Question", SessionID: "s2"},
		{Type: stats.EventStateHit, ExpID: "exp_quiz", ExpVersion: 2, StateName: "Question", SessionID: "s2", FirstVisit: true},
		{Type: stats.EventComplete, ExpID: "exp_quiz", ExpVersion: 2, StateName: "End", SessionID: "s2"},
		{Type: stats.EventStart, ExpID: "exp_quiz", ExpVersion: 1, StateName: "Question", SessionID: "s3"},
	}
	for _, e := range events {
		if _, err := f.sys.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}
	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryDefaultOutcome, "huh", "huh")

	before, err := f.sys.GetExplorationStats(ctx, "exp_quiz", 2)
	if err != nil {
		t.Fatalf("GetExplorationStats: %v", err)
	}
	if before.LastUpdated != nil || before.NumStarts != 0 {
		t.Errorf("before aggregation = %+v, want empty report", before)
	}
	if len(before.StateStats) != 3 {
		t.Errorf("state stats = %d, want 3 before aggregation", len(before.StateStats))
	}

	first := f.aggregate(t)
	if first.Events != len(events) {
		t.Errorf("events counted = %d, want %d", first.Events, len(events))
	}

	second := f.aggregate(t)
	if second.Events != 0 {
		t.Errorf("second pass counted %d events, want 0", second.Events)
	}

	report, err := f.sys.GetExplorationStats(ctx, "exp_quiz", 2)
	if err != nil {
		t.Fatalf("GetExplorationStats: %v", err)
	}
	if report.LastUpdated == nil {
		t.Error("LastUpdated = nil after aggregation")
	}
	if report.NumStarts != 2 || report.NumCompletions != 1 {
		t.Errorf("starts/completions = %d/%d, want 2/1", report.NumStarts, report.NumCompletions)
	}

	want := map[string]stats.StateStats{
		"Question": {Name: "Question", FirstEntryCount: 2, TotalEntryCount: 3, NoSubmittedAnswerCount: 1, NumDefaultAnswers: 2},
		"Choice":   {Name: "Choice"},
		"End":      {Name: "End"},
	}
	for name, w := range want {
		got, ok := report.StateStats[name]
		if !ok {
			t.Errorf("state %s missing", name)
			continue
		}
		if got != w {
			t.Errorf("state %s = %+v, want %+v", name, got, w)
		}
	}

	versions, err := f.sys.GetVersionsForExplorationStats(ctx, "exp_quiz")
	if err != nil {
		t.Fatalf("GetVersionsForExplorationStats: %v", err)
	}
	if fmt.Sprint(versions) != "[1 2]" {
		t.Errorf("versions = %v, want [1 2]", versions)
	}
}

func TestExplorationStatsUnknownExploration(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.sys.GetExplorationStats(context.Background(), "exp_missing", 1)
	if !errors.Is(err, explorations.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordEventValidation(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name  string
		event stats.Event
	}{
		{"unknown type", stats.Event{Type: "wander", ExpID: "exp_quiz", ExpVersion: 1, SessionID: "s"}},
		{"no exploration", stats.Event{Type: stats.EventStart, ExpVersion: 1, SessionID: "s"}},
		{"zero version", stats.Event{Type: stats.EventStart, ExpID: "exp_quiz", SessionID: "s"}},
		{"no session", stats.Event{Type: stats.EventStart, ExpID: "exp_quiz", ExpVersion: 1}},
		{"hit without state", stats.Event{Type: stats.EventStateHit, ExpID: "exp_quiz", ExpVersion: 1, SessionID: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sys.RecordEvent(context.Background(), tt.event)
			if !errors.Is(err, stats.ErrInvalidEvent) {
				t.Errorf("RecordEvent = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestVisualizationsInfo(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryExplicit, "a", "b", "a")

	empty, err := f.sys.GetVisualizationsInfo(ctx, "exp_quiz", "Question")
	if err != nil {
		t.Fatalf("GetVisualizationsInfo: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("before aggregation = %d visualizations, want 0", len(empty))
	}

	f.aggregate(t)

	info, err := f.sys.GetVisualizationsInfo(ctx, "exp_quiz", "Question")
	if err != nil {
		t.Fatalf("GetVisualizationsInfo: %v", err)
	}
	if len(info) != 1 || info[0].ID != "FrequencyTable" {
		t.Fatalf("visualizations = %+v, want one FrequencyTable", info)
	}

	var data []stats.AnswerFrequency
	if err := json.Unmarshal(info[0].Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got := format(data); got != "a:2 b:1" {
		t.Errorf("data = %q, want a:2 b:1", got)
	}

	choice, err := f.sys.GetVisualizationsInfo(ctx, "exp_quiz", "Choice")
	if err != nil {
		t.Fatalf("GetVisualizationsInfo: %v", err)
	}
	if len(choice) != 0 {
		t.Errorf("unanswered state = %d visualizations, want 0", len(choice))
	}

	end, err := f.sys.GetVisualizationsInfo(ctx, "exp_quiz", "End")
	if err != nil {
		t.Fatalf("GetVisualizationsInfo: %v", err)
	}
	if end == nil || len(end) != 0 {
		t.Errorf("state without interaction = %v, want empty list", end)
	}

	if _, err := f.sys.GetVisualizationsInfo(ctx, "exp_quiz", "Nowhere"); !errors.Is(err, explorations.ErrStateNotFound) {
		t.Errorf("unknown state: err = %v, want ErrStateNotFound", err)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryDefaultOutcome, "a", "a", "b")

	f.aggregate(t)
	first, _ := f.sys.GetTopStateRuleAnswers(ctx, "exp_quiz", "Question", []string{answers.CategoryDefaultOutcome})
	f.aggregate(t)
	second, _ := f.sys.GetTopStateRuleAnswers(ctx, "exp_quiz", "Question", []string{answers.CategoryDefaultOutcome})

	if format(first) != format(second) {
		t.Errorf("second pass changed output: %q then %q", format(first), format(second))
	}
	if last := f.sys.LastPass(); last == nil || last.Outputs == 0 {
		t.Errorf("LastPass = %+v, want outputs", last)
	}
}

// flakyStore fails selected writes before delegating.
type flakyStore struct {
	stats.Store
	saveConflicts int
	failOutputs   string
}

func (s *flakyStore) SaveStats(ctx context.Context, st *stats.ExplorationStats, checkpoint int64) error {
	if s.saveConflicts > 0 {
		s.saveConflicts--
		return fmt.Errorf("%w: injected", stats.ErrConflict)
	}
	return s.Store.SaveStats(ctx, st, checkpoint)
}

func (s *flakyStore) PutOutputs(ctx context.Context, outputs []stats.CalculationOutput) error {
	for _, o := range outputs {
		if o.ExpID == s.failOutputs {
			return errors.New("injected write failure")
		}
	}
	return s.Store.PutOutputs(ctx, outputs)
}

func TestAggregateRetriesCheckpointConflict(t *testing.T) {
	store := &flakyStore{Store: stats.NewMemoryStore(), saveConflicts: 1}
	f := newFixture(t, store, nil)
	ctx := context.Background()

	for range 2 {
		e := stats.Event{Type: stats.EventStart, ExpID: "exp_quiz", ExpVersion: 1, SessionID: "s"}
		if _, err := f.sys.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	result := f.aggregate(t)
	if len(result.Failed) != 0 {
		t.Fatalf("failed = %v, want none", result.Failed)
	}

	report, err := f.sys.GetExplorationStats(ctx, "exp_quiz", 1)
	if err != nil {
		t.Fatalf("GetExplorationStats: %v", err)
	}
	if report.NumStarts != 2 {
		t.Errorf("NumStarts = %d, want 2", report.NumStarts)
	}
}

func TestAggregateIsolatesFailures(t *testing.T) {
	store := &flakyStore{Store: stats.NewMemoryStore(), failOutputs: "exp_quiz"}
	f := newFixture(t, store, nil)
	ctx := context.Background()

	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryDefaultOutcome, "a")
	f.record(t, f.exploration(t, "exp_other", 1), "Question", answers.CategoryDefaultOutcome, "b")

	result := f.aggregate(t)
	if fmt.Sprint(result.Failed) != "[exp_quiz]" {
		t.Errorf("failed = %v, want [exp_quiz]", result.Failed)
	}

	other, err := f.sys.GetTopStateRuleAnswers(ctx, "exp_other", "Question", []string{answers.CategoryDefaultOutcome})
	if err != nil {
		t.Fatalf("GetTopStateRuleAnswers: %v", err)
	}
	if format(other) != "b:1" {
		t.Errorf("exp_other = %q, want b:1", format(other))
	}

	quiz, err := f.sys.GetTopStateRuleAnswers(ctx, "exp_quiz", "Question", []string{answers.CategoryDefaultOutcome})
	if err != nil {
		t.Fatalf("GetTopStateRuleAnswers: %v", err)
	}
	if len(quiz) != 0 {
		t.Errorf("failed exploration published %q", format(quiz))
	}
}

func TestSchedulerTrigger(t *testing.T) {
	f := newFixture(t, nil, nil)
	lc := lifecycle.New()

	if err := f.sys.Start(lc); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.record(t, f.exploration(t, "exp_quiz", 2), "Question", answers.CategoryDefaultOutcome, "a")

	if !f.sys.Trigger() {
		t.Fatal("Trigger = false on idle scheduler")
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.sys.LastPass() == nil {
		if time.Now().After(deadline) {
			t.Fatal("triggered pass did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := lc.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
