package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/classifiers"
	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/pkg/lifecycle"
)

type service struct {
	log          *answers.Log
	source       explorations.Source
	store        Store
	classifier   Classifier
	interactions *Interactions
	aggregator   *Aggregator
	metrics      *metrics
	logger       *slog.Logger
}

// New creates the statistics system. classifier may be nil, in which case
// pending answers are recorded as default outcomes.
func New(
	log *answers.Log,
	source explorations.Source,
	store Store,
	classifier Classifier,
	reg prometheus.Registerer,
	logger *slog.Logger,
	cfg Config,
) (System, error) {
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	s := &service{
		log:          log,
		source:       source,
		store:        store,
		classifier:   classifier,
		interactions: NewInteractions(),
		metrics:      m,
		logger:       logger.With("system", "stats"),
	}
	s.aggregator = newAggregator(
		log,
		source,
		store,
		NewCalculations(cfg.TopAnswersLimit),
		s.interactions,
		cfg,
		m,
		s.logger,
	)
	return s, nil
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.source, s.logger)
}

func (s *service) Start(lc *lifecycle.Coordinator) error {
	return s.aggregator.Start(lc)
}

func (s *service) RecordAnswer(ctx context.Context, exp *explorations.Exploration, stateName string, answer answers.SubmittedAnswer) error {
	return s.RecordAnswers(ctx, exp, stateName, []answers.SubmittedAnswer{answer})
}

func (s *service) RecordAnswers(ctx context.Context, exp *explorations.Exploration, stateName string, list []answers.SubmittedAnswer) error {
	interactionID, err := exp.InteractionID(stateName)
	if err != nil {
		return err
	}

	list = slices.Clone(list)
	for i := range list {
		if list[i].InteractionID == "" {
			list[i].InteractionID = interactionID
		}
		if err := list[i].Validate(); err != nil {
			return fmt.Errorf("answer %d: %w", i, err)
		}
	}

	if err := s.resolvePending(ctx, exp, stateName, list); err != nil {
		return err
	}

	t := answers.Triple{ExpID: exp.ID, ExpVersion: exp.Version, StateName: stateName}
	if err := s.log.Append(ctx, t, interactionID, list); err != nil {
		return err
	}

	for _, a := range list {
		s.metrics.answersRecorded.WithLabelValues(a.ClassificationCategorization).Inc()
	}
	return nil
}

// resolvePending classifies pending free-text answers with the state's
// classifier. Answers it cannot place in an answer group become default outcomes.
func (s *service) resolvePending(ctx context.Context, exp *explorations.Exploration, stateName string, list []answers.SubmittedAnswer) error {
	groups := len(exp.States[stateName].Interaction.AnswerGroups)

	setDefault := func(a *answers.SubmittedAnswer) {
		a.ClassificationCategorization = answers.CategoryDefaultOutcome
		a.AnswerGroupIndex = groups
		a.RuleSpecIndex = 0
	}

	var pending []int
	var docs []string
	for i := range list {
		if list[i].ClassificationCategorization != answers.CategoryPending {
			continue
		}
		doc, ok := list[i].Answer.(string)
		if !ok || s.classifier == nil {
			setDefault(&list[i])
			continue
		}
		pending = append(pending, i)
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil
	}

	labels, err := s.classifier.Classify(ctx, exp.ID, stateName, docs)
	if errors.Is(err, classifiers.ErrNotFound) {
		for _, i := range pending {
			setDefault(&list[i])
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("classify pending answers: %w", err)
	}

	for j, i := range pending {
		group, ok := explorations.GroupIndex(labels[j])
		if !ok || group >= groups {
			setDefault(&list[i])
			continue
		}
		list[i].ClassificationCategorization = answers.CategoryStatisticalClassifier
		list[i].AnswerGroupIndex = group
		list[i].RuleSpecIndex = 0
	}
	return nil
}

func (s *service) GetStateAnswers(ctx context.Context, expID string, version int, stateName string) (*answers.StateAnswers, error) {
	return s.log.ReadAll(ctx, answers.Triple{ExpID: expID, ExpVersion: version, StateName: stateName})
}

func (s *service) GetExplorationStats(ctx context.Context, expID string, version int) (*ExplorationReport, error) {
	exp, err := s.source.GetVersion(ctx, expID, version)
	if errors.Is(err, explorations.ErrNotFound) {
		exp, err = s.source.Get(ctx, expID)
	}
	if err != nil {
		return nil, err
	}

	st, err := s.store.GetStats(ctx, expID, version)
	if err != nil {
		return nil, err
	}

	report := &ExplorationReport{StateStats: make(map[string]StateStats)}
	counts := map[string]StateHitCounts{}
	if st != nil {
		updated := st.LastUpdated
		report.LastUpdated = &updated
		report.NumCompletions = st.CompleteCount
		report.NumStarts = st.StartCount
		counts = st.StateHitCounts
	}

	for _, name := range exp.StateNames() {
		defaults, err := s.CountTopStateRuleAnswers(ctx, expID, name, answers.CategoryDefaultOutcome)
		if err != nil {
			return nil, err
		}

		h := counts[name]
		report.StateStats[name] = StateStats{
			Name:                   name,
			FirstEntryCount:        h.FirstEntryCount,
			TotalEntryCount:        h.TotalEntryCount,
			NoSubmittedAnswerCount: h.NoAnswerCount,
			NumDefaultAnswers:      defaults,
		}
	}

	return report, nil
}

func (s *service) GetVersionsForExplorationStats(ctx context.Context, expID string) ([]int, error) {
	return s.store.StatsVersions(ctx, expID)
}

func (s *service) GetTopStateRuleAnswers(ctx context.Context, expID, stateName string, categories []string) ([]AnswerFrequency, error) {
	lists, err := s.GetTopStateRuleAnswersMulti(ctx, []StateRef{{ExpID: expID, StateName: stateName}}, categories)
	if err != nil {
		return nil, err
	}
	return lists[0], nil
}

func (s *service) GetTopStateRuleAnswersMulti(ctx context.Context, refs []StateRef, categories []string) ([][]AnswerFrequency, error) {
	lists := make([][]AnswerFrequency, len(refs))

	for i, ref := range refs {
		lists[i] = []AnswerFrequency{}

		o, err := s.store.GetOutput(ctx, ref.ExpID, ref.StateName, TopAnswersByCategorization)
		if err != nil {
			return nil, err
		}
		if o == nil {
			continue
		}

		var byCategory CategorizedAnswers
		if err := json.Unmarshal(o.Output, &byCategory); err != nil {
			return nil, fmt.Errorf("decode %s output for %s/%s: %w", TopAnswersByCategorization, ref.ExpID, ref.StateName, err)
		}

		for _, cat := range categories {
			lists[i] = append(lists[i], byCategory[cat]...)
		}
	}

	return lists, nil
}

func (s *service) CountTopStateRuleAnswers(ctx context.Context, expID, stateName, category string) (int, error) {
	top, err := s.GetTopStateRuleAnswers(ctx, expID, stateName, []string{category})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, a := range top {
		total += a.Frequency
	}
	return total, nil
}

func (s *service) GetExpsUnresolvedAnswersForDefaultRule(ctx context.Context, expIDs []string) (map[string]*UnresolvedAnswers, error) {
	exps, err := s.source.GetMany(ctx, expIDs)
	if err != nil {
		return nil, err
	}

	var refs []StateRef
	seen := make(map[string]bool)
	for _, id := range expIDs {
		exp, ok := exps[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		for _, name := range exp.StateNames() {
			refs = append(refs, StateRef{ExpID: id, StateName: name})
		}
	}

	lists, err := s.GetTopStateRuleAnswersMulti(ctx, refs, []string{answers.CategoryDefaultOutcome})
	if err != nil {
		return nil, err
	}

	result := make(map[string]*UnresolvedAnswers)
	for i, ref := range refs {
		entry, ok := result[ref.ExpID]
		if !ok {
			entry = &UnresolvedAnswers{UnresolvedAnswers: []AnswerFrequency{}}
			result[ref.ExpID] = entry
		}
		for _, a := range lists[i] {
			a.State = ref.StateName
			entry.Frequency += a.Frequency
			entry.UnresolvedAnswers = append(entry.UnresolvedAnswers, a)
		}
	}

	for _, entry := range result {
		sortByFrequency(entry.UnresolvedAnswers)
	}
	return result, nil
}

func (s *service) GetVisualizationsInfo(ctx context.Context, expID, stateName string) ([]VisualizationInfo, error) {
	exp, err := s.source.Get(ctx, expID)
	if err != nil {
		return nil, err
	}

	interactionID, err := exp.InteractionID(stateName)
	if err != nil {
		return nil, err
	}

	info := make([]VisualizationInfo, 0)
	if interactionID == "" {
		return info, nil
	}

	visualizations := s.interactions.Visualizations(interactionID)
	data := make(map[string]json.RawMessage)

	for _, id := range s.interactions.CalculationIDs(interactionID) {
		o, err := s.store.GetOutput(ctx, expID, stateName, id)
		if err != nil {
			return nil, err
		}
		if o != nil {
			data[id] = o.Output
		}
	}

	for _, v := range visualizations {
		out, ok := data[v.CalculationID]
		if !ok {
			continue
		}
		info = append(info, VisualizationInfo{ID: v.ID, Data: out, Options: v.Options})
	}
	return info, nil
}

func (s *service) RecordEvent(ctx context.Context, e Event) (*Event, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.RecordEvent(ctx, &e); err != nil {
		return nil, err
	}
	s.metrics.eventsRecorded.WithLabelValues(string(e.Type)).Inc()
	return &e, nil
}

func (s *service) Aggregate(ctx context.Context) (*PassResult, error) {
	return s.aggregator.Run(ctx)
}

func (s *service) Trigger() bool {
	return s.aggregator.Trigger()
}

func (s *service) LastPass() *PassResult {
	return s.aggregator.Last()
}
