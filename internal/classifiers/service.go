package classifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/pkg/classifier"
	"github.com/JaimeStill/tally/pkg/lifecycle"
	"github.com/JaimeStill/tally/pkg/storage"
)

type loadedModel struct {
	classifierID string
	model        classifier.Model
}

type service struct {
	store      Store
	algorithms *classifier.Registry
	source     explorations.Source
	archive    storage.System
	cfg        Config
	metrics    *metrics
	logger     *slog.Logger
	trainer    *trainer

	mu     sync.RWMutex
	models map[stateKey]loadedModel
}

// New creates the classifier system. archive may be nil, in which case
// trained models are kept only in the record store.
func New(
	store Store,
	algorithms *classifier.Registry,
	source explorations.Source,
	archive storage.System,
	reg prometheus.Registerer,
	logger *slog.Logger,
	cfg Config,
) (System, error) {
	if !algorithms.Has(cfg.DefaultAlgorithm) {
		return nil, fmt.Errorf("%w: default algorithm %s", classifier.ErrUnknownAlgorithm, cfg.DefaultAlgorithm)
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	s := &service{
		store:      store,
		algorithms: algorithms,
		source:     source,
		archive:    archive,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.With("system", "classifiers"),
		models:     make(map[stateKey]loadedModel),
	}
	s.trainer = newTrainer(s, cfg.TrainingQueue, s.logger)
	return s, nil
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *service) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting classifier trainer", "queue", s.cfg.TrainingQueue)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.trainer.run(lc.Context())
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-done
		s.logger.Info("classifier trainer stopped")
	})

	return nil
}

func (s *service) Find(ctx context.Context, id string) (*Record, error) {
	return s.store.Find(ctx, id)
}

func (s *service) FindByState(ctx context.Context, expID, stateName string) (*Record, error) {
	return s.store.FindByState(ctx, expID, stateName)
}

func (s *service) Train(ctx context.Context, expID, stateName, algorithmID string) (*Record, error) {
	if algorithmID == "" {
		algorithmID = s.cfg.DefaultAlgorithm
	}

	exp, err := s.source.Get(ctx, expID)
	if err != nil {
		return nil, err
	}
	state, ok := exp.States[stateName]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", explorations.ErrStateNotFound, stateName, expID)
	}

	examples := state.TrainingExamples()
	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoTrainingData, expID, stateName)
	}

	model, err := s.algorithms.New(algorithmID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := model.Train(examples); err != nil {
		s.metrics.trainings.WithLabelValues(algorithmID, "error").Inc()
		return nil, fmt.Errorf("train %s/%s: %w", expID, stateName, err)
	}
	s.metrics.trainingDuration.WithLabelValues(algorithmID).Observe(time.Since(start).Seconds())

	data, err := model.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize model: %w", err)
	}

	r := &Record{
		ClassifierID:          NewClassifierID(expID),
		ExpID:                 expID,
		ExpVersionWhenCreated: exp.Version,
		StateName:             stateName,
		AlgorithmID:           algorithmID,
		CachedClassifierData:  data,
		DataSchemaVersion:     model.SchemaVersion(),
	}
	if err := r.Validate(s.algorithms); err != nil {
		return nil, err
	}

	superseded, err := s.store.Install(ctx, r)
	if err != nil {
		s.metrics.trainings.WithLabelValues(algorithmID, "error").Inc()
		return nil, fmt.Errorf("install classifier: %w", err)
	}
	s.metrics.trainings.WithLabelValues(algorithmID, "installed").Inc()

	s.remember(r, model)
	s.archiveRecord(ctx, r)
	if superseded != nil {
		s.removeArchive(ctx, superseded)
	}

	s.logger.Info("classifier installed",
		"classifier_id", r.ClassifierID,
		"exp_id", expID,
		"state_name", stateName,
		"algorithm_id", algorithmID,
		"examples", len(examples),
		"exp_version", exp.Version,
	)
	return r, nil
}

func (s *service) Enqueue(expID, stateName, algorithmID string) (*Job, error) {
	return s.trainer.enqueue(expID, stateName, algorithmID)
}

func (s *service) Job(id uuid.UUID) (*Job, error) {
	return s.trainer.job(id)
}

func (s *service) Classify(ctx context.Context, expID, stateName string, docs []string) ([]string, error) {
	r, err := s.store.FindByState(ctx, expID, stateName)
	if err != nil {
		return nil, err
	}

	model, err := s.load(r)
	if err != nil {
		return nil, err
	}

	handles, err := model.SubmitForPrediction(docs)
	if err != nil {
		return nil, fmt.Errorf("submit for prediction: %w", err)
	}

	labels := make([]string, len(handles))
	for i, h := range handles {
		label, err := model.Predict(h)
		if err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		labels[i] = label

		outcome := "matched"
		if label == classifier.DefaultLabel {
			outcome = "default"
		}
		s.metrics.predictions.WithLabelValues(r.AlgorithmID, outcome).Inc()
	}
	return labels, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	r, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.forget(r.ExpID, r.StateName)
	s.removeArchive(ctx, r)
	s.logger.Info("classifier deleted", "classifier_id", id)
	return nil
}

func (s *service) DeleteByExploration(ctx context.Context, expID string) error {
	removed, err := s.store.DeleteByExploration(ctx, expID)
	if err != nil {
		return err
	}

	for i := range removed {
		s.forget(removed[i].ExpID, removed[i].StateName)
		s.removeArchive(ctx, &removed[i])
	}

	s.logger.Info("exploration classifiers deleted", "exp_id", expID, "count", len(removed))
	return nil
}

// load returns the deserialized model of r, reusing the loaded copy while r stays current.
func (s *service) load(r *Record) (classifier.Model, error) {
	key := stateKey{r.ExpID, r.StateName}

	s.mu.RLock()
	cached, ok := s.models[key]
	s.mu.RUnlock()
	if ok && cached.classifierID == r.ClassifierID {
		return cached.model, nil
	}

	model, err := s.algorithms.Load(r.AlgorithmID, r.CachedClassifierData)
	if err != nil {
		return nil, fmt.Errorf("load classifier %s: %w", r.ClassifierID, err)
	}
	s.remember(r, model)
	return model, nil
}

func (s *service) remember(r *Record, model classifier.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[stateKey{r.ExpID, r.StateName}] = loadedModel{r.ClassifierID, model}
}

func (s *service) forget(expID, stateName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.models, stateKey{expID, stateName})
}

// ArchiveKey is the blob key a record's model is archived under.
func ArchiveKey(r *Record) string {
	return fmt.Sprintf("classifiers/%s/%s/%s.json", r.ExpID, r.StateName, r.ClassifierID)
}

func (s *service) archiveRecord(ctx context.Context, r *Record) {
	if s.archive == nil || !s.cfg.ArchiveModels {
		return
	}

	body, err := json.Marshal(r.ToDict())
	if err != nil {
		s.logger.Error("classifier archive encode failed", "classifier_id", r.ClassifierID, "error", err)
		return
	}

	if err := s.archive.Upload(ctx, ArchiveKey(r), bytes.NewReader(body), "application/json"); err != nil {
		s.logger.Error("classifier archive failed", "classifier_id", r.ClassifierID, "error", err)
	}
}

func (s *service) removeArchive(ctx context.Context, r *Record) {
	if s.archive == nil || !s.cfg.ArchiveModels {
		return
	}

	err := s.archive.Delete(ctx, ArchiveKey(r))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("classifier archive removal failed", "classifier_id", r.ClassifierID, "error", err)
	}
}
