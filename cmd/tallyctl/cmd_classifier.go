package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/tally/internal/classifiers"
	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/pkg/classifier"
)

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "train <exp-id> <state>",
		Short: "Train and install the classifier of a state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			rec, err := s.domain.Classifiers.Train(ctx, args[0], args[1], algorithm)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%s) for %s/%s\n",
				rec.ClassifierID, rec.AlgorithmID, rec.ExpID, rec.StateName)
			return nil
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "algorithm id (default from config)")
	return cmd
}

func newBenchmarkCmd() *cobra.Command {
	var (
		state     string
		algorithm string
		step      int
	)

	cmd := &cobra.Command{
		Use:   "benchmark <exploration.yaml>",
		Short: "Time training and prediction on growing prefixes of a state's training data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if step < 1 {
				return errors.New("--step must be positive")
			}

			exp, err := explorations.LoadFile(args[0])
			if err != nil {
				return err
			}
			if state == "" {
				state = exp.InitStateName
			}
			st, ok := exp.States[state]
			if !ok {
				return fmt.Errorf("%w: %s", explorations.ErrStateNotFound, state)
			}

			examples := st.TrainingExamples()
			if len(examples) == 0 {
				return fmt.Errorf("%w: %s/%s", classifiers.ErrNoTrainingData, exp.ID, state)
			}

			rows, err := benchmark(classifier.NewDefaultRegistry(), algorithm, examples, step)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PHASE\tINSTANCES\tSECONDS")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t%.6f\n", r.phase, r.n, r.elapsed.Seconds())
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "state name (default: the initial state)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "LDAStringClassifier", "algorithm id")
	cmd.Flags().IntVar(&step, "step", 100, "prefix growth per run")
	return cmd
}

type benchmarkRow struct {
	phase   string
	n       int
	elapsed time.Duration
}

func prefixSizes(total, step int) []int {
	var sizes []int
	for n := step; n < total; n += step {
		sizes = append(sizes, n)
	}
	return append(sizes, total)
}

// benchmark trains on each prefix, then predicts each prefix of the
// documents with a model trained on every example.
func benchmark(reg *classifier.Registry, algorithm string, examples []classifier.Example, step int) ([]benchmarkRow, error) {
	var rows []benchmarkRow
	sizes := prefixSizes(len(examples), step)

	var full map[string]any
	for _, n := range sizes {
		model, err := reg.New(algorithm)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		if err := model.Train(examples[:n]); err != nil {
			return nil, fmt.Errorf("train %d: %w", n, err)
		}
		data, err := model.Serialize()
		if err != nil {
			return nil, err
		}
		rows = append(rows, benchmarkRow{"train", n, time.Since(start)})
		full = data
	}

	docs := make([]string, len(examples))
	for i, e := range examples {
		docs[i] = e.Doc
	}

	for _, n := range sizes {
		model, err := reg.Load(algorithm, full)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		handles, err := model.SubmitForPrediction(docs[:n])
		if err != nil {
			return nil, err
		}
		for _, h := range handles {
			if _, err := model.Predict(h); err != nil {
				return nil, fmt.Errorf("predict %d: %w", n, err)
			}
		}
		rows = append(rows, benchmarkRow{"predict", n, time.Since(start)})
	}

	return rows, nil
}

func newValidateClassifierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-classifier <record.json>",
		Short: "Check a serialized classifier record and that its model loads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			reg := classifier.NewDefaultRegistry()
			rec, err := classifiers.FromJSON(data, reg)
			if err != nil {
				return describeRecordError(err)
			}

			if _, err := reg.Load(rec.AlgorithmID, rec.CachedClassifierData); err != nil {
				return fmt.Errorf("model data: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "valid: %s (%s, schema %d) for %s/%s\n",
				rec.ClassifierID, rec.AlgorithmID, rec.DataSchemaVersion, rec.ExpID, rec.StateName)
			return nil
		},
	}
}

func describeRecordError(err error) error {
	var terr *classifiers.TypeKindError
	var verr *classifiers.ValidationError
	switch {
	case errors.As(err, &terr):
		return fmt.Errorf("wrong kind for %s: want %s, got %s", terr.Field, terr.Want, terr.Got)
	case errors.As(err, &verr):
		return fmt.Errorf("invalid %s: %s", verr.Field, verr.Reason)
	default:
		return err
	}
}
