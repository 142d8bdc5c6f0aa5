package answers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"

	"github.com/JaimeStill/tally/pkg/formatting"
)

// minShardSize is the smallest accepted shard bound.
const minShardSize = 64

// Log appends answers to, and reads them from, the sharded store.
type Log struct {
	store        Store
	maxShardSize int
	attempts     int
	retryBase    time.Duration
	metrics      *metrics
	logger       *slog.Logger
}

// NewLog creates a Log over store using the shard bound and retry policy from cfg.
func NewLog(store Store, cfg Config, reg prometheus.Registerer, logger *slog.Logger) (*Log, error) {
	if cfg.MaxShardBytes() < minShardSize {
		return nil, fmt.Errorf("max shard size %s below minimum %s",
			formatting.FormatBytes(int64(cfg.MaxShardBytes()), 0), formatting.FormatBytes(minShardSize, 0))
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &Log{
		store:        store,
		maxShardSize: cfg.MaxShardBytes(),
		attempts:     max(cfg.MaxAppendAttempts, 1),
		retryBase:    cfg.RetryBaseDuration(),
		metrics:      m,
		logger:       logger.With("system", "answers"),
	}, nil
}

// MaxShardSize returns the byte bound of a single shard.
func (l *Log) MaxShardSize() int {
	return l.maxShardSize
}

// Append adds answers to the end of the triple's log as one atomic step.
//
// The batch goes into the newest shard when it fits there whole; otherwise it
// starts a new shard. A batch too large for one fresh shard is split across
// consecutive new shards in order. Every answer is validated and sized before
// anything is written: an answer that cannot fit even an empty shard fails the
// whole call with ErrStorageOverflow and leaves the log unchanged.
func (l *Log) Append(ctx context.Context, t Triple, interactionID string, answers []SubmittedAnswer) error {
	if err := t.validate(); err != nil {
		return err
	}
	if len(answers) == 0 {
		return nil
	}

	encoded := make([]json.RawMessage, len(answers))
	for i := range answers {
		a := answers[i]
		if err := a.validateResolved(); err != nil {
			return fmt.Errorf("answer %d: %w", i, err)
		}
		if a.SubmittedAt.IsZero() {
			a.SubmittedAt = time.Now().UTC()
		}

		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("%w: answer %d: %v", ErrInvalidAnswer, i, err)
		}
		if arraySize(len(data), 1) > l.maxShardSize {
			l.metrics.overflows.Inc()
			return fmt.Errorf("%w: answer %d is %d bytes, shard bound is %d",
				ErrStorageOverflow, i, len(data), l.maxShardSize)
		}
		encoded[i] = data
	}

	start := time.Now()
	attempt := 0

	backoff := retry.WithMaxRetries(uint64(l.attempts-1), retry.NewFibonacci(l.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := l.store.WithTriple(ctx, t, func(tx Tx) error {
			return l.place(ctx, tx, t, interactionID, encoded)
		})
		if errors.Is(err, ErrConflict) {
			l.metrics.retries.Inc()
			l.logger.Warn("answer append lost a race",
				"triple", t.String(),
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrAppendConflict, t, attempt, err)
		}
		return fmt.Errorf("append answers %s: %w", t, err)
	}

	l.metrics.appended.Add(float64(len(answers)))
	l.metrics.appendDuration.Observe(time.Since(start).Seconds())
	return nil
}

// place decides shard placement under the triple's serialization point.
func (l *Log) place(ctx context.Context, tx Tx, t Triple, interactionID string, encoded []json.RawMessage) error {
	cur, err := tx.Cursor(ctx)
	if err != nil {
		return err
	}

	if cur == nil {
		cur = &Cursor{
			Triple:        t,
			InteractionID: interactionID,
			SchemaVersion: SchemaVersion,
			ShardIndex:    -1,
		}
	}

	if cur.ShardIndex >= 0 {
		if size := appendedSize(cur.ShardSize, encoded); size <= l.maxShardSize {
			if err := tx.AppendToShard(ctx, cur.ShardIndex, encoded, size); err != nil {
				return err
			}
			cur.ShardSize = size
			return tx.SaveCursor(ctx, cur)
		}
	}

	for _, group := range l.split(encoded) {
		cur.ShardIndex++
		cur.ShardSize = arraySize(payloadSize(group), len(group))
		if err := tx.CreateShard(ctx, cur.ShardIndex, group, cur.ShardSize); err != nil {
			return err
		}
		l.metrics.rollovers.Inc()
		l.logger.Debug("answer shard opened",
			"exp_id", t.ExpID, "state", t.StateName, "shard", cur.ShardIndex,
			"size", formatting.FormatBytes(int64(cur.ShardSize), 1))
	}

	return tx.SaveCursor(ctx, cur)
}

// split groups encoded answers, in order, into runs that each fit one empty shard.
func (l *Log) split(encoded []json.RawMessage) [][]json.RawMessage {
	var groups [][]json.RawMessage
	start, payload := 0, 0

	for i, e := range encoded {
		n := i - start
		if n > 0 && arraySize(payload+len(e), n+1) > l.maxShardSize {
			groups = append(groups, encoded[start:i])
			start, payload = i, 0
		}
		payload += len(e)
	}
	return append(groups, encoded[start:])
}

// ReadAll reconstructs the triple's answers in submission order.
// It returns nil when the triple has no log.
func (l *Log) ReadAll(ctx context.Context, t Triple) (*StateAnswers, error) {
	cur, shards, err := l.store.ReadShards(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("read shards %s: %w", t, err)
	}
	if cur == nil {
		return nil, nil
	}

	sa := &StateAnswers{
		Triple:        t,
		InteractionID: cur.InteractionID,
		SchemaVersion: cur.SchemaVersion,
		Answers:       make([]SubmittedAnswer, 0),
	}

	for i, s := range shards {
		if s.Index != i {
			return nil, fmt.Errorf("shard sequence of %s broken at index %d (found %d)", t, i, s.Index)
		}

		var batch []SubmittedAnswer
		if err := json.Unmarshal(s.Answers, &batch); err != nil {
			return nil, fmt.Errorf("decode shard %d of %s: %w", s.Index, t, err)
		}
		sa.Answers = append(sa.Answers, batch...)
	}

	return sa, nil
}

// Triples lists every triple of an exploration that has answers.
func (l *Log) Triples(ctx context.Context, expID string) ([]Triple, error) {
	return l.store.Triples(ctx, expID)
}

// arraySize is the byte length of a JSON array of n elements whose encodings total payload bytes.
func arraySize(payload, n int) int {
	if n == 0 {
		return 2
	}
	return 2 + payload + n - 1
}

func payloadSize(encoded []json.RawMessage) int {
	n := 0
	for _, e := range encoded {
		n += len(e)
	}
	return n
}

// appendedSize is the size of a shard of current bytes after appending encoded.
func appendedSize(current int, encoded []json.RawMessage) int {
	size := current + payloadSize(encoded) + len(encoded) - 1
	if current > 2 {
		size++
	}
	return size
}

func encodeArray(encoded []json.RawMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range encoded {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func appendArray(current []byte, encoded []json.RawMessage) []byte {
	if len(current) <= 2 {
		return encodeArray(encoded)
	}

	out := make([]byte, 0, appendedSize(len(current), encoded))
	out = append(out, current[:len(current)-1]...)
	for _, e := range encoded {
		out = append(out, ',')
		out = append(out, e...)
	}
	return append(out, ']')
}
