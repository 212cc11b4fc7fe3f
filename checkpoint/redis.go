package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"marketbrief/config"
	"marketbrief/types"
)

const (
	runKeyPrefix  = "marketbrief:run:"
	latestRunKey  = "marketbrief:run:latest"
	metaField     = "meta"
	compField     = "comprehensive"
	stageFieldPre = "stage:"
)

// ErrRunNotFound is returned when a run ID has no state in the store.
var ErrRunNotFound = errors.New("run not found")

// RedisConfig configures the Redis checkpoint store connection.
type RedisConfig struct {
	Addr     string // e.g. localhost:6379
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore implements Store on a Redis hash per run: one field per stage,
// one for the run header, one for the synthesis record. Each write touches
// a single field, which gives the per-(runID, stageKey) upsert semantics
// the orchestrator relies on.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// runMeta is the run header persisted separately from stage records.
type runMeta struct {
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	HeadlineCount int       `json:"headline_count"`
}

// NewRedisStoreFromEnv creates a RedisStore using environment variables
// REDIS_ADDR, REDIS_PASS, REDIS_DB (optional) and CHECKPOINT_TTL_SECONDS
// (optional).
func NewRedisStoreFromEnv() (*RedisStore, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	ttl := config.CheckpointTTL
	if v := os.Getenv("CHECKPOINT_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}
	return NewRedisStore(RedisConfig{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db, TTL: ttl})
}

// NewRedisStore creates a RedisStore and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = config.CheckpointTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// CreateRun persists the run header and points the latest-run key at it.
func (s *RedisStore) CreateRun(ctx context.Context, initial *types.RunState) (string, error) {
	if initial.RunID == "" {
		initial.RunID = uuid.NewString()
	}
	meta := runMeta{
		RunID:         initial.RunID,
		GeneratedAt:   initial.GeneratedAt,
		WindowStart:   initial.WindowStart,
		WindowEnd:     initial.WindowEnd,
		HeadlineCount: initial.HeadlineCount,
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal run meta: %w", err)
	}

	key := runKeyPrefix + initial.RunID
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, metaField, payload)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Set(ctx, latestRunKey, initial.RunID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create run %s: %w", initial.RunID, err)
	}

	for stageKey, rec := range initial.Stages {
		if err := s.UpdateStage(ctx, initial.RunID, stageKey, rec); err != nil {
			return "", err
		}
	}
	return initial.RunID, nil
}

// UpdateStage upserts a single stage field on the run hash.
func (s *RedisStore) UpdateStage(ctx context.Context, runID, stageKey string, rec *types.StageRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal stage %s: %w", stageKey, err)
	}
	if err := s.client.HSet(ctx, runKeyPrefix+runID, stageFieldPre+stageKey, payload).Err(); err != nil {
		return fmt.Errorf("update stage %s for run %s: %w", stageKey, runID, err)
	}
	return nil
}

// UpdateComprehensive upserts the synthesis record field on the run hash.
func (s *RedisStore) UpdateComprehensive(ctx context.Context, runID string, rec *types.ComprehensiveRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal comprehensive record: %w", err)
	}
	if err := s.client.HSet(ctx, runKeyPrefix+runID, compField, payload).Err(); err != nil {
		return fmt.Errorf("update comprehensive for run %s: %w", runID, err)
	}
	return nil
}

// GetRun assembles a RunState from the run hash fields.
func (s *RedisStore) GetRun(ctx context.Context, runID string) (*types.RunState, error) {
	fields, err := s.client.HGetAll(ctx, runKeyPrefix+runID).Result()
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if len(fields) == 0 {
		return nil, ErrRunNotFound
	}

	run := &types.RunState{Stages: make(map[string]*types.StageRecord)}
	for field, raw := range fields {
		switch {
		case field == metaField:
			var meta runMeta
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return nil, fmt.Errorf("decode run meta for %s: %w", runID, err)
			}
			run.RunID = meta.RunID
			run.GeneratedAt = meta.GeneratedAt
			run.WindowStart = meta.WindowStart
			run.WindowEnd = meta.WindowEnd
			run.HeadlineCount = meta.HeadlineCount
		case field == compField:
			var rec types.ComprehensiveRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("decode comprehensive record for %s: %w", runID, err)
			}
			run.Comprehensive = &rec
		case strings.HasPrefix(field, stageFieldPre):
			var rec types.StageRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("decode stage %s for %s: %w", field, runID, err)
			}
			run.Stages[strings.TrimPrefix(field, stageFieldPre)] = &rec
		}
	}
	if run.RunID == "" {
		run.RunID = runID
	}
	return run, nil
}

// LatestRun loads the run the latest-run pointer refers to.
func (s *RedisStore) LatestRun(ctx context.Context) (*types.RunState, bool, error) {
	runID, err := s.client.Get(ctx, latestRunKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load latest run pointer: %w", err)
	}
	run, err := s.GetRun(ctx, runID)
	if err == ErrRunNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return run, true, nil
}

// FindReusableRun returns the latest run when it is young enough and its
// synthesis has not completed.
func (s *RedisStore) FindReusableRun(ctx context.Context, maxAge time.Duration) (*types.RunState, bool, error) {
	run, ok, err := s.LatestRun(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	if !run.Reusable(time.Now(), maxAge) {
		return nil, false, nil
	}
	return run, true, nil
}

// FinalizeRun rewrites the full run state and refreshes its TTL.
func (s *RedisStore) FinalizeRun(ctx context.Context, run *types.RunState) error {
	if _, err := s.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("finalize run %s: %w", run.RunID, err)
	}
	if run.Comprehensive != nil {
		if err := s.UpdateComprehensive(ctx, run.RunID, run.Comprehensive); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
