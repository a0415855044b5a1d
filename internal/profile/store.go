package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eda-agent/backend/internal/metrics"
	"github.com/eda-agent/backend/internal/storage/models"
	"github.com/eda-agent/backend/pkg/apperr"
	"github.com/eda-agent/backend/pkg/logger"
)

// Documents is the slice of the filesystem store the profile store needs.
type Documents interface {
	Resolve(datasetID string) (string, int64, error)
	WriteProfile(datasetID string, data []byte) error
	ReadProfile(datasetID string) ([]byte, error)
	RemoveProfile(datasetID string) error
}

// ByteCache is an optional best-effort cache for serialized profiles.
type ByteCache interface {
	GetProfile(ctx context.Context, datasetID string) ([]byte, bool, error)
	SetProfile(ctx context.Context, datasetID string, data []byte) error
	DelProfile(ctx context.Context, datasetID string) error
}

// RunRecorder persists bookkeeping about finished aggregation passes.
type RunRecorder interface {
	MarkProfiled(datasetID string, rowCount int64) error
	InsertProfileRun(run *models.ProfileRun) error
}

// Store owns finalized profiles. Concurrent GetOrCompute calls for the same
// dataset identifier serialize through a per-key single-flight group: the
// second caller waits on the first's in-flight pass and receives the same
// result. Unrelated datasets never contend.
type Store struct {
	docs     Documents
	agg      *Aggregator
	cache    ByteCache
	recorder RunRecorder

	group   singleflight.Group
	version atomic.Uint64

	mu     sync.RWMutex
	memory map[string]*DatasetProfile

	hubMu sync.Mutex
	subs  map[string][]chan Progress
}

func NewStore(docs Documents, agg *Aggregator, cache ByteCache, recorder RunRecorder) *Store {
	return &Store{
		docs:     docs,
		agg:      agg,
		cache:    cache,
		recorder: recorder,
		memory:   make(map[string]*DatasetProfile),
		subs:     make(map[string][]chan Progress),
	}
}

// GetOrCompute returns the finalized profile for the dataset, running a full
// aggregation pass only when none exists. Concurrent first requests share one
// pass; if the caller abandons the request, the in-flight pass continues and
// its result serves the next caller. No partial profile is ever published.
func (s *Store) GetOrCompute(ctx context.Context, datasetID string) (*DatasetProfile, error) {
	if _, _, err := s.docs.Resolve(datasetID); err != nil {
		return nil, err
	}

	ch := s.group.DoChan(datasetID, func() (interface{}, error) {
		// Detached context: abandonment must not waste the pass.
		bg := context.Background()

		prof, err := s.Show(bg, datasetID)
		if err == nil {
			return prof, nil
		}
		if !apperr.IsKind(err, apperr.KindNotFound) {
			logger.Warn("Stored profile unreadable, recomputing",
				zap.String("dataset", datasetID), zap.Error(err))
		}
		return s.compute(bg, datasetID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DatasetProfile), nil
	}
}

func (s *Store) compute(ctx context.Context, datasetID string) (*DatasetProfile, error) {
	start := time.Now()

	_, byteSize, err := s.docs.Resolve(datasetID)
	if err != nil {
		return nil, err
	}

	prof, err := s.agg.Run(ctx, datasetID, byteSize, func(p Progress) {
		s.publish(datasetID, p)
	})
	if err != nil {
		metrics.ProfilePassTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	prof.Version = s.version.Add(1)

	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize profile: %w", err)
	}
	if err := s.docs.WriteProfile(datasetID, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.memory[datasetID] = prof
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SetProfile(ctx, datasetID, data); err != nil {
			logger.Warn("Profile cache write failed", zap.String("dataset", datasetID), zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	metrics.ProfilePassTotal.WithLabelValues("ok").Inc()
	metrics.ProfilePassDuration.Observe(elapsed.Seconds())
	metrics.RowsProfiledTotal.Add(float64(prof.RowCount))

	if s.recorder != nil {
		if err := s.recorder.MarkProfiled(datasetID, prof.RowCount); err != nil {
			logger.Warn("Failed to mark dataset profiled", zap.Error(err))
		}
		run := &models.ProfileRun{
			DatasetID:  datasetID,
			Rows:       prof.RowCount,
			Columns:    len(prof.Columns),
			Warnings:   len(prof.Warnings),
			DurationMS: int(elapsed.Milliseconds()),
			CreatedAt:  time.Now(),
		}
		if err := s.recorder.InsertProfileRun(run); err != nil {
			logger.Warn("Failed to record profile run", zap.Error(err))
		}
	}

	return prof, nil
}

// Show returns the last finalized profile without ever triggering a
// computation. NotFound means the profile has not been generated yet.
func (s *Store) Show(ctx context.Context, datasetID string) (*DatasetProfile, error) {
	s.mu.RLock()
	prof, ok := s.memory[datasetID]
	s.mu.RUnlock()
	if ok {
		return prof, nil
	}

	if s.cache != nil {
		if data, hit, err := s.cache.GetProfile(ctx, datasetID); err == nil && hit {
			var p DatasetProfile
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	data, err := s.docs.ReadProfile(datasetID)
	if err != nil {
		return nil, err
	}

	var p DatasetProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile document for %s is corrupt: %w", datasetID, err)
	}

	s.mu.Lock()
	s.memory[datasetID] = &p
	s.mu.Unlock()

	return &p, nil
}

// Invalidate drops the finalized profile so the next GetOrCompute runs a
// fresh pass.
func (s *Store) Invalidate(ctx context.Context, datasetID string) error {
	s.group.Forget(datasetID)

	s.mu.Lock()
	delete(s.memory, datasetID)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.DelProfile(ctx, datasetID); err != nil {
			logger.Warn("Profile cache invalidation failed", zap.Error(err))
		}
	}

	return s.docs.RemoveProfile(datasetID)
}

// MustShow is Show with the NotFound kind upgraded to ProfileMissing, for
// callers that require a profile to already exist.
func (s *Store) MustShow(ctx context.Context, datasetID string) (*DatasetProfile, error) {
	prof, err := s.Show(ctx, datasetID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.ProfileMissing("profile for dataset %q not generated yet; request generation first", datasetID)
		}
		return nil, err
	}
	return prof, nil
}

// Subscribe registers for progress events of one dataset's aggregation
// passes. The returned cancel func must be called to release the channel.
func (s *Store) Subscribe(datasetID string) (<-chan Progress, func()) {
	ch := make(chan Progress, 16)

	s.hubMu.Lock()
	s.subs[datasetID] = append(s.subs[datasetID], ch)
	s.hubMu.Unlock()

	cancel := func() {
		s.hubMu.Lock()
		defer s.hubMu.Unlock()
		chans := s.subs[datasetID]
		for i, c := range chans {
			if c == ch {
				s.subs[datasetID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (s *Store) publish(datasetID string, p Progress) {
	s.hubMu.Lock()
	defer s.hubMu.Unlock()
	for _, ch := range s.subs[datasetID] {
		select {
		case ch <- p:
		default:
		}
	}
}
