// Copyright 2026 The go-benor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package journal keeps an audit trail of the decisions reached by
// nodes. The journal is write-only from the point of view of the
// consensus engine, it is never used to restore engine state.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/db"
	"github.com/ultiledger/go-benor/log"
)

const (
	bucket    = "DECISIONS"
	cacheSize = 1024
)

var (
	ErrDecisionNotFound = errors.New("decision not found")
	ErrInvalidRun       = errors.New("run name must not be empty or contain '/'")
)

// Decision is the record written when a node decides.
type Decision struct {
	Run       string          `json:"run"`
	NodeID    int             `json:"node_id"`
	Value     consensus.Value `json:"value"`
	Iteration int             `json:"iteration"`
	DecidedAt time.Time       `json:"decided_at"`
}

// Journal persists decisions in a database bucket with an LRU
// cache in front of it.
type Journal struct {
	store  db.Database
	cache  *lru.Cache
	logger *zap.SugaredLogger
}

func New(d db.Database, logger *zap.SugaredLogger) (*Journal, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if err := d.NewBucket(bucket); err != nil {
		return nil, fmt.Errorf("create journal bucket: %w", err)
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Journal{store: d, cache: cache, logger: logger}, nil
}

func checkRun(run string) error {
	if run == "" || strings.Contains(run, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRun, run)
	}
	return nil
}

// node ids are zero padded so that keys sort numerically
func decisionKey(run string, node int) string {
	return fmt.Sprintf("%s/%06d", run, node)
}

// Record stores a decision, overwriting an earlier record of the
// same run and node.
func (j *Journal) Record(d Decision) error {
	if err := checkRun(d.Run); err != nil {
		return err
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	key := decisionKey(d.Run, d.NodeID)
	if err := j.store.Put(bucket, []byte(key), b); err != nil {
		return fmt.Errorf("record decision %s: %w", key, err)
	}
	j.cache.Add(key, d)
	return nil
}

// Get returns the decision of a node in a run.
func (j *Journal) Get(run string, node int) (Decision, error) {
	key := decisionKey(run, node)
	if d, ok := j.cache.Get(key); ok {
		return d.(Decision), nil
	}
	b, err := j.store.Get(bucket, []byte(key))
	if errors.Is(err, db.ErrNotFound) {
		return Decision{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, key)
	}
	if err != nil {
		return Decision{}, err
	}
	var d Decision
	if err := json.Unmarshal(b, &d); err != nil {
		return Decision{}, fmt.Errorf("decode decision %s: %w", key, err)
	}
	j.cache.Add(key, d)
	return d, nil
}

// List returns the decisions of a run ordered by node id, or of
// all runs if run is empty.
func (j *Journal) List(run string) ([]Decision, error) {
	var prefix []byte
	if run != "" {
		if err := checkRun(run); err != nil {
			return nil, err
		}
		prefix = []byte(run + "/")
	}
	vals, err := j.store.GetAll(bucket, prefix)
	if err != nil {
		return nil, err
	}
	decisions := make([]Decision, 0, len(vals))
	for _, b := range vals {
		var d Decision
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// Hook returns a decide callback recording the decisions of a run.
// Write failures are logged, they never reach the engine.
func (j *Journal) Hook(run string) func(id int, v consensus.Value, iteration int) {
	return func(id int, v consensus.Value, iteration int) {
		d := Decision{
			Run:       run,
			NodeID:    id,
			Value:     v,
			Iteration: iteration,
			DecidedAt: time.Now().UTC(),
		}
		if err := j.Record(d); err != nil {
			j.logger.Warnw("failed to journal decision", "node", id, "err", err)
		}
	}
}
