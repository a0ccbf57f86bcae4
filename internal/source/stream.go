// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source turns one outbound search call into a lazily
// initialized, cancellable stream of individual result records, so the
// orchestrator can start downstream work on item 1 without waiting for
// item N.
package source

import (
	"context"
	"fmt"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/ratelimit"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// Provider performs one search fetch. BraveClient is the production
// implementation; tests and the cache decorator substitute their own.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string, count int) ([]types.SearchResult, error)
}

// streamState is the explicit lifecycle of one Stream.
type streamState int

const (
	stateIdle streamState = iota
	stateYielding
	stateExhausted
	stateFailed
	stateClosed
)

// Stream yields the records of one query's result set one at a time.
// Construction does no network I/O: the first Next acquires the rate
// limiter, issues the fetch, and parses the full response into an
// internal buffer once. Next is the only advancing operation; failures
// surface on the advance call that discovered them. Streams are not
// safe for concurrent use — one request's orchestrator owns one Stream.
type Stream struct {
	provider Provider
	limiter  *ratelimit.Limiter
	query    string
	count    int

	state    streamState
	buf      []types.SearchResult
	pos      int
	err      error
	released bool
}

// NewStream constructs a stream for one query. The limiter may be nil
// for offline/test use.
func NewStream(provider Provider, limiter *ratelimit.Limiter, query string, count int) *Stream {
	return &Stream{
		provider: provider,
		limiter:  limiter,
		query:    query,
		count:    count,
	}
}

// Next advances the stream. It returns (record, true, nil) for each
// yielded item, (zero, false, nil) once exhausted, and (zero, false,
// err) for a typed failure. After an error or Close, further calls
// keep reporting the terminal condition.
func (s *Stream) Next(ctx context.Context) (types.SearchResult, bool, error) {
	switch s.state {
	case stateClosed:
		return types.SearchResult{}, false, fmt.Errorf("stream closed")
	case stateFailed:
		return types.SearchResult{}, false, s.err
	case stateExhausted:
		return types.SearchResult{}, false, nil
	case stateIdle:
		if err := s.fetch(ctx); err != nil {
			return types.SearchResult{}, false, err
		}
	}

	if s.pos >= len(s.buf) {
		s.state = stateExhausted
		s.release()
		return types.SearchResult{}, false, nil
	}
	rec := s.buf[s.pos]
	s.pos++
	return rec, true, nil
}

// fetch performs the one-time rate-limited network call.
func (s *Stream) fetch(ctx context.Context) error {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return s.fail(newFetchError(err))
		}
	}

	results, err := s.provider.Fetch(ctx, s.query, s.count)
	if err != nil {
		return s.fail(newFetchError(err))
	}
	s.buf = results
	s.pos = 0
	s.state = stateYielding
	return nil
}

func (s *Stream) fail(err error) error {
	s.state = stateFailed
	s.err = err
	s.release()
	return err
}

// Close abandons the stream and releases its buffer. It is idempotent
// and safe to call at any point of the lifecycle.
func (s *Stream) Close() error {
	if s.state != stateClosed {
		s.state = stateClosed
		s.release()
	}
	return nil
}

func (s *Stream) release() {
	s.buf = nil
	s.released = true
}

// Released reports whether the stream's resources have been let go,
// either by exhaustion, failure, or Close.
func (s *Stream) Released() bool { return s.released }

// Remaining reports how many buffered records have not been yielded
// yet; zero before the first advance.
func (s *Stream) Remaining() int {
	if s.state != stateYielding {
		return 0
	}
	return len(s.buf) - s.pos
}
