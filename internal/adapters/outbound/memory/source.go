// Package memory provides in-memory implementations of the outbound ports.
// Useful for testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that Source implements outbound.AttestationSource
var _ outbound.AttestationSource = (*Source)(nil)

// Source is an in-memory attestation source. Historical attestations are
// added with AddHistorical; live ones are pushed to open streams with Emit.
type Source struct {
	mu         sync.Mutex
	historical []*entity.Attestation
	streams    []*stream

	// FetchErr, when set, is returned by every FetchHistorical call.
	FetchErr error
	// SubscribeErr, when set, is returned by every Subscribe call.
	SubscribeErr error
}

// NewSource creates a new in-memory attestation source.
func NewSource() *Source {
	return &Source{}
}

// AddHistorical appends attestations to the historical backlog.
func (s *Source) AddHistorical(atts ...*entity.Attestation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historical = append(s.historical, atts...)
}

// Emit delivers an attestation to every open stream, blocking until each
// stream accepts it or closes.
func (s *Source) Emit(att *entity.Attestation) {
	s.mu.Lock()
	streams := make([]*stream, len(s.streams))
	copy(streams, s.streams)
	s.mu.Unlock()

	for _, st := range streams {
		st.deliver(att)
	}
}

// Fail pushes an error to every open stream.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	streams := make([]*stream, len(s.streams))
	copy(streams, s.streams)
	s.mu.Unlock()

	for _, st := range streams {
		st.fail(err)
	}
}

// EndStreams closes the event channel of every open stream, simulating a
// subscription that ends naturally.
func (s *Source) EndStreams() {
	s.mu.Lock()
	streams := make([]*stream, len(s.streams))
	copy(streams, s.streams)
	s.mu.Unlock()

	for _, st := range streams {
		st.end()
	}
}

func (s *Source) FetchHistorical(ctx context.Context, oracle common.Address) ([]*entity.Attestation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	out := make([]*entity.Attestation, len(s.historical))
	copy(out, s.historical)
	return out, nil
}

func (s *Source) Subscribe(ctx context.Context, oracle common.Address) (outbound.AttestationStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}
	st := newStream()
	s.streams = append(s.streams, st)
	return st, nil
}

type stream struct {
	events chan *entity.Attestation
	errs   chan error

	closeOnce sync.Once
	endOnce   sync.Once
	done      chan struct{}
}

func newStream() *stream {
	return &stream{
		events: make(chan *entity.Attestation),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (s *stream) Events() <-chan *entity.Attestation { return s.events }
func (s *stream) Err() <-chan error                  { return s.errs }

// Close stops delivery without closing the event channel, so a concurrent
// Emit cannot race a channel close during consumer teardown.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// end simulates the subscription ending naturally: pending delivers are
// released and the event channel is closed.
func (s *stream) end() {
	s.Close()
	s.endOnce.Do(func() {
		close(s.events)
	})
}

func (s *stream) deliver(att *entity.Attestation) {
	select {
	case s.events <- att:
	case <-s.done:
	}
}

func (s *stream) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
