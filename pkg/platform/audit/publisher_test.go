package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Audit Publisher Test Suite
// =============================================================================
// Justification: the async publisher must never block the request path; the
// drain-on-close and timestamp-defaulting behaviors are contracts the
// evaluators rely on.

type PublisherSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = NewInMemoryStore(100)
}

func (s *PublisherSuite) TestSynchronousEmit() {
	ctx := context.Background()
	p := NewPublisher(s.store)

	s.Run("event is persisted with a default timestamp", func() {
		err := p.Emit(ctx, Event{Action: EventRateLimitExceeded, Subject: "10.0.0.1"})
		s.Require().NoError(err)

		events, err := s.store.List(ctx, 0)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(EventRateLimitExceeded, events[0].Action)
		s.False(events[0].Timestamp.IsZero())
	})
}

func (s *PublisherSuite) TestAsyncEmit() {
	ctx := context.Background()

	s.Run("close drains queued events", func() {
		p := NewPublisher(s.store, WithAsyncBuffer(16))
		for i := 0; i < 5; i++ {
			s.Require().NoError(p.Emit(ctx, Event{Action: EventAccessDenied}))
		}
		p.Close()

		events, err := s.store.List(ctx, 0)
		s.Require().NoError(err)
		s.Len(events, 5)
	})

	s.Run("full buffer drops instead of blocking", func() {
		s.store.Clear()
		p := NewPublisher(s.store, WithAsyncBuffer(1))
		// Flood well past the buffer; Emit must return immediately either way.
		for i := 0; i < 100; i++ {
			s.Require().NoError(p.Emit(ctx, Event{Action: EventAccessDenied}))
		}
		p.Close()

		events, err := s.store.List(ctx, 0)
		s.Require().NoError(err)
		s.NotEmpty(events)
		s.LessOrEqual(len(events), 100)
	})
}

func (s *PublisherSuite) TestStoreBounds() {
	ctx := context.Background()
	store := NewInMemoryStore(3)
	for i := 0; i < 5; i++ {
		s.Require().NoError(store.Append(ctx, Event{Action: EventRateLimitExceeded, Subject: string(rune('a' + i))}))
	}

	events, err := store.List(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal("e", events[0].Subject)
	s.Equal("c", events[2].Subject)
}
