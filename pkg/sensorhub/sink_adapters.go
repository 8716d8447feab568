package sensorhub

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("sensorhub: channel sink closed")

// SessionFunc receives one finished session.
type SessionFunc func(ctx context.Context, rec *SessionRecord) error

// NewCallbackSink adapts fn into a SessionSink so callers can plug arbitrary
// functions without defining structs.
func NewCallbackSink(name string, fn SessionFunc) SessionSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes finished sessions via a channel; it returns the sink,
// the read-only channel, and a close function that the caller should invoke
// during shutdown.
func NewChannelSink(name string, buffer int) (SessionSink, <-chan *SessionRecord, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan *SessionRecord, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   SessionFunc
}

func (s *callbackSink) WriteSession(ctx context.Context, rec *SessionRecord) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if rec == nil {
		return nil
	}
	return s.fn(ctx, rec)
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan *SessionRecord
	closed chan struct{}
	mu     sync.RWMutex
	once   sync.Once
}

func (s *channelSink) WriteSession(ctx context.Context, rec *SessionRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}
	if rec == nil {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- rec:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

// close waits for in-flight writers before closing ch.
func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}
