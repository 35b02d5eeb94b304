package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/port/messagequeue"
)

type broadcastEvent struct {
	eventType string
	payload   any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (f *fakeBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	f.mu.Lock()
	f.events = append(f.events, broadcastEvent{eventType, payload})
	f.mu.Unlock()
}

func (f *fakeBroadcaster) ofType(eventType string) []broadcastEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcastEvent
	for _, e := range f.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type published struct {
	subject string
	data    []byte
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]messagequeue.Handler
}

func (f *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	f.messages = append(f.messages, published{subject, data})
	f.mu.Unlock()
	return nil
}

func (f *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]messagequeue.Handler)
	}
	f.handlers[subject] = h
	return func() {
		f.mu.Lock()
		delete(f.handlers, subject)
		f.mu.Unlock()
	}, nil
}

func (f *fakeQueue) Drain() error      { return nil }
func (f *fakeQueue) Close() error      { return nil }
func (f *fakeQueue) IsConnected() bool { return true }

func (f *fakeQueue) onSubject(subject string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.messages {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	sets   int
	setErr func(value []byte) error
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		if err := f.setErr(value); err != nil {
			return err
		}
	}
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	delete(f.data, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeCache) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

type fakeAnalyzer struct {
	rootCause report.RootCause
}

func (f *fakeAnalyzer) RootCause(errorText string, possibilities []string) report.RootCause {
	rc := f.rootCause
	if rc.Category == "" {
		rc = report.RootCause{Category: report.CategoryLogic, LikelyCause: "assertion mismatch in " + errorText}
	}
	rc.Suggestions = append(append([]string{}, possibilities...), rc.Suggestions...)
	return rc
}

func (f *fakeAnalyzer) ClassifyObservation(text string) report.ObservationClass {
	if text == "should add retries" {
		return report.ClassFollowUpSuggested
	}
	return report.ClassNoted
}

func (f *fakeAnalyzer) Complexity(string) string { return "medium" }

func (f *fakeAnalyzer) Clarifications(text string) []string {
	if strings.Contains(text, "TBD") {
		return []string{"Please provide the missing details"}
	}
	return nil
}

type fakeAnswerer struct {
	mu     sync.Mutex
	delay  time.Duration
	err    error
	answer report.Answer
	asked  []report.Question
}

func (f *fakeAnswerer) Answer(ctx context.Context, q report.Question) (report.Answer, error) {
	f.mu.Lock()
	f.asked = append(f.asked, q)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return report.Answer{}, ctx.Err()
		}
	}
	if f.err != nil {
		return report.Answer{}, f.err
	}
	return f.answer, nil
}
