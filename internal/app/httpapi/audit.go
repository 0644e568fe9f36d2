package httpapi

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"
)

var (
	errForbidden        = errors.New("admin role required")
	errRateLimited      = errors.New("rate limit exceeded")
	errUnauthenticated  = errors.New("bearer token required")
	errBadAuthorization = errors.New("authorization header must be \"Bearer <token>\"")
	errNotSessionOwner  = errors.New("token does not belong to the signed-in account")
)

// consoleAction is one admin console request: who did what to which record.
type consoleAction struct {
	Time      time.Time `json:"time"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	User      string    `json:"user"`
	Email     string    `json:"email,omitempty"`
	Confirmed bool      `json:"confirmed"`
	Status    int       `json:"status"`
	Elapsed   string    `json:"elapsed"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	RequestID string    `json:"request_id,omitempty"`
	Remote    string    `json:"remote,omitempty"`
}

// mutating reports whether the action changed backend state.
func (a consoleAction) mutating() bool {
	return a.Method != "GET" && a.Method != "HEAD"
}

// actionSink persists console actions outside the process.
type actionSink interface {
	Append(a consoleAction) error
}

// activityLog is a bounded ring of console actions, newest last, mirrored to
// an optional sink.
type activityLog struct {
	mu      sync.Mutex
	actions []consoleAction
	max     int
	sink    actionSink
	onError func(error)
}

func newActivityLog(max int, sink actionSink, onError func(error)) *activityLog {
	if max <= 0 {
		max = 200
	}
	return &activityLog{max: max, sink: sink, onError: onError}
}

func (l *activityLog) record(a consoleAction) {
	l.mu.Lock()
	l.actions = append(l.actions, a)
	if over := len(l.actions) - l.max; over > 0 {
		l.actions = append([]consoleAction(nil), l.actions[over:]...)
	}
	sink := l.sink
	l.mu.Unlock()

	if sink == nil {
		return
	}
	if err := sink.Append(a); err != nil && l.onError != nil {
		l.onError(err)
	}
}

// activityQuery selects recent actions. Zero values match everything.
type activityQuery struct {
	User         string
	MutatingOnly bool
	Limit        int
}

// recent returns matching actions, newest first.
func (l *activityLog) recent(q activityQuery) []consoleAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit := q.Limit
	if limit <= 0 || limit > len(l.actions) {
		limit = len(l.actions)
	}
	out := make([]consoleAction, 0, limit)
	for i := len(l.actions) - 1; i >= 0 && len(out) < limit; i-- {
		a := l.actions[i]
		if q.User != "" && a.User != q.User {
			continue
		}
		if q.MutatingOnly && !a.mutating() {
			continue
		}
		out = append(out, a)
	}
	return out
}

// jsonlSink appends actions to a file, one JSON object per line.
type jsonlSink struct {
	mu   sync.Mutex
	file *os.File
}

func openJSONLSink(path string) (actionSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &jsonlSink{file: f}, nil
}

func (s *jsonlSink) Append(a consoleAction) error {
	line, err := json.Marshal(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(line, '\n'))
	return err
}
