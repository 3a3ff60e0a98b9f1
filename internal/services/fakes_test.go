package services

import (
	"context"
	"sync"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/realtime"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []CreateNotificationParams
	err   error
}

func (r *recordingSink) Create(_ context.Context, p CreateNotificationParams) (*types.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, p)
	if r.err != nil {
		return nil, r.err
	}
	return &types.Notification{RecipientID: p.RecipientID, Type: p.Type, Title: p.Title, Content: p.Content}, nil
}

func (r *recordingSink) Calls() []CreateNotificationParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CreateNotificationParams(nil), r.calls...)
}

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (r *recordingEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingEmitter) Events() []realtime.SSEEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.SSEEvent, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Event)
	}
	return out
}

func (r *recordingEmitter) Last() (realtime.SSEMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return realtime.SSEMessage{}, false
	}
	return r.msgs[len(r.msgs)-1], true
}

type estimatorFunc func(*types.Course) (int64, error)

func (f estimatorFunc) Estimate(c *types.Course) (int64, error) { return f(c) }
