package queue

import "context"

// Job handles every message enqueued under Type. Handle receives the payload as
// json.RawMessage or a scalar; use ParsePayload to decode it. A returned error
// schedules a retry.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
