// Package event carries the engine's activity feed: every notable state
// change is published as an Activity record which the dashboard folds into
// its last-activity section.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/service/messaging/memory"
)

// Kind classifies an activity entry.
type Kind string

const (
	KindDiscovered Kind = "discovered"
	KindClassified Kind = "classified"
	KindRouted     Kind = "routed"
	KindGated      Kind = "gated"
	KindApproved   Kind = "approved"
	KindRejected   Kind = "rejected"
	KindExpired    Kind = "expired"
	KindArchived   Kind = "archived"
	KindReview     Kind = "review"
	KindAnomaly    Kind = "anomaly"
	KindError      Kind = "error"
)

// Activity is one entry of the activity feed.
type Activity struct {
	At     time.Time `json:"at"`
	Kind   Kind      `json:"kind"`
	TaskID string    `json:"taskId,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func (a *Activity) String() string {
	if a.TaskID == "" {
		return fmt.Sprintf("%s %s: %s", a.At.Format("2006-01-02 15:04:05"), a.Kind, a.Detail)
	}
	return fmt.Sprintf("%s %s `%s`: %s", a.At.Format("2006-01-02 15:04:05"), a.Kind, a.TaskID, a.Detail)
}

// Recorder publishes activity records onto a queue.
type Recorder struct {
	queue  *memory.Queue[Activity]
	buffer int
}

// NewRecorder creates a recorder over an in-memory queue.
func NewRecorder() *Recorder {
	config := memory.DefaultConfig()
	return &Recorder{queue: memory.NewQueue[Activity](config), buffer: config.QueueBuffer}
}

// Record publishes one activity entry; feed overflows are dropped rather
// than blocking the cycle.
func (r *Recorder) Record(ctx context.Context, kind Kind, taskID, format string, args ...interface{}) {
	if r.queue.Size() >= r.buffer {
		return
	}
	activity := Activity{
		At:     clock.Now(),
		Kind:   kind,
		TaskID: taskID,
		Detail: fmt.Sprintf(format, args...),
	}
	_ = r.queue.Publish(ctx, &activity)
}

// Drain returns every queued activity entry without blocking.
func (r *Recorder) Drain(ctx context.Context) []Activity {
	var result []Activity
	for {
		msg, ok := r.queue.Poll(ctx)
		if !ok {
			return result
		}
		_ = msg.Ack()
		result = append(result, *msg.T())
	}
}
