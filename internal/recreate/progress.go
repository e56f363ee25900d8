package recreate

import "errors"

// EventType discriminates progress events from the two terminal events.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is one element of a recreation's progress stream. The stream is
// finite and ends with exactly one terminal event (completed or failed),
// after which the channel is closed.
type Event struct {
	Type    EventType    `json:"type"`
	Step    int          `json:"step,omitempty"`
	Total   int          `json:"total,omitempty"`
	Message string       `json:"message,omitempty"`
	Result  *RecreatedPR `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`

	// FailedSHA carries the offending commit for cherry-pick conflicts so a
	// user can inspect it without server access.
	FailedSHA string `json:"failed_sha,omitempty"`
}

// emitter sends step events on a channel, tracking the step index.
type emitter struct {
	ch    chan Event
	step  int
	total int
}

func newEmitter(total int) *emitter {
	return &emitter{ch: make(chan Event, 16), total: total}
}

func (e *emitter) progress(message string) {
	e.step++
	e.ch <- Event{Type: EventProgress, Step: e.step, Total: e.total, Message: message}
}

func (e *emitter) completed(result *RecreatedPR) {
	e.ch <- Event{Type: EventCompleted, Step: e.total, Total: e.total, Result: result}
	close(e.ch)
}

func (e *emitter) failed(err error) {
	event := Event{Type: EventFailed, Step: e.step, Total: e.total, Error: err.Error()}
	var conflict *CherryPickConflictError
	if errors.As(err, &conflict) {
		event.FailedSHA = conflict.FailedSHA
	}
	e.ch <- event
	close(e.ch)
}
