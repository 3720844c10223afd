package llm

import (
	"strconv"
	"time"
)

// StreamPhase is the lifecycle position of one generation attempt
type StreamPhase int

const (
	StreamUnseen   StreamPhase = iota // No record, or the record expired
	StreamCounting                    // Generation in flight; Count callers have attached
	StreamDone                        // Sentinel written, text blob is final
)

// StreamDoneSentinel is the non-numeric marker stored once a stream finished
const StreamDoneSentinel = "DONE"

// StreamState is the tagged value held by a stream's status slot
type StreamState struct {
	Phase StreamPhase
	Count int64 // Only meaningful when Phase == StreamCounting
}

// ParseStreamState decodes a raw slot value. present=false means the key is absent.
func ParseStreamState(raw string, present bool) (StreamState, error) {
	if !present {
		return StreamState{Phase: StreamUnseen}, nil
	}
	if raw == StreamDoneSentinel {
		return StreamState{Phase: StreamDone}, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return StreamState{}, &CorruptStateError{Raw: raw}
	}
	return StreamState{Phase: StreamCounting, Count: n}, nil
}

// IsDone reports whether the terminal sentinel was observed
func (s StreamState) IsDone() bool { return s.Phase == StreamDone }

// IsOriginator reports whether this caller took the first count
func (s StreamState) IsOriginator() bool { return s.Phase == StreamCounting && s.Count == 1 }

func (s StreamState) String() string {
	switch s.Phase {
	case StreamUnseen:
		return "unseen"
	case StreamDone:
		return "done"
	default:
		return "counting(" + strconv.FormatInt(s.Count, 10) + ")"
	}
}

// CorruptStateError means a status slot holds neither a count nor the sentinel
type CorruptStateError struct {
	Raw string
}

func (e *CorruptStateError) Error() string {
	return "stream status slot holds unexpected value " + strconv.Quote(e.Raw)
}

// StreamRecord ties a generation attempt to its chat
type StreamRecord struct {
	ID        string    `json:"id" db:"id"`
	ChatID    string    `json:"chat_id" db:"chat_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
