package domain

import "time"

type CallID string

// CallKind distinguishes the two persisted call record kinds. Audio and
// video records are stored separately but share one state machine.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// Verdict is the outcome of a ring attempt. The zero value means the
// receiver has not answered yet.
type Verdict string

const (
	VerdictNone     Verdict = ""
	VerdictAccepted Verdict = "Accepted"
	VerdictDenied   Verdict = "Denied"
	VerdictMissed   Verdict = "Missed"
	VerdictBusy     Verdict = "Busy"
)

// Terminal reports whether v ends the ring phase. Accepted is terminal
// for the verdict but leaves the session Ongoing.
func (v Verdict) Terminal() bool { return v != VerdictNone }

type CallStatus string

const (
	CallOngoing CallStatus = "Ongoing"
	CallEnded   CallStatus = "Ended"
)

// PairKey identifies the unordered participant pair of a call:
// {A,B} and {B,A} produce the same key.
type PairKey string

func NewPairKey(a, b UserID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey(string(a) + "|" + string(b))
}

// CallSession is the persisted record of one call between two users.
// Initiator and Receiver stay explicit even though lookups go through
// the normalized pair key: signaling notifications must always target
// the stored initiator, never a party inferred from an event payload.
type CallSession struct {
	ID        CallID     `json:"id"`
	Kind      CallKind   `json:"kind"`
	Initiator UserID     `json:"from"`
	Receiver  UserID     `json:"to"`
	Verdict   Verdict    `json:"verdict,omitempty"`
	Status    CallStatus `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func (s *CallSession) Pair() PairKey { return NewPairKey(s.Initiator, s.Receiver) }

// Peer returns the participant other than u.
func (s *CallSession) Peer(u UserID) UserID {
	if u == s.Initiator {
		return s.Receiver
	}
	return s.Initiator
}
