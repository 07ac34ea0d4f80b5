package signal

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// memberLog holds one member's signals and the position of the last mission switch.
type memberLog struct {
	signals    []Signal
	switchPos  int
	switchedAt time.Time
}

// Log is an append-only, per-member ordered record of interaction signals.
// Nothing is ever mutated or removed once appended.
type Log struct {
	mu      sync.RWMutex
	members map[string]*memberLog
	now     func() time.Time
}

// NewLog creates an empty signal log
func NewLog() *Log {
	return &Log{
		members: make(map[string]*memberLog),
		now:     time.Now,
	}
}

// Append records a signal for the member and returns it with ID and timestamp filled in.
func (l *Log) Append(memberID string, s Signal) Signal {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = l.now()
	}
	s.MemberID = memberID

	l.mu.Lock()
	defer l.mu.Unlock()
	ml := l.members[memberID]
	if ml == nil {
		ml = &memberLog{}
		l.members[memberID] = ml
	}
	ml.signals = append(ml.signals, s)
	return s
}

// MarkSwitch records a mission switch; Recent(memberID, true) only returns
// signals appended after the latest mark.
func (l *Log) MarkSwitch(memberID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ml := l.members[memberID]
	if ml == nil {
		ml = &memberLog{}
		l.members[memberID] = ml
	}
	ml.switchPos = len(ml.signals)
	ml.switchedAt = at
}

// LastSwitch returns the time of the member's last mission switch, if any.
func (l *Log) LastSwitch(memberID string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ml := l.members[memberID]
	if ml == nil || ml.switchedAt.IsZero() {
		return time.Time{}, false
	}
	return ml.switchedAt, true
}

// Recent returns the member's signals in insertion order. With sinceMissionSwitch
// it returns only those recorded after the last mission switch.
func (l *Log) Recent(memberID string, sinceMissionSwitch bool) []Signal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ml := l.members[memberID]
	if ml == nil {
		return []Signal{}
	}
	from := 0
	if sinceMissionSwitch {
		from = ml.switchPos
	}
	out := make([]Signal, len(ml.signals)-from)
	copy(out, ml.signals[from:])
	return out
}

// Len returns the total number of signals recorded for the member
func (l *Log) Len(memberID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if ml := l.members[memberID]; ml != nil {
		return len(ml.signals)
	}
	return 0
}
