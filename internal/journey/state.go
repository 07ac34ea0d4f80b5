package journey

import (
	"time"
)

// StageEntry records one stage entered by a member
type StageEntry struct {
	MissionID string    `json:"mission_id"`
	StageID   string    `json:"stage_id"`
	Ordinal   int       `json:"ordinal"`
	Run       int       `json:"run"`
	EnteredAt time.Time `json:"entered_at"`
}

// State is a member's journey: active mission, current stage and the stage history.
// CurrentStage always belongs to MissionID, and within one Run the ordinals
// in History never decrease.
type State struct {
	MemberID           string       `json:"member_id"`
	MissionID          string       `json:"mission_id"`
	StageID            string       `json:"stage_id"`
	Run                int          `json:"run"`
	History            []StageEntry `json:"stage_history"`
	Classified         bool         `json:"classified"`
	ChurnProbability   float64      `json:"churn_probability"`
	LastRecommendation string       `json:"last_recommendation,omitempty"`
	LastExplanation    string       `json:"last_explanation,omitempty"`
	Version            uint64       `json:"version"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Clone returns a deep copy that shares nothing with s
func (s State) Clone() State {
	out := s
	if s.History != nil {
		out.History = make([]StageEntry, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// RunHistory returns the entries of the current mission run
func (s State) RunHistory() []StageEntry {
	var out []StageEntry
	for _, e := range s.History {
		if e.Run == s.Run {
			out = append(out, e)
		}
	}
	return out
}

func (s State) currentOrdinal() int {
	if n := len(s.History); n > 0 {
		return s.History[n-1].Ordinal
	}
	return 0
}
