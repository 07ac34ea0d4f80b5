package journey

import (
	"fmt"
	"time"

	"go-journey/internal/classifier"
	"go-journey/internal/mission"
	"go-journey/internal/signal"
)

// Move is the stage transition the tracker applied
type Move string

const (
	MoveAdopt      Move = "adopt"
	MoveAdvance    Move = "advance"
	MoveStay       Move = "stay"
	MoveRegression Move = "regression"
	MoveSwitch     Move = "switch"
	MoveKeep       Move = "keep"
)

// Outcome is a tracker transition result. State is a fresh value; the
// previous state is never modified.
type Outcome struct {
	Move   Move
	State  State
	NewRun bool
	// Note is the neutral signal to record on a rejected regression
	Note *signal.Signal
}

type transitionFunc func(t *Tracker, prev State, res Resolution, cls classifier.Classification) (Outcome, error)

// transitions maps each resolver decision to the stage rule it triggers
var transitions = map[Decision]transitionFunc{
	DecisionAdopt:  (*Tracker).adopt,
	DecisionStay:   (*Tracker).progress,
	DecisionSwitch: (*Tracker).enter,
	DecisionHold:   (*Tracker).keep,
}

// Tracker is the per-member mission/stage state machine
type Tracker struct {
	catalog *mission.Catalog
	now     func() time.Time
}

func NewTracker(catalog *mission.Catalog) *Tracker {
	return &Tracker{catalog: catalog, now: time.Now}
}

// Seed builds the initial state for a member. An unknown or empty seed falls
// back to the catalog's first mission and first stage.
func (t *Tracker) Seed(memberID, missionID, stageID string) State {
	m, err := t.catalog.GetMission(missionID)
	if err != nil {
		m = t.catalog.First()
	}
	st := m.Stages[0]
	if s, err := t.catalog.Stage(m.ID, stageID); err == nil {
		st = s
	}
	now := t.now()
	return State{
		MemberID:  memberID,
		MissionID: m.ID,
		StageID:   st.ID,
		Run:       1,
		History:   []StageEntry{{MissionID: m.ID, StageID: st.ID, Ordinal: st.Ordinal, Run: 1, EnteredAt: now}},
		UpdatedAt: now,
	}
}

// Apply runs the transition for a resolution and returns the resulting state
func (t *Tracker) Apply(prev State, res Resolution, cls classifier.Classification) (Outcome, error) {
	fn, ok := transitions[res.Decision]
	if !ok {
		return Outcome{}, fmt.Errorf("no transition for decision %q", res.Decision)
	}
	out, err := fn(t, prev.Clone(), res, cls)
	if err != nil {
		return Outcome{}, err
	}
	out.State.Classified = true
	out.State.ChurnProbability = cls.ChurnProbability
	out.State.LastRecommendation = cls.Recommendation
	out.State.LastExplanation = cls.Explanation
	out.State.Version = prev.Version + 1
	out.State.UpdatedAt = t.now()
	return out, nil
}

func (t *Tracker) adopt(prev State, res Resolution, cls classifier.Classification) (Outcome, error) {
	if res.MissionID == prev.MissionID {
		// the seeded stage is a real position: backward proposals are rejected like any other
		out, err := t.progress(prev, res, cls)
		if err == nil && out.Move != MoveRegression {
			out.Move = MoveAdopt
		}
		return out, err
	}
	st, err := t.catalog.Stage(res.MissionID, cls.StageID)
	if err != nil {
		return Outcome{}, err
	}
	s := t.startRun(prev, res.MissionID, st)
	return Outcome{Move: MoveAdopt, State: s, NewRun: true}, nil
}

func (t *Tracker) progress(prev State, res Resolution, cls classifier.Classification) (Outcome, error) {
	st, err := t.catalog.Stage(prev.MissionID, cls.StageID)
	if err != nil {
		return Outcome{}, err
	}
	cur := prev.currentOrdinal()
	switch {
	case st.Ordinal > cur:
		prev.StageID = st.ID
		prev.History = append(prev.History, StageEntry{
			MissionID: prev.MissionID,
			StageID:   st.ID,
			Ordinal:   st.Ordinal,
			Run:       prev.Run,
			EnteredAt: t.now(),
		})
		return Outcome{Move: MoveAdvance, State: prev}, nil
	case st.Ordinal == cur:
		return Outcome{Move: MoveStay, State: prev}, nil
	default:
		note := &signal.Signal{
			Tag:   signal.TagNeutral,
			Title: "Stage regression rejected",
			Description: fmt.Sprintf("Classifier placed member at %s (ordinal %d) behind current %s (ordinal %d) in %s; keeping %s",
				st.ID, st.Ordinal, prev.StageID, cur, prev.MissionID, prev.StageID),
			Source: signal.SourceTracker,
		}
		return Outcome{Move: MoveRegression, State: prev, Note: note}, nil
	}
}

func (t *Tracker) enter(prev State, res Resolution, cls classifier.Classification) (Outcome, error) {
	m, err := t.catalog.GetMission(res.MissionID)
	if err != nil {
		return Outcome{}, err
	}
	s := t.startRun(prev, m.ID, m.EntryStage(cls.StageID))
	return Outcome{Move: MoveSwitch, State: s, NewRun: true}, nil
}

func (t *Tracker) keep(prev State, _ Resolution, _ classifier.Classification) (Outcome, error) {
	return Outcome{Move: MoveKeep, State: prev}, nil
}

func (t *Tracker) startRun(prev State, missionID string, st mission.Stage) State {
	prev.MissionID = missionID
	prev.StageID = st.ID
	prev.Run++
	prev.History = append(prev.History, StageEntry{
		MissionID: missionID,
		StageID:   st.ID,
		Ordinal:   st.Ordinal,
		Run:       prev.Run,
		EnteredAt: t.now(),
	})
	return prev
}
