package journey

import (
	"fmt"

	"go-journey/internal/classifier"
	"go-journey/internal/mission"
	"go-journey/internal/signal"
)

// DefaultSwitchThreshold is the number of corroborating signals needed to switch missions
const DefaultSwitchThreshold = 2

// Decision is the resolver's verdict on the active mission
type Decision string

const (
	// DecisionAdopt: first classification for the member, proposed mission taken as-is
	DecisionAdopt Decision = "adopt"
	// DecisionStay: classifier proposes the current mission
	DecisionStay Decision = "stay"
	// DecisionSwitch: a different mission, corroborated by enough recent signals
	DecisionSwitch Decision = "switch"
	// DecisionHold: a different mission without corroboration; current mission kept
	DecisionHold Decision = "hold"
)

// Resolution is the outcome of Resolve
type Resolution struct {
	Decision      Decision `json:"decision"`
	MissionID     string   `json:"mission_id"`
	FromMissionID string   `json:"from_mission_id,omitempty"`
	ProposedID    string   `json:"proposed_mission_id"`
	Corroborating int      `json:"corroborating"`
	// Note is the neutral ambiguity signal to record on a Hold
	Note *signal.Signal `json:"note,omitempty"`
}

// Resolver decides whether a member's active mission switches, with hysteresis
// so a single noisy classification cannot flip missions back and forth.
type Resolver struct {
	catalog   *mission.Catalog
	threshold int
}

// NewResolver creates a resolver; threshold <= 0 selects DefaultSwitchThreshold
func NewResolver(catalog *mission.Catalog, threshold int) *Resolver {
	if threshold <= 0 {
		threshold = DefaultSwitchThreshold
	}
	return &Resolver{catalog: catalog, threshold: threshold}
}

// Threshold returns the configured corroboration count
func (r *Resolver) Threshold() int {
	return r.threshold
}

// Resolve picks the active mission for the member given a validated classification
// and the signals recorded since the last mission switch.
func (r *Resolver) Resolve(current State, cls classifier.Classification, recent []signal.Signal) Resolution {
	res := Resolution{
		ProposedID:    cls.MissionID,
		FromMissionID: current.MissionID,
	}

	if !current.Classified {
		res.Decision = DecisionAdopt
		res.MissionID = cls.MissionID
		return res
	}

	if cls.MissionID == current.MissionID {
		res.Decision = DecisionStay
		res.MissionID = current.MissionID
		return res
	}

	target, err := r.catalog.GetMission(cls.MissionID)
	if err == nil {
		for _, s := range recent {
			if target.Corroborates(s.Tag) {
				res.Corroborating++
			}
		}
	}

	if res.Corroborating >= r.threshold {
		res.Decision = DecisionSwitch
		res.MissionID = target.ID
		return res
	}

	res.Decision = DecisionHold
	res.MissionID = current.MissionID
	res.Note = &signal.Signal{
		Tag:   signal.TagNeutral,
		Title: "Ambiguous mission proposal",
		Description: fmt.Sprintf("Classifier proposed %s over active %s with %d of %d corroborating signals; keeping %s",
			cls.MissionID, current.MissionID, res.Corroborating, r.threshold, current.MissionID),
		Source: signal.SourceResolver,
	}
	return res
}
