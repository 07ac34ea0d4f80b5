package mission

import (
	"strings"

	"go-journey/internal/signal"
)

// Vertical is the business line a member and its missions belong to
type Vertical string

const (
	VerticalBFSI       Vertical = "BFSI"
	VerticalHealthcare Vertical = "Healthcare"
	VerticalECommerce  Vertical = "E-commerce"
)

// Matches compares verticals case-insensitively
func (v Vertical) Matches(other Vertical) bool {
	return strings.EqualFold(string(v), string(other))
}

// Kind is the business objective family of a mission
type Kind string

const (
	KindGrowth    Kind = "growth"
	KindRetention Kind = "retention"
)

// defaultSwitchTags returns the tags that corroborate a switch into a mission of this kind.
func (k Kind) defaultSwitchTags() []signal.Tag {
	switch k {
	case KindRetention:
		return []signal.Tag{signal.TagNegative, signal.TagWarning}
	default:
		return []signal.Tag{signal.TagGrowth}
	}
}

// Stage is a named checkpoint within a mission
type Stage struct {
	ID        string       `yaml:"id" json:"id"`
	Label     string       `yaml:"label" json:"label"`
	Ordinal   int          `yaml:"ordinal" json:"ordinal"`
	EntryTags []signal.Tag `yaml:"entry_tags" json:"entry_tags,omitempty"`
	Emoji     string       `yaml:"emoji" json:"emoji,omitempty"`
	Color     string       `yaml:"color" json:"color,omitempty"`
}

// Mission is a business objective with an ordered stage list
type Mission struct {
	ID            string       `yaml:"id" json:"id"`
	Vertical      Vertical     `yaml:"vertical" json:"vertical"`
	Title         string       `yaml:"title" json:"title"`
	Description   string       `yaml:"description" json:"description,omitempty"`
	Kind          Kind         `yaml:"kind" json:"kind"`
	EndGoal       string       `yaml:"end_goal" json:"end_goal,omitempty"`
	Stages        []Stage      `yaml:"stages" json:"stages"`
	EntryStageIDs []string     `yaml:"entry_stages" json:"entry_stages,omitempty"`
	SwitchTags    []signal.Tag `yaml:"switch_tags" json:"switch_tags,omitempty"`
}

// IsEntryStage reports whether stageID is a designated entry stage of the mission
func (m Mission) IsEntryStage(stageID string) bool {
	for _, id := range m.EntryStageIDs {
		if id == stageID {
			return true
		}
	}
	return false
}

// EntryStage returns the stage a new run starts at, preferring the proposed one
// when it is a designated entry stage.
func (m Mission) EntryStage(proposed string) Stage {
	if m.IsEntryStage(proposed) {
		if s, ok := m.stage(proposed); ok {
			return s
		}
	}
	s, _ := m.stage(m.EntryStageIDs[0])
	return s
}

// Corroborates reports whether a signal tag counts toward switching into this mission
func (m Mission) Corroborates(tag signal.Tag) bool {
	for _, t := range m.SwitchTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Terminal reports whether stageID is the last stage of the mission
func (m Mission) Terminal(stageID string) bool {
	return len(m.Stages) > 0 && m.Stages[len(m.Stages)-1].ID == stageID
}

// Next returns the stage after stageID, if any
func (m Mission) Next(stageID string) (Stage, bool) {
	for i, s := range m.Stages {
		if s.ID == stageID && i+1 < len(m.Stages) {
			return m.Stages[i+1], true
		}
	}
	return Stage{}, false
}

func (m Mission) stage(id string) (Stage, bool) {
	for _, s := range m.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// Summary is the read-only projection handed to callers
type Summary struct {
	ID         string   `json:"id"`
	Vertical   Vertical `json:"vertical"`
	Title      string   `json:"title"`
	Kind       Kind     `json:"kind"`
	EndGoal    string   `json:"end_goal,omitempty"`
	StageCount int      `json:"stage_count"`
}

// Summarize projects a mission to its summary
func (m Mission) Summarize() Summary {
	return Summary{
		ID:         m.ID,
		Vertical:   m.Vertical,
		Title:      m.Title,
		Kind:       m.Kind,
		EndGoal:    m.EndGoal,
		StageCount: len(m.Stages),
	}
}

// StageLabels lists a mission's stage labels in order, per vertical projection
type StageLabels struct {
	MissionID string   `json:"mission_id"`
	Title     string   `json:"title"`
	Labels    []string `json:"stages"`
}
