package mission

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go-journey/internal/signal"

	"gopkg.in/yaml.v3"
)

var (
	// ErrCatalogLoad marks malformed mission configuration; the process must not start with it.
	ErrCatalogLoad     = errors.New("catalog load error")
	ErrMissionNotFound = errors.New("mission not found")
	ErrStageNotFound   = errors.New("stage not found")
)

// Catalog is the immutable set of missions loaded at process start.
// It is safe for concurrent use without locking.
type Catalog struct {
	missions []Mission
	byID     map[string]int
}

// New validates the missions and builds a catalog.
func New(missions []Mission) (*Catalog, error) {
	if len(missions) == 0 {
		return nil, fmt.Errorf("%w: no missions defined", ErrCatalogLoad)
	}

	c := &Catalog{
		missions: make([]Mission, 0, len(missions)),
		byID:     make(map[string]int, len(missions)),
	}
	for _, m := range missions {
		m, err := normalize(m)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate mission id %q", ErrCatalogLoad, m.ID)
		}
		c.byID[m.ID] = len(c.missions)
		c.missions = append(c.missions, m)
	}
	return c, nil
}

// normalize validates one mission and returns a deep copy with defaults applied
func normalize(m Mission) (Mission, error) {
	if strings.TrimSpace(m.ID) == "" {
		return m, fmt.Errorf("%w: mission with empty id", ErrCatalogLoad)
	}
	if len(m.Stages) == 0 {
		return m, fmt.Errorf("%w: mission %q has no stages", ErrCatalogLoad, m.ID)
	}
	if m.Kind == "" {
		m.Kind = KindGrowth
	}
	if m.Kind != KindGrowth && m.Kind != KindRetention {
		return m, fmt.Errorf("%w: mission %q has unknown kind %q", ErrCatalogLoad, m.ID, m.Kind)
	}

	stages := make([]Stage, len(m.Stages))
	copy(stages, m.Stages)
	ordinals := make(map[int]string, len(stages))
	ids := make(map[string]bool, len(stages))
	for i, s := range stages {
		if strings.TrimSpace(s.ID) == "" {
			return m, fmt.Errorf("%w: mission %q has a stage with empty id", ErrCatalogLoad, m.ID)
		}
		if ids[s.ID] {
			return m, fmt.Errorf("%w: mission %q has duplicate stage id %q", ErrCatalogLoad, m.ID, s.ID)
		}
		if other, dup := ordinals[s.Ordinal]; dup {
			return m, fmt.Errorf("%w: mission %q stages %q and %q share ordinal %d", ErrCatalogLoad, m.ID, other, s.ID, s.Ordinal)
		}
		ids[s.ID] = true
		ordinals[s.Ordinal] = s.ID
		if s.Label == "" {
			stages[i].Label = s.ID
		}
		tags, err := parseTags(s.EntryTags)
		if err != nil {
			return m, fmt.Errorf("%w: mission %q stage %q: %v", ErrCatalogLoad, m.ID, s.ID, err)
		}
		stages[i].EntryTags = tags
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Ordinal < stages[j].Ordinal })
	m.Stages = stages

	if len(m.EntryStageIDs) == 0 {
		m.EntryStageIDs = []string{stages[0].ID}
	} else {
		m.EntryStageIDs = append([]string(nil), m.EntryStageIDs...)
	}
	for _, id := range m.EntryStageIDs {
		if !ids[id] {
			return m, fmt.Errorf("%w: mission %q entry stage %q is not one of its stages", ErrCatalogLoad, m.ID, id)
		}
	}

	if len(m.SwitchTags) == 0 {
		m.SwitchTags = m.Kind.defaultSwitchTags()
	} else {
		tags, err := parseTags(m.SwitchTags)
		if err != nil {
			return m, fmt.Errorf("%w: mission %q switch tags: %v", ErrCatalogLoad, m.ID, err)
		}
		m.SwitchTags = tags
	}
	return m, nil
}

func parseTags(in []signal.Tag) ([]signal.Tag, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]signal.Tag, 0, len(in))
	for _, t := range in {
		tag, err := signal.ParseTag(string(t))
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, nil
}

type catalogFile struct {
	Missions []Mission `yaml:"missions"`
}

// Parse reads a YAML catalog document
func Parse(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: invalid catalog format: %v", ErrCatalogLoad, err)
	}
	return New(f.Missions)
}

// LoadFile reads a YAML catalog from disk
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read catalog file: %v", ErrCatalogLoad, err)
	}
	return Parse(raw)
}

// ListMissions returns all missions in catalog order
func (c *Catalog) ListMissions() []Mission {
	out := make([]Mission, len(c.missions))
	copy(out, c.missions)
	return out
}

// GetMission looks up a mission by id
func (c *Catalog) GetMission(id string) (Mission, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Mission{}, fmt.Errorf("%w: %s", ErrMissionNotFound, id)
	}
	return c.missions[idx], nil
}

// StagesOf returns a mission's stages ordered by ordinal
func (c *Catalog) StagesOf(missionID string) ([]Stage, error) {
	m, err := c.GetMission(missionID)
	if err != nil {
		return nil, err
	}
	out := make([]Stage, len(m.Stages))
	copy(out, m.Stages)
	return out, nil
}

// Stage looks up one stage of a mission
func (c *Catalog) Stage(missionID, stageID string) (Stage, error) {
	m, err := c.GetMission(missionID)
	if err != nil {
		return Stage{}, err
	}
	s, ok := m.stage(stageID)
	if !ok {
		return Stage{}, fmt.Errorf("%w: %s/%s", ErrStageNotFound, missionID, stageID)
	}
	return s, nil
}

// First returns the first mission of the catalog
func (c *Catalog) First() Mission {
	return c.missions[0]
}

// ForVertical returns the missions of a vertical in catalog order
func (c *Catalog) ForVertical(v Vertical) []Mission {
	var out []Mission
	for _, m := range c.missions {
		if m.Vertical.Matches(v) {
			out = append(out, m)
		}
	}
	return out
}

// StagesForVertical projects each mission of the vertical to its ordered stage labels
func (c *Catalog) StagesForVertical(v Vertical) []StageLabels {
	missions := c.ForVertical(v)
	out := make([]StageLabels, 0, len(missions))
	for _, m := range missions {
		labels := make([]string, len(m.Stages))
		for i, s := range m.Stages {
			labels[i] = s.Label
		}
		out = append(out, StageLabels{MissionID: m.ID, Title: m.Title, Labels: labels})
	}
	return out
}

// ResolveMissionRef maps a model-supplied reference (id or title) to a mission id
func (c *Catalog) ResolveMissionRef(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if _, ok := c.byID[ref]; ok {
		return ref, true
	}
	for _, m := range c.missions {
		if strings.EqualFold(m.ID, ref) || strings.EqualFold(m.Title, ref) {
			return m.ID, true
		}
	}
	return "", false
}

// ResolveStageRef maps a model-supplied reference (id or label) to a stage id of the mission
func (c *Catalog) ResolveStageRef(missionID, ref string) (string, bool) {
	m, err := c.GetMission(missionID)
	if err != nil {
		return "", false
	}
	ref = strings.TrimSpace(ref)
	for _, s := range m.Stages {
		if s.ID == ref {
			return s.ID, true
		}
	}
	for _, s := range m.Stages {
		if strings.EqualFold(s.ID, ref) || strings.EqualFold(s.Label, ref) {
			return s.ID, true
		}
	}
	return "", false
}
