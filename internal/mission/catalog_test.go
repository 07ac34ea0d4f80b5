package mission

import (
	"os"
	"path/filepath"
	"testing"

	"go-journey/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.Len(t, c.ListMissions(), 4)
	assert.Equal(t, "MSN001", c.First().ID)

	retention, err := c.GetMission("MSN002")
	require.NoError(t, err)
	assert.Equal(t, KindRetention, retention.Kind)
	assert.ElementsMatch(t, []signal.Tag{signal.TagNegative, signal.TagWarning}, retention.SwitchTags)
	assert.True(t, retention.IsEntryStage("at_risk"))

	growth, err := c.GetMission("MSN001")
	require.NoError(t, err)
	assert.Equal(t, []signal.Tag{signal.TagGrowth}, growth.SwitchTags)
	assert.Equal(t, []string{"loyal_member"}, growth.EntryStageIDs)
}

func TestNew_RejectsMissionWithoutStages(t *testing.T) {
	_, err := New([]Mission{{ID: "X", Title: "Empty"}})
	assert.ErrorIs(t, err, ErrCatalogLoad)
}

func TestNew_RejectsDuplicateOrdinals(t *testing.T) {
	_, err := New([]Mission{{
		ID: "X",
		Stages: []Stage{
			{ID: "a", Ordinal: 0},
			{ID: "b", Ordinal: 0},
		},
	}})
	assert.ErrorIs(t, err, ErrCatalogLoad)
}

func TestNew_RejectsDuplicateMissionAndBadEntryStage(t *testing.T) {
	stages := []Stage{{ID: "a", Ordinal: 0}}
	_, err := New([]Mission{{ID: "X", Stages: stages}, {ID: "X", Stages: stages}})
	assert.ErrorIs(t, err, ErrCatalogLoad)

	_, err = New([]Mission{{ID: "Y", Stages: stages, EntryStageIDs: []string{"zzz"}}})
	assert.ErrorIs(t, err, ErrCatalogLoad)

	_, err = New([]Mission{{ID: "Z", Stages: stages, SwitchTags: []signal.Tag{"furious"}}})
	assert.ErrorIs(t, err, ErrCatalogLoad)
}

func TestNew_SortsStagesByOrdinal(t *testing.T) {
	c, err := New([]Mission{{
		ID: "X",
		Stages: []Stage{
			{ID: "late", Ordinal: 5},
			{ID: "early", Ordinal: 1},
		},
	}})
	require.NoError(t, err)

	stages, err := c.StagesOf("X")
	require.NoError(t, err)
	assert.Equal(t, "early", stages[0].ID)
	assert.Equal(t, "late", stages[1].ID)
	assert.Equal(t, "late", stages[1].Label, "label defaults to id")
}

func TestCatalog_Lookups(t *testing.T) {
	c := Default()

	_, err := c.GetMission("nope")
	assert.ErrorIs(t, err, ErrMissionNotFound)

	_, err = c.Stage("MSN001", "at_risk")
	assert.ErrorIs(t, err, ErrStageNotFound)

	id, ok := c.ResolveMissionRef("high-value retention")
	assert.True(t, ok)
	assert.Equal(t, "MSN002", id)

	stageID, ok := c.ResolveStageRef("MSN002", "At Risk")
	assert.True(t, ok)
	assert.Equal(t, "at_risk", stageID)

	_, ok = c.ResolveStageRef("MSN001", "At Risk")
	assert.False(t, ok)
}

func TestCatalog_StagesForVertical(t *testing.T) {
	c := Default()
	got := c.StagesForVertical(Vertical("bfsi"))
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Loyal Member", "Opportunity Detected", "Consideration", "Multi-Product Member"}, got[0].Labels)
	assert.Equal(t, "MSN002", got[1].MissionID)

	assert.Empty(t, c.StagesForVertical("Retail"))
}

func TestMission_EntryStageAndNext(t *testing.T) {
	c := Default()
	retention, _ := c.GetMission("MSN002")

	assert.Equal(t, "at_risk", retention.EntryStage("at_risk").ID)
	assert.Equal(t, "active_member", retention.EntryStage("retained_member").ID)
	assert.True(t, retention.Terminal("retained_member"))

	next, ok := retention.Next("at_risk")
	assert.True(t, ok)
	assert.Equal(t, "re_engagement", next.ID)
	_, ok = retention.Next("retained_member")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	raw := []byte(`
missions:
  - id: GROW
    vertical: Retail
    title: Growth
    kind: growth
    stages:
      - {id: loyal, label: Loyal, ordinal: 0}
      - {id: opportunity, label: Opportunity Detected, ordinal: 1}
  - id: KEEP
    vertical: Retail
    title: Retention
    kind: retention
    entry_stages: [active, at_risk]
    stages:
      - {id: active, ordinal: 0}
      - {id: at_risk, label: At Risk, ordinal: 1, entry_tags: [negative, warning]}
`)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	keep, err := c.GetMission("KEEP")
	require.NoError(t, err)
	assert.Equal(t, []signal.Tag{signal.TagNegative, signal.TagWarning}, keep.SwitchTags)
	assert.Len(t, c.ForVertical("retail"), 2)
}

func TestLoadFile_Failures(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrCatalogLoad)

	_, err = Parse([]byte("missions: [this is: not valid"))
	assert.ErrorIs(t, err, ErrCatalogLoad)

	_, err = Parse([]byte("missions: []"))
	assert.ErrorIs(t, err, ErrCatalogLoad)
}
