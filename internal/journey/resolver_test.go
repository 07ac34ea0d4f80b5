package journey

import (
	"testing"

	"go-journey/internal/classifier"
	"go-journey/internal/mission"
	"go-journey/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signalsOf(tags ...signal.Tag) []signal.Signal {
	out := make([]signal.Signal, len(tags))
	for i, t := range tags {
		out[i] = signal.Signal{Tag: t}
	}
	return out
}

func TestResolve(t *testing.T) {
	r := NewResolver(mission.Default(), 0)
	require.Equal(t, DefaultSwitchThreshold, r.Threshold())

	growth := State{MissionID: "MSN001", StageID: "consideration", Classified: true}
	retention := State{MissionID: "MSN002", StageID: "at_risk", Classified: true}

	cases := []struct {
		name     string
		current  State
		proposed string
		recent   []signal.Signal
		want     Decision
		mission  string
	}{
		{"first call adopts", State{MissionID: "MSN001"}, "MSN002", nil, DecisionAdopt, "MSN002"},
		{"same mission stays", growth, "MSN001", nil, DecisionStay, "MSN001"},
		{"retention with two negatives", growth, "MSN002", signalsOf(signal.TagNegative, signal.TagNegative), DecisionSwitch, "MSN002"},
		{"retention with negative and warning", growth, "MSN002", signalsOf(signal.TagWarning, signal.TagPositive, signal.TagNegative), DecisionSwitch, "MSN002"},
		{"retention with one negative", growth, "MSN002", signalsOf(signal.TagNegative, signal.TagPositive), DecisionHold, "MSN001"},
		{"growth tags do not corroborate retention", growth, "MSN002", signalsOf(signal.TagGrowth, signal.TagGrowth), DecisionHold, "MSN001"},
		{"back to growth with two growth", retention, "MSN001", signalsOf(signal.TagGrowth, signal.TagGrowth), DecisionSwitch, "MSN001"},
		{"back to growth on negatives", retention, "MSN001", signalsOf(signal.TagNegative, signal.TagNegative), DecisionHold, "MSN002"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Resolve(tc.current, classifier.Classification{MissionID: tc.proposed}, tc.recent)
			assert.Equal(t, tc.want, res.Decision)
			assert.Equal(t, tc.mission, res.MissionID)
			if tc.want == DecisionHold {
				require.NotNil(t, res.Note)
				assert.Equal(t, signal.TagNeutral, res.Note.Tag)
			} else {
				assert.Nil(t, res.Note)
			}
		})
	}
}

func TestResolve_ConfigurableThreshold(t *testing.T) {
	growth := State{MissionID: "MSN001", Classified: true}
	proposed := classifier.Classification{MissionID: "MSN002"}
	recent := signalsOf(signal.TagNegative, signal.TagNegative)

	assert.Equal(t, DecisionHold, NewResolver(mission.Default(), 3).Resolve(growth, proposed, recent).Decision)
	assert.Equal(t, DecisionSwitch, NewResolver(mission.Default(), 1).Resolve(growth, proposed, recent[:1]).Decision)
}
