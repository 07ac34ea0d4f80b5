package classifier

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go-journey/internal/mission"
	"go-journey/internal/signal"

	"go.uber.org/zap"
)

// rawSignal accepts either a bare tag string or an object
type rawSignal struct {
	Tag         string `json:"tag"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (r *rawSignal) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		r.Tag = tag
		return nil
	}
	type plain rawSignal
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = rawSignal(p)
	return nil
}

// rawClassification is the untrusted model payload before validation
type rawClassification struct {
	MissionID        string      `json:"mission_id"`
	Mission          string      `json:"mission"`
	StageID          string      `json:"stage_id"`
	Stage            string      `json:"stage"`
	ChurnProbability interface{} `json:"churn_probability"`
	Recommendation   string      `json:"recommendation"`
	NextAction       string      `json:"next_action"`
	Signals          []rawSignal `json:"signals"`
	SignalTags       []rawSignal `json:"signal_tags"`
	Explanation      string      `json:"explanation"`
}

// extractJSON pulls the JSON object out of potentially messy model output
func extractJSON(response string) (string, bool) {
	s := response
	if idx := strings.Index(s, "```json"); idx != -1 {
		s = s[idx+7:]
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func parseRaw(response string) (rawClassification, error) {
	var raw rawClassification
	body, ok := extractJSON(response)
	if !ok {
		return raw, fmt.Errorf("%w: no JSON object in model output", ErrClassificationInvalid)
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return raw, fmt.Errorf("%w: malformed JSON: %v", ErrClassificationInvalid, err)
	}
	return raw, nil
}

func parseProbability(v interface{}) (float64, error) {
	var p float64
	switch val := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: churn_probability missing", ErrClassificationInvalid)
	case float64:
		p = val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: churn_probability %q is not a number", ErrClassificationInvalid, val)
		}
		p = f
	default:
		return 0, fmt.Errorf("%w: churn_probability has type %T", ErrClassificationInvalid, v)
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: churn_probability %v outside [0,1]", ErrClassificationInvalid, p)
	}
	return p, nil
}

// validate parses raw model output and checks every id against the catalog
// before a Classification value is built.
func (a *Adapter) validate(response string, candidates []mission.Mission) (Classification, error) {
	raw, err := parseRaw(response)
	if err != nil {
		return Classification{}, err
	}

	missionRef := firstNonEmpty(raw.MissionID, raw.Mission)
	missionID, ok := a.catalog.ResolveMissionRef(missionRef)
	if !ok || !isCandidate(missionID, candidates) {
		return Classification{}, fmt.Errorf("%w: unknown mission %q", ErrClassificationInvalid, missionRef)
	}
	stageRef := firstNonEmpty(raw.StageID, raw.Stage)
	stageID, ok := a.catalog.ResolveStageRef(missionID, stageRef)
	if !ok {
		return Classification{}, fmt.Errorf("%w: stage %q is not part of mission %s", ErrClassificationInvalid, stageRef, missionID)
	}
	churn, err := parseProbability(raw.ChurnProbability)
	if err != nil {
		return Classification{}, err
	}

	cls := Classification{
		MissionID:        missionID,
		StageID:          stageID,
		ChurnProbability: churn,
		Recommendation:   strings.TrimSpace(firstNonEmpty(raw.Recommendation, raw.NextAction)),
		Explanation:      strings.TrimSpace(raw.Explanation),
	}
	for _, rs := range append(raw.Signals, raw.SignalTags...) {
		tag, err := signal.ParseTag(rs.Tag)
		if err != nil {
			a.logger.Warn("Dropping unknown signal tag", zap.String("tag", rs.Tag))
			continue
		}
		title := strings.TrimSpace(rs.Title)
		if title == "" {
			title = "Classifier signal: " + string(tag)
		}
		cls.Signals = append(cls.Signals, SignalNote{Tag: tag, Title: title, Description: strings.TrimSpace(rs.Description)})
	}
	return cls, nil
}

func isCandidate(id string, candidates []mission.Mission) bool {
	for _, m := range candidates {
		if m.ID == id {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
