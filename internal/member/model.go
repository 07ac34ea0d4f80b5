package member

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go-journey/internal/mission"

	"gorm.io/datatypes"
)

// Member is a tracked customer with free-form, vertical-specific profile attributes
type Member struct {
	ID            string            `gorm:"primaryKey;size:32" json:"id"`
	Name          string            `gorm:"size:128" json:"name"`
	Persona       string            `gorm:"size:128" json:"persona"`
	Vertical      mission.Vertical  `gorm:"type:varchar(32);index;not null" json:"vertical"`
	Goal          string            `json:"goal"`
	SeedMissionID string            `gorm:"size:32" json:"seed_mission_id,omitempty"`
	SeedStageID   string            `gorm:"size:64" json:"seed_stage_id,omitempty"`
	Profile       datatypes.JSONMap `json:"profile"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Attr returns a profile attribute
func (m Member) Attr(key string) (interface{}, bool) {
	if m.Profile == nil {
		return nil, false
	}
	v, ok := m.Profile[key]
	return v, ok
}

// Products returns the current_products attribute as strings
func (m Member) Products() []string {
	v, ok := m.Attr(AttrProducts)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

// ProfileText renders the member for a classification prompt with stable key order
func (m Member) ProfileText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\nname: %s\nvertical: %s\n", m.ID, m.Name, m.Vertical)
	if m.Persona != "" {
		fmt.Fprintf(&b, "persona: %s\n", m.Persona)
	}
	if m.Goal != "" {
		fmt.Fprintf(&b, "goal: %s\n", m.Goal)
	}
	keys := make([]string, 0, len(m.Profile))
	for k := range m.Profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, m.Profile[k])
	}
	return b.String()
}

// Well-known profile attribute keys
const (
	AttrAge               = "age"
	AttrJoinedYear        = "joined_year"
	AttrCreditScore       = "credit_score"
	AttrProducts          = "current_products"
	AttrTransactionVolume = "transaction_volume"
	AttrVisitFrequency    = "visit_frequency"
	AttrSessionCount      = "session_count"
	AttrBrowsingBehavior  = "browsing_behavior"
	AttrRiskLevel         = "risk_level"
)

// Defaults returns the seed members loaded at startup
func Defaults() []Member {
	return []Member{
		{
			ID:            "M001",
			Name:          "Rohan S.",
			Persona:       "Existing Loyal Member",
			Vertical:      mission.VerticalBFSI,
			Goal:          "Adopt a new investment product (Mutual Fund SIP)",
			SeedMissionID: "MSN001",
			SeedStageID:   "loyal_member",
			Profile: datatypes.JSONMap{
				AttrAge:               30,
				AttrJoinedYear:        2018,
				AttrCreditScore:       720,
				AttrProducts:          []interface{}{"Checking Account", "Savings Account"},
				AttrTransactionVolume: 25000,
				AttrRiskLevel:         "low",
			},
		},
		{
			ID:            "M002",
			Name:          "Mr. Sharma",
			Persona:       "Chronic Care Patient",
			Vertical:      mission.VerticalHealthcare,
			Goal:          "Adopt a personalized, preventative wellness plan",
			SeedMissionID: "MSN003",
			SeedStageID:   "stable_patient",
			Profile: datatypes.JSONMap{
				AttrAge:            58,
				AttrJoinedYear:     2020,
				AttrProducts:       []interface{}{"Primary Care", "Cardiology"},
				AttrVisitFrequency: "reactive",
				AttrRiskLevel:      "medium",
			},
		},
		{
			ID:            "M003",
			Name:          "Priya K.",
			Persona:       "New Website Visitor",
			Vertical:      mission.VerticalECommerce,
			Goal:          "Convert into a high-value first-time customer",
			SeedMissionID: "MSN004",
			SeedStageID:   "prospect",
			Profile: datatypes.JSONMap{
				AttrAge:              35,
				AttrJoinedYear:       2024,
				AttrSessionCount:     2,
				AttrBrowsingBehavior: "high-intent",
				AttrRiskLevel:        "low",
			},
		},
	}
}
