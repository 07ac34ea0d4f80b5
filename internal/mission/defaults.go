package mission

import "go-journey/internal/signal"

// Default returns the built-in catalog used when no catalog file is configured.
func Default() *Catalog {
	c, err := New(defaultMissions())
	if err != nil {
		// The built-in data is covered by tests; failing here is a programming error.
		panic(err)
	}
	return c
}

func defaultMissions() []Mission {
	return []Mission{
		{
			ID:          "MSN001",
			Vertical:    VerticalBFSI,
			Title:       "Investment Product Adoption",
			Description: "Guide loyal member to adopt Mutual Fund SIP",
			Kind:        KindGrowth,
			EndGoal:     "Adopt new investment product (Mutual Fund SIP)",
			Stages: []Stage{
				{ID: "loyal_member", Label: "Loyal Member", Ordinal: 0, Emoji: "✅", Color: "green", EntryTags: []signal.Tag{signal.TagPositive}},
				{ID: "opportunity_detected", Label: "Opportunity Detected", Ordinal: 1, Emoji: "⚠️", Color: "yellow", EntryTags: []signal.Tag{signal.TagPositive, signal.TagGrowth}},
				{ID: "consideration", Label: "Consideration", Ordinal: 2, Emoji: "🤔", Color: "blue", EntryTags: []signal.Tag{signal.TagPositive, signal.TagGrowth}},
				{ID: "multi_product_member", Label: "Multi-Product Member", Ordinal: 3, Emoji: "🌟", Color: "gold", EntryTags: []signal.Tag{signal.TagGrowth}},
			},
		},
		{
			ID:            "MSN002",
			Vertical:      VerticalBFSI,
			Title:         "High-Value Retention",
			Description:   "Identify and re-engage at-risk members to prevent churn",
			Kind:          KindRetention,
			EndGoal:       "Retain at-risk member and restore active engagement",
			EntryStageIDs: []string{"active_member", "at_risk"},
			Stages: []Stage{
				{ID: "active_member", Label: "Active Member", Ordinal: 0, Emoji: "✅", Color: "green", EntryTags: []signal.Tag{signal.TagNeutral}},
				{ID: "at_risk", Label: "At Risk", Ordinal: 1, Emoji: "🚨", Color: "red", EntryTags: []signal.Tag{signal.TagNegative, signal.TagWarning}},
				{ID: "re_engagement", Label: "Re-engagement", Ordinal: 2, Emoji: "🔄", Color: "orange", EntryTags: []signal.Tag{signal.TagPositive}},
				{ID: "retained_member", Label: "Retained Member", Ordinal: 3, Emoji: "💚", Color: "green", EntryTags: []signal.Tag{signal.TagPositive}},
			},
		},
		{
			ID:          "MSN003",
			Vertical:    VerticalHealthcare,
			Title:       "Preventative Wellness Journey",
			Description: "Transition chronic care patient to proactive wellness",
			Kind:        KindGrowth,
			EndGoal:     "Adopt a personalized, preventative wellness plan",
			Stages: []Stage{
				{ID: "stable_patient", Label: "Stable Patient", Ordinal: 0, Emoji: "✅", Color: "green"},
				{ID: "proactive_opportunity", Label: "Proactive Opportunity", Ordinal: 1, Emoji: "⚠️", Color: "yellow"},
				{ID: "engagement", Label: "Engagement", Ordinal: 2, Emoji: "💬", Color: "blue"},
				{ID: "deepened_relationship", Label: "Deepened Relationship", Ordinal: 3, Emoji: "❤️", Color: "red"},
			},
		},
		{
			ID:          "MSN004",
			Vertical:    VerticalECommerce,
			Title:       "Premium Customer Acquisition",
			Description: "Convert anonymous browser to first-time buyer",
			Kind:        KindGrowth,
			EndGoal:     "Convert into a high-value first-time customer",
			Stages: []Stage{
				{ID: "prospect", Label: "Prospect", Ordinal: 0, Emoji: "🚶", Color: "gray"},
				{ID: "qualified_lead", Label: "Qualified Lead", Ordinal: 1, Emoji: "🎯", Color: "orange"},
				{ID: "consultation_booked", Label: "Consultation Booked", Ordinal: 2, Emoji: "📅", Color: "blue"},
				{ID: "first_purchase", Label: "First Purchase", Ordinal: 3, Emoji: "🛍️", Color: "purple"},
			},
		},
	}
}
