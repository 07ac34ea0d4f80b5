package journey

import (
	"time"

	"go-journey/internal/signal"
)

// DefaultSeedSignals returns the demo interaction history of the default members,
// timestamped relative to now.
func DefaultSeedSignals(now time.Time) map[string][]signal.Signal {
	return map[string][]signal.Signal{
		"M001": {
			{
				Timestamp:   now.Add(-24 * time.Hour),
				Tag:         signal.TagPositive,
				Title:       "Consistent Savings Pattern Detected",
				Description: "Member has maintained consistent monthly savings of ₹15,000+ for 6 months.",
			},
			{
				Timestamp:   now.Add(-18 * time.Hour),
				Tag:         signal.TagPositive,
				Title:       "Investment Content Engagement",
				Description: "Viewed 'Mutual Fund Basics' and SIP calculator.",
			},
			{
				Timestamp:   now.Add(-5 * time.Hour),
				Tag:         signal.TagPositive,
				Title:       "Investment Webinar Registration",
				Description: "Registered for 'Smart Investing for Beginners' webinar.",
			},
		},
		"M002": {
			{
				Timestamp:   now.Add(-48 * time.Hour),
				Tag:         signal.TagPositive,
				Title:       "Annual Check-up Completed",
				Description: "Routine check-up completed with stable results.",
			},
		},
		"M003": {
			{
				Timestamp:   now.Add(-3 * time.Hour),
				Tag:         signal.TagNeutral,
				Title:       "Repeated Premium Category Browsing",
				Description: "Browsed premium electronics three times this week without purchasing.",
			},
		},
	}
}
