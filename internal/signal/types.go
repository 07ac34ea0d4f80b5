package signal

import (
	"fmt"
	"strings"
	"time"
)

// Tag classifies an interaction signal
type Tag string

const (
	TagPositive Tag = "positive"
	TagNegative Tag = "negative"
	TagWarning  Tag = "warning"
	TagNeutral  Tag = "neutral"
	TagGrowth   Tag = "growth"
)

// Source records where a signal came from
type Source string

const (
	SourceClassifier Source = "classifier"
	SourceTrigger    Source = "trigger"
	SourceResolver   Source = "resolver"
	SourceTracker    Source = "tracker"
	SourceSeed       Source = "seed"
)

// ParseTag validates a tag string; matching is case-insensitive
func ParseTag(s string) (Tag, error) {
	switch t := Tag(strings.ToLower(strings.TrimSpace(s))); t {
	case TagPositive, TagNegative, TagWarning, TagNeutral, TagGrowth:
		return t, nil
	default:
		return "", fmt.Errorf("invalid signal tag: %q (must be positive, negative, warning, neutral or growth)", s)
	}
}

// Signal is a tagged, timestamped observation about a member
type Signal struct {
	ID          string    `json:"id"`
	MemberID    string    `json:"member_id"`
	Timestamp   time.Time `json:"timestamp"`
	Tag         Tag       `json:"tag"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Source      Source    `json:"source,omitempty"`
}

// Count returns how many signals carry any of the given tags
func Count(signals []Signal, tags ...Tag) int {
	n := 0
	for _, s := range signals {
		for _, t := range tags {
			if s.Tag == t {
				n++
				break
			}
		}
	}
	return n
}
