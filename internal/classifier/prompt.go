package classifier

import (
	"fmt"
	"strings"

	"go-journey/internal/chat"
	"go-journey/internal/member"
	"go-journey/internal/mission"
	"go-journey/internal/signal"
)

// SystemPrompt is sent as the system message of every classification call
const SystemPrompt = "You are an expert at analyzing conversation history and classifying member missions. Always respond with valid JSON."

const maxPromptSignals = 10

func buildPrompt(m member.Member, history []chat.Message, recent []signal.Signal, candidates []mission.Mission, snippets []string) string {
	var b strings.Builder

	b.WriteString("You identify the mission and the corresponding stage of a member based on their conversation history, ")
	b.WriteString("strictly using the missions and stages listed below.\n\n")

	b.WriteString("Missions and stages (mission_id | title | vertical | kind: stage_id = label, ...):\n")
	for _, ms := range candidates {
		pairs := make([]string, len(ms.Stages))
		for i, s := range ms.Stages {
			pairs[i] = fmt.Sprintf("%s = %s", s.ID, s.Label)
		}
		fmt.Fprintf(&b, "- %s | %s | %s | %s: %s\n", ms.ID, ms.Title, ms.Vertical, ms.Kind, strings.Join(pairs, ", "))
	}

	b.WriteString("\nMember profile:\n")
	b.WriteString(m.ProfileText())

	if len(recent) > 0 {
		b.WriteString("\nRecent signals (oldest first):\n")
		if len(recent) > maxPromptSignals {
			recent = recent[len(recent)-maxPromptSignals:]
		}
		for _, s := range recent {
			fmt.Fprintf(&b, "- [%s] %s", s.Tag, s.Title)
			if s.Description != "" {
				fmt.Fprintf(&b, ": %s", s.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(snippets) > 0 {
		b.WriteString("\nProduct knowledge:\n")
		for _, s := range snippets {
			fmt.Fprintf(&b, "---\n%s\n", s)
		}
	}

	b.WriteString("\nConversation history:\n")
	for _, msg := range history {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}

	b.WriteString("\nReturn your answer strictly as one JSON object with keys: ")
	b.WriteString(`mission_id (one of the ids above), stage_id (a stage of that mission), `)
	b.WriteString(`churn_probability (number between 0 and 1), recommendation (the next best action), `)
	b.WriteString(`signals (array of {"tag": one of positive|negative|warning|neutral|growth, "title", "description"} observed in the latest messages), `)
	b.WriteString("explanation.")
	return b.String()
}
