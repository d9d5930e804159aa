package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/platform/ai/textgen"
	"leadflow_backend/platform/sanitize"
)

const (
	followUpMaxRunes  = 320
	followUpMaxTokens = 160
)

// Strategy is the persuasion angle the follow-up is written with.
type Strategy string

const (
	StrategyCheckIn    Strategy = "helpful_check_in"
	StrategyValue      Strategy = "value_reminder"
	StrategyFreshAngle Strategy = "fresh_angle"
)

var strategyHints = map[Strategy]string{
	StrategyCheckIn:    "Briefly acknowledge their question and offer to answer it right now.",
	StrategyValue:      "Remind them of the main benefit they asked about and invite a quick reply.",
	StrategyFreshAngle: "Open with a new, relevant angle on their request and ask one easy question.",
}

const followUpSystem = "You write short follow-up messages from a sales team to a prospective customer. " +
	"Write plain text only, at most two sentences, friendly and specific, no emojis, no signature."

// strategyFor picks the angle from how long the lead has waited.
func strategyFor(waited time.Duration) Strategy {
	if waited < 2*time.Hour {
		return StrategyCheckIn
	}
	return StrategyValue
}

func followUpPrompt(contactName, lastMessage string, strategy Strategy) string {
	var b strings.Builder
	if contactName != "" {
		fmt.Fprintf(&b, "Customer name: %s\n", contactName)
	}
	fmt.Fprintf(&b, "Their last message, still unanswered: %q\n", lastMessage)
	fmt.Fprintf(&b, "Approach: %s\n", strategyHints[strategy])
	b.WriteString("Write the follow-up message.")
	return b.String()
}

func fallbackFollowUp(contactName string) string {
	if contactName == "" {
		return "Hi, just checking in on your message. Are you still interested? Reply here and we will pick it up right away."
	}
	return fmt.Sprintf("Hi %s, just checking in on your message. Are you still interested? Reply here and we will pick it up right away.", contactName)
}

// composeFollowUp asks the generator for a message and falls back to a fixed
// text when generation fails or returns nothing usable.
func composeFollowUp(ctx context.Context, gen textgen.Generator, timeout time.Duration, contactName, lastMessage string, strategy Strategy) (string, bool) {
	if gen == nil {
		return fallbackFollowUp(contactName), false
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := gen.Generate(genCtx, followUpPrompt(contactName, lastMessage, strategy), textgen.Options{
		MaxTokens:   followUpMaxTokens,
		Temperature: 0.7,
		System:      followUpSystem,
	})
	if err != nil {
		return fallbackFollowUp(contactName), false
	}
	text = sanitize.Message(text, followUpMaxRunes)
	if text == "" {
		return fallbackFollowUp(contactName), false
	}
	return text, true
}
