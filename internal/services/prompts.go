package services

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-wingman-backend/internal/domain"
)

// systemPrompts holds the per-action base instruction. The provider treats
// these as opaque text; only the response shape (a JSON array of short
// messages) matters to the gateway.
var systemPrompts = map[string]string{
	domain.ActionOpener: "You write short, charming conversation openers for a dating app. " +
		"Given a match's profile, respond with a JSON array of objects, each {\"message\": string}. " +
		"Keep every opener under 30 words. No emoji spam, no pickup clichés.",
	domain.ActionReply: "You continue dating-app conversations. Given the conversation so far, " +
		"respond with a JSON array of objects, each {\"message\": string}, suggesting the next message to send. " +
		"Match the existing tone. Keep every suggestion under 40 words.",
	domain.ActionOCR: "You are given a screenshot transcript of a dating-app conversation. " +
		"Suggest the next message to send as a JSON array of objects, each {\"message\": string}.",
}

var toneCaser = cases.Title(language.English)

// buildPrompts assembles the system and user prompt for one generation.
// Tone and custom instructions are appended to the system prompt; the
// caller-supplied context becomes the user prompt verbatim.
func buildPrompts(actionType, promptContext, tone, custom string, count int) (system, user string) {
	var b strings.Builder
	b.WriteString(systemPrompts[actionType])
	fmt.Fprintf(&b, " Return exactly %d suggestions.", count)
	if t := strings.TrimSpace(tone); t != "" {
		fmt.Fprintf(&b, " Desired tone: %s.", toneCaser.String(t))
	}
	if c := strings.TrimSpace(custom); c != "" {
		fmt.Fprintf(&b, " Additional instructions from the user: %s", c)
	}
	return b.String(), strings.TrimSpace(promptContext)
}
