// Package policy implements the degradation policy resolver: it maps a
// caller tier, an action type, and the caller's cumulative usage for the
// current period to a concrete model selection plus a fallback cascade.
//
// Subscribers follow an operator-configured threshold staircase (model
// quality and reasoning effort step down as the period count rises); all
// other tiers receive a statically configured assignment and skip the
// staircase entirely — their gating is binary and decided by the ledger, not
// here. The rule file is read once at startup and is read-only to the
// gateway at request time.
//
// Missing or unreadable configuration never rejects a request: resolution
// fails closed to the designated last-resort entry and logs a warning.
package policy

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-wingman-backend/internal/domain"
)

// Entry is one (provider, model, effort) cascade candidate.
type Entry struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Effort   string `json:"effort"`
}

// Rule is one step of the subscriber degradation staircase. The rule applies
// to counts up to and including Threshold; rules for an action type form a
// monotonically increasing staircase evaluated in ascending threshold order.
type Rule struct {
	ActionType string `json:"action_type"`
	Threshold  int    `json:"threshold"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Effort     string `json:"effort"`
	SortOrder  int    `json:"sort_order"`
}

// Selection is the resolved outcome for one request: the primary candidate
// and the full ordered cascade (primary first, last-resort always last).
// Computed fresh per request; never persisted.
type Selection struct {
	Primary Entry
	Cascade []Entry
}

// ruleFile is the on-disk shape of the operator-edited policy file.
type ruleFile struct {
	Rules     []Rule             `json:"rules"`
	Fallbacks map[string][]Entry `json:"fallbacks"` // secondary chain per action type
}

// Resolver holds the loaded rule set plus the static assignments for
// non-staircase tiers. All fields are immutable after Load.
type Resolver struct {
	rules     map[string][]Rule  // per action type, ascending threshold
	fallbacks map[string][]Entry // per action type

	// GuestEntry serves Guest and FreeRegistered callers.
	GuestEntry Entry
	// RegisteredEntry serves registered-but-unpaid callers.
	RegisteredEntry Entry
	// LastResort terminates every cascade.
	LastResort Entry
}

// Load reads the rule file at path and builds a Resolver. A missing or
// malformed file is not fatal: the compiled-in defaults are used and a
// warning is logged, because policy configuration must never block traffic.
func Load(path string, guest, registered, lastResort Entry) *Resolver {
	r := &Resolver{
		GuestEntry:      guest,
		RegisteredEntry: registered,
		LastResort:      lastResort,
	}

	var rf ruleFile
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("policy file unavailable; using built-in degradation rules")
		rf = defaultRuleFile()
	} else if err := json.Unmarshal(raw, &rf); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("policy file malformed; using built-in degradation rules")
		rf = defaultRuleFile()
	}

	r.rules = make(map[string][]Rule, 3)
	for _, rule := range rf.Rules {
		r.rules[rule.ActionType] = append(r.rules[rule.ActionType], rule)
	}
	for action, rules := range r.rules {
		sort.SliceStable(rules, func(i, j int) bool {
			if rules[i].Threshold != rules[j].Threshold {
				return rules[i].Threshold < rules[j].Threshold
			}
			return rules[i].SortOrder < rules[j].SortOrder
		})
		for i := 1; i < len(rules); i++ {
			if rules[i].Threshold == rules[i-1].Threshold {
				log.Warn().
					Str("action_type", action).
					Int("threshold", rules[i].Threshold).
					Msg("equal-threshold degradation rules; selection between them is undefined")
			}
		}
		r.rules[action] = rules
	}
	r.fallbacks = rf.Fallbacks
	if r.fallbacks == nil {
		r.fallbacks = map[string][]Entry{}
	}
	return r
}

// Resolve returns the model selection for one request. The staircase is
// entered with the caller's current period count; thresholds are inclusive,
// so a subscriber sitting exactly on a threshold still receives that
// threshold's model.
func (r *Resolver) Resolve(tier, actionType string, acct *domain.UsageAccount) Selection {
	var primary Entry
	switch tier {
	case domain.TierGuest, domain.TierFreeRegistered:
		primary = r.GuestEntry
	case domain.TierRegistered:
		primary = r.RegisteredEntry
	case domain.TierSubscriber:
		n := acct.DailyActionCount
		if acct.LegacyWeekly {
			n = acct.WeeklyActionCount
		}
		primary = r.staircase(actionType, n)
	default:
		primary = r.LastResort
	}
	return Selection{Primary: primary, Cascade: r.cascade(actionType, primary)}
}

// staircase picks the first rule whose threshold covers count n, or the
// last-resort entry when the action has no rules or n exceeds them all.
func (r *Resolver) staircase(actionType string, n int) Entry {
	rules := r.rules[actionType]
	if len(rules) == 0 {
		log.Warn().Str("action_type", actionType).Msg("no degradation rules configured; failing closed to fallback model")
		return r.LastResort
	}
	for _, rule := range rules {
		if rule.Threshold >= n {
			return Entry{Provider: rule.Provider, Model: rule.Model, Effort: rule.Effort}
		}
	}
	// Past the highest threshold: stay on the cheapest configured rung.
	last := rules[len(rules)-1]
	return Entry{Provider: last.Provider, Model: last.Model, Effort: last.Effort}
}

// cascade builds [primary] + static per-action chain + last resort,
// deduplicating by provider+model.
func (r *Resolver) cascade(actionType string, primary Entry) []Entry {
	out := make([]Entry, 0, 4)
	seen := map[string]struct{}{}
	add := func(e Entry) {
		if e.Model == "" {
			return
		}
		k := e.Provider + "/" + e.Model
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	add(primary)
	for _, e := range r.fallbacks[actionType] {
		add(e)
	}
	add(r.LastResort)
	return out
}

// defaultRuleFile is the compiled-in staircase used when no operator file is
// present. Thresholds are inclusive upper bounds on the daily count.
func defaultRuleFile() ruleFile {
	return ruleFile{
		Rules: []Rule{
			{ActionType: domain.ActionOpener, Threshold: 25, Provider: "anthropic", Model: "claude-sonnet-4", Effort: "high", SortOrder: 1},
			{ActionType: domain.ActionOpener, Threshold: 100, Provider: "openai", Model: "gpt-4o", Effort: "medium", SortOrder: 2},
			{ActionType: domain.ActionOpener, Threshold: 300, Provider: "googleai", Model: "gemini-2.0-flash", Effort: "low", SortOrder: 3},
			{ActionType: domain.ActionReply, Threshold: 50, Provider: "anthropic", Model: "claude-sonnet-4", Effort: "high", SortOrder: 1},
			{ActionType: domain.ActionReply, Threshold: 200, Provider: "googleai", Model: "gemini-2.5-pro", Effort: "medium", SortOrder: 2},
			{ActionType: domain.ActionReply, Threshold: 500, Provider: "googleai", Model: "gemini-2.0-flash", Effort: "low", SortOrder: 3},
			{ActionType: domain.ActionOCR, Threshold: 50, Provider: "openai", Model: "gpt-4o", Effort: "medium", SortOrder: 1},
			{ActionType: domain.ActionOCR, Threshold: 200, Provider: "googleai", Model: "gemini-2.0-flash", Effort: "low", SortOrder: 2},
		},
		Fallbacks: map[string][]Entry{
			domain.ActionOpener: {{Provider: "openai", Model: "gpt-4o-mini", Effort: "low"}},
			domain.ActionReply:  {{Provider: "openai", Model: "gpt-4o-mini", Effort: "low"}},
			domain.ActionOCR:    {{Provider: "openai", Model: "gpt-4o-mini", Effort: "low"}},
		},
	}
}
