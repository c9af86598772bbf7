// Package match maps free-text viewer input to a keyword rule category
// and a reply string.
package match

import (
	"strings"
	"sync"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
)

// Result is a successful match: the rule's category prefix and the reply
// text to send back on the live platform (may be empty).
type Result struct {
	Prefix string
	Reply  string
}

// Engine scores rule candidates against viewer text. Matching runs two
// rounds: a strict round honouring must/any/deny, and a degraded round
// that ignores the any-set when the strict round found nothing. Deny
// disqualifies in both rounds.
//
// Rules are kept in a slice, in load order. Equal scores resolve to the
// earlier rule: the comparison is strictly-greater, so the first rule
// seen at the best score wins. This reproduces the historical tie-break
// behaviour; do not change it to last-wins or randomised order.
type Engine struct {
	mu    sync.RWMutex
	rules []domain.Rule
	log   *logger.Logger
}

// NewEngine creates an engine over the given rule set.
func NewEngine(rules []domain.Rule, log *logger.Logger) *Engine {
	return &Engine{rules: rules, log: log}
}

// Reload replaces the rule set. Safe to call while Match runs.
func (e *Engine) Reload(rules []domain.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.log.Info("match engine reloaded, %d rules", len(rules))
}

// Rules returns a copy of the current rule set.
func (e *Engine) Rules() []domain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Match returns the best-scoring rule for text, or ok=false when nothing
// qualifies in either round.
func (e *Engine) Match(text string) (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if res, ok := e.matchRound(text, true); ok {
		e.log.Debug("match (strict): %q -> %s", text, res.Prefix)
		return res, true
	}
	if res, ok := e.matchRound(text, false); ok {
		e.log.Debug("match (degraded): %q -> %s", text, res.Prefix)
		return res, true
	}
	return Result{}, false
}

// matchRound runs one scoring pass. When useAny is false the any-set is
// ignored entirely: it neither qualifies nor scores.
func (e *Engine) matchRound(text string, useAny bool) (Result, bool) {
	best := Result{}
	bestScore := 0
	found := false

	for _, rule := range e.rules {
		if rule.Prefix == "" {
			continue
		}
		if hitsAny(text, rule.Deny) {
			continue
		}

		mustHits := countHits(text, rule.Must)
		if mustHits < len(rule.Must) {
			continue
		}

		score := rule.Priority*1000 + mustHits*50

		if useAny {
			anyHits := countHits(text, rule.Any)
			if len(rule.Any) > 0 && anyHits == 0 {
				continue
			}
			score += anyHits * 10
		}

		// Strictly greater: ties keep the earlier rule.
		if !found || score > bestScore {
			found = true
			bestScore = score
			best = Result{Prefix: rule.Prefix, Reply: rule.Reply()}
		}
	}

	return best, found
}

// Score exposes the strict-round score of a single rule against text,
// or ok=false when the rule does not qualify. Used by rule-editing tools.
func Score(rule domain.Rule, text string) (int, bool) {
	if hitsAny(text, rule.Deny) {
		return 0, false
	}
	mustHits := countHits(text, rule.Must)
	if mustHits < len(rule.Must) {
		return 0, false
	}
	anyHits := countHits(text, rule.Any)
	if len(rule.Any) > 0 && anyHits == 0 {
		return 0, false
	}
	return rule.Priority*1000 + mustHits*50 + anyHits*10, true
}

func countHits(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			n++
		}
	}
	return n
}

func hitsAny(text string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}
