// Package categorize assigns productivity categories to activity
// records using an in-memory, TTL-bounded snapshot of the rule set.
package categorize

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/tekpossible/ems/server/database"
	"github.com/tekpossible/ems/zapctx"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Activity is the observable slice of an activity record that rule
// matching looks at.
type Activity struct {
	WindowTitle string
	ProcessName string
}

// snapshot is an immutable view of the rule set. It is swapped whole on
// refresh, so readers never observe a partially updated rule list.
type snapshot struct {
	rules      []database.CategorizationRule
	categories map[primitive.ObjectID]database.Category
	fallback   *primitive.ObjectID
}

func newSnapshot(rules []database.CategorizationRule, categories []database.Category) *snapshot {
	s := &snapshot{
		rules:      make([]database.CategorizationRule, len(rules)),
		categories: make(map[primitive.ObjectID]database.Category, len(categories)),
	}
	copy(s.rules, rules)

	// Priority ascending, pattern as tie-break: the first matching rule
	// in this order wins.
	sort.SliceStable(s.rules, func(i, j int) bool {
		if s.rules[i].Priority != s.rules[j].Priority {
			return s.rules[i].Priority < s.rules[j].Priority
		}
		return s.rules[i].Pattern < s.rules[j].Pattern
	})

	for _, cat := range categories {
		s.categories[cat.ID] = cat
		if cat.IsFallback && s.fallback == nil {
			id := cat.ID
			s.fallback = &id
		}
	}
	return s
}

// categorize returns the category of the first matching rule, or the
// fallback category (possibly nil) when nothing matches.
func (s *snapshot) categorize(ctx context.Context, act Activity) *primitive.ObjectID {
	for _, rule := range s.rules {
		target, ok := matchTarget(rule.Type, act)
		if !ok {
			continue
		}
		if !matches(rule.Mode, target, strings.ToLower(rule.Pattern)) {
			continue
		}
		if _, known := s.categories[rule.CategoryID]; !known {
			// Orphaned rule: the category was deleted out from under it.
			zapctx.Warn(ctx, "Rule references missing category",
				zap.String("rule_id", rule.ID.Hex()),
				zap.String("category_id", rule.CategoryID.Hex()),
				zap.String("pattern", rule.Pattern))
			continue
		}
		id := rule.CategoryID
		return &id
	}
	return s.fallbackID()
}

func (s *snapshot) fallbackID() *primitive.ObjectID {
	if s.fallback == nil {
		return nil
	}
	id := *s.fallback
	return &id
}

// matchTarget builds the lowercased string a rule is matched against.
// ok is false when the rule cannot apply to this activity at all, e.g.
// a website-domain rule against a title with no domain in it.
func matchTarget(ruleType string, act Activity) (string, bool) {
	switch ruleType {
	case database.RuleTypeProcessName:
		return strings.ToLower(act.ProcessName), true
	case database.RuleTypeWindowTitle:
		return strings.ToLower(act.WindowTitle), true
	case database.RuleTypeWebsiteDomain:
		return extractDomain(act.WindowTitle)
	}
	return "", false
}

func matches(mode, target, pattern string) bool {
	switch mode {
	case database.MatchExact:
		return target == pattern
	case database.MatchContains:
		return strings.Contains(target, pattern)
	case database.MatchStartsWith:
		return strings.HasPrefix(target, pattern)
	case database.MatchEndsWith:
		return strings.HasSuffix(target, pattern)
	}
	return false
}

// domainPattern recognizes a domain-like token: dot-separated labels
// ending in an alphabetic TLD of at least two characters.
var domainPattern = regexp.MustCompile(`(?i)\b(?:[a-z0-9][a-z0-9-]*\.)+[a-z]{2,}\b`)

// extractDomain pulls the first domain-like substring out of a window
// title. Browser titles commonly embed the site, e.g.
// "Inbox - mail.example.com - Chromium".
func extractDomain(windowTitle string) (string, bool) {
	match := domainPattern.FindString(windowTitle)
	if match == "" {
		return "", false
	}
	return strings.ToLower(match), true
}
