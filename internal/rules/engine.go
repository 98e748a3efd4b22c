// Package rules provides a YAML-based rules engine that attaches an
// optional category to converted transactions. Categorization is host-side
// enrichment: it runs after conversion and is never consulted by the
// conversion engine.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

//go:embed rules.yaml
var embeddedRules []byte

// MatchType defines how patterns are matched against transaction text
type MatchType string

const (
	// MatchTypeExact requires the pattern to match the entire text exactly
	MatchTypeExact MatchType = "exact"
	// MatchTypeContains requires the pattern to be a substring of the text
	MatchTypeContains MatchType = "contains"
)

// Rule represents a single categorization rule. Rules are validated on
// load; direct struct construction bypasses validation and is only
// appropriate in tests.
type Rule struct {
	Name      string    `yaml:"name"`
	Pattern   string    `yaml:"pattern"`
	MatchType MatchType `yaml:"match_type"`
	Priority  int       `yaml:"priority"`
	Category  string    `yaml:"category"`
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine performs rule matching on transaction text
type Engine struct {
	rules []Rule // Sorted by priority (highest first)
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	for i, rule := range ruleSet.Rules {
		if !domain.ValidateCategory(domain.Category(rule.Category)) {
			return nil, fmt.Errorf("rule %d (%s): invalid category %q", i, rule.Name, rule.Category)
		}
		if rule.Priority < 0 || rule.Priority > 999 {
			return nil, fmt.Errorf("rule %d (%s): priority must be in [0,999], got %d", i, rule.Name, rule.Priority)
		}
		if rule.MatchType != MatchTypeExact && rule.MatchType != MatchTypeContains {
			return nil, fmt.Errorf("rule %d (%s): invalid match_type %q (must be 'exact' or 'contains')", i, rule.Name, rule.MatchType)
		}
		if strings.TrimSpace(rule.Pattern) == "" {
			return nil, fmt.Errorf("rule %d (%s): pattern cannot be empty", i, rule.Name)
		}
	}

	// Sort rules by priority (highest first). Use SliceStable to preserve
	// YAML file order for rules with equal priority (guarantees
	// deterministic matching).
	sortedRules := make([]Rule, len(ruleSet.Rules))
	copy(sortedRules, ruleSet.Rules)
	sort.SliceStable(sortedRules, func(i, j int) bool {
		return sortedRules[i].Priority > sortedRules[j].Priority
	})

	return &Engine{rules: sortedRules}, nil
}

// LoadEmbedded loads the embedded rules.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// GetRules returns a copy of the rules in evaluation order.
func (e *Engine) GetRules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Match applies rules to transaction text and returns the first matching
// rule. Rules are evaluated in priority order (highest first); equal
// priorities keep their YAML file order. Returns (nil, false) if no rule
// matches.
func (e *Engine) Match(text string) (*Rule, bool) {
	normalizedText := normalize(text)

	for i := range e.rules {
		rule := &e.rules[i]
		normalizedPattern := normalize(rule.Pattern)

		matched := false
		switch rule.MatchType {
		case MatchTypeExact:
			matched = normalizedText == normalizedPattern
		case MatchTypeContains:
			matched = strings.Contains(normalizedText, normalizedPattern)
		}

		if matched {
			return rule, true
		}
	}
	return nil, false
}

// Categorize attaches a category to each transaction whose comment or
// merchant title matches a rule. Transactions are modified in place;
// returns how many matched.
func (e *Engine) Categorize(transactions []domain.Transaction) int {
	matched := 0
	for i := range transactions {
		text := transactions[i].Comment
		if transactions[i].Merchant != nil {
			text += " " + transactions[i].Merchant.Title
		}
		if rule, ok := e.Match(text); ok {
			transactions[i].Category = domain.Category(rule.Category)
			matched++
		}
	}
	return matched
}

// normalize folds text for matching: unicode-decomposed with combining
// marks stripped, lowercased and trimmed. Bank comments mix scripts and
// diacritics; matching must not depend on either.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
