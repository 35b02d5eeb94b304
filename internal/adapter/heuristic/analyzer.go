// Package heuristic implements the insight ports with fixed keyword tables.
// The tables are ordered: the first matching rule wins.
package heuristic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Strob0t/taskrelay/internal/domain/report"
)

// Analyzer implements insight.Analyzer with keyword scans.
type Analyzer struct{}

// NewAnalyzer creates a keyword Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

type causeRule struct {
	keywords    []string
	category    report.FailureCategory
	likelyCause string
	suggestions []string
}

// causeRules is checked top to bottom. The environment rule has no keywords
// and acts as the fallback.
var causeRules = []causeRule{
	{
		keywords:    []string{"null", "undefined"},
		category:    report.CategorySetup,
		likelyCause: "A value was null or undefined: test setup is incomplete or a mock returns nothing",
		suggestions: []string{
			"Check that every fixture the test reads is initialised in setup",
			"Verify mocks return a value for the code path under test",
			"Look for optional fields accessed without a guard",
			"Confirm async data is loaded before the assertion runs",
		},
	},
	{
		keywords:    []string{"assertion", "expected"},
		category:    report.CategoryLogic,
		likelyCause: "The implementation produced a different value than the test expects (logic error)",
		suggestions: []string{
			"Compare the expected and actual values in the failure output",
			"Re-read the acceptance criteria the assertion encodes",
			"Step through the branch that computes the asserted value",
			"Check whether the test expectation itself is outdated",
		},
	},
	{
		keywords:    []string{"timeout"},
		category:    report.CategoryAsync,
		likelyCause: "An async operation did not settle in time: timing issue or race condition",
		suggestions: []string{
			"Await every promise or callback the test starts",
			"Replace real timers with fake timers where the code waits",
			"Look for shared state mutated by concurrent operations",
			"Check for network or I/O calls that are not mocked",
		},
	},
	{
		keywords:    []string{"mock", "spy"},
		category:    report.CategoryStub,
		likelyCause: "A mock or spy is misconfigured, not called as expected, or not restored between tests",
		suggestions: []string{
			"Verify the mock is installed before the module under test loads",
			"Check the expected call arguments against the real call",
			"Restore or reset mocks and spies between tests",
			"Make sure the mocked path matches the import path exactly",
		},
	},
	{
		keywords:    []string{"import", "module"},
		category:    report.CategoryDependency,
		likelyCause: "A module could not be imported or resolved (dependency issue)",
		suggestions: []string{
			"Check the import path and file name casing",
			"Install or update the missing dependency",
			"Verify module resolution settings in the test runner config",
			"Look for circular imports introduced by the change",
		},
	},
	{
		category:    report.CategoryEnvironment,
		likelyCause: "Environment or configuration differs from what the test assumes",
		suggestions: []string{
			"Compare environment variables between local and CI runs",
			"Check runtime and dependency versions",
			"Clear caches and rebuild before re-running",
			"Run the test in isolation to rule out ordering effects",
		},
	},
}

// RootCause classifies errorText with the ordered rule table. possibilities
// come first in the suggestion list, which is capped at
// report.MaxSuggestions.
func (a *Analyzer) RootCause(errorText string, possibilities []string) report.RootCause {
	lower := strings.ToLower(errorText)
	rule := causeRules[len(causeRules)-1]
	for _, r := range causeRules {
		if containsAny(lower, r.keywords) {
			rule = r
			break
		}
	}

	suggestions := make([]string, 0, report.MaxSuggestions)
	seen := make(map[string]bool)
	for _, s := range append(append([]string{}, possibilities...), rule.suggestions...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		suggestions = append(suggestions, s)
		if len(suggestions) == report.MaxSuggestions {
			break
		}
	}

	return report.RootCause{
		Category:    rule.category,
		LikelyCause: rule.likelyCause,
		Suggestions: suggestions,
	}
}

var (
	followUpKeywords = []string{"need", "should", "todo"}
	actionKeywords   = []string{"bug", "issue", "problem", "error"}
)

// ClassifyObservation buckets text: follow-up wording wins over problem
// wording; anything else is just noted.
func (a *Analyzer) ClassifyObservation(text string) report.ObservationClass {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, followUpKeywords):
		return report.ClassFollowUpSuggested
	case containsAny(lower, actionKeywords):
		return report.ClassActionRequired
	default:
		return report.ClassNoted
	}
}

// Complexity labels.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

var (
	highComplexityKeywords   = []string{"refactor", "architecture", "migrat", "integrat", "security", "performance", "database"}
	mediumComplexityKeywords = []string{"implement", "add", "create", "update", "component", "form", "api"}
)

// Complexity returns a crude label from a keyword scan of description.
func (a *Analyzer) Complexity(description string) string {
	lower := strings.ToLower(description)
	switch {
	case containsAny(lower, highComplexityKeywords):
		return ComplexityHigh
	case containsAny(lower, mediumComplexityKeywords):
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// vagueRules is checked top to bottom per line; the first match picks the
// question asked about that line.
var vagueRules = []struct {
	pattern  *regexp.Regexp
	question string
}{
	{regexp.MustCompile(`(?i)\b(maybe|perhaps|possibly|might|could|should)\b`), "Please confirm whether this is required or optional: %s"},
	{regexp.MustCompile(`(?i)\b(some|few|many|several|various)\b`), "Please specify the exact quantity: %s"},
	{regexp.MustCompile(`(?i)\b(TBD|TODO|FIXME)\b`), "Please provide the missing details: %s"},
	{regexp.MustCompile(`(?i)\b(etc|and so on)\b`), "Please list every item meant: %s"},
	{regexp.MustCompile(`(?i)\b(approximately|around|about)\b`), "Please give a precise value: %s"},
	{regexp.MustCompile(`\?\?`), "Please clarify: %s"},
}

// Clarifications returns one question per vague line of text, in line
// order. Each question quotes the line it asks about.
func (a *Analyzer) Clarifications(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, r := range vagueRules {
			if r.pattern.MatchString(line) {
				out = append(out, fmt.Sprintf(r.question, strconv.Quote(line)))
				break
			}
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
