// Package disqualify matches inbound message text against an ordered list
// of disqualification rules. It runs before the qualification extractor on
// every inbound message; a match short-circuits qualification and drives an
// immediate DISQUALIFIED transition.
package disqualify

import (
	"regexp"
	"strings"
)

// Category is the reason class recorded as the transition cause.
type Category string

const (
	CategoryNone             Category = ""
	CategoryNoInterest       Category = "NO_INTEREST"
	CategoryNoBudget         Category = "NO_BUDGET"
	CategoryAlreadyPurchased Category = "ALREADY_PURCHASED"
	CategoryJustBrowsing     Category = "JUST_BROWSING"
	CategoryStopContact      Category = "STOP_CONTACT"
)

type rule struct {
	pattern  *regexp.Regexp
	category Category
}

// Rules are evaluated in order; the first match wins. Patterns are plain
// substring-style regexes with no negation handling, so negated phrasing
// ("no es que no me interese") is a known false-positive risk. Kept as-is
// deliberately; see the pinned test before changing this.
var rules = []rule{
	{regexp.MustCompile(`ya\s+(lo\s+)?compr[eé]`), CategoryAlreadyPurchased},
	{regexp.MustCompile(`ya\s+(lo\s+)?adquir[ií]`), CategoryAlreadyPurchased},
	{regexp.MustCompile(`ya\s+tengo\s+(casa|depa|departamento|propiedad)`), CategoryAlreadyPurchased},
	{regexp.MustCompile(`no\s+me\s+interes`), CategoryNoInterest},
	{regexp.MustCompile(`no\s+estoy\s+interesad[oa]`), CategoryNoInterest},
	{regexp.MustCompile(`dejen?\s+de\s+(escribir|molestar|contactar)`), CategoryStopContact},
	{regexp.MustCompile(`no\s+me\s+(escriban|contacten|llamen)`), CategoryStopContact},
	{regexp.MustCompile(`\bbaja\b.*\blista\b`), CategoryStopContact},
	{regexp.MustCompile(`no\s+tengo\s+(dinero|presupuesto|recursos)`), CategoryNoBudget},
	{regexp.MustCompile(`no\s+me\s+alcanza`), CategoryNoBudget},
	{regexp.MustCompile(`fuera\s+de\s+mi\s+presupuesto`), CategoryNoBudget},
	{regexp.MustCompile(`s[oó]lo\s+(estoy\s+)?viendo`), CategoryJustBrowsing},
	{regexp.MustCompile(`solo\s+(estoy\s+)?viendo`), CategoryJustBrowsing},
	{regexp.MustCompile(`nada\s+m[aá]s\s+pregunt(o|aba)`), CategoryJustBrowsing},
	{regexp.MustCompile(`por\s+curiosidad`), CategoryJustBrowsing},
}

// Evaluate returns the category of the first matching rule, or CategoryNone.
// Matching is case-insensitive over the whole message.
func Evaluate(messageText string) Category {
	text := strings.ToLower(strings.TrimSpace(messageText))
	if text == "" {
		return CategoryNone
	}
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.category
		}
	}
	return CategoryNone
}
