package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// arithmeticPattern matches bare sums and differences such as "5+3" or "10 - 4 =".
// otherOperatorPattern spots anything but addition in a worded phrase.
var (
	numberPattern        = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	chainPattern         = regexp.MustCompile(`(?i)\badd\s+(-?\d+(?:\.\d+)?)\s+more\b`)
	additionPattern      = regexp.MustCompile(`(?i)^\s*(add|sum|plus|total|what\s+is|compute|calculate)\b`)
	arithmeticPattern    = regexp.MustCompile(`^[\d\s+.=?-]+$`)
	otherOperatorPattern = regexp.MustCompile(`(?i)[*/×÷^%]|\d\s*x\s*-?\d|\s-\s|\d-\d|\b(minus|times|divided|multiplied|over|subtract|product|quotient)\b`)
)

// RewriteRule turns recognised natural-language text into code. Apply returns
// false when the rule matched but cannot produce code, letting later rules try.
type RewriteRule struct {
	Name  string
	Match func(text string) bool
	Apply func(rec domain.SessionContextRecord, text string) (string, bool)
}

// Rewriter evaluates rules in order; the first rule that matches and applies
// wins. Text no rule handles is returned unchanged.
type Rewriter struct {
	rules []RewriteRule
}

func NewRewriter(rules ...RewriteRule) *Rewriter {
	if len(rules) == 0 {
		rules = DefaultRewriteRules()
	}
	return &Rewriter{rules: rules}
}

// DefaultRewriteRules, in priority order:
//
//	code          text containing ';' is already code
//	chain         "add N more" continues from the last table's first cell
//	addition      text starting with an addition keyword and naming no other
//	              operator sums its numbers
//	expression    a bare expression of + and - becomes a sum of signed terms
func DefaultRewriteRules() []RewriteRule {
	return []RewriteRule{
		{
			Name:  "code",
			Match: func(text string) bool { return strings.Contains(text, ";") },
			Apply: func(_ domain.SessionContextRecord, text string) (string, bool) { return text, true },
		},
		{
			Name:  "chain",
			Match: chainPattern.MatchString,
			Apply: rewriteChain,
		},
		{
			Name:  "addition",
			Match: isAdditionPhrase,
			Apply: func(_ domain.SessionContextRecord, text string) (string, bool) {
				return sumSnippet(sumOperands(text))
			},
		},
		{
			Name:  "expression",
			Match: arithmeticPattern.MatchString,
			Apply: func(_ domain.SessionContextRecord, text string) (string, bool) {
				return sumSnippet(sumOperands(text))
			},
		},
	}
}

// Rewrite never panics; a misbehaving rule leaves the text unchanged.
func (r *Rewriter) Rewrite(rec domain.SessionContextRecord, text string) (code string) {
	code = text
	defer func() {
		if recover() != nil {
			code = text
		}
	}()

	for _, rule := range r.rules {
		if !rule.Match(text) {
			continue
		}
		if out, ok := rule.Apply(rec, text); ok {
			return out
		}
	}
	return text
}

func rewriteChain(rec domain.SessionContextRecord, text string) (string, bool) {
	m := chainPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}

	if rec.LastTable != nil {
		if cell, ok := rec.LastTable.FirstCell(); ok {
			if prior, ok := numericCell(cell); ok {
				return sumSnippet([]string{prior, m[1]})
			}
		}
	}
	return sumSnippet(numberPattern.FindAllString(text, -1))
}

func isAdditionPhrase(text string) bool {
	return additionPattern.MatchString(text) && !otherOperatorPattern.MatchString(text)
}

// sumOperands returns the signed terms of a sum. Bare expressions are read
// with spaces removed so "10 - 4" yields 10 and -4.
func sumOperands(text string) []string {
	if arithmeticPattern.MatchString(text) {
		text = strings.Join(strings.Fields(text), "")
	}
	return numberPattern.FindAllString(text, -1)
}

// sumSnippet builds a data step that stores and prints x = a + b + ...
func sumSnippet(operands []string) (string, bool) {
	if len(operands) == 0 {
		return "", false
	}
	terms := make([]string, len(operands))
	for i, op := range operands {
		if strings.HasPrefix(op, "-") {
			op = "(" + op + ")"
		}
		terms[i] = op
	}
	return fmt.Sprintf("data work.results; x=%s; put x=; output; run;", strings.Join(terms, "+")), true
}

// numericCell renders a table cell as a numeric literal.
func numericCell(cell any) (string, bool) {
	switch v := cell.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return numericCell(string(v))
	case string:
		s := strings.TrimSpace(v)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", false
		}
		return s, numberPattern.FindString(s) == s
	default:
		return "", false
	}
}
