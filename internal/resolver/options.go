// internal/resolver/options.go
package resolver

import "strings"

// optionThreshold is the minimum score an option must reach to be chosen.
// Anything below means the field is skipped rather than guessed blindly.
const optionThreshold = 0.3

var yesWords = map[string]bool{"yes": true, "true": true, "y": true, "agree": true, "authorized": true}
var noWords = map[string]bool{"no": true, "false": true, "n": true, "disagree": true, "none": true}

// BestOption scores every option against the free-text answer and returns the
// highest-scoring one above the threshold. Scoring ladder: exact normalized
// match, substring containment, yes/no keyword alignment, token-overlap ratio.
func BestOption(answer string, options []string) (string, bool) {
	normAnswer := normalizeText(answer)
	if normAnswer == "" || len(options) == 0 {
		return "", false
	}

	best := ""
	bestScore := 0.0
	for _, option := range options {
		score := scoreOption(normAnswer, normalizeText(option))
		if score > bestScore {
			bestScore = score
			best = option
		}
	}

	if bestScore < optionThreshold {
		return "", false
	}
	return best, true
}

func scoreOption(answer, option string) float64 {
	if option == "" {
		return 0
	}
	if answer == option {
		return 1.0
	}
	if strings.Contains(option, answer) || strings.Contains(answer, option) {
		return 0.8
	}
	if booleanAligned(answer, option) {
		return 0.6
	}
	return 0.5 * tokenOverlap(answer, option)
}

// booleanAligned reports whether both sides express the same yes/no polarity.
func booleanAligned(answer, option string) bool {
	ansYes, ansNo := polarity(answer)
	optYes, optNo := polarity(option)
	return (ansYes && optYes) || (ansNo && optNo)
}

func polarity(text string) (yes, no bool) {
	for _, token := range strings.Fields(text) {
		if yesWords[token] {
			yes = true
		}
		if noWords[token] {
			no = true
		}
	}
	return yes, no
}

// tokenOverlap is the fraction of answer tokens present in the option.
func tokenOverlap(answer, option string) float64 {
	answerTokens := strings.Fields(answer)
	if len(answerTokens) == 0 {
		return 0
	}
	optionTokens := make(map[string]bool)
	for _, t := range strings.Fields(option) {
		optionTokens[t] = true
	}
	hits := 0
	for _, t := range answerTokens {
		if optionTokens[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(answerTokens))
}

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
