// internal/matcher/rules.go
package matcher

import (
	"regexp"
	"strings"

	"apply-engine/internal/common/config"
)

// Bucket is one technology-keyword group used to estimate how relevant a
// description is to the target stack.
type Bucket struct {
	Name    string
	Pattern *regexp.Regexp
}

// rules holds every compiled pattern table the classifier evaluates. The
// tables live here, outside the control logic, so tuning never touches the
// rule ordering.
type rules struct {
	remote      *regexp.Regexp
	onsite      *regexp.Regexp
	exclusions  []*regexp.Regexp
	frontOnly   *regexp.Regexp
	backOnly    *regexp.Regexp
	frontTech   *regexp.Regexp
	backTech    *regexp.Regexp
	seniorTitle *regexp.Regexp
	seniorYears *regexp.Regexp
	titles      []*regexp.Regexp
	buckets     []Bucket
	preferences []*regexp.Regexp
}

var defaultTitlePatterns = []string{
	`full[\s-]?stack`,
	`\bweb\s+developer\b`,
	`software\s+(engineer|developer)`,
	`\b(javascript|js|typescript)\s+(engineer|developer)\b`,
	`\bmern\b`,
	`\bnode(\.js)?\b.*\breact\b|\breact\b.*\bnode(\.js)?\b`,
}

var defaultExcludedStacks = []string{
	`\.net\b|\bdotnet\b|\bc#`,
	`\bphp\b|\blaravel\b|\bwordpress\b`,
	`\bjava\b(?:\s|,|$)|\bspring\s+boot\b`,
	`\bruby\b|\brails\b`,
	`\bpython\b|\bdjango\b|\bflask\b`,
	`\bgolang\b|\bgo\s+developer\b`,
	`\bandroid\b|\bios\b|\bflutter\b|\breact\s+native\b|\bswift\b|\bkotlin\b`,
	`\bdevops\b|\bsre\b|\bsite\s+reliability\b`,
	`\bqa\b|\btest\s+automation\s+engineer\b`,
	`\bsalesforce\b|\bsap\b|\bsharepoint\b`,
}

// six fixed technology buckets; hits are counted per bucket, not per keyword
var defaultBuckets = []Bucket{
	{Name: "javascript", Pattern: regexp.MustCompile(`(?i)\b(javascript|typescript|es6|ecmascript)\b`)},
	{Name: "frontend", Pattern: regexp.MustCompile(`(?i)\b(react(\.js)?|next(\.js)?|vue(\.js)?|angular|redux)\b`)},
	{Name: "node", Pattern: regexp.MustCompile(`(?i)\b(node(\.js)?|deno|bun)\b`)},
	{Name: "backend framework", Pattern: regexp.MustCompile(`(?i)\b(express(\.js)?|nest(\.js)?|fastify|koa)\b`)},
	{Name: "database", Pattern: regexp.MustCompile(`(?i)\b(mongo(db)?|postgres(ql)?|mysql|redis|sql|dynamodb)\b`)},
	{Name: "api", Pattern: regexp.MustCompile(`(?i)\b(rest(ful)?\s*api|graphql|grpc|websockets?|microservices?)\b`)},
}

var defaultPreferences = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bstartup\b`),
	regexp.MustCompile(`(?i)\bproduct([\s-]based|[\s-]first)?\s+(company|team)\b`),
	regexp.MustCompile(`(?i)\b(international|global)\s+(team|hiring|candidates)\b|\bhiring\s+worldwide\b`),
	regexp.MustCompile(`(?i)\bearly[\s-]stage\b|\bseed\s+(stage|funded)\b|\bseries\s+a\b`),
}

func compileRules(cfg config.MatcherConfig) *rules {
	r := &rules{
		remote:      regexp.MustCompile(`(?i)\b(remote|anywhere|worldwide|distributed|work\s+from\s+home|wfh)\b`),
		onsite:      regexp.MustCompile(`(?i)\b(on[\s-]?site|hybrid|in[\s-]office|relocation\s+required|must\s+be\s+located)\b`),
		frontOnly:   regexp.MustCompile(`(?i)\bfront[\s-]?end\b`),
		backOnly:    regexp.MustCompile(`(?i)\bback[\s-]?end\b`),
		frontTech:   regexp.MustCompile(`(?i)\b(react|vue|angular|css|html)\b`),
		backTech:    regexp.MustCompile(`(?i)\b(node|express|api|server|database)\b`),
		seniorTitle: regexp.MustCompile(`(?i)\b(staff|principal|lead|architect)\b`),
		seniorYears: regexp.MustCompile(`(?i)\b([6-9]|\d{2,})\s*\+?\s*years?\b`),
		buckets:     defaultBuckets,
		preferences: defaultPreferences,
	}

	titlePatterns := cfg.TitlePatterns
	if len(titlePatterns) == 0 {
		titlePatterns = defaultTitlePatterns
	}
	for _, p := range titlePatterns {
		r.titles = append(r.titles, regexp.MustCompile(`(?i)`+p))
	}

	excluded := cfg.ExcludedStacks
	if len(excluded) == 0 {
		excluded = defaultExcludedStacks
	}
	for _, p := range excluded {
		r.exclusions = append(r.exclusions, regexp.MustCompile(`(?i)`+p))
	}

	return r
}

// matchedBuckets returns the names of every bucket the text hits.
func (r *rules) matchedBuckets(text string) []string {
	var hits []string
	for _, b := range r.buckets {
		if b.Pattern.MatchString(text) {
			hits = append(hits, b.Name)
		}
	}
	return hits
}

// missingBuckets lists bucket names absent from the matched set.
func (r *rules) missingBuckets(matched []string) []string {
	seen := make(map[string]bool, len(matched))
	for _, name := range matched {
		seen[name] = true
	}
	var missing []string
	for _, b := range r.buckets {
		if !seen[b.Name] {
			missing = append(missing, b.Name)
		}
	}
	return missing
}

func (r *rules) preferenceHits(text string) int {
	hits := 0
	for _, p := range r.preferences {
		if p.MatchString(text) {
			hits++
		}
	}
	return hits
}

func (r *rules) firstExclusion(text string) (string, bool) {
	for _, p := range r.exclusions {
		if loc := p.FindString(text); loc != "" {
			return strings.TrimSpace(loc), true
		}
	}
	return "", false
}
