package specdoc

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// maxSlugLength caps feature ids derived from free-form requests.
const maxSlugLength = 64

var (
	namedRequestRegex = regexp2.MustCompile(`(?s)#([^#]+)#\s*(.*)`, regexp2.RE2)
	actionVerbRegex   = regexp2.MustCompile(`(?:create|implement|build|add|develop)\s+([a-z0-9-]+)`, regexp2.RE2)
	runPathRegex      = regexp2.MustCompile(`_stagehand[/\\]features[/\\]([^/\\]+)[/\\]tasks\.md`, regexp2.IgnoreCase)
	runNameRegex      = regexp2.MustCompile(`^([a-z0-9_-]+)`, regexp2.IgnoreCase)
)

// ParseFeatureRequest extracts a feature id and remaining context from a
// user request. Requests of the form "#name# context" name the feature
// explicitly; otherwise the id is derived from the request text.
func ParseFeatureRequest(input string) (string, string) {
	if match, err := namedRequestRegex.FindStringMatch(input); err == nil && match != nil {
		name := Slugify(match.GroupByNumber(1).String())
		context := strings.TrimSpace(match.GroupByNumber(2).String())
		if name != "" {
			return name, context
		}
	}

	if match, err := actionVerbRegex.FindStringMatch(strings.ToLower(input)); err == nil && match != nil {
		if name := Slugify(match.GroupByNumber(1).String()); name != "" {
			return name, strings.TrimSpace(input)
		}
	}

	name := Slugify(strings.Join(firstWords(input, 3), " "))
	if name == "" {
		name = "feature"
	}
	return name, strings.TrimSpace(input)
}

// ParseRunRequest detects a resume request of the form
// "RUN _stagehand/features/<id>/tasks.md" or "RUN <id>". It returns the
// feature id and whether the input was a resume request.
func ParseRunRequest(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) < 3 || !strings.EqualFold(trimmed[:3], "RUN") {
		return "", false
	}
	rest := strings.TrimSpace(trimmed[3:])

	if match, err := runPathRegex.FindStringMatch(rest); err == nil && match != nil {
		return match.GroupByNumber(1).String(), true
	}
	if match, err := runNameRegex.FindStringMatch(rest); err == nil && match != nil {
		return match.GroupByNumber(1).String(), true
	}
	return "", false
}

// Slugify converts the provided text to a lowercase ASCII slug with
// hyphens, capped at a length suitable for directory names.
func Slugify(text string) string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return ""
	}

	var builder strings.Builder
	builder.Grow(len(clean))
	prevHyphen := false
	for _, r := range strings.ToLower(clean) {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
			prevHyphen = false
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				builder.WriteRune('-')
				prevHyphen = true
			}
		}
	}

	slug := strings.Trim(builder.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	return slug
}

// firstWords returns up to n whitespace-separated words from text.
func firstWords(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return words
}
