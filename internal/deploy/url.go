package deploy

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// vercelURLRegexes match the deployment URL in Vercel CLI output. Bare URL
// forms come first; labeled forms capture the URL in group one.
var vercelURLRegexes = []*regexp2.Regexp{
	regexp2.MustCompile(`https://[a-zA-Z0-9-]+\.vercel\.app`, regexp2.RE2),
	regexp2.MustCompile(`https://[a-zA-Z0-9-]+\.[a-zA-Z0-9-]+\.vercel\.app`, regexp2.RE2),
	regexp2.MustCompile(`Production: (https://\S+)`, regexp2.RE2),
	regexp2.MustCompile(`Preview: (https://\S+)`, regexp2.RE2),
	regexp2.MustCompile(`Deployed to (https://\S+)`, regexp2.RE2),
}

// migrationIDRegex picks the migration identifier out of Supabase output.
var migrationIDRegex = regexp2.MustCompile(`migration[:\s]+([a-zA-Z0-9_-]+)`, regexp2.IgnoreCase)

// ExtractVercelURL pulls the deployment URL from Vercel CLI output.
func ExtractVercelURL(output string) (string, bool) {
	for _, regex := range vercelURLRegexes {
		match, err := regex.FindStringMatch(output)
		if err != nil || match == nil {
			continue
		}
		if match.GroupCount() > 1 {
			return match.GroupByNumber(1).String(), true
		}
		return match.String(), true
	}
	return "", false
}

// ExtractMigrationID pulls the migration identifier from Supabase output.
func ExtractMigrationID(output string) (string, bool) {
	match, err := migrationIDRegex.FindStringMatch(output)
	if err != nil || match == nil {
		return "", false
	}
	return match.GroupByNumber(1).String(), true
}

// SupabaseProjectURL builds the project URL for a Supabase project ref.
func SupabaseProjectURL(projectRef string) string {
	return fmt.Sprintf("https://%s.supabase.co", projectRef)
}

// SupabaseFunctionURL builds the invoke URL for an edge function.
func SupabaseFunctionURL(projectRef string, functionName string) string {
	return fmt.Sprintf("%s/functions/v1/%s", SupabaseProjectURL(projectRef), functionName)
}
