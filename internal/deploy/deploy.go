// Package deploy drives migrations and application deploys to the supported
// hosting platforms, with credential checks and a command allowlist.
package deploy

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Target identifies one deployment platform.
type Target string

const (
	// TargetSupabase hosts the database and edge functions.
	TargetSupabase Target = "supabase"
	// TargetVercel hosts the application frontend.
	TargetVercel Target = "vercel"
)

// Targets returns the supported platforms in a stable order.
func Targets() []Target {
	return []Target{TargetSupabase, TargetVercel}
}

// requiredEnv names the environment variables each platform needs before
// any deploy command runs.
var requiredEnv = map[Target][]string{
	TargetSupabase: {"SUPABASE_ACCESS_TOKEN"},
	TargetVercel:   {"VERCEL_TOKEN"},
}

// optionalEnv names environment variables used when present.
var optionalEnv = map[Target][]string{
	TargetSupabase: {"SUPABASE_PROJECT_REF", "SUPABASE_DB_PASSWORD"},
	TargetVercel:   {"VERCEL_ORG_ID", "VERCEL_PROJECT_ID"},
}

// supabaseProjectRefVar holds the Supabase project reference.
const supabaseProjectRefVar = "SUPABASE_PROJECT_REF"

// CredentialStatus reports whether a platform is ready to receive deploys.
type CredentialStatus struct {
	Target    Target
	Ready     bool
	Missing   []string
	Available []string
}

// Credentials checks the environment for a platform's deploy credentials.
func Credentials(target Target) CredentialStatus {
	status := CredentialStatus{Target: target, Ready: true}
	for _, name := range requiredEnv[target] {
		if os.Getenv(name) == "" {
			status.Missing = append(status.Missing, name)
			status.Ready = false
			continue
		}
		status.Available = append(status.Available, name)
	}
	for _, name := range optionalEnv[target] {
		if os.Getenv(name) != "" {
			status.Available = append(status.Available, name)
		}
	}
	sort.Strings(status.Missing)
	sort.Strings(status.Available)
	return status
}

// Status checks credentials for every supported platform.
func Status() map[Target]CredentialStatus {
	statuses := make(map[Target]CredentialStatus, len(Targets()))
	for _, target := range Targets() {
		statuses[target] = Credentials(target)
	}
	return statuses
}

// ProjectRef returns the configured Supabase project reference, if any.
func ProjectRef() string {
	return os.Getenv(supabaseProjectRefVar)
}

// requireCredentials returns an error naming the missing variables when a
// platform is not ready.
func requireCredentials(target Target) error {
	status := Credentials(target)
	if status.Ready {
		return nil
	}
	return fmt.Errorf("missing %s credentials: %s", target, strings.Join(status.Missing, ", "))
}
