package deploy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// allowedCommandPatterns lists the deploy commands the runner will execute.
// Anything else is refused before spawning a process.
var allowedCommandPatterns = []string{
	"supabase db push*",
	"supabase functions deploy*",
	"supabase migrations up*",
	"supabase link*",
	"supabase init",
	"vercel deploy*",
	"vercel link*",
	"npm install*",
	"npm ci*",
	"npm run build*",
	"npm run test*",
	"npx eslint*",
	"npx tsc*",
	"npx next*",
	"npx create-next-app*",
	"node *",
	"pnpm install*",
	"pnpm run*",
	"pnpm build*",
	"yarn install*",
	"yarn run*",
	"yarn build*",
	"git add*",
	"git commit*",
	"git status*",
	"git diff*",
	"git init*",
}

// blockedFragments are refused even inside otherwise allowed commands.
var blockedFragments = []string{
	"rm -rf /",
	"rm -rf ~",
	"sudo ",
	"$(",
	"`",
	"| bash",
	"| sh",
	"> /dev/",
}

var allowedCommandGlobs = compileAllowlist()

func compileAllowlist() []glob.Glob {
	globs := make([]glob.Glob, 0, len(allowedCommandPatterns))
	for _, pattern := range allowedCommandPatterns {
		globs = append(globs, glob.MustCompile(pattern))
	}
	return globs
}

// CheckCommand validates a deploy command against the allowlist. It rejects
// empty commands, embedded newlines, blocked fragments, and anything the
// allowlist does not cover.
func CheckCommand(argv []string) error {
	if len(argv) == 0 {
		return errors.New("deploy command is required")
	}
	for _, arg := range argv {
		if strings.ContainsAny(arg, "\n\r") {
			return errors.New("newline characters are not allowed in deploy commands")
		}
	}

	joined := strings.Join(argv, " ")
	for _, fragment := range blockedFragments {
		if strings.Contains(joined, fragment) {
			return fmt.Errorf("deploy command contains blocked fragment %q", fragment)
		}
	}
	for _, g := range allowedCommandGlobs {
		if g.Match(joined) {
			return nil
		}
	}
	return fmt.Errorf("deploy command %q is not allowed", joined)
}
