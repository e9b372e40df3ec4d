package security

import "strings"

// scrubbedPrefixes and scrubbedNames select variables never passed to a
// subprocess.
var (
	scrubbedPrefixes = []string{
		"OPENAI_", "ANTHROPIC_", "CODECLAW_API_", "AWS_SECRET", "AWS_SESSION_TOKEN",
		"GITHUB_TOKEN", "GH_TOKEN", "GITLAB_TOKEN", "SLACK_", "NPM_TOKEN",
	}
	scrubbedNames = map[string]bool{
		"AWS_SECRET_ACCESS_KEY": true,
		"DATABASE_URL":          true,
		"DB_PASSWORD":           true,
		"PGPASSWORD":            true,
		"REDIS_PASSWORD":        true,
	}
)

// ScrubEnv returns environ without secret-bearing variables. Values stored
// in store are replaced by RedactPlaceholder in the variables that remain.
func ScrubEnv(environ []string, store *CredentialStore) []string {
	var secrets []string
	if store != nil {
		secrets = store.Values()
	}

	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || scrubbed(name) {
			continue
		}
		for _, s := range secrets {
			if len(s) >= 8 {
				kv = strings.ReplaceAll(kv, s, RedactPlaceholder)
			}
		}
		out = append(out, kv)
	}
	return out
}

func scrubbed(name string) bool {
	name = strings.ToUpper(name)
	if scrubbedNames[name] {
		return true
	}
	for _, p := range scrubbedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
