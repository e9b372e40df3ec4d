// Package command classifies shell command lines by blast radius. The
// classifier is conservative: anything it cannot prove to be an inspection
// command is write-risk, and the dangerous denylist always wins.
package command

import (
	"regexp"
	"slices"
	"strings"

	"github.com/google/shlex"
)

// Classification is the risk category of a command line.
type Classification string

// Classification values.
const (
	ReadOnly  Classification = "read-only"
	Dangerous Classification = "dangerous"
	WriteRisk Classification = "write-risk"
)

// Rules is the immutable pattern configuration a Classifier is built from.
type Rules struct {
	// Dangerous patterns are matched against the normalised command text.
	Dangerous []*regexp.Regexp

	// ReadOnly lists leading tokens of inspection utilities.
	ReadOnly []string
}

// DefaultRules returns a fresh copy of the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		Dangerous: []*regexp.Regexp{
			regexp.MustCompile(`\brm\s+(-[a-z]*\s+)*-[a-z]*r[a-z]*\s+(-[a-z]*\s+)*(/|/\*|~|~/|\$home)(\s|$)`),
			regexp.MustCompile(`\brm\s+-rf\s*/`),
			regexp.MustCompile(`(^|[\s;&|(])(sudo|su|doas)(\s|$)`),
			regexp.MustCompile(`\bchmod\s+(-[a-z]+\s+)*0?777\b`),
			regexp.MustCompile(`>\s*/dev/null.*[^>]&(\s|$)`),
			regexp.MustCompile(`(^|[^&])&\s*$`),
			regexp.MustCompile(`\b(curl|wget)\b.*\|\s*(sudo\s+)?(ba|z|da)?sh\b`),
			regexp.MustCompile(`\b(pkill|killall)\b`),
			regexp.MustCompile(`\bkill\s+-(9|kill)\b`),
			regexp.MustCompile(`\b(halt|reboot|poweroff|shutdown)\b`),
			regexp.MustCompile(`\bdd\s+if=`),
			regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
			regexp.MustCompile(`\b(fdisk|parted|sfdisk)\b`),
			regexp.MustCompile(`\bcrontab\b`),
			regexp.MustCompile(`>\s*/(etc|usr|bin|sbin|boot|sys|lib)/`),
			regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|disk)`),
		},
		ReadOnly: []string{
			"ls", "cat", "head", "tail", "grep", "find", "which", "ps", "pwd",
			"whoami", "date", "env", "echo", "wc", "diff", "file", "stat",
			"tree", "less", "more",
		},
	}
}

// With returns a copy of r extended with extra patterns and tokens.
func (r Rules) With(dangerous []*regexp.Regexp, readOnly []string) Rules {
	return Rules{
		Dangerous: append(slices.Clone(r.Dangerous), dangerous...),
		ReadOnly:  append(slices.Clone(r.ReadOnly), readOnly...),
	}
}

// Classifier classifies command lines against a fixed Rules value.
type Classifier struct {
	rules Rules
}

// NewClassifier creates a Classifier. The rules are copied so later changes
// by the caller have no effect.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules.With(nil, nil)}
}

// Default returns a Classifier using DefaultRules.
func Default() *Classifier {
	return NewClassifier(DefaultRules())
}

// Classify returns the classification of command.
func (c *Classifier) Classify(command string) Classification {
	normalized := normalize(command)
	if normalized == "" {
		return WriteRisk
	}

	for _, p := range c.rules.Dangerous {
		if p.MatchString(normalized) {
			return Dangerous
		}
	}

	if c.isReadOnly(strings.TrimSpace(command)) {
		return ReadOnly
	}
	return WriteRisk
}

// IsDangerous reports whether command matches the denylist.
func (c *Classifier) IsDangerous(command string) bool {
	return c.Classify(command) == Dangerous
}

// unsafeConstructs hide a second command or write output somewhere. A
// command containing any of them is never read-only.
var unsafeConstructs = []string{">", "<", "`", "$(", ";", "&", "\n"}

func (c *Classifier) isReadOnly(command string) bool {
	for _, s := range unsafeConstructs {
		if strings.Contains(command, s) {
			return false
		}
	}

	// Each stage of a pipeline must be an inspection utility.
	for _, segment := range strings.Split(command, "|") {
		tokens, err := shlex.Split(segment)
		if err != nil || len(tokens) == 0 {
			return false
		}
		if !slices.Contains(c.rules.ReadOnly, tokens[0]) {
			return false
		}
		if writes(tokens[0], tokens[1:]) {
			return false
		}
	}
	return true
}

// writes reports whether an allowlisted utility is invoked in a form that
// runs another program or changes state.
func writes(name string, args []string) bool {
	switch name {
	case "env":
		// With operands env runs a command or changes the environment of
		// one; only the bare listing is an inspection.
		for _, a := range args {
			if a != "-0" && a != "--null" {
				return true
			}
		}
	case "find":
		for _, a := range args {
			switch a {
			case "-delete", "-exec", "-execdir", "-ok", "-okdir",
				"-fprint", "-fprint0", "-fprintf", "-fls":
				return true
			}
		}
	case "tree":
		for _, a := range args {
			if strings.HasPrefix(a, "-o") {
				return true
			}
		}
	case "date":
		valued := false
		for _, a := range args {
			switch {
			case valued:
				valued = false
			case a == "-d" || a == "--date" || a == "-r" || a == "--reference":
				valued = true
			case strings.HasPrefix(a, "+"):
			case strings.HasPrefix(a, "--"):
				if strings.HasPrefix(a, "--set") {
					return true
				}
			case strings.HasPrefix(a, "-"):
				if strings.Contains(a, "s") {
					return true
				}
			default:
				// A bare operand such as MMDDhhmm sets the clock.
				return true
			}
		}
	case "file":
		for _, a := range args {
			if a == "-C" || a == "--compile" {
				return true
			}
		}
	}
	return false
}

// normalize lower-cases the command and collapses runs of whitespace so
// casing and spacing cannot be used to slip past the denylist.
func normalize(command string) string {
	return strings.Join(strings.Fields(strings.ToLower(command)), " ")
}
