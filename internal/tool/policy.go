package tool

// Requirement is the approval requirement of a single call.
type Requirement string

const (
	// Allow runs the call without asking.
	Allow Requirement = "allow"

	// RequiresApproval parks the call until a human decides.
	RequiresApproval Requirement = "requires-approval"

	// Blocked fails the call without running it and without asking.
	Blocked Requirement = "blocked"
)

// Assessment is a tool's verdict on one input.
type Assessment struct {
	Requirement Requirement

	// Summary is what the human sees when asked: the command text, or the
	// file path with a diff preview.
	Summary string

	// Reason explains a Blocked verdict.
	Reason string
}

// Allowed returns an assessment that lets the call run.
func Allowed() Assessment {
	return Assessment{Requirement: Allow}
}

// NeedsApproval returns an assessment that parks the call with summary.
func NeedsApproval(summary string) Assessment {
	return Assessment{Requirement: RequiresApproval, Summary: summary}
}

// Block returns an assessment that refuses the call.
func Block(reason string) Assessment {
	return Assessment{Requirement: Blocked, Reason: reason}
}
