package tool

import (
	"context"
	"time"
)

// ApprovalRequest is sent to an ApprovalRequester when a call needs a human
// decision.
type ApprovalRequest struct {
	// ID identifies the request. It equals the call id.
	ID string

	// CallID is the call the request gates.
	CallID string

	// ToolName is the name of the gated tool.
	ToolName Name

	// Summary is the command text, or the file path plus a diff preview.
	Summary string

	// CreatedAt is when the call reached approval-requested.
	CreatedAt time.Time

	// Ready, if set, is called once the request can accept a decision and
	// before the requester blocks.
	Ready func() `json:"-"`
}

// ApprovalResponse is the decision for an approval request.
type ApprovalResponse struct {
	// Approved indicates whether the human allowed the call.
	Approved bool

	// Reason is set for implicit rejections (timeout, teardown).
	Reason string
}

// ApprovalRequester parks a call until a decision is made.
type ApprovalRequester interface {
	// RequestApproval blocks until a decision arrives or ctx is done. An
	// error means no explicit decision was made; the call is treated as
	// rejected.
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)
}
