// Package state holds the authoritative in-memory record of every open
// conversation and the reducers that advance it: streaming assembly,
// tool-call lifecycle, restore/merge, and abort. All mutation funnels
// through one mutex-serialized entry point on Store, and derived statistics
// are recomputed after every change rather than stored.
package state

import (
	"encoding/json"
	"time"
)

// SessionStatus is a session's lifecycle status. Exactly one session is
// active at a time; all others are idle.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionIdle   SessionStatus = "idle"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// PartKind discriminates a content part.
type PartKind string

const (
	PartText        PartKind = "text"
	PartFileRef     PartKind = "file_ref"
	PartImageRef    PartKind = "image_ref"
	PartCodeRef     PartKind = "code_ref"
	PartFileContent PartKind = "file_content"
)

// ContentPart is one element of a message's ordered content.
type ContentPart struct {
	Kind     PartKind `json:"kind"`
	Text     string   `json:"text,omitempty"`
	Path     string   `json:"path,omitempty"`
	Language string   `json:"language,omitempty"`
}

// TokenUsage is a token accounting snapshot.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another snapshot into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Session is the externally visible summary of one conversation thread.
type Session struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	SessionType  string        `json:"session_type,omitempty"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	MessageCount int           `json:"message_count"`
	Usage        TokenUsage    `json:"usage"`
}

// Message is one turn in a session. Only assistant messages carry tool
// calls or a streaming flag.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Parts     []ContentPart `json:"parts,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Streaming bool          `json:"streaming,omitempty"`
	Reasoning string        `json:"reasoning,omitempty"`
	ToolCalls []ToolCall    `json:"tool_calls,omitempty"`
	Usage     *TokenUsage   `json:"usage,omitempty"`
}

// Text returns the concatenated text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolStatus is one state in the tool-call lifecycle.
type ToolStatus string

const (
	ToolScheduled           ToolStatus = "scheduled"
	ToolValidating          ToolStatus = "validating"
	ToolWaitingConfirmation ToolStatus = "waiting_confirmation"
	ToolExecuting           ToolStatus = "executing"
	ToolBackgroundRunning   ToolStatus = "background_running"
	ToolSuccess             ToolStatus = "success"
	ToolError               ToolStatus = "error"
	ToolCanceled            ToolStatus = "canceled"
)

// toolTransitions is the legal transition table. Any status may also repeat
// itself (batches re-report the current status).
var toolTransitions = map[ToolStatus][]ToolStatus{
	ToolScheduled:           {ToolValidating, ToolWaitingConfirmation, ToolExecuting, ToolError, ToolCanceled},
	ToolValidating:          {ToolWaitingConfirmation, ToolExecuting, ToolError, ToolCanceled},
	ToolWaitingConfirmation: {ToolExecuting, ToolCanceled, ToolError},
	ToolExecuting:           {ToolBackgroundRunning, ToolSuccess, ToolError, ToolCanceled},
	ToolBackgroundRunning:   {ToolSuccess, ToolError, ToolCanceled},
	ToolSuccess:             {},
	ToolError:               {},
	ToolCanceled:            {},
}

// Terminal reports whether no further transition is possible.
func (s ToolStatus) Terminal() bool {
	switch s {
	case ToolSuccess, ToolError, ToolCanceled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
func (s ToolStatus) CanTransition(next ToolStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range toolTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ConfirmationOutcome is the human's response to a confirmation request.
type ConfirmationOutcome string

const (
	ConfirmRunOnce      ConfirmationOutcome = "run_once"
	ConfirmAllowType    ConfirmationOutcome = "allow_type"
	ConfirmAllowProject ConfirmationOutcome = "allow_project"
	ConfirmCancel       ConfirmationOutcome = "cancel"
)

// ParseConfirmationOutcome canonicalizes a user-provided outcome tag.
func ParseConfirmationOutcome(raw string) (ConfirmationOutcome, bool) {
	switch ConfirmationOutcome(raw) {
	case ConfirmRunOnce, ConfirmAllowType, ConfirmAllowProject, ConfirmCancel:
		return ConfirmationOutcome(raw), true
	}
	return "", false
}

// Confirmation describes what a pending tool wants to do.
type Confirmation struct {
	RiskLevel     string   `json:"risk_level,omitempty"`
	AffectedFiles []string `json:"affected_files,omitempty"`
	Reversible    bool     `json:"reversible,omitempty"`
	Prompt        string   `json:"prompt,omitempty"`
}

// ToolResult is the structured terminal result of a tool call.
type ToolResult struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// ToolCall is one capability invocation attached to an assistant message.
// LiveOutput is retained only while the status is executing; any terminal
// transition drops it in favor of Result.
type ToolCall struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DisplayName  string          `json:"display_name,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	Description  string          `json:"description,omitempty"`
	Status       ToolStatus      `json:"status"`
	LiveOutput   string          `json:"live_output,omitempty"`
	Confirmation *Confirmation   `json:"confirmation,omitempty"`
	Result       *ToolResult     `json:"result,omitempty"`
	StartedAt    time.Time       `json:"started_at,omitempty"`
	EndedAt      time.Time       `json:"ended_at,omitempty"`
}

// ContextInfo is the ambient environment snapshot. It is replaced wholesale
// on update, never merged field by field.
type ContextInfo struct {
	ActiveFile    string `json:"active_file,omitempty"`
	Selection     string `json:"selection,omitempty"`
	WorkspaceRoot string `json:"workspace_root,omitempty"`
}

// SessionData is the full runtime record for a session, owned exclusively
// by the Store.
type SessionData struct {
	Session

	// ContentLoaded distinguishes "known but not fetched" from hydrated.
	ContentLoaded bool      `json:"content_loaded"`
	Messages      []Message `json:"messages"`

	// RollbackableIDs are messages the user may revert to.
	RollbackableIDs map[string]bool `json:"-"`
	// LastAcceptedMessageID is the last message whose file edits were accepted.
	LastAcceptedMessageID string `json:"last_accepted_message_id,omitempty"`

	Processing          bool   `json:"processing"`
	ProcessingMessageID string `json:"processing_message_id,omitempty"`
	Abortable           bool   `json:"abortable"`
	Loading             bool   `json:"loading"`
	PlanMode            bool   `json:"plan_mode"`

	Context *ContextInfo `json:"context,omitempty"`
}

// messageByID returns a pointer into Messages, or nil.
func (d *SessionData) messageByID(id string) *Message {
	for i := range d.Messages {
		if d.Messages[i].ID == id {
			return &d.Messages[i]
		}
	}
	return nil
}

// toolByID searches every message in the session for a tool call. Background
// tools may not be attached to the current message, so the search is global.
func (d *SessionData) toolByID(id string) *ToolCall {
	for i := range d.Messages {
		for j := range d.Messages[i].ToolCalls {
			if d.Messages[i].ToolCalls[j].ID == id {
				return &d.Messages[i].ToolCalls[j]
			}
		}
	}
	return nil
}

// Stats are derived counters recomputed after every mutation.
type Stats struct {
	SessionCount    int `json:"session_count"`
	MessageCount    int `json:"message_count"`
	ProcessingCount int `json:"processing_count"`
}
