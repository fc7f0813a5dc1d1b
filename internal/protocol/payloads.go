package protocol

import (
	"encoding/json"
	"time"
)

// SessionInfoPayload describes one session as the host announces it.
type SessionInfoPayload struct {
	SessionID    string    `json:"sessionId"`
	Name         string    `json:"name"`
	SessionType  string    `json:"sessionType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity,omitempty"`
	MessageCount int       `json:"messageCount,omitempty"`
}

// SessionListPayload is the host's full session list.
type SessionListPayload struct {
	Sessions []SessionInfoPayload `json:"sessions"`
}

// SessionRefPayload carries only a session reference.
type SessionRefPayload struct {
	SessionID string `json:"sessionId"`
}

// HistoryPagePayload is one page of a paginated history response.
type HistoryPagePayload struct {
	SessionID string           `json:"sessionId"`
	Page      int              `json:"page"`
	Total     int              `json:"total"`
	Messages  []MessagePayload `json:"messages"`
}

// ContentPartPayload is one element of a message's ordered content.
type ContentPartPayload struct {
	Kind     string `json:"kind"` // text|file_ref|image_ref|code_ref|file_content
	Text     string `json:"text,omitempty"`
	Path     string `json:"path,omitempty"`
	Language string `json:"language,omitempty"`
}

// TokenUsagePayload is a token accounting snapshot.
type TokenUsagePayload struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// MessagePayload is one conversation turn on the wire.
type MessagePayload struct {
	MessageID string               `json:"messageId"`
	Role      string               `json:"role"`
	Parts     []ContentPartPayload `json:"parts,omitempty"`
	Content   string               `json:"content,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Streaming bool                 `json:"streaming,omitempty"`
	Reasoning string               `json:"reasoning,omitempty"`
	ToolCalls []ToolCallPayload    `json:"toolCalls,omitempty"`
	Usage     *TokenUsagePayload   `json:"usage,omitempty"`
}

// RestoreHistoryPayload hands back a session's persisted messages plus the
// ids the user may still roll back to.
type RestoreHistoryPayload struct {
	SessionID       string           `json:"sessionId"`
	Messages        []MessagePayload `json:"messages"`
	RollbackableIDs []string         `json:"rollbackableIds,omitempty"`
}

// RollbackablePayload updates the rollback-eligible id set alone.
type RollbackablePayload struct {
	SessionID       string   `json:"sessionId"`
	RollbackableIDs []string `json:"rollbackableIds"`
}

// ChatStartPayload announces a new in-flight assistant message.
type ChatStartPayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
}

// ChatChunkPayload is one streamed content fragment.
type ChatChunkPayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	Done      bool   `json:"done,omitempty"`
}

// ChatReasoningPayload is one streamed thinking fragment, kept apart from
// the answer text.
type ChatReasoningPayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// ChatCompletePayload finalizes an assistant message.
type ChatCompletePayload struct {
	SessionID string             `json:"sessionId"`
	MessageID string             `json:"messageId"`
	Usage     *TokenUsagePayload `json:"usage,omitempty"`
}

// ChatErrorPayload reports a failed model turn.
type ChatErrorPayload struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

// ToolResultPayload is the structured terminal result of a tool call.
type ToolResultPayload struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// ConfirmationPayload describes what a pending tool wants to do.
type ConfirmationPayload struct {
	RiskLevel     string   `json:"riskLevel,omitempty"`
	AffectedFiles []string `json:"affectedFiles,omitempty"`
	Reversible    bool     `json:"reversible,omitempty"`
	Prompt        string   `json:"prompt,omitempty"`
}

// ToolCallPayload is one tool invocation inside a batch update.
type ToolCallPayload struct {
	ToolID       string               `json:"toolId"`
	Name         string               `json:"name"`
	DisplayName  string               `json:"displayName,omitempty"`
	Params       json.RawMessage      `json:"params,omitempty"`
	Description  string               `json:"description,omitempty"`
	Status       string               `json:"status"`
	LiveOutput   string               `json:"liveOutput,omitempty"`
	Confirmation *ConfirmationPayload `json:"confirmation,omitempty"`
	Result       *ToolResultPayload   `json:"result,omitempty"`
	StartedAt    time.Time            `json:"startedAt,omitempty"`
	EndedAt      time.Time            `json:"endedAt,omitempty"`
}

// ToolCallsPayload is a batch of tool-call updates, optionally tagged with
// the assistant message that owns them.
type ToolCallsPayload struct {
	SessionID string            `json:"sessionId"`
	MessageID string            `json:"messageId,omitempty"`
	ToolCalls []ToolCallPayload `json:"toolCalls"`
}

// ToolConfirmationPayload asks the human to approve one tool call.
type ToolConfirmationPayload struct {
	SessionID    string              `json:"sessionId"`
	ToolID       string              `json:"toolId"`
	Confirmation ConfirmationPayload `json:"confirmation"`
}

// ToolConfirmationResponsePayload carries the human's decision back.
type ToolConfirmationResponsePayload struct {
	SessionID string `json:"sessionId"`
	ToolID    string `json:"toolId"`
	Outcome   string `json:"outcome"` // run_once|allow_type|allow_project|cancel
}

// ToolOutputPayload appends live output to a tool call by id.
type ToolOutputPayload struct {
	SessionID string `json:"sessionId"`
	ToolID    string `json:"toolId"`
	Text      string `json:"text"`
}

// FlowStatePayload updates a session's processing/abortable flags.
type FlowStatePayload struct {
	SessionID  string `json:"sessionId"`
	Processing bool   `json:"processing"`
	Abortable  bool   `json:"abortable"`
	MessageID  string `json:"messageId,omitempty"`
}

// TaskInfoPayload is one background task in a full-list update.
type TaskInfoPayload struct {
	TaskID    string    `json:"taskId"`
	ToolID    string    `json:"toolId,omitempty"`
	Command   string    `json:"command"`
	Status    string    `json:"status"` // running|completed|failed
	StartedAt time.Time `json:"startedAt,omitempty"`
}

// TasksUpdatePayload replaces the known background task list.
type TasksUpdatePayload struct {
	Tasks        []TaskInfoPayload `json:"tasks"`
	RunningCount int               `json:"runningCount"`
}

// TaskOutputPayload appends to a task's stdout or stderr buffer.
type TaskOutputPayload struct {
	TaskID string `json:"taskId"`
	Text   string `json:"text"`
	Stderr bool   `json:"stderr,omitempty"`
}

// TaskRequestPayload asks the host to list tasks or kill one.
type TaskRequestPayload struct {
	Action string `json:"action"` // list|kill
	TaskID string `json:"taskId,omitempty"`
}

// AuthStatusPayload reports the host's authentication state.
type AuthStatusPayload struct {
	LoggedIn bool   `json:"loggedIn"`
	Account  string `json:"account,omitempty"`
}

// ContextPayload is the ambient environment snapshot, replaced wholesale.
type ContextPayload struct {
	SessionID     string `json:"sessionId,omitempty"`
	ActiveFile    string `json:"activeFile,omitempty"`
	Selection     string `json:"selection,omitempty"`
	WorkspaceRoot string `json:"workspaceRoot,omitempty"`
}

// ChatSendPayload is a user-authored turn headed to the model.
type ChatSendPayload struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	PlanMode  bool   `json:"planMode,omitempty"`
}

// EditRegeneratePayload rewrites a prior user message and regenerates from it.
type EditRegeneratePayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// RollbackPayload reverts the conversation to a rollback-eligible message.
type RollbackPayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
}

// SessionCreatePayload asks the host to open a new session.
type SessionCreatePayload struct {
	Name        string `json:"name,omitempty"`
	SessionType string `json:"sessionType,omitempty"`
}

// SessionUpdatePayload renames or retags a session.
type SessionUpdatePayload struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name,omitempty"`
}

// HistoryRequestPayload asks for one page of a session's history.
type HistoryRequestPayload struct {
	SessionID string `json:"sessionId"`
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize,omitempty"`
}

// SaveHistoryPayload hands the core's authoritative copy back for persistence.
type SaveHistoryPayload struct {
	SessionID string           `json:"sessionId"`
	Messages  []MessagePayload `json:"messages"`
}
