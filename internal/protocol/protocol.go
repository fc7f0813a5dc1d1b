// Package protocol defines the message envelope exchanged between the host
// process and the client core, the full set of message types, and the typed
// payload for each. Every payload that refers to a conversation carries a
// SessionID. Payloads are decoded against the struct registered for their
// type; messages with an unregistered type are rejected at the boundary
// instead of being passed through untyped.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wire form of every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types (host -> core).
const (
	// Session lifecycle.
	MsgSessionListUpdate = "session_list_update"
	MsgSessionCreated    = "session_created"
	MsgSessionUpdated    = "session_updated"
	MsgSessionDeleted    = "session_deleted"
	MsgSessionSwitched   = "session_switched"
	MsgSessionExported   = "session_export_complete"
	MsgSessionImported   = "session_import_complete"
	MsgHistoryPage       = "session_history_page"

	// Content restore.
	MsgRestoreHistory     = "restore_ui_history"
	MsgRequestHistory     = "request_ui_history"
	MsgRollbackableUpdate = "rollbackable_ids_update"

	// Streaming.
	MsgChatStart     = "chat_start"
	MsgChatChunk     = "chat_chunk"
	MsgChatReasoning = "chat_reasoning"
	MsgChatComplete  = "chat_complete"
	MsgChatError     = "chat_error"

	// Tool execution.
	MsgToolCallsUpdate         = "tool_calls_update"
	MsgToolConfirmationRequest = "tool_confirmation_request"
	MsgToolOutput              = "tool_output"

	// Flow control.
	MsgFlowStateUpdate = "flow_state_update"
	MsgFlowAborted     = "flow_aborted"

	// Background tasks.
	MsgTasksUpdate = "tasks_update"
	MsgTaskOutput  = "task_output"

	// Ancillary signals consumed outside the core reducers.
	MsgAuthStatus    = "auth_status"
	MsgContextUpdate = "context_update"
)

// Outbound message types (core -> host).
const (
	MsgReady             = "ready"
	MsgAuthStatusRequest = "auth_status_request"

	MsgSessionCreate      = "session_create"
	MsgSessionDelete      = "session_delete"
	MsgSessionSwitch      = "session_switch"
	MsgSessionUpdate      = "session_update"
	MsgSessionDuplicate   = "session_duplicate"
	MsgSessionClear       = "session_clear"
	MsgSessionExport      = "session_export"
	MsgSessionImport      = "session_import"
	MsgSessionListRequest = "session_list_request"
	MsgHistoryRequest     = "session_history_request"

	MsgChatSend          = "chat_send"
	MsgEditAndRegenerate = "edit_and_regenerate"
	MsgRollbackTo        = "rollback_to_message"

	MsgToolConfirmationResponse = "tool_confirmation_response"
	MsgToolCancelAll            = "tool_cancel_all"
	MsgFlowAbort                = "flow_abort"

	MsgSaveMessage = "save_ui_message"
	MsgSaveHistory = "save_session_ui_history"

	MsgContextRequest = "context_request"
	MsgTaskRequest    = "task_request"
)

// ErrUnknownType is returned when an envelope's type has no registered payload.
var ErrUnknownType = errors.New("protocol: unknown message type")

// Decode parses a raw wire message into an Envelope. The payload stays raw;
// use DecodePayload or UnmarshalPayload to type it.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: malformed envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, errors.New("protocol: envelope missing type")
	}
	return env, nil
}

// Encode serializes an envelope with the given payload struct.
func Encode(msgType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: msgType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: encode %s: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// MustEncode is Encode for payload structs that cannot fail to marshal.
func MustEncode(msgType string, payload any) Envelope {
	env, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// UnmarshalPayload decodes the envelope's payload into dst.
func UnmarshalPayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("protocol: %s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("protocol: %s: %w", env.Type, err)
	}
	return nil
}

var payloadRegistry = map[string]func() any{
	MsgSessionListUpdate:       func() any { return &SessionListPayload{} },
	MsgSessionCreated:          func() any { return &SessionInfoPayload{} },
	MsgSessionUpdated:          func() any { return &SessionInfoPayload{} },
	MsgSessionDeleted:          func() any { return &SessionRefPayload{} },
	MsgSessionSwitched:         func() any { return &SessionRefPayload{} },
	MsgSessionExported:         func() any { return &SessionRefPayload{} },
	MsgSessionImported:         func() any { return &SessionInfoPayload{} },
	MsgHistoryPage:             func() any { return &HistoryPagePayload{} },
	MsgRestoreHistory:          func() any { return &RestoreHistoryPayload{} },
	MsgRequestHistory:          func() any { return &SessionRefPayload{} },
	MsgRollbackableUpdate:      func() any { return &RollbackablePayload{} },
	MsgChatStart:               func() any { return &ChatStartPayload{} },
	MsgChatChunk:               func() any { return &ChatChunkPayload{} },
	MsgChatReasoning:           func() any { return &ChatReasoningPayload{} },
	MsgChatComplete:            func() any { return &ChatCompletePayload{} },
	MsgChatError:               func() any { return &ChatErrorPayload{} },
	MsgToolCallsUpdate:         func() any { return &ToolCallsPayload{} },
	MsgToolConfirmationRequest: func() any { return &ToolConfirmationPayload{} },
	MsgToolOutput:              func() any { return &ToolOutputPayload{} },
	MsgFlowStateUpdate:         func() any { return &FlowStatePayload{} },
	MsgFlowAborted:             func() any { return &SessionRefPayload{} },
	MsgTasksUpdate:             func() any { return &TasksUpdatePayload{} },
	MsgTaskOutput:              func() any { return &TaskOutputPayload{} },
	MsgAuthStatus:              func() any { return &AuthStatusPayload{} },
	MsgContextUpdate:           func() any { return &ContextPayload{} },
}

// DecodePayload returns the typed payload for a known inbound envelope.
// Unknown types return ErrUnknownType so the channel can log and drop them.
func DecodePayload(env Envelope) (any, error) {
	alloc, ok := payloadRegistry[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	dst := alloc()
	if len(env.Payload) == 0 {
		return dst, nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return nil, fmt.Errorf("protocol: %s: %w", env.Type, err)
	}
	return dst, nil
}
