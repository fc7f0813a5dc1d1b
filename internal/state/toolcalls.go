package state

import (
	"go.uber.org/zap"
)

// PlanModeError is the fixed result text for a tool disallowed while the
// session is in plan mode.
const PlanModeError = "This tool is not available in plan mode. Plan mode only permits read-only analysis tools."

// AbortedError is the synthetic result text applied to tool calls killed by
// a user abort.
const AbortedError = "Process aborted by user."

// defaultPlanModeTools is the read-only allow-list applied in plan mode.
// Re-evaluated per batch, never cached on the tool call.
var defaultPlanModeTools = map[string]bool{
	"read_file":      true,
	"list_dir":       true,
	"grep":           true,
	"search_files":   true,
	"search_symbols": true,
	"memory_read":    true,
}

// SetPlanModeTools replaces the plan-mode allow-list (config-driven).
func (s *Store) SetPlanModeTools(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(names) == 0 {
		return
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	s.planTools = allowed
}

// ApplyToolCalls merges a batch of tool-call updates into the owning
// message. Each call merges against its previous record by id; the previous
// live output survives only while the new status is still executing. In
// plan mode, calls outside the allow-list are force-failed with the fixed
// plan-mode message; the returned slice names them (once per batch) so the
// caller can raise a single notification.
func (s *Store) ApplyToolCalls(sessionID, messageID string, incoming []ToolCall) (disallowed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("tool update: unknown session", zap.String("session_id", sessionID))
		return nil
	}

	if messageID == "" {
		messageID = data.ProcessingMessageID
	}
	msg := data.messageByID(messageID)
	if msg == nil {
		s.logger.Debug("tool update: unknown message",
			zap.String("session_id", sessionID), zap.String("message_id", messageID))
		return nil
	}

	allowed := s.planTools
	if allowed == nil {
		allowed = defaultPlanModeTools
	}

	for _, call := range incoming {
		if data.PlanMode && !allowed[call.Name] && !call.Status.Terminal() {
			call.Status = ToolError
			call.Result = &ToolResult{Success: false, Error: PlanModeError}
			call.LiveOutput = ""
			disallowed = append(disallowed, call.Name)
		}
		s.mergeToolCallLocked(msg, call)
	}

	if data.ProcessingMessageID == messageID && !toolsStillRunning(msg) && !msg.Streaming {
		data.Processing = false
		data.ProcessingMessageID = ""
	}
	data.LastActivity = s.now()
	s.recomputeLocked()
	return disallowed
}

// mergeToolCallLocked merges one update by id, enforcing the transition
// table. An illegal transition keeps the previous status and logs.
func (s *Store) mergeToolCallLocked(msg *Message, call ToolCall) {
	for i := range msg.ToolCalls {
		prev := &msg.ToolCalls[i]
		if prev.ID != call.ID {
			continue
		}
		if !prev.Status.CanTransition(call.Status) {
			s.logger.Warn("illegal tool status transition dropped",
				zap.String("tool_id", call.ID),
				zap.String("from", string(prev.Status)),
				zap.String("to", string(call.Status)))
			call.Status = prev.Status
		}
		if call.Status == ToolExecuting {
			if call.LiveOutput == "" {
				call.LiveOutput = prev.LiveOutput
			}
		} else {
			// Superseded by the final result payload.
			call.LiveOutput = ""
		}
		if call.Result == nil {
			call.Result = prev.Result
		}
		if call.Confirmation == nil {
			call.Confirmation = prev.Confirmation
		}
		if call.StartedAt.IsZero() {
			call.StartedAt = prev.StartedAt
		}
		*prev = call
		return
	}
	if call.Status != ToolExecuting {
		call.LiveOutput = ""
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = s.now()
	}
	msg.ToolCalls = append(msg.ToolCalls, call)
}

// RequestConfirmation parks a tool call in waiting-confirmation with the
// structured payload. The local state stays pending after the user answers
// until the host's next status event confirms the transition.
func (s *Store) RequestConfirmation(sessionID, toolID string, conf Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	call := data.toolByID(toolID)
	if call == nil {
		s.logger.Debug("confirmation for unknown tool",
			zap.String("session_id", sessionID), zap.String("tool_id", toolID))
		return
	}
	if !call.Status.CanTransition(ToolWaitingConfirmation) {
		return
	}
	call.Status = ToolWaitingConfirmation
	c := conf
	call.Confirmation = &c
}

// AppendToolOutput appends live output to a tool call found anywhere in the
// session, capped at the configured maximum; the oldest content is
// truncated with a marker. Unknown tool ids are ignored.
func (s *Store) AppendToolOutput(sessionID, toolID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	call := data.toolByID(toolID)
	if call == nil {
		return
	}
	if call.Status.Terminal() {
		return
	}
	out := call.LiveOutput + text
	if len(out) > s.liveOutputCap {
		out = TruncationMarker + out[len(out)-s.liveOutputCap:]
	}
	call.LiveOutput = out
}

// PromoteToBackground moves an executing tool call to background-running.
// The parent message's processing flag is untouched; completion detection
// still waits for a terminal status.
func (s *Store) PromoteToBackground(sessionID, toolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	call := data.toolByID(toolID)
	if call == nil || call.Status != ToolExecuting {
		return
	}
	call.Status = ToolBackgroundRunning
}

// Abort cancels the session's current process: every non-terminal tool call
// on the processing message moves to canceled with a synthetic result, and
// the processing/abortable flags clear. Honored only while the session is
// abort-eligible; otherwise a no-op. Returns whether anything was aborted.
func (s *Store) Abort(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	if !data.Abortable {
		s.logger.Debug("abort ignored, session not abortable", zap.String("session_id", sessionID))
		return false
	}
	if msg := data.messageByID(data.ProcessingMessageID); msg != nil {
		for i := range msg.ToolCalls {
			call := &msg.ToolCalls[i]
			if call.Status.Terminal() {
				continue
			}
			call.Status = ToolCanceled
			call.LiveOutput = ""
			call.Result = &ToolResult{Success: false, Error: AbortedError}
			call.EndedAt = s.now()
		}
		msg.Streaming = false
		delete(s.content, msg.ID)
		delete(s.reasoning, msg.ID)
	}
	data.Processing = false
	data.ProcessingMessageID = ""
	data.Abortable = false
	data.Loading = false
	s.recomputeLocked()
	return true
}
