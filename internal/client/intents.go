package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/OrionStarAI/DeepVCode-sub000/internal/history"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/protocol"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/state"
)

// SendChat submits a user turn: the message is inserted locally, a persist
// signal goes out, the send crosses the channel, and a bounded wait begins.
// If no chat-start arrives inside the timeout, the session's loading
// indicator is force-cleared; the host may still complete later and the
// idempotent merge rules absorb that.
func (c *Client) SendChat(sessionID, text string) string {
	msgID := c.store.AppendUserMessage(sessionID, "", text)
	if msgID == "" {
		return ""
	}
	c.store.SetLoading(sessionID)
	c.navigatorFor(sessionID).Reset()
	c.ch.Send(protocol.MustEncode(protocol.MsgChatSend, protocol.ChatSendPayload{
		SessionID: sessionID,
		Text:      text,
	}))
	c.ch.Send(protocol.MustEncode(protocol.MsgSaveMessage, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
	c.armSendTimer(sessionID)
	return msgID
}

func (c *Client) armSendTimer(sessionID string) {
	timeout := time.Duration(c.cfg.SendTimeoutSeconds) * time.Second
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if prev, ok := c.sendTimers[sessionID]; ok {
		prev.Stop()
	}
	c.sendTimers[sessionID] = time.AfterFunc(timeout, func() {
		c.mu.Lock()
		delete(c.sendTimers, sessionID)
		c.mu.Unlock()
		c.logger.Warn("no chat start within timeout, clearing loading",
			zap.String("session_id", sessionID))
		c.store.ClearLoading(sessionID)
	})
}

// EditAndRegenerate rewrites a prior user message and regenerates from it.
func (c *Client) EditAndRegenerate(sessionID, messageID, text string) {
	c.ch.Send(protocol.MustEncode(protocol.MsgEditAndRegenerate, protocol.EditRegeneratePayload{
		SessionID: sessionID,
		MessageID: messageID,
		Text:      text,
	}))
}

// RollbackTo asks the host to revert the conversation to a rollback-eligible
// message. Ineligible targets log and no-op.
func (c *Client) RollbackTo(sessionID, messageID string) {
	data, ok := c.store.Snapshot(sessionID)
	if !ok {
		return
	}
	if !data.RollbackableIDs[messageID] {
		c.logger.Debug("rollback target not eligible",
			zap.String("session_id", sessionID), zap.String("message_id", messageID))
		return
	}
	c.ch.Send(protocol.MustEncode(protocol.MsgRollbackTo, protocol.RollbackPayload{
		SessionID: sessionID,
		MessageID: messageID,
	}))
}

// CreateSession registers a session locally with content loaded and asks
// the host to open it. Returns the local id.
func (c *Client) CreateSession(name, sessionType string) string {
	id := c.store.CreateLocal("", name, sessionType)
	c.ch.Send(protocol.MustEncode(protocol.MsgSessionCreate, protocol.SessionCreatePayload{
		Name:        name,
		SessionType: sessionType,
	}))
	return id
}

// DeleteSession removes a session locally and tells the host.
func (c *Client) DeleteSession(sessionID string) {
	c.store.Delete(sessionID)
	c.mu.Lock()
	delete(c.navigators, sessionID)
	c.mu.Unlock()
	c.ch.Send(protocol.MustEncode(protocol.MsgSessionDelete, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// SwitchSession focuses a session, hydrating its content on demand.
func (c *Client) SwitchSession(sessionID string) {
	if c.store.SwitchTo(sessionID) {
		c.requestHistoryPage(sessionID, 0)
	}
	c.ch.Send(protocol.MustEncode(protocol.MsgSessionSwitch, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// RenameSession updates a session's display name locally and on the host.
func (c *Client) RenameSession(sessionID, name string) {
	c.store.UpdateSession(state.SessionInfo{ID: sessionID, Name: name})
	c.ch.Send(protocol.MustEncode(protocol.MsgSessionUpdate, protocol.SessionUpdatePayload{
		SessionID: sessionID,
		Name:      name,
	}))
}

// DuplicateSession asks the host to copy a session.
func (c *Client) DuplicateSession(sessionID string) {
	c.ch.Send(protocol.MustEncode(protocol.MsgSessionDuplicate, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// ClearSession asks the host to clear a session's history.
func (c *Client) ClearSession(sessionID string) {
	c.ch.Send(protocol.MustEncode(protocol.MsgSessionClear, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// ExportSession asks the host to export a session.
func (c *Client) ExportSession(sessionID string) {
	c.ch.Send(protocol.MustEncode(protocol.MsgSessionExport, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// ImportSession asks the host to import a session.
func (c *Client) ImportSession() {
	c.ch.Send(protocol.Envelope{Type: protocol.MsgSessionImport})
}

// RequestSessionList refreshes the session registry from the host.
func (c *Client) RequestSessionList() {
	c.ch.Send(protocol.Envelope{Type: protocol.MsgSessionListRequest})
}

func (c *Client) requestHistoryPage(sessionID string, page int) {
	c.ch.Send(protocol.MustEncode(protocol.MsgHistoryRequest, protocol.HistoryRequestPayload{
		SessionID: sessionID,
		Page:      page,
		PageSize:  c.cfg.HistoryPageSize,
	}))
}

// RequestHistoryPage fetches one page of a session's persisted history.
func (c *Client) RequestHistoryPage(sessionID string, page int) {
	c.requestHistoryPage(sessionID, page)
}

// ConfirmTool forwards the human's confirmation outcome. The local state
// stays pending until the host's next status event confirms the transition.
func (c *Client) ConfirmTool(sessionID, toolID string, outcome state.ConfirmationOutcome) {
	if _, ok := state.ParseConfirmationOutcome(string(outcome)); !ok {
		c.logger.Warn("unknown confirmation outcome", zap.String("outcome", string(outcome)))
		return
	}
	c.ch.Send(protocol.MustEncode(protocol.MsgToolConfirmationResponse,
		protocol.ToolConfirmationResponsePayload{
			SessionID: sessionID,
			ToolID:    toolID,
			Outcome:   string(outcome),
		}))
}

// CancelAllTools asks the host to cancel every pending tool call.
func (c *Client) CancelAllTools(sessionID string) {
	c.ch.Send(protocol.MustEncode(protocol.MsgToolCancelAll, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// Abort cancels the session's current process locally and tells the host.
// Honored only while the session is abort-eligible.
func (c *Client) Abort(sessionID string) {
	if !c.store.Abort(sessionID) {
		return
	}
	c.ch.Send(protocol.MustEncode(protocol.MsgFlowAbort, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// SetPlanMode toggles read-only tool filtering for a session.
func (c *Client) SetPlanMode(sessionID string, on bool) {
	c.store.SetPlanMode(sessionID, on)
}

// RequestTasks refreshes the background task list.
func (c *Client) RequestTasks() {
	c.ch.Send(protocol.MustEncode(protocol.MsgTaskRequest, protocol.TaskRequestPayload{
		Action: "list",
	}))
}

// KillTask asks the host to kill one background task.
func (c *Client) KillTask(taskID string) {
	c.ch.Send(protocol.MustEncode(protocol.MsgTaskRequest, protocol.TaskRequestPayload{
		Action: "kill",
		TaskID: taskID,
	}))
}

// RequestContext asks the host for a fresh environment snapshot.
func (c *Client) RequestContext(sessionID string) {
	c.ch.Send(protocol.MustEncode(protocol.MsgContextRequest, protocol.SessionRefPayload{
		SessionID: sessionID,
	}))
}

// HistoryUp recalls the previous user input for a session, capturing the
// caller's unsent draft on the first step.
func (c *Client) HistoryUp(sessionID, draft string) (string, bool) {
	nav := c.navigatorFor(sessionID)
	nav.SetEntries(c.store.UserHistory(sessionID))
	return nav.Up(draft)
}

// HistoryDown steps back toward the present; at the end it restores the
// captured draft.
func (c *Client) HistoryDown(sessionID string) (string, bool) {
	nav := c.navigatorFor(sessionID)
	nav.SetEntries(c.store.UserHistory(sessionID))
	return nav.Down()
}

// HistoryReset drops navigation state after a send.
func (c *Client) HistoryReset(sessionID string) {
	c.navigatorFor(sessionID).Reset()
}

func (c *Client) navigatorFor(sessionID string) *history.Navigator {
	c.mu.Lock()
	defer c.mu.Unlock()
	nav, ok := c.navigators[sessionID]
	if !ok {
		nav = history.New()
		c.navigators[sessionID] = nav
	}
	return nav
}
