// Package client composes the transport channel, session store, background
// task registry, and history navigation into the assistant client core. It
// owns the subscription wiring (inbound events into store reducers) and the
// outbound intent surface the presentation layer calls.
package client

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OrionStarAI/DeepVCode-sub000/internal/channel"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/config"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/history"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/protocol"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/state"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/tasks"
)

// AuthState tracks the client's credential standing.
type AuthState string

const (
	AuthUnknown   AuthState = "unknown"
	AuthLoggedIn  AuthState = "logged_in"
	AuthLoggedOut AuthState = "logged_out"
	AuthExpired   AuthState = "expired"
)

// Notice is a one-shot advisory for the presentation layer, distinct from
// conversation state.
type Notice struct {
	Kind      string
	SessionID string
	Text      string
}

// Notice kinds.
const (
	NoticePlanModeViolation = "plan_mode_violation"
	NoticeAuthExpired       = "auth_expired"
	NoticeSessionExported   = "session_exported"
)

// authErrorMarkers are the known substrings that classify a chat error as
// an authentication failure.
var authErrorMarkers = []string{
	"401",
	"unauthorized",
	"authentication required",
	"re-authenticate",
	"token expired",
	"login required",
}

// IsAuthError reports whether a chat error should demote the client to a
// logged-out state instead of surfacing in the conversation.
func IsAuthError(errText string) bool {
	lower := strings.ToLower(errText)
	for _, marker := range authErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Client is the assistant client core. Construct with New; Close releases
// the channel and all timers.
type Client struct {
	ch     *channel.Channel
	store  *state.Store
	tasks  *tasks.Registry
	cfg    config.Config
	logger *zap.Logger

	mu         sync.Mutex
	auth       AuthState
	sendTimers map[string]*time.Timer
	navigators map[string]*history.Navigator
	unsubs     []func()
	onNotice   func(Notice)
	closed     bool
}

// Option adjusts client construction.
type Option func(*Client)

// WithNoticeHandler registers the advisory notification sink.
func WithNoticeHandler(fn func(Notice)) Option {
	return func(c *Client) { c.onNotice = fn }
}

// New builds the client over a delivery primitive. The underlying channel
// performs the readiness handshake immediately.
func New(deliver channel.DeliverFunc, cfg config.Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		store:      state.NewStore(logger.Named("state")),
		tasks:      tasks.NewRegistry(logger.Named("tasks")),
		cfg:        cfg,
		logger:     logger,
		auth:       AuthUnknown,
		sendTimers: make(map[string]*time.Timer),
		navigators: make(map[string]*history.Navigator),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store.SetLiveOutputCap(cfg.LiveOutputLimit)
	c.store.SetPlanModeTools(cfg.PlanModeTools)
	c.ch = channel.New(deliver, logger.Named("channel"),
		channel.WithRetryInterval(time.Duration(cfg.RetryIntervalMs)*time.Millisecond))
	c.bind()
	c.ch.Send(protocol.Envelope{Type: protocol.MsgAuthStatusRequest})
	return c
}

// Store exposes the session registry for snapshot consumers.
func (c *Client) Store() *state.Store { return c.store }

// Tasks exposes the background task registry.
func (c *Client) Tasks() *tasks.Registry { return c.tasks }

// Auth returns the current credential standing.
func (c *Client) Auth() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

// HandleRaw feeds one raw inbound wire message into the client.
func (c *Client) HandleRaw(data []byte) { c.ch.HandleRaw(data) }

func (c *Client) notify(n Notice) {
	c.mu.Lock()
	fn := c.onNotice
	c.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (c *Client) setAuth(auth AuthState) {
	c.mu.Lock()
	c.auth = auth
	c.mu.Unlock()
}

// bind registers every inbound handler. Each handler decodes its payload,
// applies the matching reducer, and emits any outbound reaction.
func (c *Client) bind() {
	sub := func(msgType string, fn func(protocol.Envelope)) {
		c.unsubs = append(c.unsubs, c.ch.Subscribe(msgType, fn))
	}

	sub(protocol.MsgSessionListUpdate, c.onSessionList)
	sub(protocol.MsgSessionCreated, c.onSessionCreated)
	sub(protocol.MsgSessionUpdated, c.onSessionUpdated)
	sub(protocol.MsgSessionDeleted, c.onSessionDeleted)
	sub(protocol.MsgSessionSwitched, c.onSessionSwitched)
	sub(protocol.MsgSessionExported, c.onSessionExported)
	sub(protocol.MsgSessionImported, c.onSessionImported)
	sub(protocol.MsgHistoryPage, c.onHistoryPage)
	sub(protocol.MsgRestoreHistory, c.onRestoreHistory)
	sub(protocol.MsgRequestHistory, c.onRequestHistory)
	sub(protocol.MsgRollbackableUpdate, c.onRollbackableUpdate)
	sub(protocol.MsgChatStart, c.onChatStart)
	sub(protocol.MsgChatChunk, c.onChatChunk)
	sub(protocol.MsgChatReasoning, c.onChatReasoning)
	sub(protocol.MsgChatComplete, c.onChatComplete)
	sub(protocol.MsgChatError, c.onChatError)
	sub(protocol.MsgToolCallsUpdate, c.onToolCalls)
	sub(protocol.MsgToolConfirmationRequest, c.onToolConfirmation)
	sub(protocol.MsgToolOutput, c.onToolOutput)
	sub(protocol.MsgFlowStateUpdate, c.onFlowState)
	sub(protocol.MsgFlowAborted, c.onFlowAborted)
	sub(protocol.MsgTasksUpdate, c.onTasksUpdate)
	sub(protocol.MsgTaskOutput, c.onTaskOutput)
	sub(protocol.MsgAuthStatus, c.onAuthStatus)
	sub(protocol.MsgContextUpdate, c.onContextUpdate)
}

func (c *Client) onSessionList(env protocol.Envelope) {
	var p protocol.SessionListPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		c.logger.Warn("bad session list payload", zap.Error(err))
		return
	}
	infos := make([]state.SessionInfo, 0, len(p.Sessions))
	for _, s := range p.Sessions {
		infos = append(infos, sessionInfoFromPayload(s))
	}
	if c.store.ApplySessionList(infos) {
		c.CreateSession(c.cfg.DefaultSessionName, "")
	}
}

func (c *Client) onSessionCreated(env protocol.Envelope) {
	var p protocol.SessionInfoPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.AnnounceSession(sessionInfoFromPayload(p), true)
	c.store.SwitchTo(p.SessionID)
}

func (c *Client) onSessionUpdated(env protocol.Envelope) {
	var p protocol.SessionInfoPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.UpdateSession(sessionInfoFromPayload(p))
}

func (c *Client) onSessionDeleted(env protocol.Envelope) {
	var p protocol.SessionRefPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.Delete(p.SessionID)
	c.mu.Lock()
	delete(c.navigators, p.SessionID)
	c.mu.Unlock()
}

func (c *Client) onSessionSwitched(env protocol.Envelope) {
	var p protocol.SessionRefPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	if c.store.SwitchTo(p.SessionID) {
		c.requestHistoryPage(p.SessionID, 0)
	}
}

func (c *Client) onSessionExported(env protocol.Envelope) {
	var p protocol.SessionRefPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.notify(Notice{Kind: NoticeSessionExported, SessionID: p.SessionID})
}

// onSessionImported registers the imported session and focuses it; its
// history arrives through the usual restore path.
func (c *Client) onSessionImported(env protocol.Envelope) {
	var p protocol.SessionInfoPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.AnnounceSession(sessionInfoFromPayload(p), false)
	if c.store.SwitchTo(p.SessionID) {
		c.requestHistoryPage(p.SessionID, 0)
	}
}

func (c *Client) onHistoryPage(env protocol.Envelope) {
	var p protocol.HistoryPagePayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.Restore(p.SessionID, messagesFromPayload(p.Messages), nil)
}

func (c *Client) onRestoreHistory(env protocol.Envelope) {
	var p protocol.RestoreHistoryPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		c.logger.Warn("bad restore payload", zap.Error(err))
		return
	}
	c.store.Restore(p.SessionID, messagesFromPayload(p.Messages), p.RollbackableIDs)
}

// onRequestHistory hands the core's authoritative copy back to the host for
// persistence.
func (c *Client) onRequestHistory(env protocol.Envelope) {
	var p protocol.SessionRefPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	data, ok := c.store.Snapshot(p.SessionID)
	if !ok {
		c.logger.Debug("history requested for unknown session",
			zap.String("session_id", p.SessionID))
		return
	}
	c.ch.Send(protocol.MustEncode(protocol.MsgSaveHistory, protocol.SaveHistoryPayload{
		SessionID: p.SessionID,
		Messages:  messagesToPayload(data.Messages),
	}))
}

func (c *Client) onRollbackableUpdate(env protocol.Envelope) {
	var p protocol.RollbackablePayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.SetRollbackableIDs(p.SessionID, p.RollbackableIDs)
}

func (c *Client) onChatStart(env protocol.Envelope) {
	var p protocol.ChatStartPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.cancelSendTimer(p.SessionID)
	c.store.StartAssistantMessage(p.SessionID, p.MessageID)
}

func (c *Client) onChatChunk(env protocol.Envelope) {
	var p protocol.ChatChunkPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.AppendChunk(p.SessionID, p.MessageID, p.Text, p.Done)
}

func (c *Client) onChatReasoning(env protocol.Envelope) {
	var p protocol.ChatReasoningPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.AppendReasoning(p.SessionID, p.MessageID, p.Text)
}

func (c *Client) onChatComplete(env protocol.Envelope) {
	var p protocol.ChatCompletePayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	var usage *state.TokenUsage
	if p.Usage != nil {
		usage = &state.TokenUsage{
			InputTokens:  p.Usage.InputTokens,
			OutputTokens: p.Usage.OutputTokens,
			TotalTokens:  p.Usage.TotalTokens,
		}
	}
	c.store.CompleteMessage(p.SessionID, p.MessageID, usage)
	c.ch.Send(protocol.MustEncode(protocol.MsgSaveMessage, protocol.SessionRefPayload{
		SessionID: p.SessionID,
	}))
}

func (c *Client) onChatError(env protocol.Envelope) {
	var p protocol.ChatErrorPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.cancelSendTimer(p.SessionID)
	auth := IsAuthError(p.Error)
	c.store.FailChat(p.SessionID, p.Error, auth)
	if auth {
		c.setAuth(AuthExpired)
		c.notify(Notice{Kind: NoticeAuthExpired, SessionID: p.SessionID, Text: p.Error})
	}
}

func (c *Client) onToolCalls(env protocol.Envelope) {
	var p protocol.ToolCallsPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		c.logger.Warn("bad tool calls payload", zap.Error(err))
		return
	}
	disallowed := c.store.ApplyToolCalls(p.SessionID, p.MessageID, toolCallsFromPayload(p.ToolCalls))
	if len(disallowed) > 0 {
		c.notify(Notice{
			Kind:      NoticePlanModeViolation,
			SessionID: p.SessionID,
			Text:      "Not available in plan mode: " + strings.Join(disallowed, ", "),
		})
	}
}

func (c *Client) onToolConfirmation(env protocol.Envelope) {
	var p protocol.ToolConfirmationPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.RequestConfirmation(p.SessionID, p.ToolID, state.Confirmation{
		RiskLevel:     p.Confirmation.RiskLevel,
		AffectedFiles: p.Confirmation.AffectedFiles,
		Reversible:    p.Confirmation.Reversible,
		Prompt:        p.Confirmation.Prompt,
	})
}

func (c *Client) onToolOutput(env protocol.Envelope) {
	var p protocol.ToolOutputPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.AppendToolOutput(p.SessionID, p.ToolID, p.Text)
}

func (c *Client) onFlowState(env protocol.Envelope) {
	var p protocol.FlowStatePayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.SetFlowState(p.SessionID, p.Processing, p.Abortable, p.MessageID)
}

// onFlowAborted clears flow flags after a host-confirmed abort. Tool calls
// reach their canceled statuses through the accompanying tool_calls_update.
func (c *Client) onFlowAborted(env protocol.Envelope) {
	var p protocol.SessionRefPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.SetFlowState(p.SessionID, false, false, "")
}

func (c *Client) onTasksUpdate(env protocol.Envelope) {
	var p protocol.TasksUpdatePayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	infos := make([]tasks.Info, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		infos = append(infos, tasks.Info{
			ID:        t.TaskID,
			ToolID:    t.ToolID,
			Command:   t.Command,
			Status:    tasks.Status(t.Status),
			StartedAt: t.StartedAt,
		})
	}
	c.tasks.ApplyList(infos, p.RunningCount)
}

func (c *Client) onTaskOutput(env protocol.Envelope) {
	var p protocol.TaskOutputPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.tasks.AppendOutput(p.TaskID, p.Text, p.Stderr)
}

func (c *Client) onAuthStatus(env protocol.Envelope) {
	var p protocol.AuthStatusPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	if p.LoggedIn {
		c.setAuth(AuthLoggedIn)
	} else {
		c.setAuth(AuthLoggedOut)
	}
}

func (c *Client) onContextUpdate(env protocol.Envelope) {
	var p protocol.ContextPayload
	if err := protocol.UnmarshalPayload(env, &p); err != nil {
		return
	}
	c.store.SetContext(p.SessionID, state.ContextInfo{
		ActiveFile:    p.ActiveFile,
		Selection:     p.Selection,
		WorkspaceRoot: p.WorkspaceRoot,
	})
}

func (c *Client) cancelSendTimer(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.sendTimers[sessionID]; ok {
		t.Stop()
		delete(c.sendTimers, sessionID)
	}
}

// Close cancels pending timers, removes all subscriptions, and disposes the
// channel. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, t := range c.sendTimers {
		t.Stop()
		delete(c.sendTimers, id)
	}
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	c.ch.Dispose()
}
