package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the single source of truth for all sessions. Every public
// operation is a synchronous state transition serialized by one mutex, and
// derived statistics are recomputed before the lock is released. Unknown
// session or message references log and no-op; they never error across the
// public contract.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*SessionData
	order    []string // insertion order for deterministic iteration
	activeID string

	// streaming buffers keyed by message id, discarded on completion/error
	content   map[string]*streamBuffer
	reasoning map[string]*streamBuffer

	stats         Stats
	globalContext *ContextInfo
	planTools     map[string]bool

	liveOutputCap int
	logger        *zap.Logger
	now           func() time.Time
}

// DefaultLiveOutputCap bounds a tool call's accumulated live output; older
// content is truncated with a marker once the cap is exceeded.
const DefaultLiveOutputCap = 64 * 1024

// TruncationMarker prefixes live output that lost its oldest content.
const TruncationMarker = "[...output truncated...]\n"

// NewStore builds an empty registry.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions:      make(map[string]*SessionData),
		content:       make(map[string]*streamBuffer),
		reasoning:     make(map[string]*streamBuffer),
		liveOutputCap: DefaultLiveOutputCap,
		logger:        logger,
		now:           time.Now,
	}
}

// SetLiveOutputCap overrides the live-output bound. Zero keeps the default.
func (s *Store) SetLiveOutputCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.liveOutputCap = n
	}
}

// SessionInfo is the metadata the host announces for a session.
type SessionInfo struct {
	ID           string
	Name         string
	SessionType  string
	CreatedAt    time.Time
	LastActivity time.Time
	MessageCount int
}

// AnnounceSession inserts a session the host told us about. Insertion is
// idempotent by id. When loadContent is false the record is metadata-only
// and hydrates on first switch.
func (s *Store) AnnounceSession(info SessionInfo, loadContent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announceLocked(info, loadContent)
	s.recomputeLocked()
}

func (s *Store) announceLocked(info SessionInfo, loadContent bool) {
	if _, ok := s.sessions[info.ID]; ok {
		return
	}
	created := info.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	data := &SessionData{
		Session: Session{
			ID:           info.ID,
			Name:         info.Name,
			SessionType:  info.SessionType,
			Status:       SessionIdle,
			CreatedAt:    created,
			LastActivity: info.LastActivity,
			MessageCount: info.MessageCount,
		},
		ContentLoaded:   loadContent,
		RollbackableIDs: make(map[string]bool),
	}
	s.sessions[info.ID] = data
	s.order = append(s.order, info.ID)
	if s.activeID == "" {
		data.Status = SessionActive
		s.activeID = info.ID
	}
}

// ApplySessionList replaces missing registry entries from the host's full
// list. An empty list against an empty registry means the host has nothing
// to show; the store signals that a default session should be created
// rather than leaving the registry empty.
func (s *Store) ApplySessionList(infos []SessionInfo) (createDefault bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(infos) == 0 && len(s.sessions) == 0 {
		return true
	}
	for _, info := range infos {
		s.announceLocked(info, false)
	}
	s.recomputeLocked()
	return false
}

// CreateLocal registers a user-created session with content already loaded
// and makes it active. Returns the generated id when none is supplied.
func (s *Store) CreateLocal(id, name, sessionType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	s.announceLocked(SessionInfo{ID: id, Name: name, SessionType: sessionType}, true)
	s.switchLocked(id)
	s.recomputeLocked()
	return id
}

// Hydrate marks a session's content as loaded. If messages are already
// present from a prior partial hydration they are preserved and the loading
// flag drops immediately; otherwise the flag is raised until a restore
// event arrives. Returns whether a restore is still needed.
func (s *Store) Hydrate(sessionID string) (needsRestore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("hydrate: unknown session", zap.String("session_id", sessionID))
		return false
	}
	data.ContentLoaded = true
	if len(data.Messages) > 0 {
		data.Loading = false
		return false
	}
	data.Loading = true
	return true
}

// SwitchTo makes a session active, demoting the previous one. Unknown ids
// log and no-op. Returns whether the target still needs a content restore.
func (s *Store) SwitchTo(sessionID string) (needsRestore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("switch: unknown session", zap.String("session_id", sessionID))
		return false
	}
	s.switchLocked(sessionID)
	if !data.ContentLoaded {
		data.ContentLoaded = true
		if len(data.Messages) == 0 {
			data.Loading = true
			needsRestore = true
		}
	}
	s.recomputeLocked()
	return needsRestore
}

func (s *Store) switchLocked(sessionID string) {
	if prev, ok := s.sessions[s.activeID]; ok && s.activeID != sessionID {
		prev.Status = SessionIdle
	}
	data := s.sessions[sessionID]
	data.Status = SessionActive
	data.LastActivity = s.now()
	s.activeID = sessionID
}

// Restore applies a persisted message set to a session. The merge is
// defensive: when the store already holds at least as many messages, the
// incoming set is skipped and only the loading flag drops, so an
// out-of-order restore cannot clobber newer local state. Otherwise
// historical assistant messages have their transient flags forced terminal
// before insertion, and the last-accepted pointer moves to the final
// message so no stale diff shows as pending.
func (s *Store) Restore(sessionID string, messages []Message, rollbackableIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("restore: unknown session", zap.String("session_id", sessionID))
		return
	}
	data.Loading = false
	for _, id := range rollbackableIDs {
		data.RollbackableIDs[id] = true
	}
	if len(data.Messages) >= len(messages) {
		s.logger.Debug("restore skipped, local history is newer",
			zap.String("session_id", sessionID),
			zap.Int("local", len(data.Messages)),
			zap.Int("incoming", len(messages)))
		return
	}

	for _, msg := range data.Messages {
		delete(s.content, msg.ID)
		delete(s.reasoning, msg.ID)
	}
	restored := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleAssistant {
			msg.Streaming = false
			for i := range msg.ToolCalls {
				if !msg.ToolCalls[i].Status.Terminal() {
					msg.ToolCalls[i].Status = ToolCanceled
					msg.ToolCalls[i].LiveOutput = ""
				}
			}
		}
		restored = append(restored, msg)
	}
	data.Messages = restored
	data.ContentLoaded = true
	data.Processing = false
	data.ProcessingMessageID = ""
	if len(restored) > 0 {
		data.LastAcceptedMessageID = restored[len(restored)-1].ID
	}
	s.recomputeLocked()
}

// SetRollbackableIDs replaces the rollback-eligible id set.
func (s *Store) SetRollbackableIDs(sessionID string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	data.RollbackableIDs = make(map[string]bool, len(ids))
	for _, id := range ids {
		data.RollbackableIDs[id] = true
	}
}

// Delete removes a session. If it was active, an arbitrary remaining
// session (first in insertion order) is promoted.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("delete: unknown session", zap.String("session_id", sessionID))
		return
	}
	for _, msg := range data.Messages {
		delete(s.content, msg.ID)
		delete(s.reasoning, msg.ID)
	}
	delete(s.sessions, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	if s.activeID == sessionID {
		s.activeID = ""
		if len(s.order) > 0 {
			s.switchLocked(s.order[0])
		}
	}
	s.recomputeLocked()
}

// UpdateSession applies host-side metadata changes (rename, retag).
func (s *Store) UpdateSession(info SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[info.ID]
	if !ok {
		return
	}
	if info.Name != "" {
		data.Name = info.Name
	}
	if info.SessionType != "" {
		data.SessionType = info.SessionType
	}
	if !info.LastActivity.IsZero() {
		data.LastActivity = info.LastActivity
	}
	s.recomputeLocked()
}

// SetPlanMode toggles read-only tool filtering for a session.
func (s *Store) SetPlanMode(sessionID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.sessions[sessionID]; ok {
		data.PlanMode = on
	}
}

// SetContext replaces the ambient environment snapshot, globally or for one
// session.
func (s *Store) SetContext(sessionID string, info ContextInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		s.globalContext = &info
		return
	}
	if data, ok := s.sessions[sessionID]; ok {
		data.Context = &info
	}
}

// AppendUserMessage inserts a user-authored turn. Insertion is idempotent
// by id; a colliding id leaves the sequence unchanged.
func (s *Store) AppendUserMessage(sessionID, messageID, text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("append: unknown session", zap.String("session_id", sessionID))
		return ""
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if data.messageByID(messageID) != nil {
		return messageID
	}
	data.Messages = append(data.Messages, Message{
		ID:        messageID,
		Role:      RoleUser,
		Parts:     []ContentPart{{Kind: PartText, Text: text}},
		Timestamp: s.now(),
	})
	data.LastActivity = s.now()
	s.recomputeLocked()
	return messageID
}

// SetFlowState applies the host's processing/abortable flags.
func (s *Store) SetFlowState(sessionID string, processing, abortable bool, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	data.Processing = processing
	data.Abortable = abortable
	if messageID != "" {
		data.ProcessingMessageID = messageID
	}
	if !processing {
		data.ProcessingMessageID = ""
	}
	s.recomputeLocked()
}

// ClearLoading force-lowers the loading flag; the send-timeout guard uses
// this when no chat-start arrived in time.
func (s *Store) ClearLoading(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.sessions[sessionID]; ok {
		data.Loading = false
	}
}

// SetLoading raises the loading flag when a send goes out.
func (s *Store) SetLoading(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.sessions[sessionID]; ok {
		data.Loading = true
	}
}

// Context returns the session's snapshot if set, else the global one.
func (s *Store) Context(sessionID string) *ContextInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.sessions[sessionID]; ok && data.Context != nil {
		c := *data.Context
		return &c
	}
	if s.globalContext != nil {
		c := *s.globalContext
		return &c
	}
	return nil
}

// ActiveID returns the id of the active session, or empty.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Snapshot returns a deep copy of one session's data, or false.
func (s *Store) Snapshot(sessionID string) (SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return SessionData{}, false
	}
	return cloneSessionData(data), true
}

// Sessions returns summaries in insertion order.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Session)
	}
	return out
}

// Stats returns the derived counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// UserHistory returns the session's user-authored message texts, newest
// first, for terminal-style recall.
func (s *Store) UserHistory(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	var out []string
	for i := len(data.Messages) - 1; i >= 0; i-- {
		if data.Messages[i].Role == RoleUser {
			out = append(out, data.Messages[i].Text())
		}
	}
	return out
}

// recomputeLocked refreshes derived statistics. Called inside every
// mutating operation so no consumer can observe drift.
func (s *Store) recomputeLocked() {
	st := Stats{SessionCount: len(s.sessions)}
	for _, data := range s.sessions {
		data.MessageCount = len(data.Messages)
		st.MessageCount += len(data.Messages)
		if data.Processing {
			st.ProcessingCount++
		}
	}
	s.stats = st
}

func cloneSessionData(data *SessionData) SessionData {
	out := *data
	out.Messages = make([]Message, len(data.Messages))
	copy(out.Messages, data.Messages)
	for i := range out.Messages {
		if n := len(out.Messages[i].ToolCalls); n > 0 {
			calls := make([]ToolCall, n)
			copy(calls, out.Messages[i].ToolCalls)
			out.Messages[i].ToolCalls = calls
		}
	}
	out.RollbackableIDs = make(map[string]bool, len(data.RollbackableIDs))
	for id := range data.RollbackableIDs {
		out.RollbackableIDs[id] = true
	}
	return out
}
