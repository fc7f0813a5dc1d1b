package state

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// streamBuffer accumulates fragments for one in-flight message.
type streamBuffer struct {
	b strings.Builder
}

func (sb *streamBuffer) append(text string) { sb.b.WriteString(text) }
func (sb *streamBuffer) String() string     { return sb.b.String() }

// StartAssistantMessage inserts the streaming placeholder for a newly
// announced assistant message. Idempotent by message id.
func (s *Store) StartAssistantMessage(sessionID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("chat start: unknown session", zap.String("session_id", sessionID))
		return
	}
	data.Loading = false
	if data.messageByID(messageID) != nil {
		return
	}
	data.Messages = append(data.Messages, Message{
		ID:        messageID,
		Role:      RoleAssistant,
		Timestamp: s.now(),
		Streaming: true,
	})
	s.content[messageID] = &streamBuffer{}
	data.LastActivity = s.now()
	s.recomputeLocked()
}

// AppendChunk adds one streamed content fragment and keeps the message's
// displayed text current. done only marks the fragment stream finished;
// finalization waits for CompleteMessage.
func (s *Store) AppendChunk(sessionID, messageID, text string, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	msg := data.messageByID(messageID)
	if msg == nil {
		s.logger.Debug("chunk for unknown message",
			zap.String("session_id", sessionID), zap.String("message_id", messageID))
		return
	}
	buf := s.content[messageID]
	if buf == nil {
		buf = &streamBuffer{}
		s.content[messageID] = buf
	}
	buf.append(text)
	msg.Parts = []ContentPart{{Kind: PartText, Text: buf.String()}}
	msg.Streaming = !done
}

// AppendReasoning adds a thinking fragment. Reasoning accumulates apart
// from the answer text; the two never interleave into one field.
func (s *Store) AppendReasoning(sessionID, messageID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	msg := data.messageByID(messageID)
	if msg == nil {
		return
	}
	buf := s.reasoning[messageID]
	if buf == nil {
		buf = &streamBuffer{}
		s.reasoning[messageID] = buf
	}
	buf.append(text)
	msg.Reasoning = buf.String()
}

// CompleteMessage commits the buffered content verbatim, clears the
// streaming flag, attaches the usage snapshot, and discards the buffers.
// The session's processing flag clears only when no assistant message is
// still mid-tool-processing.
func (s *Store) CompleteMessage(sessionID, messageID string, usage *TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	msg := data.messageByID(messageID)
	if msg == nil {
		s.logger.Debug("complete for unknown message",
			zap.String("session_id", sessionID), zap.String("message_id", messageID))
		return
	}
	if buf := s.content[messageID]; buf != nil {
		msg.Parts = []ContentPart{{Kind: PartText, Text: buf.String()}}
	}
	msg.Streaming = false
	if usage != nil {
		u := *usage
		msg.Usage = &u
		data.Usage.Add(u)
	}
	delete(s.content, messageID)
	delete(s.reasoning, messageID)

	if data.ProcessingMessageID == "" || data.ProcessingMessageID == messageID {
		if !toolsStillRunning(msg) {
			data.Processing = false
			data.ProcessingMessageID = ""
		}
	}
	data.LastActivity = s.now()
	s.recomputeLocked()
}

// FailChat absorbs a chat-error event. Ordinary failures surface as a
// synthetic system message; authentication failures do not, because the
// conversation is not the place to report a credential problem - the
// caller demotes the whole client instead.
func (s *Store) FailChat(sessionID, errText string, authFailure bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	data.Loading = false
	for i := range data.Messages {
		delete(s.content, data.Messages[i].ID)
		delete(s.reasoning, data.Messages[i].ID)
		data.Messages[i].Streaming = false
	}
	if !authFailure {
		data.Messages = append(data.Messages, Message{
			ID:        uuid.NewString(),
			Role:      RoleSystem,
			Parts:     []ContentPart{{Kind: PartText, Text: errText}},
			Timestamp: s.now(),
		})
	}
	data.Processing = false
	data.ProcessingMessageID = ""
	s.recomputeLocked()
}

func toolsStillRunning(msg *Message) bool {
	for i := range msg.ToolCalls {
		if !msg.ToolCalls[i].Status.Terminal() {
			return true
		}
	}
	return false
}
