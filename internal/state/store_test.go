package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySessionList_EmptySignalsDefaultCreation(t *testing.T) {
	s := NewStore(nil)
	assert.True(t, s.ApplySessionList(nil))

	// Once any session exists, an empty list no longer asks for a default.
	s.CreateLocal("s1", "chat", "")
	assert.False(t, s.ApplySessionList(nil))
}

func TestAnnounceSession_IdempotentByID(t *testing.T) {
	s := NewStore(nil)
	s.AnnounceSession(SessionInfo{ID: "s1", Name: "first"}, false)
	s.AnnounceSession(SessionInfo{ID: "s1", Name: "second"}, false)

	require.Equal(t, 1, s.Stats().SessionCount)
	data, ok := s.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, "first", data.Name)
}

func TestSwitchTo_SingleActiveInvariant(t *testing.T) {
	s := NewStore(nil)
	s.AnnounceSession(SessionInfo{ID: "s1"}, false)
	s.AnnounceSession(SessionInfo{ID: "s2"}, false)
	s.AnnounceSession(SessionInfo{ID: "s3"}, false)

	s.SwitchTo("s2")
	s.SwitchTo("s3")
	s.SwitchTo("s2")

	active := 0
	for _, sess := range s.Sessions() {
		if sess.Status == SessionActive {
			active++
			assert.Equal(t, "s2", sess.ID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestSwitchTo_UnknownIDIsNoop(t *testing.T) {
	s := NewStore(nil)
	s.AnnounceSession(SessionInfo{ID: "s1"}, false)
	s.SwitchTo("missing")
	assert.Equal(t, "s1", s.ActiveID())
}

func TestSwitchTo_HydratesOnDemand(t *testing.T) {
	s := NewStore(nil)
	s.AnnounceSession(SessionInfo{ID: "s1"}, false)
	s.AnnounceSession(SessionInfo{ID: "s2"}, false)

	needsRestore := s.SwitchTo("s2")
	assert.True(t, needsRestore)

	data, _ := s.Snapshot("s2")
	assert.True(t, data.ContentLoaded)
	assert.True(t, data.Loading)

	// Second switch must not re-request.
	s.SwitchTo("s1")
	assert.False(t, s.SwitchTo("s2"))
}

func TestHydrate_PreservesPartialContent(t *testing.T) {
	s := NewStore(nil)
	s.AnnounceSession(SessionInfo{ID: "s1"}, false)
	s.AppendUserMessage("s1", "m1", "hello")

	needsRestore := s.Hydrate("s1")
	assert.False(t, needsRestore)

	data, _ := s.Snapshot("s1")
	assert.False(t, data.Loading)
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "hello", data.Messages[0].Text())
}

func TestAppendUserMessage_IdempotentByID(t *testing.T) {
	s := NewStore(nil)
	s.CreateLocal("s1", "chat", "")
	s.AppendUserMessage("s1", "m1", "hello")
	s.AppendUserMessage("s1", "m1", "something else")

	data, _ := s.Snapshot("s1")
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "hello", data.Messages[0].Text())
}

func TestRestore_SkippedWhenLocalIsNewer(t *testing.T) {
	s := NewStore(nil)
	s.CreateLocal("s1", "chat", "")
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"} {
		s.AppendUserMessage("s1", id, "msg "+id)
	}
	s.SetLoading("s1")

	incoming := []Message{
		{ID: "m1", Role: RoleUser},
		{ID: "m2", Role: RoleUser},
		{ID: "m3", Role: RoleUser},
		{ID: "m4", Role: RoleUser},
		{ID: "m5", Role: RoleUser},
	}
	s.Restore("s1", incoming, nil)

	data, _ := s.Snapshot("s1")
	assert.Len(t, data.Messages, 7, "restore must never reduce the local count")
	assert.False(t, data.Loading, "restore still lowers the loading flag")
}

func TestRestore_ForcesTransientFlagsTerminal(t *testing.T) {
	s := NewStore(nil)
	s.AnnounceSession(SessionInfo{ID: "s1"}, false)

	incoming := []Message{
		{ID: "m1", Role: RoleUser},
		{ID: "m2", Role: RoleAssistant, Streaming: true, ToolCalls: []ToolCall{
			{ID: "t1", Name: "exec", Status: ToolExecuting, LiveOutput: "partial"},
			{ID: "t2", Name: "read_file", Status: ToolSuccess},
		}},
	}
	s.Restore("s1", incoming, []string{"m1"})

	data, _ := s.Snapshot("s1")
	require.Len(t, data.Messages, 2)
	assistant := data.Messages[1]
	assert.False(t, assistant.Streaming)
	assert.Equal(t, ToolCanceled, assistant.ToolCalls[0].Status)
	assert.Empty(t, assistant.ToolCalls[0].LiveOutput)
	assert.Equal(t, ToolSuccess, assistant.ToolCalls[1].Status)
	assert.Equal(t, "m2", data.LastAcceptedMessageID,
		"last accepted pointer moves to the final message so no stale diff shows")
	assert.True(t, data.RollbackableIDs["m1"])
}

func TestRestore_DropsBuffersOfReplacedMessages(t *testing.T) {
	s := NewStore(nil)
	s.CreateLocal("s1", "chat", "")
	s.StartAssistantMessage("s1", "m1")
	s.AppendChunk("s1", "m1", "in flight", true)

	incoming := []Message{
		{ID: "h1", Role: RoleUser},
		{ID: "h2", Role: RoleAssistant},
	}
	s.Restore("s1", incoming, nil)

	_, ok := s.content["m1"]
	assert.False(t, ok, "replaced message must not leave its buffer behind")
	data, _ := s.Snapshot("s1")
	assert.Len(t, data.Messages, 2)
}

func TestDelete_PromotesRemainingSession(t *testing.T) {
	s := NewStore(nil)
	s.AnnounceSession(SessionInfo{ID: "s1"}, false)
	s.AnnounceSession(SessionInfo{ID: "s2"}, false)
	s.SwitchTo("s1")

	s.Delete("s1")
	assert.Equal(t, "s2", s.ActiveID())

	data, _ := s.Snapshot("s2")
	assert.Equal(t, SessionActive, data.Status)

	s.Delete("s2")
	assert.Equal(t, "", s.ActiveID())
	assert.Equal(t, 0, s.Stats().SessionCount)
}

func TestStats_RecomputedAfterEveryMutation(t *testing.T) {
	s := NewStore(nil)
	s.CreateLocal("s1", "a", "")
	s.CreateLocal("s2", "b", "")
	s.AppendUserMessage("s1", "m1", "one")
	s.AppendUserMessage("s2", "m2", "two")
	s.SetFlowState("s1", true, true, "m1")

	st := s.Stats()
	assert.Equal(t, 2, st.SessionCount)
	assert.Equal(t, 2, st.MessageCount)
	assert.Equal(t, 1, st.ProcessingCount)

	s.Delete("s1")
	st = s.Stats()
	assert.Equal(t, 1, st.SessionCount)
	assert.Equal(t, 1, st.MessageCount)
	assert.Equal(t, 0, st.ProcessingCount)
}

func TestUserHistory_NewestFirst(t *testing.T) {
	s := NewStore(nil)
	s.CreateLocal("s1", "chat", "")
	s.AppendUserMessage("s1", "m1", "A")
	s.StartAssistantMessage("s1", "a1")
	s.AppendUserMessage("s1", "m2", "B")

	assert.Equal(t, []string{"B", "A"}, s.UserHistory("s1"))
}
