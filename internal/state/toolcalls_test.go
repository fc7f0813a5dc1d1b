package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSessionWithProcessingMessage sets up one session mid-turn.
func newSessionWithProcessingMessage(t *testing.T) *Store {
	t.Helper()
	s := NewStore(nil)
	s.CreateLocal("s1", "chat", "")
	s.StartAssistantMessage("s1", "m1")
	s.SetFlowState("s1", true, true, "m1")
	return s
}

func TestToolStatus_TransitionTable(t *testing.T) {
	legal := []struct {
		from, to ToolStatus
	}{
		{ToolScheduled, ToolValidating},
		{ToolScheduled, ToolWaitingConfirmation},
		{ToolValidating, ToolExecuting},
		{ToolWaitingConfirmation, ToolExecuting},
		{ToolWaitingConfirmation, ToolCanceled},
		{ToolExecuting, ToolBackgroundRunning},
		{ToolExecuting, ToolSuccess},
		{ToolBackgroundRunning, ToolError},
	}
	for _, tc := range legal {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct {
		from, to ToolStatus
	}{
		{ToolSuccess, ToolExecuting},
		{ToolCanceled, ToolExecuting},
		{ToolError, ToolSuccess},
		{ToolScheduled, ToolBackgroundRunning},
		{ToolBackgroundRunning, ToolExecuting},
	}
	for _, tc := range illegal {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestApplyToolCalls_LiveOutputSurvivesWhileExecuting(t *testing.T) {
	s := newSessionWithProcessingMessage(t)

	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting, LiveOutput: "foo"},
	})
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting},
	})

	data, _ := s.Snapshot("s1")
	require.Len(t, data.Messages[0].ToolCalls, 1)
	assert.Equal(t, "foo", data.Messages[0].ToolCalls[0].LiveOutput)
}

func TestApplyToolCalls_TerminalStatusEvictsLiveOutput(t *testing.T) {
	s := newSessionWithProcessingMessage(t)

	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting, LiveOutput: "foo"},
	})
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolSuccess,
			Result: &ToolResult{Success: true, Output: "done"}},
	})

	data, _ := s.Snapshot("s1")
	call := data.Messages[0].ToolCalls[0]
	assert.Equal(t, ToolSuccess, call.Status)
	assert.Empty(t, call.LiveOutput, "terminal status drops the partial buffer")
	require.NotNil(t, call.Result)
	assert.Equal(t, "done", call.Result.Output)
}

func TestApplyToolCalls_TerminalFirstSightCarriesNoLiveOutput(t *testing.T) {
	s := newSessionWithProcessingMessage(t)

	// A call can arrive already finished, e.g. after a missed batch.
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolSuccess, LiveOutput: "leftover",
			Result: &ToolResult{Success: true, Output: "done"}},
	})

	data, _ := s.Snapshot("s1")
	require.Len(t, data.Messages[0].ToolCalls, 1)
	assert.Empty(t, data.Messages[0].ToolCalls[0].LiveOutput)
}

func TestApplyToolCalls_IllegalTransitionKeepsPrevious(t *testing.T) {
	s := newSessionWithProcessingMessage(t)

	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolSuccess, Result: &ToolResult{Success: true}},
	})
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting, LiveOutput: "late"},
	})

	data, _ := s.Snapshot("s1")
	call := data.Messages[0].ToolCalls[0]
	assert.Equal(t, ToolSuccess, call.Status, "success is never followed by executing")
	assert.Empty(t, call.LiveOutput)
}

func TestApplyToolCalls_PlanModePartition(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.SetPlanMode("s1", true)

	disallowed := s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "read_file", Status: ToolScheduled},
		{ID: "t2", Name: "write_file", Status: ToolScheduled},
	})

	require.Equal(t, []string{"write_file"}, disallowed)

	data, _ := s.Snapshot("s1")
	calls := data.Messages[0].ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, ToolScheduled, calls[0].Status, "allowed calls proceed untouched")
	assert.Equal(t, ToolError, calls[1].Status)
	require.NotNil(t, calls[1].Result)
	assert.Equal(t, PlanModeError, calls[1].Result.Error)
}

func TestApplyToolCalls_PlanModeReevaluatedPerBatch(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.SetPlanMode("s1", true)

	disallowed := s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "write_file", Status: ToolScheduled},
	})
	require.Len(t, disallowed, 1)

	s.SetPlanMode("s1", false)
	disallowed = s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t2", Name: "write_file", Status: ToolScheduled},
	})
	assert.Empty(t, disallowed, "partition is recomputed, not cached")
}

func TestRequestConfirmation_ParksPendingTool(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "write_file", Status: ToolScheduled},
	})

	s.RequestConfirmation("s1", "t1", Confirmation{
		RiskLevel:     "high",
		AffectedFiles: []string{"main.go"},
	})

	data, _ := s.Snapshot("s1")
	call := data.Messages[0].ToolCalls[0]
	assert.Equal(t, ToolWaitingConfirmation, call.Status)
	require.NotNil(t, call.Confirmation)
	assert.Equal(t, "high", call.Confirmation.RiskLevel)
}

func TestAppendToolOutput_SearchesAllMessages(t *testing.T) {
	s := NewStore(nil)
	s.CreateLocal("s1", "chat", "")
	s.StartAssistantMessage("s1", "m1")
	s.SetFlowState("s1", true, true, "m1")
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting},
	})
	s.PromoteToBackground("s1", "t1")

	// A second turn starts; the background tool lives on the older message.
	s.CompleteMessage("s1", "m1", nil)
	s.StartAssistantMessage("s1", "m2")

	s.AppendToolOutput("s1", "t1", "line 1\n")
	s.AppendToolOutput("s1", "t1", "line 2\n")

	data, _ := s.Snapshot("s1")
	assert.Equal(t, "line 1\nline 2\n", data.Messages[0].ToolCalls[0].LiveOutput)
}

func TestAppendToolOutput_CappedWithMarker(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.SetLiveOutputCap(32)
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting},
	})

	s.AppendToolOutput("s1", "t1", strings.Repeat("a", 40))
	s.AppendToolOutput("s1", "t1", "tail")

	data, _ := s.Snapshot("s1")
	out := data.Messages[0].ToolCalls[0].LiveOutput
	assert.True(t, strings.HasPrefix(out, TruncationMarker))
	assert.True(t, strings.HasSuffix(out, "tail"))
	assert.LessOrEqual(t, len(out), 32+len(TruncationMarker))
}

func TestAppendToolOutput_UnknownToolIgnored(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.AppendToolOutput("s1", "missing", "text")

	data, _ := s.Snapshot("s1")
	assert.Empty(t, data.Messages[0].ToolCalls)
}

func TestPromoteToBackground_OnlyFromExecuting(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolScheduled},
	})

	s.PromoteToBackground("s1", "t1")
	data, _ := s.Snapshot("s1")
	assert.Equal(t, ToolScheduled, data.Messages[0].ToolCalls[0].Status)

	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting},
	})
	s.PromoteToBackground("s1", "t1")
	data, _ = s.Snapshot("s1")
	assert.Equal(t, ToolBackgroundRunning, data.Messages[0].ToolCalls[0].Status)
	assert.True(t, data.Processing, "promotion alone does not complete the turn")
}

func TestAbort_CancelsEveryNonTerminalTool(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting, LiveOutput: "partial"},
		{ID: "t2", Name: "write_file", Status: ToolWaitingConfirmation},
		{ID: "t3", Name: "read_file", Status: ToolSuccess, Result: &ToolResult{Success: true}},
	})

	require.True(t, s.Abort("s1"))

	data, _ := s.Snapshot("s1")
	calls := data.Messages[0].ToolCalls
	assert.Equal(t, ToolCanceled, calls[0].Status)
	assert.Empty(t, calls[0].LiveOutput)
	require.NotNil(t, calls[0].Result)
	assert.Equal(t, AbortedError, calls[0].Result.Error)
	assert.Equal(t, ToolCanceled, calls[1].Status)
	assert.Equal(t, ToolSuccess, calls[2].Status, "terminal calls keep their result")
	assert.False(t, data.Processing)
	assert.False(t, data.Abortable)
}

func TestAbort_IgnoredWhenNotAbortable(t *testing.T) {
	s := NewStore(nil)
	s.CreateLocal("s1", "chat", "")
	s.StartAssistantMessage("s1", "m1")
	s.SetFlowState("s1", true, false, "m1")
	s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "exec", Status: ToolExecuting},
	})

	assert.False(t, s.Abort("s1"))

	data, _ := s.Snapshot("s1")
	assert.Equal(t, ToolExecuting, data.Messages[0].ToolCalls[0].Status)
	assert.True(t, data.Processing)
}

func TestSetPlanModeTools_OverridesAllowList(t *testing.T) {
	s := newSessionWithProcessingMessage(t)
	s.SetPlanMode("s1", true)
	s.SetPlanModeTools([]string{"custom_probe"})

	disallowed := s.ApplyToolCalls("s1", "m1", []ToolCall{
		{ID: "t1", Name: "custom_probe", Status: ToolScheduled},
		{ID: "t2", Name: "read_file", Status: ToolScheduled},
	})
	assert.Equal(t, []string{"read_file"}, disallowed)
}
