package client

import (
	"github.com/OrionStarAI/DeepVCode-sub000/internal/protocol"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/state"
)

func sessionInfoFromPayload(p protocol.SessionInfoPayload) state.SessionInfo {
	return state.SessionInfo{
		ID:           p.SessionID,
		Name:         p.Name,
		SessionType:  p.SessionType,
		CreatedAt:    p.CreatedAt,
		LastActivity: p.LastActivity,
		MessageCount: p.MessageCount,
	}
}

func messagesFromPayload(payloads []protocol.MessagePayload) []state.Message {
	out := make([]state.Message, 0, len(payloads))
	for _, p := range payloads {
		msg := state.Message{
			ID:        p.MessageID,
			Role:      state.Role(p.Role),
			Timestamp: p.Timestamp,
			Streaming: p.Streaming,
			Reasoning: p.Reasoning,
			ToolCalls: toolCallsFromPayload(p.ToolCalls),
		}
		for _, part := range p.Parts {
			msg.Parts = append(msg.Parts, state.ContentPart{
				Kind:     state.PartKind(part.Kind),
				Text:     part.Text,
				Path:     part.Path,
				Language: part.Language,
			})
		}
		// Hosts that predate content parts send a flat content string.
		if len(msg.Parts) == 0 && p.Content != "" {
			msg.Parts = []state.ContentPart{{Kind: state.PartText, Text: p.Content}}
		}
		if p.Usage != nil {
			msg.Usage = &state.TokenUsage{
				InputTokens:  p.Usage.InputTokens,
				OutputTokens: p.Usage.OutputTokens,
				TotalTokens:  p.Usage.TotalTokens,
			}
		}
		out = append(out, msg)
	}
	return out
}

func messagesToPayload(messages []state.Message) []protocol.MessagePayload {
	out := make([]protocol.MessagePayload, 0, len(messages))
	for _, m := range messages {
		p := protocol.MessagePayload{
			MessageID: m.ID,
			Role:      string(m.Role),
			Timestamp: m.Timestamp,
			Streaming: m.Streaming,
			Reasoning: m.Reasoning,
		}
		for _, part := range m.Parts {
			p.Parts = append(p.Parts, protocol.ContentPartPayload{
				Kind:     string(part.Kind),
				Text:     part.Text,
				Path:     part.Path,
				Language: part.Language,
			})
		}
		for _, call := range m.ToolCalls {
			p.ToolCalls = append(p.ToolCalls, toolCallToPayload(call))
		}
		if m.Usage != nil {
			p.Usage = &protocol.TokenUsagePayload{
				InputTokens:  m.Usage.InputTokens,
				OutputTokens: m.Usage.OutputTokens,
				TotalTokens:  m.Usage.TotalTokens,
			}
		}
		out = append(out, p)
	}
	return out
}

func toolCallsFromPayload(payloads []protocol.ToolCallPayload) []state.ToolCall {
	out := make([]state.ToolCall, 0, len(payloads))
	for _, p := range payloads {
		call := state.ToolCall{
			ID:          p.ToolID,
			Name:        p.Name,
			DisplayName: p.DisplayName,
			Params:      p.Params,
			Description: p.Description,
			Status:      state.ToolStatus(p.Status),
			LiveOutput:  p.LiveOutput,
			StartedAt:   p.StartedAt,
			EndedAt:     p.EndedAt,
		}
		if p.Confirmation != nil {
			call.Confirmation = &state.Confirmation{
				RiskLevel:     p.Confirmation.RiskLevel,
				AffectedFiles: p.Confirmation.AffectedFiles,
				Reversible:    p.Confirmation.Reversible,
				Prompt:        p.Confirmation.Prompt,
			}
		}
		if p.Result != nil {
			call.Result = &state.ToolResult{
				Success:    p.Result.Success,
				Output:     p.Result.Output,
				Error:      p.Result.Error,
				DurationMs: p.Result.DurationMs,
			}
		}
		out = append(out, call)
	}
	return out
}

func toolCallToPayload(call state.ToolCall) protocol.ToolCallPayload {
	p := protocol.ToolCallPayload{
		ToolID:      call.ID,
		Name:        call.Name,
		DisplayName: call.DisplayName,
		Params:      call.Params,
		Description: call.Description,
		Status:      string(call.Status),
		LiveOutput:  call.LiveOutput,
		StartedAt:   call.StartedAt,
		EndedAt:     call.EndedAt,
	}
	if call.Confirmation != nil {
		p.Confirmation = &protocol.ConfirmationPayload{
			RiskLevel:     call.Confirmation.RiskLevel,
			AffectedFiles: call.Confirmation.AffectedFiles,
			Reversible:    call.Confirmation.Reversible,
			Prompt:        call.Confirmation.Prompt,
		}
	}
	if call.Result != nil {
		p.Result = &protocol.ToolResultPayload{
			Success:    call.Result.Success,
			Output:     call.Result.Output,
			Error:      call.Result.Error,
			DurationMs: call.Result.DurationMs,
		}
	}
	return p
}
