package protocol

// FlattenForWire converts internal messages to the OpenAI-compatible wire
// list. An assistant message with tool_call blocks becomes one assistant
// message carrying content text plus a tool_calls array. A message holding
// tool_result blocks becomes one role "tool" message per block, each linked
// by tool_call_id. Plain messages pass through unchanged.
func FlattenForWire(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Blocks) == 0 {
			out = append(out, m)
			continue
		}
		if m.Role == RoleAssistant {
			out = append(out, Message{
				Role:      RoleAssistant,
				Content:   m.Text(),
				ToolCalls: m.ToolCallList(),
			})
			continue
		}
		var pendingText string
		flushText := func() {
			if pendingText != "" {
				out = append(out, Message{Role: m.Role, Content: pendingText})
				pendingText = ""
			}
		}
		for _, blk := range m.Blocks {
			switch blk.Type {
			case BlockTypeText:
				pendingText += blk.Text
			case BlockTypeToolResult:
				flushText()
				out = append(out, Message{
					Role:       RoleTool,
					Content:    blk.Content,
					ToolCallID: blk.ToolUseID,
				})
			}
		}
		flushText()
	}
	return out
}

// GroupFromWire is the loading-side inverse of FlattenForWire: consecutive
// role "tool" messages collapse into a single user message of tool_result
// blocks, and an assistant message with a tool_calls array regains its block
// form. Messages already in block form pass through unchanged.
func GroupFromWire(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	var pending []ContentBlock
	flush := func() {
		if len(pending) > 0 {
			out = append(out, NewToolResultsMessage(pending))
			pending = nil
		}
	}
	for _, m := range msgs {
		if m.Role == RoleTool && len(m.Blocks) == 0 {
			pending = append(pending, ToolResultBlock(m.ToolCallID, m.Content, false))
			continue
		}
		flush()
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 && len(m.Blocks) == 0 {
			out = append(out, NewAssistantToolCallMessage(m.Content, m.ToolCalls))
			continue
		}
		out = append(out, m)
	}
	flush()
	return out
}
