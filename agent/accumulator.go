// Streaming response accumulation.
//
// A streamed response arrives as heterogeneous fragments: a role marker,
// reasoning text, visible content, and tool-call pieces routed by slot
// index. responseBuilder reassembles them into one immutable assistant turn.
// The protocol keeps reasoning and content disjoint in time, but the builder
// does not rely on that; every field accumulates independently until the
// stream ends.

package agent

import (
	"encoding/json"
	"strings"

	"github.com/richinex/inkwell/llm"
)

type responseBuilder struct {
	role      string
	reasoning strings.Builder
	content   strings.Builder
	slots     []*slotBuilder
	narrator  *narrator
}

// slotBuilder accumulates one tool call. ID and name are set once (first
// non-empty value wins); arguments only ever grow.
type slotBuilder struct {
	id   string
	name string
	args strings.Builder
}

func newResponseBuilder(n *narrator) *responseBuilder {
	return &responseBuilder{narrator: n}
}

// apply folds one partial-update event into the builder.
func (b *responseBuilder) apply(event llm.StreamEvent) {
	if b.role == "" && event.Role != "" {
		b.role = event.Role
	}
	if event.ReasoningContent != "" {
		b.reasoning.WriteString(event.ReasoningContent)
		b.narrator.reasoningFragment(event.ReasoningContent)
	}
	if event.Content != "" {
		b.content.WriteString(event.Content)
		b.narrator.contentFragment(event.Content)
	}
	for _, delta := range event.ToolCalls {
		if delta.Index < 0 {
			continue
		}
		for len(b.slots) <= delta.Index {
			b.slots = append(b.slots, &slotBuilder{})
		}
		slot := b.slots[delta.Index]
		if slot.id == "" && delta.ID != "" {
			slot.id = delta.ID
		}
		if slot.name == "" && delta.Name != "" {
			slot.name = delta.Name
		}
		if delta.Arguments != "" {
			slot.args.WriteString(delta.Arguments)
		}
		b.narrator.toolFragment(delta.Index, delta.Name, delta.Arguments)
	}
}

// finalize seals the accumulated fragments into an assistant turn. Slots
// that never received an id are dropped: a result turn could not reference
// them, and the API rejects unanswered tool calls.
func (b *responseBuilder) finalize() llm.ChatMessage {
	role := b.role
	if role == "" {
		role = "assistant"
	}

	msg := llm.ChatMessage{
		Role:             role,
		Content:          b.content.String(),
		ReasoningContent: b.reasoning.String(),
	}

	for _, slot := range b.slots {
		if slot.id == "" {
			b.narrator.droppedSlot(slot.name)
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        slot.id,
			Name:      slot.name,
			Arguments: json.RawMessage(slot.args.String()),
		})
	}

	return msg
}
