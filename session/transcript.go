package session

import (
	"encoding/json"
	"sync"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
)

// Transcript serialization constants.
const (
	transcriptVersion = 1
	transcriptType    = "ModelBridge.Transcript"
)

// EntryRole classifies a transcript entry.
type EntryRole string

// Entry roles.
const (
	EntryRoleInstructions EntryRole = "instructions"
	EntryRoleUser         EntryRole = "user"
	EntryRoleResponse     EntryRole = "response"
	EntryRoleTool         EntryRole = "tool"
)

// ContentPart is one content element of a transcript entry.
type ContentPart struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

// ToolCallRecord is one tool invocation recorded on a response entry.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Entry is one element of the session history. The populated fields depend
// on the role: instructions entries carry the tool definitions, response
// entries may carry tool calls, and tool entries name the tool and the call
// they answer.
type Entry struct {
	ID         string                  `json:"id"`
	Role       EntryRole               `json:"role"`
	Contents   []ContentPart           `json:"contents,omitempty"`
	Tools      []engine.ToolDefinition `json:"tools,omitempty"`
	ToolCalls  []ToolCallRecord        `json:"toolCalls,omitempty"`
	ToolName   string                  `json:"toolName,omitempty"`
	ToolCallID string                  `json:"toolCallID,omitempty"`
}

// textEntry builds an entry with a single text content part.
func textEntry(role EntryRole, text string) Entry {
	return Entry{
		ID:   core.NewID(),
		Role: role,
		Contents: []ContentPart{
			{Type: "text", ID: core.NewID(), Text: text},
		},
	}
}

// Transcript is the ordered history of one session. Entries are only
// appended after a turn completes successfully; failed or cancelled turns
// leave the transcript untouched.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTranscript creates an empty transcript. When instructions or tools are
// configured, the leading instructions entry is recorded immediately.
func NewTranscript(instructions string, tools []engine.ToolDefinition) *Transcript {
	t := &Transcript{}

	if instructions != "" || len(tools) > 0 {
		entry := Entry{
			ID:    core.NewID(),
			Role:  EntryRoleInstructions,
			Tools: tools,
		}
		if instructions != "" {
			entry.Contents = []ContentPart{{Type: "text", ID: core.NewID(), Text: instructions}}
		}

		t.entries = append(t.entries, entry)
	}

	return t
}

// Entries returns a copy of the history, oldest first.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)

	return out
}

// LastResponseText returns the text of the newest response entry.
func (t *Transcript) LastResponseText() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.entries) - 1; i >= 0; i-- {
		entry := t.entries[i]
		if entry.Role != EntryRoleResponse {
			continue
		}

		for _, part := range entry.Contents {
			if part.Type == "text" {
				return part.Text, true
			}
		}
	}

	return "", false
}

// JSON serializes the full history to its canonical envelope:
//
//	{"version": 1, "type": "ModelBridge.Transcript",
//	 "transcript": {"entries": [...]}}
func (t *Transcript) JSON() (string, error) {
	t.mu.Lock()
	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)
	t.mu.Unlock()

	if entries == nil {
		entries = []Entry{}
	}

	envelope := map[string]any{
		"version": transcriptVersion,
		"type":    transcriptType,
		"transcript": map[string]any{
			"entries": entries,
		},
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", core.NewBridgeError(core.StatusDecodingFailure, "cannot serialize transcript: %v", err)
	}

	return string(raw), nil
}

// append commits the entries of a completed turn.
func (t *Transcript) append(entries ...Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, entries...)
}

// reset drops every entry except a leading instructions entry, so the
// session keeps its configuration but forgets the conversation.
func (t *Transcript) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) > 0 && t.entries[0].Role == EntryRoleInstructions {
		t.entries = t.entries[:1]
		return
	}

	t.entries = nil
}

// messages projects the history into the flattened message list engines
// consume. Instructions travel separately on the request, so the
// instructions entry is skipped here.
func (t *Transcript) messages() []engine.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]engine.Message, 0, len(t.entries))

	for _, entry := range t.entries {
		switch entry.Role {
		case EntryRoleUser:
			out = append(out, engine.Message{Role: engine.RolePrompt, Text: entryText(entry)})
		case EntryRoleResponse:
			msg := engine.Message{Role: engine.RoleResponse, Text: entryText(entry)}
			for _, call := range entry.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, engine.ToolCall{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: call.Arguments,
				})
			}

			out = append(out, msg)
		case EntryRoleTool:
			out = append(out, engine.Message{
				Role:       engine.RoleTool,
				Text:       entryText(entry),
				ToolName:   entry.ToolName,
				ToolCallID: entry.ToolCallID,
			})
		case EntryRoleInstructions:
			// Carried on Request.Instructions.
		}
	}

	return out
}

func entryText(entry Entry) string {
	for _, part := range entry.Contents {
		if part.Type == "text" {
			return part.Text
		}
	}

	return ""
}
