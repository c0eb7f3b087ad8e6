package chat

// Roles recorded in a transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single transcript entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
