package bus

import "time"

// Event kinds fanned out on a project topic.
const (
	KindMessageNew = "message:new"
	KindTyping     = "typing"
)

// Event is one fan-out unit scoped to a topic.
type Event struct {
	Topic     string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// TypingPayload is the payload carried by typing events.
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// Topic names the broadcast topic for a project.
func Topic(projectID string) string {
	return "project-" + projectID
}
