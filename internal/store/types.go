package store

// Project is the scoping unit for one conversation room. Projects are
// provisioned by the project-management side; the chat core only needs the
// row to exist so appends have a sequence counter to claim from.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LastSeq   int64  `json:"lastSeq"`
	CreatedAt int64  `json:"createdAt"`
}

// Sender carries the display metadata recorded on each message.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Sender roles.
const (
	RoleParticipant = "participant"
	RoleStaff       = "staff"
)

// Attachment is an immutable reference to a file object that was uploaded
// to the external object store before the message was created. The chat
// core never touches the bytes behind it.
type Attachment struct {
	Filename   string `json:"filename"`
	MIME       string `json:"mime"`
	Size       int64  `json:"size"`
	URL        string `json:"url"`
	StorageKey string `json:"storageKey"`
}

// Message kinds.
const (
	KindText = "text"
	KindFile = "file"
)

// Message is one entry in a project's append-only log. Immutable once
// appended; Seq is the per-project ordering key assigned by the store.
type Message struct {
	ID         string      `json:"id"`
	ProjectID  string      `json:"projectId"`
	Seq        int64       `json:"seq"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	SenderRole string      `json:"senderRole"`
	Body       string      `json:"body"`
	Kind       string      `json:"kind"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  int64       `json:"createdAt"` // unix milliseconds
}
