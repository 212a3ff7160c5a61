package dto

import "whatsam/internal/domain/entity"

// StartSessionRequest starts or resumes a session.
type StartSessionRequest struct {
	SessionID   string `json:"sessionId" validate:"required,sessionid"`
	UserID      string `json:"userId" validate:"required"`
	SessionName string `json:"sessionName,omitempty" validate:"omitempty,max=100"`
}

// SendMessageRequest is one outbound send.
type SendMessageRequest struct {
	To   string `json:"to" validate:"required"`
	Type string `json:"type" validate:"required"`

	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty" validate:"omitempty,url"`
	Media    string `json:"media,omitempty"` // base64
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	ContactName  string `json:"contactName,omitempty"`
	ContactPhone string `json:"contactPhone,omitempty"`

	PollName    string   `json:"pollName,omitempty"`
	PollOptions []string `json:"pollOptions,omitempty"`

	MessageIDs []string `json:"messageIds,omitempty"`

	HumanSimulation *bool `json:"humanSimulation,omitempty"`
}

// Options converts the per-call flags into send options.
func (r *SendMessageRequest) Options() entity.SendOptions {
	return entity.SendOptions{HumanSimulation: r.HumanSimulation}
}

// BulkSendRequest sends several messages with pacing between them.
type BulkSendRequest struct {
	Messages        []SendMessageRequest `json:"messages" validate:"required,min=1,dive"`
	HumanSimulation *bool                `json:"humanSimulation,omitempty"`
}
