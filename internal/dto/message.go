package dto

import (
	"time"

	"github.com/yukikurage/project-hub-api/internal/models"
)

// MessageDTO represents a chat message in API responses
type MessageDTO struct {
	ID        uint64          `json:"id"`
	ProjectID uint64          `json:"project_id"`
	SenderID  uint64          `json:"sender_id"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"created_at"`
	Sender    *UserSummaryDTO `json:"sender,omitempty"`
}

// NoteDTO represents a personal note in API responses
type NoteDTO struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ToMessageDTO(message models.Message) MessageDTO {
	return MessageDTO{
		ID:        message.ID,
		ProjectID: message.ProjectID,
		SenderID:  message.SenderID,
		Text:      message.Text,
		CreatedAt: message.CreatedAt,
		Sender:    toUserSummary(message.Sender),
	}
}

func ToMessageDTOs(messages []models.Message) []MessageDTO {
	out := make([]MessageDTO, len(messages))
	for i, m := range messages {
		out[i] = ToMessageDTO(m)
	}
	return out
}

func ToNoteDTO(note models.Note) NoteDTO {
	return NoteDTO{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Color:     note.Color,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

func ToNoteDTOs(notes []models.Note) []NoteDTO {
	out := make([]NoteDTO, len(notes))
	for i, n := range notes {
		out[i] = ToNoteDTO(n)
	}
	return out
}
