package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/dto"
	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// NoteHandler serves the caller's personal notepad.
type NoteHandler struct {
	noteService *services.NoteService
	logger      *zap.Logger
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(noteService *services.NoteService, logger *zap.Logger) *NoteHandler {
	return &NoteHandler{noteService: noteService, logger: logger}
}

type noteRequest struct {
	Title   *string `json:"title" binding:"omitempty,max=255"`
	Content *string `json:"content"`
	Color   *string `json:"color" binding:"omitempty,max=50"`
}

func (r noteRequest) input() services.NoteInput {
	return services.NoteInput{Title: r.Title, Content: r.Content, Color: r.Color}
}

// ListNotes handles GET /api/notes?search=
func (h *NoteHandler) ListNotes(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	notes, err := h.noteService.ListNotes(actor.UserID, c.Query("search"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": dto.ToNoteDTOs(notes)})
}

// CreateNote handles POST /api/notes
func (h *NoteHandler) CreateNote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	note, err := h.noteService.CreateNote(actor.UserID, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToNoteDTO(*note))
}

// UpdateNote handles PATCH /api/notes/:id
func (h *NoteHandler) UpdateNote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	noteID, ok := parseIDParam(c, "id", "Invalid note ID")
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	note, err := h.noteService.UpdateNote(actor.UserID, noteID, req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToNoteDTO(*note))
}

// DeleteNote handles DELETE /api/notes/:id
func (h *NoteHandler) DeleteNote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	noteID, ok := parseIDParam(c, "id", "Invalid note ID")
	if !ok {
		return
	}

	if err := h.noteService.DeleteNote(actor.UserID, noteID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
