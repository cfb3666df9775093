package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/repository"
)

var ErrNoteNotFound = errors.New("note not found")

// NoteService handles a user's personal notepad
type NoteService struct {
	noteRepo repository.NoteRepository
}

// NewNoteService creates a new NoteService
func NewNoteService(noteRepo repository.NoteRepository) *NoteService {
	return &NoteService{noteRepo: noteRepo}
}

// NoteInput carries note fields. Nil leaves a field unchanged on update.
type NoteInput struct {
	Title   *string
	Content *string
	Color   *string
}

// ListNotes returns the user's notes, optionally filtered by a search term
func (s *NoteService) ListNotes(userID uint64, search string) ([]models.Note, error) {
	notes, err := s.noteRepo.List(userID, search)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// CreateNote creates a note for userID
func (s *NoteService) CreateNote(userID uint64, input NoteInput) (*models.Note, error) {
	note := &models.Note{
		UserID: userID,
		Title:  constants.DefaultNoteTitle,
		Color:  constants.DefaultNoteColor,
	}
	applyNoteInput(note, input)

	if err := s.noteRepo.Create(note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return note, nil
}

// UpdateNote edits a note owned by userID
func (s *NoteService) UpdateNote(userID, noteID uint64, input NoteInput) (*models.Note, error) {
	note, err := s.noteRepo.FindByID(userID, noteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	applyNoteInput(note, input)
	if err := s.noteRepo.Update(note); err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return note, nil
}

// DeleteNote deletes a note owned by userID
func (s *NoteService) DeleteNote(userID, noteID uint64) error {
	if err := s.noteRepo.Delete(userID, noteID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoteNotFound
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func applyNoteInput(note *models.Note, input NoteInput) {
	if input.Title != nil {
		note.Title = strings.TrimSpace(*input.Title)
		if note.Title == "" {
			note.Title = constants.DefaultNoteTitle
		}
	}
	if input.Content != nil {
		note.Content = *input.Content
	}
	if input.Color != nil && strings.TrimSpace(*input.Color) != "" {
		note.Color = strings.TrimSpace(*input.Color)
	}
}
