package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/testhelpers"
)

func strPtr(s string) *string { return &s }

func TestNoteService(t *testing.T) {
	db := testhelpers.OpenSQLite(t)
	alice := testhelpers.CreateUser(t, db, "alice@example.com", permissions.RoleMember)
	bob := testhelpers.CreateUser(t, db, "bob@example.com", permissions.RoleMember)
	svc := NewNoteService(repository.NewNoteRepository(db))

	blank, err := svc.CreateNote(alice.ID, NoteInput{})
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultNoteTitle, blank.Title)
	assert.Equal(t, constants.DefaultNoteColor, blank.Color)

	groceries, err := svc.CreateNote(alice.ID, NoteInput{
		Title:   strPtr("Groceries"),
		Content: strPtr("Milk and EGGS"),
		Color:   strPtr("bg-yellow-100"),
	})
	require.NoError(t, err)

	_, err = svc.CreateNote(bob.ID, NoteInput{Title: strPtr("Bob's eggs")})
	require.NoError(t, err)

	t.Run("list is scoped to the owner", func(t *testing.T) {
		notes, err := svc.ListNotes(alice.ID, "")
		require.NoError(t, err)
		assert.Len(t, notes, 2)
	})

	t.Run("search ignores case and matches content", func(t *testing.T) {
		notes, err := svc.ListNotes(alice.ID, "eggs")
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, groceries.ID, notes[0].ID)
	})

	t.Run("update keeps color when blank and defaults title", func(t *testing.T) {
		updated, err := svc.UpdateNote(alice.ID, groceries.ID, NoteInput{Title: strPtr("  "), Color: strPtr("")})
		require.NoError(t, err)
		assert.Equal(t, constants.DefaultNoteTitle, updated.Title)
		assert.Equal(t, "bg-yellow-100", updated.Color)
		assert.Equal(t, "Milk and EGGS", updated.Content)
	})

	t.Run("other users cannot touch the note", func(t *testing.T) {
		_, err := svc.UpdateNote(bob.ID, groceries.ID, NoteInput{Content: strPtr("mine now")})
		assert.ErrorIs(t, err, ErrNoteNotFound)
		assert.ErrorIs(t, svc.DeleteNote(bob.ID, groceries.ID), ErrNoteNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.DeleteNote(alice.ID, blank.ID))
		assert.ErrorIs(t, svc.DeleteNote(alice.ID, blank.ID), ErrNoteNotFound)
	})
}
