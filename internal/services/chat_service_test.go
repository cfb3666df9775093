package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/testhelpers"
)

func TestChatService_PostMessage(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, f.member, f.project.ID)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	msg, err := svc.PostMessage(ctx, f.member, f.project.ID, "  hello team  ")
	require.NoError(t, err)
	assert.Equal(t, "hello team", msg.Text)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, f.member.UserID, msg.Sender.ID)

	select {
	case payload := <-sub.Messages():
		var change events.Change
		require.NoError(t, json.Unmarshal(payload, &change))
		assert.Equal(t, events.KindMessageCreated, change.Kind)
		assert.Equal(t, msg.ID, change.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message event")
	}

	_, err = svc.PostMessage(ctx, f.member, f.project.ID, "   ")
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = svc.PostMessage(ctx, f.member, f.project.ID, strings.Repeat("é", constants.MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = svc.PostMessage(ctx, f.member, f.project.ID, strings.Repeat("é", constants.MaxMessageLength))
	assert.NoError(t, err)
}

func TestChatService_Access(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, f.manager, f.project.ID, "first")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, f.member, f.project.ID, "second")
	require.NoError(t, err)

	// Admins may read any chat
	messages, err := svc.ListMessages(f.admin, f.project.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "second", messages[1].Text)

	_, err = svc.ListMessages(f.outsider, f.project.ID)
	assert.ErrorIs(t, err, ErrProjectNotFound)

	// A manager of another project sees this one but is not in its chat
	other := actorOf(testhelpers.CreateUser(t, f.db, "other-manager@example.com", permissions.RoleManager))
	_, err = svc.ListMessages(other, f.project.ID)
	assert.ErrorIs(t, err, ErrNotProjectMember)
	_, err = svc.Subscribe(ctx, other, f.project.ID)
	assert.ErrorIs(t, err, ErrNotProjectMember)
}
