package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
)

var (
	ErrNotProjectMember = errors.New("only project members can use the project chat")
	ErrMessageEmpty     = errors.New("message cannot be empty")
	ErrMessageTooLong   = errors.New("message is too long")
)

// ChatService handles project chat
type ChatService struct {
	messageRepo repository.MessageRepository
	projectRepo repository.ProjectRepository
	feed        events.Broker
	checker     PermissionChecker
	logger      *zap.Logger
}

// NewChatService creates a new ChatService
func NewChatService(
	messageRepo repository.MessageRepository,
	projectRepo repository.ProjectRepository,
	feed events.Broker,
	checker PermissionChecker,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		messageRepo: messageRepo,
		projectRepo: projectRepo,
		feed:        feed,
		checker:     checker,
		logger:      logger,
	}
}

// ListMessages returns the recent history of a project chat, oldest first
func (s *ChatService) ListMessages(actor permissions.Actor, projectID uint64) ([]models.Message, error) {
	if _, err := s.chatProject(actor, projectID); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListByProject(projectID, constants.MessageHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// PostMessage stores a message and announces it to subscribers
func (s *ChatService) PostMessage(ctx context.Context, actor permissions.Actor, projectID uint64, text string) (*models.Message, error) {
	project, err := s.chatProject(actor, projectID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMessageEmpty
	}
	if utf8.RuneCountInString(text) > constants.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	message := &models.Message{
		ProjectID: projectID,
		SenderID:  actor.UserID,
		Text:      text,
	}
	if err := s.messageRepo.Create(message); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	for _, m := range project.Members {
		if m.UserID == actor.UserID {
			message.Sender = m.User
		}
	}

	publishChange(ctx, s.feed, s.logger, events.ProjectMessagesTopic(projectID), events.Change{
		Kind:      events.KindMessageCreated,
		ProjectID: projectID,
		ID:        message.ID,
	})
	return message, nil
}

// Subscribe opens the change feed of a project chat
func (s *ChatService) Subscribe(ctx context.Context, actor permissions.Actor, projectID uint64) (events.Subscription, error) {
	if _, err := s.chatProject(actor, projectID); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, events.ProjectMessagesTopic(projectID))
}

// chatProject loads a project whose chat the actor may use: members and admins.
// Users who can see the project but are not members get ErrNotProjectMember.
func (s *ChatService) chatProject(actor permissions.Actor, projectID uint64) (*models.Project, error) {
	project, err := visibleProject(s.projectRepo, s.checker, actor, projectID)
	if err != nil {
		return nil, err
	}
	if actor.Role != permissions.RoleAdmin && !project.HasMember(actor.UserID) {
		return nil, ErrNotProjectMember
	}
	return project, nil
}
