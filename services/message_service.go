//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"group-chat/crypto"
	"group-chat/domain"
	"group-chat/domain/event"
	"group-chat/errors"
	"group-chat/repositories"
	"group-chat/runtime"
)

type IMessageService interface {
	SendMessage(ctx context.Context, groupID uuid.UUID, senderID, content string) (domain.Message, error)
	ListMessages(ctx context.Context, groupID uuid.UUID, requesterID string, limit int, before, after *time.Time) ([]domain.Message, bool, error)
	EditMessage(ctx context.Context, messageID uuid.UUID, userID, content string) (domain.Message, error)
	DeleteMessage(ctx context.Context, messageID uuid.UUID, userID string) error
	SearchMessages(ctx context.Context, groupID uuid.UUID, requesterID, query string, limit int) ([]domain.Message, error)
}

// MessageService owns the Message aggregate's lifecycle: encryption at
// rest, the time-boxed edit window, soft deletion and the bounded
// search window. Membership checks are delegated to the membership
// engine; every successful mutation fans out on the group channel.
type MessageService struct {
	log          *slog.Logger
	messages     repositories.IMessageRepository
	membership   IMembershipService
	codec        *crypto.Codec
	bus          *runtime.Bus
	locks        *keyedMutex
	now          func() time.Time
	editWindow   time.Duration
	searchWindow int
}

func NewMessageService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	membership IMembershipService,
	codec *crypto.Codec,
	bus *runtime.Bus,
	editWindow time.Duration,
	searchWindow int,
) *MessageService {
	return &MessageService{
		log:          log,
		messages:     messages,
		membership:   membership,
		codec:        codec,
		bus:          bus,
		locks:        newKeyedMutex(),
		now:          time.Now,
		editWindow:   editWindow,
		searchWindow: searchWindow,
	}
}

func messageLockKey(messageID uuid.UUID) string {
	return "message:" + messageID.String()
}

// SendMessage encrypts and persists a message on behalf of a group
// member and returns its decrypted view.
func (s *MessageService) SendMessage(ctx context.Context, groupID uuid.UUID, senderID, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, fmt.Errorf("%w: group %s", errors.ErrEmptyContent, groupID)
	}
	if err := s.requireMember(groupID, senderID); err != nil {
		return domain.Message{}, err
	}

	ciphertext, iv, err := s.codec.Encrypt(content)
	if err != nil {
		return domain.Message{}, err
	}
	stored := repositories.StoredMessage{
		ID:         uuid.New(),
		GroupID:    groupID,
		SenderID:   senderID,
		Ciphertext: ciphertext,
		IV:         iv,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.messages.Store(stored); err != nil {
		return domain.Message{}, err
	}

	s.log.Info("message sent", "group", groupID, "message", stored.ID, "sender", senderID)
	s.bus.Publish(event.NewMessage{
		MessageID: stored.ID,
		Group:     groupID,
		SenderID:  senderID,
		Content:   content,
		At:        stored.CreatedAt,
	})
	return s.view(stored), nil
}

// ListMessages pages through a group's non-deleted messages. The page
// is fetched newest-first up to limit, then returned in ascending
// chronological order. hasMore is a heuristic: true iff the page came
// back full.
func (s *MessageService) ListMessages(ctx context.Context, groupID uuid.UUID, requesterID string, limit int, before, after *time.Time) ([]domain.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if limit < 1 {
		return nil, false, fmt.Errorf("%w: limit must be positive, got %d", errors.ErrInvalidArgument, limit)
	}
	if err := s.requireMember(groupID, requesterID); err != nil {
		return nil, false, err
	}

	stored, err := s.messages.Page(groupID, limit, before, after)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(stored) == limit

	views := lo.Map(stored, func(m repositories.StoredMessage, _ int) domain.Message {
		return s.view(m)
	})
	lo.Reverse(views)
	return views, hasMore, nil
}

// EditMessage re-encrypts a message's content under a fresh iv. Only
// the sender may edit, only within the edit window, and the window is
// anchored at the original send time, never at a previous edit.
func (s *MessageService) EditMessage(ctx context.Context, messageID uuid.UUID, userID, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrEmptyContent, messageID)
	}
	unlock := s.locks.lock(messageLockKey(messageID))
	defer unlock()

	stored, err := s.messages.LoadByID(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if stored.Deleted {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrAlreadyDeleted, messageID)
	}
	if stored.SenderID != userID {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotSender, messageID)
	}
	now := s.now().UTC()
	if now.Sub(stored.CreatedAt) > s.editWindow {
		return domain.Message{}, fmt.Errorf("%w: message %s sent at %s", errors.ErrEditWindowExpired, messageID, stored.CreatedAt)
	}

	ciphertext, iv, err := s.codec.Encrypt(content)
	if err != nil {
		return domain.Message{}, err
	}
	stored.Ciphertext = ciphertext
	stored.IV = iv
	stored.Edited = true
	stored.EditedAt = &now
	if err := s.messages.Update(stored); err != nil {
		return domain.Message{}, err
	}

	s.log.Info("message edited", "group", stored.GroupID, "message", messageID)
	s.bus.Publish(event.MessageEdited{
		MessageID: messageID,
		Group:     stored.GroupID,
		SenderID:  stored.SenderID,
		Content:   content,
		EditedAt:  now,
	})
	return s.view(stored), nil
}

// DeleteMessage soft-deletes a message. The sender and the group owner
// may delete; the stored content is retained but never surfaced again.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID uuid.UUID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(messageLockKey(messageID))
	defer unlock()

	stored, err := s.messages.LoadByID(messageID)
	if err != nil {
		return err
	}
	if stored.Deleted {
		return fmt.Errorf("%w: message %s", errors.ErrAlreadyDeleted, messageID)
	}
	if stored.SenderID != userID {
		owner, err := s.membership.Owner(stored.GroupID)
		if err != nil {
			return err
		}
		if owner != userID {
			return fmt.Errorf("%w: user %s on message %s", errors.ErrForbidden, userID, messageID)
		}
	}

	now := s.now().UTC()
	stored.Deleted = true
	stored.DeletedAt = &now
	if err := s.messages.Update(stored); err != nil {
		return err
	}

	s.log.Info("message deleted", "group", stored.GroupID, "message", messageID, "by", userID)
	s.bus.Publish(event.MessageDeleted{
		MessageID: messageID,
		Group:     stored.GroupID,
		DeletedBy: userID,
		DeletedAt: now,
	})
	return nil
}

// SearchMessages scans only the most recent searchWindow non-deleted
// messages, newest first, decrypting each and matching query as a
// case-insensitive substring. The scan stops early once limit matches
// are collected; older matches beyond the window are deliberately not
// found.
func (s *MessageService) SearchMessages(ctx context.Context, groupID uuid.UUID, requesterID, query string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: group %s", errors.ErrEmptyQuery, groupID)
	}
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", errors.ErrInvalidArgument, limit)
	}
	if err := s.requireMember(groupID, requesterID); err != nil {
		return nil, err
	}

	window, err := s.messages.Recent(groupID, s.searchWindow)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var matches []domain.Message
	for _, stored := range window {
		cleartext := s.codec.Decrypt(stored.Ciphertext, stored.IV)
		if cleartext.Corrupted {
			continue
		}
		if !strings.Contains(strings.ToLower(cleartext.Text), needle) {
			continue
		}
		matches = append(matches, s.view(stored))
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// requireMember maps the membership engine's answer onto the message
// store's failure kinds.
func (s *MessageService) requireMember(groupID uuid.UUID, userID string) error {
	member, err := s.membership.IsMember(groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: user %s in group %s", errors.ErrNotMember, userID, groupID)
	}
	return nil
}

// view decrypts a stored record into the caller-facing message. A
// record that no longer decrypts renders the fixed placeholder instead
// of failing the whole operation.
func (s *MessageService) view(stored repositories.StoredMessage) domain.Message {
	cleartext := s.codec.Decrypt(stored.Ciphertext, stored.IV)
	return domain.Message{
		ID:        stored.ID,
		GroupID:   stored.GroupID,
		SenderID:  stored.SenderID,
		Content:   cleartext.String(),
		Corrupted: cleartext.Corrupted,
		CreatedAt: stored.CreatedAt,
		Edited:    stored.Edited,
		EditedAt:  stored.EditedAt,
	}
}
