// Package store holds the conversation set and mirrors it to the key-value
// layer after every mutation.
//
// Persistence failures never fail a mutation. They are logged, remembered in
// PersistError, and the store carries on in memory until a later write succeeds.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/RichardoC/padchat/internal/kv"
	"github.com/RichardoC/padchat/internal/models"
	"go.uber.org/zap"
)

const ConversationsKey = "conversations"

var ErrConversationNotFound = errors.New("conversation not found")

type Store struct {
	mu            sync.RWMutex
	kv            kv.Store
	logger        *zap.Logger
	conversations []*models.Conversation // newest first
	currentID     string
	persistErr    error
}

func New(backend kv.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:            backend,
		logger:        logger,
		conversations: []*models.Conversation{},
	}
}

// Load replaces the in-memory set with what is persisted. A missing key
// leaves the set empty; unreadable data is logged and skipped.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, ConversationsKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = []*models.Conversation{}
	s.currentID = ""
	if !ok || raw == "" {
		return nil
	}

	var loaded []*models.Conversation
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		s.logger.Warn("ignoring unreadable persisted conversations", zap.Error(err))
		return nil
	}
	for _, c := range loaded {
		if c == nil || c.ID == "" {
			continue
		}
		if c.Messages == nil {
			c.Messages = []models.Message{}
		}
		s.conversations = append(s.conversations, c)
	}

	s.logger.Debug("loaded conversations", zap.Int("count", len(s.conversations)))
	return nil
}

// Create inserts an empty conversation at the front and makes it current.
func (s *Store) Create(ctx context.Context) string {
	return s.CreateConversation(ctx).ID
}

// CreateConversation is Create returning a copy of the new conversation,
// taken under the same lock as the insert.
func (s *Store) CreateConversation(ctx context.Context) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := models.NewConversation()
	s.conversations = append([]*models.Conversation{conv}, s.conversations...)
	s.currentID = conv.ID
	s.persistLocked(ctx)
	return conv.Clone()
}

// Select makes id current. Unknown ids leave the pointer untouched and
// report false.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(id) < 0 {
		return false
	}
	s.currentID = id
	return true
}

// Delete removes id, clearing the current pointer if it referenced it.
// Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(id)
	if i < 0 {
		return
	}
	s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
	if s.currentID == id {
		s.currentID = ""
	}
	s.persistLocked(ctx)
}

// Rename sets the trimmed title. Blank titles are discarded and report false.
func (s *Store) Rename(ctx context.Context, id, title string) bool {
	_, renamed := s.RenameConversation(ctx, id, title)
	return renamed
}

// RenameConversation is Rename returning a copy of the conversation as it
// stands afterwards, nil if id is unknown.
func (s *Store) RenameConversation(ctx context.Context, id, title string) (*models.Conversation, bool) {
	title = strings.TrimSpace(title)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(id)
	if i < 0 {
		return nil, false
	}
	conv := s.conversations[i]
	if title == "" {
		return conv.Clone(), false
	}
	conv.Title = title
	conv.LastUpdated = time.Now()
	s.persistLocked(ctx)
	return conv.Clone(), true
}

// Append adds msg to the end of the conversation. The first user message of
// an empty conversation also becomes its title.
func (s *Store) Append(ctx context.Context, conversationID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(conversationID)
	if i < 0 {
		return ErrConversationNotFound
	}
	conv := s.conversations[i]
	if len(conv.Messages) == 0 && msg.Role == models.RoleUser {
		conv.Title = models.DeriveTitle(msg.Content)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastUpdated = time.Now()
	s.persistLocked(ctx)
	return nil
}

// Conversations returns copies in display order.
func (s *Store) Conversations() []*models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	return out
}

func (s *Store) Get(id string) (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.findLocked(id)
	if i < 0 {
		return nil, false
	}
	return s.conversations[i].Clone(), true
}

func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Current returns a copy of the current conversation, if any.
func (s *Store) Current() (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentID == "" {
		return nil, false
	}
	i := s.findLocked(s.currentID)
	if i < 0 {
		return nil, false
	}
	return s.conversations[i].Clone(), true
}

// PersistError is the error from the most recent failed write, cleared by
// the next successful one.
func (s *Store) PersistError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistErr
}

func (s *Store) findLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes even when ctx is already canceled so a dropped
// request cannot leave memory and storage out of step.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.conversations)
	if err == nil {
		err = s.kv.Set(context.WithoutCancel(ctx), ConversationsKey, string(data))
	}
	if err != nil {
		if s.persistErr == nil {
			s.logger.Warn("failed to persist conversations, continuing in memory", zap.Error(err))
		}
		s.persistErr = err
		return
	}
	if s.persistErr != nil {
		s.logger.Info("conversation persistence recovered")
	}
	s.persistErr = nil
}
