// Package state holds the client-side profile and chat history, persisted
// through a store.Storage and observable through Subscribe.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sevenedu/counselor/internal/domain"
	"github.com/sevenedu/counselor/internal/store"
)

// Storage keys.
const (
	ProfileKey = "userProfile"
	ChatsKey   = "chats"
)

// titleRunes is how much of the first user message becomes the chat title.
const titleRunes = 30

var (
	// ErrNoProfile is returned when an operation needs a saved profile.
	ErrNoProfile = errors.New("no user profile")
	// ErrChatNotFound is returned for an unknown chat id.
	ErrChatNotFound = errors.New("chat not found")
)

// EventKind identifies what changed.
type EventKind int

const (
	ProfileChanged EventKind = iota
	ChatsChanged
	CurrentChatChanged
)

// Event is delivered to subscribers after a change is persisted.
type Event struct {
	Kind   EventKind
	ChatID string
}

// Store is the client state container. It is safe for concurrent use.
type Store struct {
	storage store.Storage
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	profile *domain.UserProfile
	chats   map[string]*domain.Chat
	current string

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Load reads persisted state. A value that fails to parse is logged and
// replaced by its default; only storage errors fail the load.
func Load(ctx context.Context, s store.Storage, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	st := &Store{
		storage: s,
		log:     log,
		now:     time.Now,
		chats:   make(map[string]*domain.Chat),
		subs:    make(map[int]func(Event)),
	}

	raw, ok, err := s.Get(ctx, ProfileKey)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if ok {
		var p domain.UserProfile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Warn("Failed to parse saved user profile, starting without one", "error", err)
		} else {
			st.profile = &p
		}
	}

	raw, ok, err = s.Get(ctx, ChatsKey)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	if ok {
		var chats map[string]*domain.Chat
		if err := json.Unmarshal([]byte(raw), &chats); err != nil {
			log.Warn("Failed to parse saved chats, starting empty", "error", err)
		} else {
			for id, c := range chats {
				if c != nil {
					st.chats[id] = c
				}
			}
		}
	}

	if list := st.sortedLocked(); len(list) > 0 {
		st.current = list[0].ID
	}
	return st, nil
}

// Subscribe registers fn for change events and returns a function that
// removes it. fn runs on the goroutine that made the change.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(e Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Profile returns a copy of the saved profile, or nil.
func (s *Store) Profile() *domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	p.Answers = append([]domain.QuestionAnswer(nil), s.profile.Answers...)
	return &p
}

// SaveOnboarding stores a fresh profile with a new id and the guided
// question counters reset.
func (s *Store) SaveOnboarding(ctx context.Context, p domain.UserProfile) (*domain.UserProfile, error) {
	p.ID = uuid.NewString()
	p.QuestionsAsked = 0
	p.QuestionsLeft = domain.Remaining(domain.TotalQuestions)
	p.Answers = nil

	s.mu.Lock()
	if err := s.saveProfileLocked(ctx, &p); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.profile = &p
	s.mu.Unlock()

	s.notify(Event{Kind: ProfileChanged})
	return s.Profile(), nil
}

// RecordAnswer appends an onboarding answer to the saved profile.
func (s *Store) RecordAnswer(ctx context.Context, answer string) (domain.QuestionAnswer, error) {
	s.mu.Lock()
	if s.profile == nil {
		s.mu.Unlock()
		return domain.QuestionAnswer{}, ErrNoProfile
	}
	next := *s.profile
	next.Answers = append([]domain.QuestionAnswer(nil), s.profile.Answers...)
	qa := next.RecordAnswer(answer)
	if err := s.saveProfileLocked(ctx, &next); err != nil {
		s.mu.Unlock()
		return domain.QuestionAnswer{}, err
	}
	s.profile = &next
	s.mu.Unlock()

	s.notify(Event{Kind: ProfileChanged})
	return qa, nil
}

// ClearProfile removes the saved profile.
func (s *Store) ClearProfile(ctx context.Context) error {
	s.mu.Lock()
	if err := s.storage.Delete(ctx, ProfileKey); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear profile: %w", err)
	}
	s.profile = nil
	s.mu.Unlock()

	s.notify(Event{Kind: ProfileChanged})
	return nil
}

func (s *Store) saveProfileLocked(ctx context.Context, p *domain.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.storage.Set(ctx, ProfileKey, string(data)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// WelcomeMessage is the first system message of every new chat.
func WelcomeMessage(studentName string) string {
	greeting := "Hello!"
	if name := strings.TrimSpace(studentName); name != "" {
		greeting = "Hello " + name + "!"
	}
	return greeting + " I'm your 7Edu college counselor. I'm here to help you with your college application journey. " +
		"Feel free to ask me any questions about college admissions, application strategies, or specific colleges you're interested in."
}

// CreateChat starts a chat greeting studentName and makes it current.
func (s *Store) CreateChat(ctx context.Context, studentName string) (domain.Chat, error) {
	now := s.now()
	c := &domain.Chat{
		ID:    uuid.NewString(),
		Title: domain.DefaultChatTitle,
		Messages: []domain.Message{{
			ID:        uuid.NewString(),
			Role:      domain.RoleSystem,
			Content:   WelcomeMessage(studentName),
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.chats[c.ID] = c
	if err := s.saveChatsLocked(ctx); err != nil {
		delete(s.chats, c.ID)
		s.mu.Unlock()
		return domain.Chat{}, err
	}
	s.current = c.ID
	out := copyChat(c)
	s.mu.Unlock()

	s.notify(Event{Kind: ChatsChanged, ChatID: c.ID})
	s.notify(Event{Kind: CurrentChatChanged, ChatID: c.ID})
	return out, nil
}

// AddMessage appends a message. The first user message after the welcome
// names a chat that still has the default title.
func (s *Store) AddMessage(ctx context.Context, chatID string, role domain.Role, content string) (domain.Message, error) {
	m := domain.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	c, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return domain.Message{}, ErrChatNotFound
	}
	prev := copyChat(c)
	if role == domain.RoleUser && len(c.Messages) == 1 && c.Title == domain.DefaultChatTitle {
		c.Title = DeriveTitle(content)
	}
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = m.Timestamp
	if err := s.saveChatsLocked(ctx); err != nil {
		s.chats[chatID] = &prev
		s.mu.Unlock()
		return domain.Message{}, err
	}
	s.mu.Unlock()

	s.notify(Event{Kind: ChatsChanged, ChatID: chatID})
	return m, nil
}

// DeriveTitle is the first 30 runes of content, with "..." when cut.
func DeriveTitle(content string) string {
	if utf8.RuneCountInString(content) <= titleRunes {
		return content
	}
	return string([]rune(content)[:titleRunes]) + "..."
}

// RenameChat sets a chat title.
func (s *Store) RenameChat(ctx context.Context, chatID, title string) error {
	s.mu.Lock()
	c, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	old := c.Title
	c.Title = title
	if err := s.saveChatsLocked(ctx); err != nil {
		c.Title = old
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(Event{Kind: ChatsChanged, ChatID: chatID})
	return nil
}

// DeleteChat removes a chat. Deleting the current chat selects the most
// recently updated remaining one.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	c, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	delete(s.chats, chatID)
	if err := s.saveChatsLocked(ctx); err != nil {
		s.chats[chatID] = c
		s.mu.Unlock()
		return err
	}
	currentChanged := false
	if s.current == chatID {
		s.current = ""
		if list := s.sortedLocked(); len(list) > 0 {
			s.current = list[0].ID
		}
		currentChanged = true
	}
	current := s.current
	s.mu.Unlock()

	s.notify(Event{Kind: ChatsChanged, ChatID: chatID})
	if currentChanged {
		s.notify(Event{Kind: CurrentChatChanged, ChatID: current})
	}
	return nil
}

// Chats lists chats, most recently updated first.
func (s *Store) Chats() []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sortedLocked()
	out := make([]domain.Chat, 0, len(list))
	for _, c := range list {
		out = append(out, copyChat(c))
	}
	return out
}

// Chat returns a copy of one chat.
func (s *Store) Chat(chatID string) (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return domain.Chat{}, false
	}
	return copyChat(c), true
}

// SetCurrentChat selects the chat the client is working in.
func (s *Store) SetCurrentChat(chatID string) error {
	s.mu.Lock()
	if _, ok := s.chats[chatID]; !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	s.current = chatID
	s.mu.Unlock()

	s.notify(Event{Kind: CurrentChatChanged, ChatID: chatID})
	return nil
}

// CurrentChat returns the selected chat, if any.
func (s *Store) CurrentChat() (domain.Chat, bool) {
	s.mu.Lock()
	id := s.current
	s.mu.Unlock()
	if id == "" {
		return domain.Chat{}, false
	}
	return s.Chat(id)
}

// History returns a chat as wire turns.
func (s *Store) History(chatID string) ([]domain.ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return c.History(), nil
}

func (s *Store) sortedLocked() []*domain.Chat {
	list := make([]*domain.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list
}

func (s *Store) saveChatsLocked(ctx context.Context) error {
	data, err := json.Marshal(s.chats)
	if err != nil {
		return fmt.Errorf("encode chats: %w", err)
	}
	if err := s.storage.Set(ctx, ChatsKey, string(data)); err != nil {
		return fmt.Errorf("save chats: %w", err)
	}
	return nil
}

func copyChat(c *domain.Chat) domain.Chat {
	out := *c
	out.Messages = append([]domain.Message(nil), c.Messages...)
	return out
}
