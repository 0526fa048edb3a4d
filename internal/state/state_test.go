package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sevenedu/counselor/internal/domain"
	"github.com/sevenedu/counselor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, s store.Storage) *Store {
	t.Helper()
	st, err := Load(context.Background(), s, nil)
	require.NoError(t, err)

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return st
}

func TestSaveOnboardingResetsCounters(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, store.NewMemory())
	p, err := st.SaveOnboarding(context.Background(), domain.UserProfile{
		Name: "Ada", Grade: "11th", GPA: "3.8", QuestionsAsked: 4, QuestionsLeft: domain.Remaining(1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 0, p.QuestionsAsked)
	assert.Equal(t, domain.TotalQuestions, p.Left())
	assert.False(t, p.IsOnboardingComplete())
}

func TestRecordAnswerCompletesOnboarding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t, store.NewMemory())

	_, err := st.RecordAnswer(ctx, "too early")
	require.ErrorIs(t, err, ErrNoProfile)

	_, err = st.SaveOnboarding(ctx, domain.UserProfile{Name: "Ada", Grade: "11th", GPA: "3.8"})
	require.NoError(t, err)

	for i := 1; i <= domain.TotalQuestions; i++ {
		qa, err := st.RecordAnswer(ctx, "answer")
		require.NoError(t, err)
		require.Equal(t, i, qa.QuestionNumber)
	}
	p := st.Profile()
	assert.Equal(t, domain.TotalQuestions, p.QuestionsAsked)
	assert.Equal(t, 0, p.Left())
	assert.True(t, p.IsOnboardingComplete())

	_, err = st.RecordAnswer(ctx, "extra")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Profile().Left())
}

func TestCreateChatAddsWelcome(t *testing.T) {
	t.Parallel()

	st := newTestStore(t, store.NewMemory())
	c, err := st.CreateChat(context.Background(), "Ada")
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultChatTitle, c.Title)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, domain.RoleSystem, c.Messages[0].Role)
	assert.True(t, strings.HasPrefix(c.Messages[0].Content, "Hello Ada! I'm your 7Edu college counselor."))

	cur, ok := st.CurrentChat()
	require.True(t, ok)
	assert.Equal(t, c.ID, cur.ID)

	assert.True(t, strings.HasPrefix(WelcomeMessage(""), "Hello! I'm"))
}

func TestAddMessageDerivesTitle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t, store.NewMemory())

	long, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)
	_, err = st.AddMessage(ctx, long.ID, domain.RoleUser, "What are my chances at Stanford with a 3.8?")
	require.NoError(t, err)
	got, _ := st.Chat(long.ID)
	assert.Equal(t, "What are my chances at Stanfor...", got.Title)

	_, err = st.AddMessage(ctx, long.ID, domain.RoleUser, "second question")
	require.NoError(t, err)
	got, _ = st.Chat(long.ID)
	assert.Equal(t, "What are my chances at Stanfor...", got.Title, "only the first user message names the chat")

	short, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)
	_, err = st.AddMessage(ctx, short.ID, domain.RoleUser, "Hi")
	require.NoError(t, err)
	got, _ = st.Chat(short.ID)
	assert.Equal(t, "Hi", got.Title)

	_, err = st.AddMessage(ctx, "missing", domain.RoleUser, "x")
	require.ErrorIs(t, err, ErrChatNotFound)
}

func TestDeriveTitleCountsRunes(t *testing.T) {
	t.Parallel()

	exact := strings.Repeat("é", 30)
	assert.Equal(t, exact, DeriveTitle(exact))
	assert.Equal(t, exact+"...", DeriveTitle(exact+"x"))
}

func TestChatsSortedByUpdatedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t, store.NewMemory())

	first, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)
	second, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)

	list := st.Chats()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	_, err = st.AddMessage(ctx, first.ID, domain.RoleUser, "bump")
	require.NoError(t, err)
	assert.Equal(t, first.ID, st.Chats()[0].ID)
}

func TestDeleteCurrentChatSelectsNext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t, store.NewMemory())

	a, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)
	b, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)

	require.NoError(t, st.DeleteChat(ctx, b.ID))
	cur, ok := st.CurrentChat()
	require.True(t, ok)
	assert.Equal(t, a.ID, cur.ID)

	require.NoError(t, st.DeleteChat(ctx, a.ID))
	_, ok = st.CurrentChat()
	assert.False(t, ok)
	require.ErrorIs(t, st.DeleteChat(ctx, a.ID), ErrChatNotFound)
}

func TestRenameAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t, store.NewMemory())
	c, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)
	_, err = st.AddMessage(ctx, c.ID, domain.RoleUser, "Hi")
	require.NoError(t, err)
	_, err = st.AddMessage(ctx, c.ID, domain.RoleAssistant, "Hello")
	require.NoError(t, err)

	require.NoError(t, st.RenameChat(ctx, c.ID, "Essays"))
	got, _ := st.Chat(c.ID)
	assert.Equal(t, "Essays", got.Title)

	turns, err := st.History(c.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, domain.ChatTurn{Role: domain.RoleAssistant, Content: "Hello"}, turns[2])
}

func TestStatePersistsAcrossLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	st := newTestStore(t, mem)
	_, err := st.SaveOnboarding(ctx, domain.UserProfile{Name: "Ada", Grade: "11th", GPA: "3.8"})
	require.NoError(t, err)
	c, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)
	_, err = st.AddMessage(ctx, c.ID, domain.RoleUser, "Hi")
	require.NoError(t, err)

	reloaded, err := Load(ctx, mem, nil)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Profile())
	assert.Equal(t, "Ada", reloaded.Profile().Name)
	got, ok := reloaded.Chat(c.ID)
	require.True(t, ok)
	assert.Len(t, got.Messages, 2)
	cur, ok := reloaded.CurrentChat()
	require.True(t, ok)
	assert.Equal(t, c.ID, cur.ID)

	require.NoError(t, reloaded.ClearProfile(ctx))
	_, present, err := mem.Get(ctx, ProfileKey)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestCorruptStateFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Set(ctx, ProfileKey, "{not json"))
	require.NoError(t, mem.Set(ctx, ChatsKey, "[1,2"))

	st, err := Load(ctx, mem, nil)
	require.NoError(t, err)
	assert.Nil(t, st.Profile())
	assert.Empty(t, st.Chats())
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t, store.NewMemory())

	var kinds []EventKind
	unsubscribe := st.Subscribe(func(e Event) { kinds = append(kinds, e.Kind) })

	c, err := st.CreateChat(ctx, "Ada")
	require.NoError(t, err)
	_, err = st.SaveOnboarding(ctx, domain.UserProfile{Name: "Ada", Grade: "11th", GPA: "3.8"})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{ChatsChanged, CurrentChatChanged, ProfileChanged}, kinds)

	unsubscribe()
	unsubscribe()
	_, err = st.AddMessage(ctx, c.ID, domain.RoleUser, "Hi")
	require.NoError(t, err)
	assert.Len(t, kinds, 3)
}
