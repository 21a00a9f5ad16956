package filters

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

const floodChat int64 = -100500

type fakeMembers struct {
	known   map[int64]bool
	ensured []int64
	err     error
}

func (f *fakeMembers) IsMember(_ context.Context, userID int64) (bool, error) {
	return f.known[userID], f.err
}

func (f *fakeMembers) EnsureMember(_ context.Context, userID int64, _, _, _ string) error {
	f.ensured = append(f.ensured, userID)
	return nil
}

type fakeAPI struct {
	status string
	sent   int
}

func (f *fakeAPI) GetChatMember(tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	if f.status == "" {
		return tgbotapi.ChatMember{}, errors.New("telegram недоступен")
	}
	return tgbotapi.ChatMember{Status: f.status}, nil
}

func (f *fakeAPI) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent++
	return tgbotapi.Message{}, nil
}

func msg(chatID int64, chatType string, userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID, Type: chatType},
		From: &tgbotapi.User{ID: userID},
	}
}

func TestCheckAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("flood chat", func(t *testing.T) {
		f := NewChatFilter(floodChat, &fakeMembers{}, &fakeAPI{})
		assert.True(t, f.CheckAccess(ctx, msg(floodChat, "supergroup", 1)))
	})

	t.Run("other group", func(t *testing.T) {
		f := NewChatFilter(floodChat, &fakeMembers{}, &fakeAPI{status: "member"})
		assert.False(t, f.CheckAccess(ctx, msg(-1, "group", 1)))
	})

	t.Run("private known member", func(t *testing.T) {
		f := NewChatFilter(floodChat, &fakeMembers{known: map[int64]bool{7: true}}, &fakeAPI{})
		assert.True(t, f.CheckAccess(ctx, msg(7, "private", 7)))
	})

	t.Run("private backfilled from telegram", func(t *testing.T) {
		m := &fakeMembers{}
		f := NewChatFilter(floodChat, m, &fakeAPI{status: "member"})
		assert.True(t, f.CheckAccess(ctx, msg(8, "private", 8)))
		assert.Equal(t, []int64{8}, m.ensured)
	})

	t.Run("private stranger", func(t *testing.T) {
		api := &fakeAPI{status: "left"}
		f := NewChatFilter(floodChat, &fakeMembers{}, api)
		assert.False(t, f.CheckAccess(ctx, msg(9, "private", 9)))
		assert.Equal(t, 1, api.sent)
	})

	t.Run("db error", func(t *testing.T) {
		f := NewChatFilter(floodChat, &fakeMembers{err: errors.New("db down")}, &fakeAPI{status: "member"})
		assert.False(t, f.CheckAccess(ctx, msg(9, "private", 9)))
	})

	t.Run("no sender", func(t *testing.T) {
		f := NewChatFilter(floodChat, &fakeMembers{}, &fakeAPI{})
		assert.False(t, f.CheckAccess(ctx, &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: floodChat}}))
		assert.False(t, f.CheckAccess(ctx, nil))
	})
}
