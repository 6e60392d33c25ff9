package telegram

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-archive-bot/internal/domain"
)

func TestClassifyPollError(t *testing.T) {
	t.Run("should map rejected credentials to auth error", func(t *testing.T) {
		err := classifyPollError(&tgbotapi.Error{Code: 401, Message: "Unauthorized"})
		if !errors.Is(err, domain.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})

	t.Run("should treat everything else as transient", func(t *testing.T) {
		for _, e := range []error{
			&tgbotapi.Error{Code: 502, Message: "Bad Gateway"},
			&tgbotapi.Error{Code: 429, Message: "Too Many Requests"},
			errors.New("dial tcp: connection refused"),
		} {
			if err := classifyPollError(e); !errors.Is(err, domain.ErrTransientSource) {
				t.Errorf("expected ErrTransientSource for %v, got %v", e, err)
			}
		}
	})
}

func TestClassifySendError(t *testing.T) {
	t.Run("should mark bad request and blocked as permanent", func(t *testing.T) {
		for _, code := range []int{400, 403} {
			err := classifySendError(&tgbotapi.Error{Code: code})
			if !errors.Is(err, domain.ErrDeliveryFailed) {
				t.Errorf("expected ErrDeliveryFailed for code %d, got %v", code, err)
			}
		}
	})

	t.Run("should mark rate limits and server errors as transient", func(t *testing.T) {
		for _, code := range []int{429, 500, 502} {
			err := classifySendError(&tgbotapi.Error{Code: code})
			if !errors.Is(err, domain.ErrTransientSource) {
				t.Errorf("expected ErrTransientSource for code %d, got %v", code, err)
			}
		}
	})

	t.Run("should mark rejected credentials as auth", func(t *testing.T) {
		if err := classifySendError(&tgbotapi.Error{Code: 401}); !errors.Is(err, domain.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})
}

func TestIsMemberStatus(t *testing.T) {
	cases := []struct {
		status     string
		restricted bool
		want       bool
	}{
		{"creator", false, true},
		{"administrator", false, true},
		{"member", false, true},
		{"restricted", true, true},
		{"restricted", false, false},
		{"left", false, false},
		{"kicked", false, false},
	}
	for _, c := range cases {
		if got := isMemberStatus(c.status, c.restricted); got != c.want {
			t.Errorf("isMemberStatus(%q, %v) = %v, want %v", c.status, c.restricted, got, c.want)
		}
	}
}

func TestNormalizeMemberChange(t *testing.T) {
	cm := &tgbotapi.ChatMemberUpdated{
		Chat: tgbotapi.Chat{ID: -100123, Title: "Archive Group"},
		From: tgbotapi.User{ID: 55, UserName: "inviter"},
		OldChatMember: tgbotapi.ChatMember{
			Status: "left",
			User:   &tgbotapi.User{ID: 77, UserName: "newcomer"},
		},
		NewChatMember: tgbotapi.ChatMember{
			Status: "member",
			User:   &tgbotapi.User{ID: 77, UserName: "newcomer"},
		},
	}

	upd, ok := normalizeMemberChange(900, cm)
	if !ok {
		t.Fatal("expected a normalized update")
	}
	if upd.Kind != "chat_member" {
		t.Errorf("expected kind chat_member, got %s", upd.Kind)
	}
	if upd.Member == nil || !upd.Member.Joined() {
		t.Error("expected a join transition")
	}
	if upd.Member.MemberID != 77 || upd.Member.MemberName != "newcomer" {
		t.Errorf("member identity wrong: %+v", upd.Member)
	}
	if upd.Member.ChatTitle != "Archive Group" {
		t.Errorf("expected chat title to carry over, got %q", upd.Member.ChatTitle)
	}
}
