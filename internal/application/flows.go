package application

import (
	"strconv"
	"strings"

	"telegram-archive-bot/internal/dispatch"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/usecase"
)

// ContextKeyName is the conversation context key the onboarding flow fills.
const ContextKeyName = "name"

// KnownStates is the full state set the routing table must cover.
var KnownStates = []model.StateTag{model.StateIdle, model.StateAwaitingName}

// BuildRouter assembles and returns the dispatch tables for the bot: the
// onboarding flow, archive commands and the group event handlers. The caller
// must Validate the result before use.
func BuildRouter(texts usecase.Texts) *dispatch.Router {
	return dispatch.NewRouter().
		Command("start", dispatch.CommandRoute{Handler: startHandler(texts), PrivateOnly: true}).
		Command("help", dispatch.CommandRoute{Handler: staticReply(texts, "help")}).
		Command("delete", dispatch.CommandRoute{Handler: deleteHandler(texts)}).
		Command("search_hashtag", dispatch.CommandRoute{Handler: searchHandler(texts), AdminOnly: true}).
		State(model.StateIdle, staticReply(texts, "idle_hint")).
		State(model.StateAwaitingName, nameHandler(texts)).
		Event(model.UpdateMessage, groupMessageHandler()).
		Event(model.UpdateEdited, editHandler()).
		Event(model.UpdateChatMember, memberHandler(texts)).
		OnUnknownCommand(staticReply(texts, "unknown_command")).
		OnDenied(staticReply(texts, "not_authorized"))
}

func staticReply(texts usecase.Texts, key string) dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		return (&dispatch.Outcome{}).Reply(texts.T(key)), nil
	}
}

// startHandler opens the onboarding flow: ask for a name and wait for it.
func startHandler(texts usecase.Texts) dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		out := &dispatch.Outcome{NextState: model.StateAwaitingName}
		return out.Reply(texts.T("ask_name")), nil
	}
}

// nameHandler closes onboarding: store the name, greet, return to idle.
func nameHandler(texts usecase.Texts) dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		name := strings.TrimSpace(upd.Text)
		if name == "" {
			return (&dispatch.Outcome{}).Reply(texts.T("ask_name")), nil
		}
		out := &dispatch.Outcome{NextState: model.StateIdle}
		out.Set(ContextKeyName, name)
		return out.Reply(texts.T("nice_to_meet", name)), nil
	}
}

// deleteHandler removes the issuer's latest archived message.
func deleteHandler(texts usecase.Texts) dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		out := &dispatch.Outcome{
			Archive: []dispatch.ArchiveOp{dispatch.DeleteLatest{ChatID: upd.ChatID, UserTgID: upd.UserID}},
		}
		return out.Reply(texts.T("deleted_ok")), nil
	}
}

// searchHandler requests a tag search. In a group the command searches that
// group and delivers the hits to the admin's direct chat; in a direct chat
// the admin names the chat id explicitly.
func searchHandler(texts usecase.Texts) dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		args := strings.Fields(upd.Args)
		out := &dispatch.Outcome{}

		switch {
		case !upd.Private && len(args) == 1:
			out.Search = &dispatch.SearchOp{
				ChatID:      upd.ChatID,
				Tag:         args[0],
				ReplyChatID: upd.UserID,
			}
		case upd.Private && len(args) == 2:
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return out.Reply(texts.T("search_usage")), nil
			}
			out.Search = &dispatch.SearchOp{
				ChatID:      chatID,
				Tag:         args[1],
				ReplyChatID: upd.ChatID,
			}
		default:
			return out.Reply(texts.T("search_usage")), nil
		}
		return out, nil
	}
}

// groupMessageHandler archives plain group text.
func groupMessageHandler() dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		if upd.Text == "" || upd.FromBot {
			return &dispatch.Outcome{}, nil
		}
		return &dispatch.Outcome{
			Archive: []dispatch.ArchiveOp{dispatch.SaveMessage{
				ChatID:   upd.ChatID,
				UserTgID: upd.UserID,
				Text:     upd.Text,
			}},
		}, nil
	}
}

// editHandler records an edit revision for the author's latest message.
func editHandler() dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		if upd.Private || upd.Text == "" || upd.FromBot {
			return &dispatch.Outcome{}, nil
		}
		return &dispatch.Outcome{
			Archive: []dispatch.ArchiveOp{dispatch.RecordEdit{
				ChatID:   upd.ChatID,
				UserTgID: upd.UserID,
				Text:     upd.Text,
				EditedAt: upd.EditedAt,
			}},
		}, nil
	}
}

// memberHandler notifies chat admins about joins and leaves. Bot accounts
// are tracked silently.
func memberHandler(texts usecase.Texts) dispatch.Handler {
	return func(upd *model.Update, snap *model.Snapshot) (*dispatch.Outcome, error) {
		m := upd.Member
		if m == nil || m.MemberIsBot {
			return &dispatch.Outcome{}, nil
		}
		chat := m.ChatTitle
		if chat == "" {
			chat = strconv.FormatInt(upd.ChatID, 10)
		}
		out := &dispatch.Outcome{}
		switch {
		case m.Joined():
			out.Notify = &dispatch.AdminNotice{ChatID: upd.ChatID, Text: texts.T("member_joined", m.MemberName, chat)}
		case m.Left():
			out.Notify = &dispatch.AdminNotice{ChatID: upd.ChatID, Text: texts.T("member_left", m.MemberName, chat)}
		}
		return out, nil
	}
}
