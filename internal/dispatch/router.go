package dispatch

import (
	"fmt"

	"telegram-archive-bot/internal/domain"
	"telegram-archive-bot/internal/domain/model"
)

// Handler turns one update plus a read-only conversation snapshot into an
// Outcome. Handlers are pure: no I/O, no clocks beyond the update's own
// timestamps, no mutation of the snapshot.
type Handler func(upd *model.Update, snap *model.Snapshot) (*Outcome, error)

// CommandRoute binds a slash command to a handler with its access rules.
type CommandRoute struct {
	Handler   Handler
	AdminOnly bool
	// PrivateOnly restricts the command to direct chats with the bot.
	PrivateOnly bool
}

// Router holds the two dispatch tables: commands by name and plain-text
// handlers by conversation state, plus event handlers for the non-command
// update kinds. Tables are assembled at startup and validated once; after
// Validate the router is immutable and safe for concurrent use.
type Router struct {
	commands map[string]CommandRoute
	states   map[model.StateTag]Handler
	events   map[model.UpdateKind]Handler

	unknownCommand Handler
	denied         Handler

	validated bool
}

func NewRouter() *Router {
	return &Router{
		commands: make(map[string]CommandRoute),
		states:   make(map[model.StateTag]Handler),
		events:   make(map[model.UpdateKind]Handler),
	}
}

func (r *Router) Command(name string, route CommandRoute) *Router {
	r.commands[name] = route
	return r
}

func (r *Router) State(state model.StateTag, h Handler) *Router {
	r.states[state] = h
	return r
}

func (r *Router) Event(kind model.UpdateKind, h Handler) *Router {
	r.events[kind] = h
	return r
}

func (r *Router) OnUnknownCommand(h Handler) *Router {
	r.unknownCommand = h
	return r
}

func (r *Router) OnDenied(h Handler) *Router {
	r.denied = h
	return r
}

// Validate checks the tables against the set of states the engine knows.
// A malformed table is a programming error and must stop startup, not
// surface per-update.
func (r *Router) Validate(known ...model.StateTag) error {
	knownSet := make(map[model.StateTag]struct{}, len(known))
	for _, s := range known {
		knownSet[s] = struct{}{}
	}

	for name, route := range r.commands {
		if name == "" {
			return fmt.Errorf("%w: empty command name", domain.ErrInvalidArgument)
		}
		if route.Handler == nil {
			return fmt.Errorf("%w: command /%s has no handler", domain.ErrInvalidArgument, name)
		}
	}
	for state, h := range r.states {
		if _, ok := knownSet[state]; !ok {
			return fmt.Errorf("%w: state table references unknown state %q", domain.ErrUnknownState, state)
		}
		if h == nil {
			return fmt.Errorf("%w: state %q has no handler", domain.ErrInvalidArgument, state)
		}
	}
	for kind, h := range r.events {
		if h == nil {
			return fmt.Errorf("%w: event %q has no handler", domain.ErrInvalidArgument, kind)
		}
	}
	if r.unknownCommand == nil {
		return fmt.Errorf("%w: unknown-command handler not set", domain.ErrInvalidArgument)
	}
	if r.denied == nil {
		return fmt.Errorf("%w: denied handler not set", domain.ErrInvalidArgument)
	}

	// every declared state must also be resolvable at runtime
	for _, s := range known {
		if _, ok := r.states[s]; !ok {
			return fmt.Errorf("%w: no handler for state %q", domain.ErrUnknownState, s)
		}
	}

	r.validated = true
	return nil
}

// Dispatch resolves the handler for the update and runs it. A panicking
// handler is contained here: it fails this update only, never the engine.
func (r *Router) Dispatch(upd *model.Update, snap *model.Snapshot) (out *Outcome, err error) {
	if !r.validated {
		return nil, fmt.Errorf("%w: router not validated", domain.ErrInvalidArgument)
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("handler panic on update %d: %v", upd.ID, rec)
		}
	}()

	h, err := r.resolve(upd, snap)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return &Outcome{}, nil // consumed without effect
	}
	out, err = h(upd, snap)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = &Outcome{}
	}
	return out, nil
}

func (r *Router) resolve(upd *model.Update, snap *model.Snapshot) (Handler, error) {
	switch upd.Kind {
	case model.UpdateCommand:
		route, ok := r.commands[upd.Command]
		if !ok {
			return r.unknownCommand, nil
		}
		if route.AdminOnly && !upd.FromAdmin {
			return r.denied, nil
		}
		if route.PrivateOnly && !upd.Private {
			return r.denied, nil
		}
		return route.Handler, nil

	case model.UpdateMessage:
		if !upd.Private {
			return r.events[model.UpdateMessage], nil
		}
		h, ok := r.states[snap.State]
		if !ok {
			// validated tables make this unreachable unless stored state
			// predates the current table
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownState, snap.State)
		}
		return h, nil

	case model.UpdateEdited, model.UpdateChatMember, model.UpdateCallback:
		return r.events[upd.Kind], nil

	default:
		return nil, fmt.Errorf("%w: update kind %q", domain.ErrInvalidArgument, upd.Kind)
	}
}
