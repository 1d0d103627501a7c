// Package conversation runs multi-step chat wizards. A scene is an ordered
// list of named steps; a session tracks one account's position in a scene
// together with scene-local state. Sessions live in memory only, so a
// restart drops every conversation back to the main menu.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
)

// ErrNotInConversation tells the router to fall through to its other
// matching tiers.
var ErrNotInConversation = errors.New("not in a conversation")

// Cancel inputs recognized at any step of any scene.
var cancelInputs = map[string]struct{}{
	"Back 🔙": {},
	"/cancel": {},
}

// StepFunc handles one inbound event for a session. It returns where the
// session goes next and the replies to send. Steps only ever see text
// events: the router resolves button presses against callback routes
// before consulting the engine, so a scene that needs input from an inline
// button must register a callback that feeds the session instead.
type StepFunc func(ctx context.Context, sess *Session, ev chat.Event) (Transition, []chat.Message, error)

// Step is a named stage of a scene. Names are targets for Goto.
type Step struct {
	Name string
	Run  StepFunc
}

// Scene describes a wizard.
type Scene struct {
	ID string
	// NewState builds the scene-local state for a fresh session.
	NewState func() any
	// Steps run in order under Next transitions.
	Steps []Step
	// OnCancel builds the replies for a universal cancel. When nil the
	// engine sends a plain confirmation.
	OnCancel func(chatID int64) []chat.Message
}

// Session is one account's progress through a scene.
type Session struct {
	ChatID  int64
	SceneID string
	// State is the value built by the scene's NewState.
	State any
	// Args carries entry arguments, such as the plan selected before the
	// scene started.
	Args any

	stepIdx int
}

// Transition says where a session goes after a step.
type Transition struct {
	kind   transitionKind
	target string
}

type transitionKind int

const (
	kindNext transitionKind = iota
	kindStay
	kindGoto
	kindEnd
)

// Next advances to the following step; past the last step it ends the
// session.
func Next() Transition { return Transition{kind: kindNext} }

// Stay re-runs the current step on the next event.
func Stay() Transition { return Transition{kind: kindStay} }

// Goto jumps to the named step.
func Goto(step string) Transition { return Transition{kind: kindGoto, target: step} }

// End finishes the session.
func End() Transition { return Transition{kind: kindEnd} }

// Engine owns scene registration and the live session map.
type Engine struct {
	mu       sync.RWMutex
	scenes   map[string]*Scene
	sessions map[int64]*Session
	logger   *logrus.Entry
}

// NewEngine returns an engine with no scenes registered.
func NewEngine(logger *logrus.Entry) *Engine {
	return &Engine{
		scenes:   make(map[string]*Scene),
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register adds a scene. Scene IDs must be unique; steps must be non-empty
// and uniquely named.
func (e *Engine) Register(scene *Scene) error {
	if scene == nil || scene.ID == "" {
		return errors.New("conversation: scene missing id")
	}
	if len(scene.Steps) == 0 {
		return fmt.Errorf("conversation: scene %q has no steps", scene.ID)
	}
	seen := make(map[string]struct{}, len(scene.Steps))
	for _, step := range scene.Steps {
		if step.Name == "" || step.Run == nil {
			return fmt.Errorf("conversation: scene %q has an unnamed or empty step", scene.ID)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("conversation: scene %q repeats step %q", scene.ID, step.Name)
		}
		seen[step.Name] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.scenes[scene.ID]; dup {
		return fmt.Errorf("conversation: scene %q already registered", scene.ID)
	}
	e.scenes[scene.ID] = scene
	return nil
}

// InConversation reports whether the account has a live session.
func (e *Engine) InConversation(chatID int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.sessions[chatID]
	return ok
}

// Enter starts (or restarts) a scene for the account and runs its first
// step with a synthetic entry event. An existing session for the account is
// replaced; the newest entry always wins.
func (e *Engine) Enter(ctx context.Context, sceneID string, chatID int64, args any) ([]chat.Message, error) {
	e.mu.Lock()
	scene, ok := e.scenes[sceneID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("conversation: unknown scene %q", sceneID)
	}
	if prev, live := e.sessions[chatID]; live {
		e.logger.WithFields(logrus.Fields{
			"chat_id":  chatID,
			"previous": prev.SceneID,
			"scene":    sceneID,
		}).Debug("conversation superseded")
	}
	sess := &Session{ChatID: chatID, SceneID: sceneID, Args: args}
	if scene.NewState != nil {
		sess.State = scene.NewState()
	}
	e.sessions[chatID] = sess
	e.mu.Unlock()

	entry := chat.Event{SenderID: chatID, Kind: chat.EventText}
	return e.run(ctx, scene, sess, entry)
}

// Dispatch routes an event to the sender's live session. Without one it
// returns ErrNotInConversation so the router can try its other tiers.
func (e *Engine) Dispatch(ctx context.Context, ev chat.Event) ([]chat.Message, error) {
	e.mu.RLock()
	sess, ok := e.sessions[ev.SenderID]
	var scene *Scene
	if ok {
		scene = e.scenes[sess.SceneID]
	}
	e.mu.RUnlock()

	if !ok || scene == nil {
		return nil, ErrNotInConversation
	}

	if _, cancel := cancelInputs[ev.Payload]; cancel {
		e.clear(ev.SenderID)
		if scene.OnCancel != nil {
			return scene.OnCancel(ev.SenderID), nil
		}
		return []chat.Message{chat.NewMessage(ev.SenderID, "Cancelled.")}, nil
	}

	return e.run(ctx, scene, sess, ev)
}

// Leave drops the account's session, if any.
func (e *Engine) Leave(chatID int64) {
	e.clear(chatID)
}

func (e *Engine) run(ctx context.Context, scene *Scene, sess *Session, ev chat.Event) ([]chat.Message, error) {
	step := scene.Steps[sess.stepIdx]
	transition, messages, err := step.Run(ctx, sess, ev)
	if err != nil {
		// No half-finished wizards: an error drops the session.
		e.clear(sess.ChatID)
		return messages, fmt.Errorf("scene %s step %s: %w", scene.ID, step.Name, err)
	}

	if err := e.apply(scene, sess, transition); err != nil {
		e.clear(sess.ChatID)
		return messages, err
	}
	return messages, nil
}

func (e *Engine) apply(scene *Scene, sess *Session, transition Transition) error {
	switch transition.kind {
	case kindStay:
		return nil
	case kindEnd:
		e.clear(sess.ChatID)
		return nil
	case kindNext:
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sessions[sess.ChatID] != sess {
			return nil // superseded mid-step
		}
		if sess.stepIdx+1 >= len(scene.Steps) {
			delete(e.sessions, sess.ChatID)
			return nil
		}
		sess.stepIdx++
		return nil
	case kindGoto:
		idx := -1
		for i, step := range scene.Steps {
			if step.Name == transition.target {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("scene %s: goto unknown step %q", scene.ID, transition.target)
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sessions[sess.ChatID] != sess {
			return nil
		}
		sess.stepIdx = idx
		return nil
	default:
		return fmt.Errorf("scene %s: unknown transition", scene.ID)
	}
}

func (e *Engine) clear(chatID int64) {
	e.mu.Lock()
	delete(e.sessions, chatID)
	e.mu.Unlock()
}
