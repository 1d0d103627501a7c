package conversation

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func promptStep(name, prompt string) Step {
	return Step{Name: name, Run: func(_ context.Context, sess *Session, _ chat.Event) (Transition, []chat.Message, error) {
		return Next(), []chat.Message{chat.NewMessage(sess.ChatID, prompt)}, nil
	}}
}

func TestRegisterValidation(t *testing.T) {
	engine := NewEngine(testLogger())

	if err := engine.Register(&Scene{ID: "", Steps: []Step{promptStep("a", "a")}}); err == nil {
		t.Fatal("expected error for missing scene id")
	}
	if err := engine.Register(&Scene{ID: "empty"}); err == nil {
		t.Fatal("expected error for scene without steps")
	}
	if err := engine.Register(&Scene{ID: "dupSteps", Steps: []Step{promptStep("a", "a"), promptStep("a", "b")}}); err == nil {
		t.Fatal("expected error for repeated step name")
	}

	scene := &Scene{ID: "ok", Steps: []Step{promptStep("a", "a")}}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := engine.Register(scene); err == nil {
		t.Fatal("expected error for duplicate scene id")
	}
}

func TestEnterRunsFirstStep(t *testing.T) {
	engine := NewEngine(testLogger())
	scene := &Scene{ID: "wizard", Steps: []Step{
		promptStep("intro", "step one"),
		promptStep("second", "step two"),
	}}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	messages, err := engine.Enter(context.Background(), "wizard", 111, nil)
	if err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "step one" {
		t.Fatalf("expected the intro prompt, got %+v", messages)
	}
	if !engine.InConversation(111) {
		t.Fatal("expected a live session after Enter")
	}
}

func TestDispatchWithoutSession(t *testing.T) {
	engine := NewEngine(testLogger())

	_, err := engine.Dispatch(context.Background(), chat.Event{SenderID: 111, Kind: chat.EventText, Payload: "hello"})
	if !errors.Is(err, ErrNotInConversation) {
		t.Fatalf("expected ErrNotInConversation, got %v", err)
	}
}

func TestSessionAdvancesAndEnds(t *testing.T) {
	engine := NewEngine(testLogger())

	var captured []string
	scene := &Scene{ID: "capture", Steps: []Step{
		promptStep("intro", "enter value"),
		{Name: "value", Run: func(_ context.Context, sess *Session, ev chat.Event) (Transition, []chat.Message, error) {
			captured = append(captured, ev.Payload)
			return End(), []chat.Message{chat.NewMessage(sess.ChatID, "done")}, nil
		}},
	}}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := engine.Enter(context.Background(), "capture", 111, nil); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}

	messages, err := engine.Dispatch(context.Background(), chat.Event{SenderID: 111, Kind: chat.EventText, Payload: "42"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(captured) != 1 || captured[0] != "42" {
		t.Fatalf("expected the second step to see the payload, got %v", captured)
	}
	if len(messages) != 1 || messages[0].Text != "done" {
		t.Fatalf("expected completion message, got %+v", messages)
	}
	if engine.InConversation(111) {
		t.Fatal("expected session cleared after End")
	}
}

func TestStayRerunsStep(t *testing.T) {
	engine := NewEngine(testLogger())

	runs := 0
	scene := &Scene{ID: "retry", Steps: []Step{
		promptStep("intro", "enter value"),
		{Name: "value", Run: func(_ context.Context, sess *Session, ev chat.Event) (Transition, []chat.Message, error) {
			runs++
			if ev.Payload != "ok" {
				return Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "try again")}, nil
			}
			return End(), nil, nil
		}},
	}}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Enter(ctx, "retry", 111, nil); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}

	for _, payload := range []string{"bad", "worse", "ok"} {
		if _, err := engine.Dispatch(ctx, chat.Event{SenderID: 111, Kind: chat.EventText, Payload: payload}); err != nil {
			t.Fatalf("Dispatch(%q) returned error: %v", payload, err)
		}
	}
	if runs != 3 {
		t.Fatalf("expected the step to run 3 times, got %d", runs)
	}
	if engine.InConversation(111) {
		t.Fatal("expected session cleared")
	}
}

func TestGotoSkipsSteps(t *testing.T) {
	engine := NewEngine(testLogger())

	var visited []string
	step := func(name string, transition func() Transition) Step {
		return Step{Name: name, Run: func(_ context.Context, _ *Session, _ chat.Event) (Transition, []chat.Message, error) {
			visited = append(visited, name)
			return transition(), nil, nil
		}}
	}

	scene := &Scene{ID: "skip", Steps: []Step{
		step("intro", Next),
		step("choice", func() Transition { return Goto("last") }),
		step("skipped", Next),
		step("last", End),
	}}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Enter(ctx, "skip", 111, nil); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := engine.Dispatch(ctx, chat.Event{SenderID: 111, Kind: chat.EventText, Payload: "x"}); err != nil {
			t.Fatalf("Dispatch returned error: %v", err)
		}
	}

	want := []string{"intro", "choice", "last"}
	if len(visited) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("expected steps %v, got %v", want, visited)
		}
	}
}

func TestUniversalCancel(t *testing.T) {
	engine := NewEngine(testLogger())
	scene := &Scene{
		ID: "cancellable",
		OnCancel: func(chatID int64) []chat.Message {
			return []chat.Message{chat.NewMessage(chatID, "custom cancel")}
		},
		Steps: []Step{
			promptStep("intro", "enter value"),
			promptStep("value", "more"),
		},
	}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Enter(ctx, "cancellable", 111, nil); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}

	messages, err := engine.Dispatch(ctx, chat.Event{SenderID: 111, Kind: chat.EventText, Payload: "Back 🔙"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "custom cancel" {
		t.Fatalf("expected the OnCancel reply, got %+v", messages)
	}
	if engine.InConversation(111) {
		t.Fatal("expected session cleared on cancel")
	}
}

func TestStepErrorClearsSession(t *testing.T) {
	engine := NewEngine(testLogger())
	scene := &Scene{ID: "failing", Steps: []Step{
		promptStep("intro", "enter value"),
		{Name: "value", Run: func(_ context.Context, _ *Session, _ chat.Event) (Transition, []chat.Message, error) {
			return Stay(), nil, errors.New("boom")
		}},
	}}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Enter(ctx, "failing", 111, nil); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}

	if _, err := engine.Dispatch(ctx, chat.Event{SenderID: 111, Kind: chat.EventText, Payload: "x"}); err == nil {
		t.Fatal("expected a step error")
	}
	if engine.InConversation(111) {
		t.Fatal("expected session cleared after a step error")
	}
}

func TestEnterReplacesExistingSession(t *testing.T) {
	engine := NewEngine(testLogger())
	first := &Scene{ID: "first", Steps: []Step{promptStep("intro", "first"), promptStep("second", "never")}}
	second := &Scene{ID: "second", Steps: []Step{promptStep("intro", "second"), {Name: "value", Run: func(_ context.Context, sess *Session, ev chat.Event) (Transition, []chat.Message, error) {
		return End(), []chat.Message{chat.NewMessage(sess.ChatID, "second:"+ev.Payload)}, nil
	}}}}
	for _, scene := range []*Scene{first, second} {
		if err := engine.Register(scene); err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
	}

	ctx := context.Background()
	if _, err := engine.Enter(ctx, "first", 111, nil); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}
	if _, err := engine.Enter(ctx, "second", 111, nil); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}

	messages, err := engine.Dispatch(ctx, chat.Event{SenderID: 111, Kind: chat.EventText, Payload: "x"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "second:x" {
		t.Fatalf("expected the newest scene to win, got %+v", messages)
	}
}

func TestArgsReachSteps(t *testing.T) {
	engine := NewEngine(testLogger())

	var got any
	scene := &Scene{ID: "args", Steps: []Step{
		{Name: "intro", Run: func(_ context.Context, sess *Session, _ chat.Event) (Transition, []chat.Message, error) {
			got = sess.Args
			return End(), nil, nil
		}},
	}}
	if err := engine.Register(scene); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := engine.Enter(context.Background(), "args", 111, "tierA"); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}
	if got != "tierA" {
		t.Fatalf("expected args to reach the step, got %v", got)
	}
}
