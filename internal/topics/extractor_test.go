package topics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/gemini"
	"github.com/knowbase/knowbot/internal/retry"
)

const selfID = int64(999)

// fakeAI records the prompts it receives and returns canned topic items.
type fakeAI struct {
	calls  int
	system string
	user   string
	items  []gemini.TopicItem
	err    error
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAI) GenerateTopics(ctx context.Context, system, user string) ([]gemini.TopicItem, error) {
	f.calls++
	f.system = system
	f.user = user
	return f.items, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastExtractor(ai gemini.Client) *Extractor {
	e := NewExtractor(ai, testLogger())
	e.policy = retry.Policy{MaxAttempts: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1, Jitter: 0}
	return e
}

func at(sec int) time.Time {
	return time.Date(2026, 8, 25, 12, 0, sec, 0, time.UTC)
}

func TestExtractTopicsEmptyInputSkipsAICall(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{}
	e := fastExtractor(ai)

	topics, err := e.ExtractTopics(context.Background(), nil, selfID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topics != nil {
		t.Errorf("expected nil topics, got %v", topics)
	}
	if ai.calls != 0 {
		t.Errorf("expected no AI calls, got %d", ai.calls)
	}
}

func TestExtractTopicsTextlessWindowSkipsAICall(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{}
	e := fastExtractor(ai)

	messages := []database.Message{
		{UserID: 111, Content: "", Timestamp: at(0)},
		{UserID: 222, Content: "   ", Timestamp: at(1)},
	}
	topics, err := e.ExtractTopics(context.Background(), messages, selfID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 0 || ai.calls != 0 {
		t.Errorf("expected no topics and no AI calls, got %d topics, %d calls", len(topics), ai.calls)
	}
}

func TestExtractTopicsTranscriptFormat(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{}
	e := fastExtractor(ai)

	// Out of order on purpose; the transcript must come out sorted.
	messages := []database.Message{
		{ID: 2, UserID: 222, Content: "ask @111 about it", Timestamp: at(5)},
		{ID: 1, UserID: 111, Content: "deploy is done", Timestamp: at(0)},
		{ID: 3, UserID: selfID, Content: "noted", Timestamp: at(9)},
		{ID: 4, UserID: 333, Content: "", Timestamp: at(10)},
	}

	if _, err := e.ExtractTopics(context.Background(), messages, selfID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "2026-08-25T12:00:00Z: @user_1: deploy is done\n" +
		"2026-08-25T12:00:05Z: @user_2: ask @user_1 about it\n" +
		"2026-08-25T12:00:09Z: @bot: noted\n"
	if ai.user != want {
		t.Errorf("transcript mismatch:\ngot:\n%s\nwant:\n%s", ai.user, want)
	}
	if strings.Contains(ai.user, "111") || strings.Contains(ai.user, "222") {
		t.Error("transcript leaked real user IDs")
	}
	if ai.system == "" {
		t.Error("expected a system prompt")
	}
}

func TestExtractTopicsFiltersSpeakersPerTopic(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{items: []gemini.TopicItem{
		{Subject: "Deploy", Summary: "@user_1 finished the deploy and @bot confirmed."},
		{Subject: "Lunch", Summary: "@user_2 suggested pizza."},
	}}
	e := fastExtractor(ai)

	messages := []database.Message{
		{ID: 1, UserID: 111, Content: "deploy done", Timestamp: at(0)},
		{ID: 2, UserID: 222, Content: "pizza?", Timestamp: at(1)},
		{ID: 3, UserID: selfID, Content: "confirmed", Timestamp: at(2)},
	}

	topics, err := e.ExtractTopics(context.Background(), messages, selfID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}

	first := topics[0].Speakers
	if first["user_1"] != "111" || first["bot"] != "999" || len(first) != 2 {
		t.Errorf("first topic speakers = %v", first)
	}
	second := topics[1].Speakers
	if second["user_2"] != "222" || len(second) != 1 {
		t.Errorf("second topic speakers = %v", second)
	}
}

func TestExtractTopicsPropagatesAIFailure(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{err: errors.New("upstream down")}
	e := fastExtractor(ai)

	messages := []database.Message{{ID: 1, UserID: 111, Content: "hello", Timestamp: at(0)}}
	if _, err := e.ExtractTopics(context.Background(), messages, selfID); err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
	if ai.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", ai.calls)
	}
}

func TestExtractTopicsDropsEmptyItems(t *testing.T) {
	t.Parallel()

	ai := &fakeAI{items: []gemini.TopicItem{
		{Subject: "", Summary: "orphan summary"},
		{Subject: "Kept", Summary: "valid"},
	}}
	e := fastExtractor(ai)

	messages := []database.Message{{ID: 1, UserID: 111, Content: "hello", Timestamp: at(0)}}
	topics, err := e.ExtractTopics(context.Background(), messages, selfID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 1 || topics[0].Subject != "Kept" {
		t.Errorf("expected only the valid topic, got %v", topics)
	}
}
