package answer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/gemini"
	"github.com/knowbase/knowbot/internal/knowledge"
	"github.com/knowbase/knowbot/internal/retry"
)

type aiCall struct {
	system string
	user   string
}

// scriptedAI returns canned replies in call order and records prompts.
type scriptedAI struct {
	calls   []aiCall
	replies []string
	err     error
}

func (f *scriptedAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.calls = append(f.calls, aiCall{system: system, user: user})
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "default reply", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *scriptedAI) GenerateTopics(ctx context.Context, system, user string) ([]gemini.TopicItem, error) {
	return nil, errors.New("not implemented")
}

type fixedEmbedder struct {
	vector []float32
	texts  []string
}

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	return [][]float32{f.vector}, nil
}

type fixedStore struct {
	results []knowledge.Result
	err     error
	queried []float32
}

func (f *fixedStore) Upsert(ctx context.Context, entries []knowledge.Entry) error {
	return errors.New("not implemented")
}

func (f *fixedStore) NearestNeighbors(ctx context.Context, query []float32, maxResults int, maxDistance float64) ([]knowledge.Result, error) {
	f.queried = query
	return f.results, f.err
}

func (f *fixedStore) Count(ctx context.Context) (int, error) { return len(f.results), nil }

func testCfg() config.KnowledgeConfig {
	return config.KnowledgeConfig{
		ProductName:      "KnowBot",
		MaxResults:       10,
		MaxDistance:      0.7,
		RelevantDistance: 0.5,
		HistoryLimit:     7,
	}
}

func fastAnswerer(ai gemini.Client, e *fixedEmbedder, s *fixedStore) *Answerer {
	a := NewAnswerer(ai, e, s, testCfg(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.policy = retry.Policy{MaxAttempts: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1, Jitter: 0}
	return a
}

func entryResult(subject string, distance float64) knowledge.Result {
	return knowledge.Result{
		Entry:    knowledge.Entry{ID: subject, Subject: subject, Content: "content of " + subject},
		Distance: distance,
	}
}

func TestAnswerGroundedWhenTightMatchExists(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{replies: []string{"setup steps", "the answer"}}
	store := &fixedStore{results: []knowledge.Result{entryResult("Setup", 0.3)}}
	a := fastAnswerer(ai, &fixedEmbedder{vector: []float32{1}}, store)

	reply, err := a.Answer(context.Background(), "how do I set up?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "the answer" {
		t.Errorf("reply = %q", reply)
	}

	if len(ai.calls) != 2 {
		t.Fatalf("expected rephrase + generate, got %d calls", len(ai.calls))
	}
	call := ai.calls[1]
	if !strings.Contains(call.system, "using the documentation excerpts") {
		t.Errorf("expected grounded system prompt, got %q", call.system)
	}
	if !strings.Contains(call.user, "## Setup") || !strings.Contains(call.user, "content of Setup") {
		t.Errorf("excerpts missing from user prompt: %q", call.user)
	}
	// The generation prompt carries the original question, not the rephrasing.
	if !strings.Contains(call.user, "how do I set up?") {
		t.Errorf("original query missing from generation prompt: %q", call.user)
	}
}

func TestAnswerRephrasesWithoutHistory(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{replies: []string{"password reset", "done"}}
	embedder := &fixedEmbedder{vector: []float32{1}}
	a := fastAnswerer(ai, embedder, &fixedStore{})

	// No history: the rephrase still runs, it also translates the question
	// into the English form the knowledge base is indexed in.
	if _, err := a.Answer(context.Background(), "como redefinir a senha?", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ai.calls) != 2 {
		t.Fatalf("expected rephrase + generate, got %d calls", len(ai.calls))
	}
	if !strings.Contains(ai.calls[0].system, "English") {
		t.Errorf("expected rephrase system prompt, got %q", ai.calls[0].system)
	}
	if len(embedder.texts) != 1 || embedder.texts[0] != "password reset" {
		t.Errorf("embedded texts = %v", embedder.texts)
	}
}

func TestAnswerFallbackWhenOnlyWeakMatches(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{}
	store := &fixedStore{results: []knowledge.Result{entryResult("Setup", 0.6)}}
	a := fastAnswerer(ai, &fixedEmbedder{vector: []float32{1}}, store)

	if _, err := a.Answer(context.Background(), "question", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := ai.calls[len(ai.calls)-1]
	if !strings.Contains(call.system, "no close match") {
		t.Errorf("expected fallback system prompt, got %q", call.system)
	}
	// Weak matches still ride along as context.
	if !strings.Contains(call.user, "## Setup") {
		t.Errorf("weak excerpt missing from user prompt: %q", call.user)
	}
}

func TestAnswerNoResultsInjectsNote(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{}
	store := &fixedStore{}
	a := fastAnswerer(ai, &fixedEmbedder{vector: []float32{1}}, store)

	if _, err := a.Answer(context.Background(), "question", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := ai.calls[len(ai.calls)-1]
	if !strings.Contains(call.user, "no documentation found") {
		t.Errorf("expected the no-documentation note, got %q", call.user)
	}
	if strings.Contains(call.user, "Documentation excerpts") {
		t.Errorf("unexpected excerpts section: %q", call.user)
	}
}

func TestAnswerRephrasesWithHistory(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{replies: []string{"standalone question?", "final answer"}}
	embedder := &fixedEmbedder{vector: []float32{1}}
	store := &fixedStore{}
	a := fastAnswerer(ai, embedder, store)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	history := make([]database.Message, 10)
	for i := range history {
		history[i] = database.Message{
			ID: uint(i + 1), UserID: 1, Content: "msg", Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	// Shuffle in a newer message out of order; the window must still be the
	// most recent messages sorted ascending.
	history[0].Timestamp = base.Add(time.Hour)

	reply, err := a.Answer(context.Background(), "what about it?", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "final answer" {
		t.Errorf("reply = %q", reply)
	}

	if len(ai.calls) != 2 {
		t.Fatalf("expected rephrase + generate, got %d calls", len(ai.calls))
	}
	if !strings.Contains(ai.calls[0].user, "what about it?") {
		t.Errorf("rephrase prompt missing query: %q", ai.calls[0].user)
	}
	if strings.Count(ai.calls[0].user, "msg") != 7 {
		t.Errorf("expected 7 history lines, got %d", strings.Count(ai.calls[0].user, "msg"))
	}

	// The rephrased question is what gets embedded.
	if len(embedder.texts) != 1 || embedder.texts[0] != "standalone question?" {
		t.Errorf("embedded texts = %v", embedder.texts)
	}
}

func TestAnswerGenerationPromptCarriesQueryAndHistory(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{replies: []string{"rephrased form", "final answer"}}
	a := fastAnswerer(ai, &fixedEmbedder{vector: []float32{1}}, &fixedStore{})

	history := []database.Message{
		{ID: 1, UserID: 7, Content: "the export keeps timing out", Timestamp: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)},
	}

	if _, err := a.Answer(context.Background(), "and on the nightly run?", history); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ai.calls) != 2 {
		t.Fatalf("expected rephrase + generate, got %d calls", len(ai.calls))
	}

	// Generation must see the conversation, not just the retrieval query:
	// follow-up questions are meaningless without it.
	gen := ai.calls[1].user
	if !strings.Contains(gen, "and on the nightly run?") {
		t.Errorf("original query missing from generation prompt: %q", gen)
	}
	if !strings.Contains(gen, "the export keeps timing out") {
		t.Errorf("history missing from generation prompt: %q", gen)
	}
	if strings.Contains(gen, "rephrased form") {
		t.Errorf("rephrased question leaked into generation prompt: %q", gen)
	}
}

func TestAnswerStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{}
	store := &fixedStore{err: errors.New("db gone")}
	a := fastAnswerer(ai, &fixedEmbedder{vector: []float32{1}}, store)

	if _, err := a.Answer(context.Background(), "question", nil); err == nil {
		t.Fatal("expected error")
	}
	// The pipeline stops before generation; only the rephrase call ran.
	if len(ai.calls) != 1 {
		t.Errorf("expected 1 AI call, got %d", len(ai.calls))
	}
}

func TestAnswerGenerationFailurePropagates(t *testing.T) {
	t.Parallel()

	ai := &scriptedAI{err: errors.New("upstream down")}
	store := &fixedStore{}
	a := fastAnswerer(ai, &fixedEmbedder{vector: []float32{1}}, store)

	if _, err := a.Answer(context.Background(), "question", nil); err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
}
