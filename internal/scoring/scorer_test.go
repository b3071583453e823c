package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	"adecis_backend/platform/logger"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	calls int
}

func (g *fakeGenerator) GenerateContent(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.calls++
	return g.resp, g.err
}

func textResponse(body string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: body}},
			},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 48,
		},
	}
}

func testScorer(gen *fakeGenerator) *Scorer {
	return newScorer(gen, "gemini-2.5-flash", logger.New("development"))
}

func sampleInput() Input {
	return Input{
		Message: "Need help with app. Budget ok.",
		Source:  "slack",
		Profile: ProfileContext{Niche: "development", Tone: "casual"},
	}
}

func TestScoreParsesStructuredResult(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{
		"intent_score": 0.82,
		"intent_label": "high",
		"summary_bullets": ["Wants an app built", "Budget confirmed"],
		"suggested_reply": "Thanks for reaching out. Happy to discuss your app."
	}`)}

	result, err := testScorer(gen).Score(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score.IntentScore != 0.82 {
		t.Errorf("IntentScore = %v, want 0.82", result.Score.IntentScore)
	}
	if result.Score.IntentLabel != "high" {
		t.Errorf("IntentLabel = %q, want high", result.Score.IntentLabel)
	}
	if result.Usage.PromptTokens != 120 || result.Usage.CompletionTokens != 48 {
		t.Errorf("Usage = %+v, want 120/48", result.Usage)
	}
	if result.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", result.Model)
	}
}

func TestScoreCoercesLabelToScore(t *testing.T) {
	tests := []struct {
		score     float64
		label     string
		wantLabel string
	}{
		{0.70, "medium", "high"},
		{0.95, "low", "high"},
		{0.69, "high", "medium"},
		{0.40, "low", "medium"},
		{0.39, "high", "low"},
		{0.00, "medium", "low"},
	}

	for _, tt := range tests {
		body := fmt.Sprintf(`{"intent_score": %.2f, "intent_label": %q,
			"summary_bullets": ["One bullet"], "suggested_reply": "Thanks for the message."}`, tt.score, tt.label)
		gen := &fakeGenerator{resp: textResponse(body)}

		result, err := testScorer(gen).Score(context.Background(), sampleInput())
		if err != nil {
			t.Fatalf("score %v: unexpected error: %v", tt.score, err)
		}
		if result.Score.IntentLabel != tt.wantLabel {
			t.Errorf("score %v label %q coerced to %q, want %q", tt.score, tt.label, result.Score.IntentLabel, tt.wantLabel)
		}
	}
}

func TestScoreFailsOnEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{}}

	_, err := testScorer(gen).Score(context.Background(), sampleInput())
	if !errors.Is(err, ErrNoStructuredResult) {
		t.Errorf("err = %v, want ErrNoStructuredResult", err)
	}
}

func TestScoreFailsOnUnparseablePayload(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("I think this lead looks promising.")}

	_, err := testScorer(gen).Score(context.Background(), sampleInput())
	if !errors.Is(err, ErrNoStructuredResult) {
		t.Errorf("err = %v, want ErrNoStructuredResult", err)
	}
}

func TestScoreValidatesBounds(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "score above one",
			body: `{"intent_score": 1.4, "intent_label": "high", "summary_bullets": ["x"], "suggested_reply": "Thanks for the message."}`,
		},
		{
			name: "no bullets",
			body: `{"intent_score": 0.5, "intent_label": "medium", "summary_bullets": [], "suggested_reply": "Thanks for the message."}`,
		},
		{
			name: "reply too short",
			body: `{"intent_score": 0.5, "intent_label": "medium", "summary_bullets": ["x"], "suggested_reply": "ok"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{resp: textResponse(tt.body)}
			if _, err := testScorer(gen).Score(context.Background(), sampleInput()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestScoreTruncatesExcessBullets(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{
		"intent_score": 0.55, "intent_label": "medium",
		"summary_bullets": ["one", "two", "three", "four", "five"],
		"suggested_reply": "Thanks for the message."
	}`)}

	result, err := testScorer(gen).Score(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Score.SummaryBullets) != 3 {
		t.Errorf("bullets = %d, want 3", len(result.Score.SummaryBullets))
	}
}

func TestScoreBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model endpoint down")}
	scorer := testScorer(gen)

	for i := 0; i < 5; i++ {
		if _, err := scorer.Score(context.Background(), sampleInput()); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := scorer.Score(context.Background(), sampleInput())
	if !errors.Is(err, ErrScoringUnavailable) {
		t.Errorf("err = %v, want ErrScoringUnavailable after breaker opens", err)
	}
	if gen.calls != 5 {
		t.Errorf("generator called %d times, want 5 (open breaker short-circuits)", gen.calls)
	}
}

func TestSystemPromptCarriesProfileContext(t *testing.T) {
	prompt := buildSystemPrompt(ProfileContext{
		Niche:              "seo",
		Tone:               "friendly",
		BookingLink:        "https://cal.com/jane",
		BusinessName:       "Jane Digital",
		CustomInstructions: "We never work with gambling sites.",
	})

	for _, want := range []string{
		"seo freelancer at Jane Digital",
		"Tone: friendly",
		"https://cal.com/jane",
		"We never work with gambling sites.",
		"plumbing company in Austin",
		"Buying Intent vs. Niche Fit",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestSystemPromptUnknownNicheUsesDefaultGuidance(t *testing.T) {
	prompt := buildSystemPrompt(ProfileContext{Niche: "falconry"})
	if !strings.Contains(prompt, "Niche-Specific Guidance") {
		t.Error("unknown niche must fall back to generic guidance")
	}
	if strings.Contains(prompt, "Niche-Specific Examples") {
		t.Error("unknown niche must not borrow another niche's examples")
	}
}

func TestUserPromptIncludesThreadContext(t *testing.T) {
	prompt := buildUserPrompt(Input{
		Message:       "What are your rates?",
		ThreadContext: "Earlier: asked about timelines",
		Source:        "slack",
		SenderName:    "Dana",
	})

	for _, want := range []string{"**Source**: slack", "**Sender**: Dana", "What are your rates?", "Earlier: asked about timelines"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}
