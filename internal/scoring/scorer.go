package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"adecis_backend/platform/logger"
)

// Label thresholds. The label the model emits is advisory; the numeric
// score is authoritative and the label is coerced to match.
const (
	highThreshold   = 0.70
	mediumThreshold = 0.40
)

var (
	// ErrNoStructuredResult means the model returned no parseable JSON
	// payload. The caller must treat the message as unscored.
	ErrNoStructuredResult = errors.New("model returned no structured result")

	// ErrScoringUnavailable means the circuit breaker is open after
	// repeated model failures.
	ErrScoringUnavailable = errors.New("scoring temporarily unavailable")
)

// contentGenerator is the slice of the genai client the scorer calls.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Scorer scores inbound messages for buying intent via the Gemini API with
// a forced JSON response schema. A circuit breaker shields the pipeline
// from a degraded model endpoint.
type Scorer struct {
	generator contentGenerator
	model     string
	breaker   *gobreaker.CircuitBreaker
	log       *logger.Logger
	now       func() time.Time
}

// NewScorer creates a scorer around an initialized genai client.
func NewScorer(client *genai.Client, model string, log *logger.Logger) *Scorer {
	return newScorer(client.Models, model, log)
}

func newScorer(generator contentGenerator, model string, log *logger.Logger) *Scorer {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lead-scoring",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})
	return &Scorer{
		generator: generator,
		model:     model,
		breaker:   breaker,
		log:       log,
		now:       time.Now,
	}
}

// responseSchema forces the model to emit exactly the fields Score carries.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent_score": {
			Type:        genai.TypeNumber,
			Description: "Lead intent score from 0.0 (spam/irrelevant) to 1.0 (ready to buy). Be conservative: when unsure, score lower.",
		},
		"intent_label": {
			Type:        genai.TypeString,
			Enum:        []string{"high", "medium", "low"},
			Description: "high: 0.7+, clear buying intent. medium: 0.4-0.69, possible interest. low: below 0.4, unlikely lead.",
		},
		"summary_bullets": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Two to three short bullet points summarizing the lead. Each under 15 words. Focus on: what they want, their timeline, their budget signals.",
		},
		"suggested_reply": {
			Type:        genai.TypeString,
			Description: "A warm, human reply the freelancer can send. Match the specified tone. Never be salesy. Keep under 100 words.",
		},
	},
	Required: []string{"intent_score", "intent_label", "summary_bullets", "suggested_reply"},
}

// Score runs one scoring round trip. The structured result is validated
// and the label is coerced to the numeric thresholds before it is returned.
func (s *Scorer) Score(ctx context.Context, input Input) (Result, error) {
	start := s.now()

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: buildUserPrompt(input)}},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: buildSystemPrompt(input.Profile)}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
		MaxOutputTokens:  1024,
	}

	value, err := s.breaker.Execute(func() (interface{}, error) {
		return s.generator.GenerateContent(ctx, s.model, contents, config)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, ErrScoringUnavailable
		}
		return Result{}, fmt.Errorf("scoring call failed: %w", err)
	}
	resp := value.(*genai.GenerateContentResponse)

	latency := s.now().Sub(start).Milliseconds()

	score, err := extractScore(resp)
	if err != nil {
		return Result{}, err
	}
	score.IntentLabel = coerceLabel(score.IntentScore)

	result := Result{
		Score:     score,
		LatencyMs: latency,
		Model:     s.model,
	}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	s.log.Debug("lead scored",
		"score", score.IntentScore, "label", score.IntentLabel, "latency_ms", latency)
	return result, nil
}

// extractScore walks the candidate parts for the JSON payload and validates
// its bounds. A response with no usable payload fails loudly; a fabricated
// neutral score would silently poison the lead record.
func extractScore(resp *genai.GenerateContentResponse) (Score, error) {
	text := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
		if text != "" {
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return Score{}, ErrNoStructuredResult
	}

	var score Score
	if err := json.Unmarshal([]byte(text), &score); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrNoStructuredResult, err)
	}

	if score.IntentScore < 0 || score.IntentScore > 1 {
		return Score{}, fmt.Errorf("intent_score %v out of range", score.IntentScore)
	}
	if len(score.SummaryBullets) == 0 {
		return Score{}, errors.New("summary_bullets is empty")
	}
	if len(score.SummaryBullets) > 3 {
		score.SummaryBullets = score.SummaryBullets[:3]
	}
	if len(strings.TrimSpace(score.SuggestedReply)) < 10 {
		return Score{}, errors.New("suggested_reply too short")
	}

	return score, nil
}

// coerceLabel maps a score onto its label band.
func coerceLabel(score float64) string {
	switch {
	case score >= highThreshold:
		return "high"
	case score >= mediumThreshold:
		return "medium"
	default:
		return "low"
	}
}
