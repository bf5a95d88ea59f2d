// Package agent implements the three debate personas over the completion and
// retrieval adapters. One shared pipeline serves all personas; differences
// live in Persona configuration.
package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/llm"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/internal/retrieval"
	"github.com/appliance-labs/debate-platform/pkg/logger"
	"github.com/appliance-labs/debate-platform/pkg/metrics"
)

// Context carries the per-call session view an agent conditions on.
type Context struct {
	SessionID      string
	ProductID      string
	History        []model.Turn
	UserData       map[string]string
	AskedQuestions []string
}

// houseEndings are the accepted sentence-final suffixes of the house style.
var houseEndings = []string{"긴해", "하긴해", "이긴해", "맞긴해", "할래말래"}

// base is the shared response pipeline. Advocate and Moderator embed it.
type base struct {
	persona Persona
	llm     llm.Client
	catalog retrieval.Client
	log     *logger.Logger
}

func newBase(persona Persona, client llm.Client, catalog retrieval.Client, log *logger.Logger) base {
	return base{persona: persona, llm: client, catalog: catalog, log: log}
}

// complete runs one completion for this persona and records metrics. Provider
// failures come back as errors; callers absorb them into fallback turns.
func (b *base) complete(ctx context.Context, messages []llm.ChatMessage, system string, temperature float64) (string, error) {
	start := time.Now()
	resp, err := b.llm.Complete(ctx, &llm.CompletionRequest{
		System:      system,
		Messages:    messages,
		Temperature: temperature,
	})
	status := "success"
	if err != nil {
		status = "error"
		metrics.RecordLLMRequest(b.llm.Name(), b.persona.Label, status, time.Since(start).Seconds(), 0, 0)
		return "", err
	}
	metrics.RecordLLMRequest(b.llm.Name(), b.persona.Label, status, time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp.Content, nil
}

// buildMessages maps the transcript into provider messages: this persona's
// turns become assistant messages, the user's stay user messages, and other
// agents' statements are folded in as attributed user messages.
func (b *base) buildMessages(c Context, userMessage string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(c.History)+1)
	for _, turn := range c.History {
		switch {
		case turn.Agent == b.persona.Label:
			messages = append(messages, llm.ChatMessage{Role: "assistant", Content: turn.Content})
		case turn.Role == model.RoleUser:
			messages = append(messages, llm.ChatMessage{Role: "user", Content: turn.Content})
		case turn.Agent != "":
			messages = append(messages, llm.ChatMessage{
				Role:    "user",
				Content: fmt.Sprintf("[%s의 주장]: %s", displayName(turn.Agent), turn.Content),
			})
		}
	}
	if userMessage != "" {
		messages = append(messages, llm.ChatMessage{Role: "user", Content: userMessage})
	}
	return messages
}

// productContext fetches the product under discussion; lookup failures
// degrade to nil.
func (b *base) productContext(ctx context.Context, productID string) *retrieval.Product {
	if productID == "" {
		return nil
	}
	product, err := b.catalog.GetProduct(ctx, productID)
	if err != nil {
		b.log.Warn("product lookup failed",
			zap.String("agent", b.persona.Label),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return nil
	}
	return product
}

// searchContext renders supporting search material for the system prompt.
func (b *base) searchContext(ctx context.Context) string {
	if b.persona.SearchQuery == "" {
		return ""
	}
	matches, _ := b.catalog.Search(ctx, b.persona.SearchQuery, nil)
	if len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n[관련 정보]\n")
	for i, m := range matches {
		if i == 3 {
			break
		}
		fmt.Fprintf(&sb, "- %s: %s\n", m.Document.Name, m.Document.Description)
	}
	return sb.String()
}

// newTurn wraps content into a turn record, enforcing the house suffix and
// the never-empty-content rule.
func (b *base) newTurn(content string) model.Turn {
	content = strings.TrimSpace(content)
	if content == "" {
		content = model.FillerContent
	}
	return b.styledTurn(applyHouseStyle(content))
}

// styledTurn builds a turn from content that already carries the house
// suffix. The suffix draw is random, so any caller that compares content
// against earlier turns must style exactly once and pass the result here.
func (b *base) styledTurn(content string) model.Turn {
	return model.Turn{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Agent:     b.persona.Label,
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// fallbackTurn produces the persona's static sentence after provider
// failure, tagged for observability.
func (b *base) fallbackTurn(err error) model.Turn {
	turn := b.newTurn(b.persona.FallbackLine)
	turn.Err = err.Error()
	return turn
}

// applyHouseStyle appends a house-style suffix when the completion ignored
// the prompt rule.
func applyHouseStyle(content string) string {
	trimmed := strings.TrimRight(content, ".!? ")
	for _, ending := range houseEndings {
		if strings.HasSuffix(trimmed, ending) {
			return content
		}
	}
	return trimmed + houseEndings[rand.Intn(len(houseEndings))]
}

func displayName(label string) string {
	switch label {
	case model.AgentPurchase:
		return "구매봇"
	case model.AgentSubscription:
		return "구독봇"
	case model.AgentModerator:
		return "안내봇"
	default:
		return label
	}
}
