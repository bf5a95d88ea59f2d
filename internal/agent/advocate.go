package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/appliance-labs/debate-platform/internal/llm"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/internal/retrieval"
	"github.com/appliance-labs/debate-platform/pkg/logger"
)

// Debater is the shared contract of the two advocates.
type Debater interface {
	GenerateInitialArgument(ctx context.Context, productID string) model.Turn
	ProcessMessage(ctx context.Context, c Context, userMessage string) model.Turn
	GenerateRebuttal(ctx context.Context, c Context, opponentStatement string) model.Turn
}

// Advocate argues one fixed side of the debate. Its methods never return
// errors: terminal provider failures become persona fallback turns so the
// debate never halts on a single agent.
type Advocate struct {
	base
}

// NewAdvocate builds an advocate for the given persona.
func NewAdvocate(persona Persona, client llm.Client, catalog retrieval.Client, log *logger.Logger) *Advocate {
	return &Advocate{base: newBase(persona, client, catalog, log)}
}

// GenerateInitialArgument produces the opening statement with no prior
// context.
func (a *Advocate) GenerateInitialArgument(ctx context.Context, productID string) model.Turn {
	return a.ProcessMessage(ctx, Context{ProductID: productID}, a.persona.InitialPrompt)
}

// ProcessMessage produces a turn conditioned on the accumulated history plus
// a fresh user utterance.
func (a *Advocate) ProcessMessage(ctx context.Context, c Context, userMessage string) model.Turn {
	system := a.persona.SystemPrompt
	if product := a.productContext(ctx, c.ProductID); product != nil {
		system += a.renderProductInfo(product)
	}
	system += a.searchContext(ctx)

	content, err := a.complete(ctx, a.buildMessages(c, userMessage), system, a.persona.Temperature)
	if err != nil {
		return a.fallbackTurn(err)
	}
	return a.newTurn(content)
}

// GenerateRebuttal counters a specific prior statement from the opposing
// advocate.
func (a *Advocate) GenerateRebuttal(ctx context.Context, c Context, opponentStatement string) model.Turn {
	return a.ProcessMessage(ctx, c, fmt.Sprintf(a.persona.RebuttalTemplate, opponentStatement))
}

func (a *Advocate) renderProductInfo(p *retrieval.Product) string {
	var sb strings.Builder
	sb.WriteString("\n[현재 제품 정보]\n")
	fmt.Fprintf(&sb, "- 제품명: %s\n", p.Name)
	fmt.Fprintf(&sb, "- 구매가격: %d원\n", p.PurchasePrice)
	if p.SubscriptionPrice6Y > 0 {
		total := p.SubscriptionPrice6Y * subscriptionMonths
		fmt.Fprintf(&sb, "- 6년 구독 총액: %d원 (월 %d원 x %d개월)\n", total, p.SubscriptionPrice6Y, subscriptionMonths)
	}
	if p.SubscriptionBenefits != "" {
		fmt.Fprintf(&sb, "- 구독 혜택: %s\n", p.SubscriptionBenefits)
	}
	if p.CareServiceDesc != "" {
		fmt.Fprintf(&sb, "- 케어 서비스: %s\n", p.CareServiceDesc)
	}
	return sb.String()
}
