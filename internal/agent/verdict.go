package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/llm"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/internal/retrieval"
)

// subscriptionMonths is the billing horizon used for total-cost comparison: a
// 6-year contract billed monthly.
const subscriptionMonths = 72

var (
	verdictRecommendation = regexp.MustCompile(`\[최종 결론\]:\s*(구매|구독)`)
	verdictFitness        = regexp.MustCompile(`\[적합도\]:\s*구매\s*(\d+)%\s*[,/]?\s*구독\s*(\d+)%`)
	verdictReasons        = regexp.MustCompile(`\[핵심 근거 3줄\]:\s*\n((?:\s*[-•]\s*.+\n?)+)`)
	verdictNextStep       = regexp.MustCompile(`\[다음 단계 제안 1줄\]:\s*(.+)`)
	bulletLine            = regexp.MustCompile(`^\s*[-•]\s*(.+)$`)
)

// GenerateConclusion weighs the whole debate and renders a structured verdict.
// The verdict is always well-formed: if the model output cannot be parsed, a
// balanced fallback verdict is substituted.
func (m *Moderator) GenerateConclusion(ctx context.Context, c Context) model.Turn {
	product := m.productContext(ctx, c.ProductID)

	prompt := m.buildConclusionPrompt(c, product)
	system := m.persona.SystemPrompt + `
당신은 지금 토론의 최종 결론을 내려야 합니다.
구매와 구독 중 반드시 하나를 선택하고, 아래 형식을 정확히 지켜서 응답하세요.

[최종 결론]: 구매 또는 구독
[적합도]: 구매 XX%, 구독 YY% (합이 반드시 100%)
[핵심 근거 3줄]:
- 근거 1
- 근거 2
- 근거 3
[다음 단계 제안 1줄]: 제안 내용
`

	content, err := m.complete(ctx, []llm.ChatMessage{{Role: "user", Content: prompt}}, system, 0.4)
	if err != nil {
		m.log.Warn("conclusion generation failed", zap.Error(err))
		return m.fallbackConclusion(err)
	}

	verdict, perr := parseVerdict(content)
	if perr != nil {
		m.log.Warn("conclusion parse failed, using fallback verdict",
			zap.Error(perr),
			zap.Int("content_length", len(content)))
		return m.fallbackConclusion(nil)
	}

	turn := m.newTurn(renderVerdict(verdict))
	turn.Verdict = verdict
	turn.ConversationEnded = true
	return turn
}

func (m *Moderator) buildConclusionPrompt(c Context, product *retrieval.Product) string {
	var sb strings.Builder
	sb.WriteString("지금까지의 토론을 종합하여 최종 결론을 내려주세요.\n")

	if product != nil {
		sb.WriteString("\n[제품 가격 정보]\n")
		fmt.Fprintf(&sb, "- 제품명: %s\n", product.Name)
		fmt.Fprintf(&sb, "- 일시불 구매가격: %d원\n", product.PurchasePrice)
		if product.SubscriptionPrice6Y > 0 {
			total := product.SubscriptionPrice6Y * subscriptionMonths
			fmt.Fprintf(&sb, "- 6년 구독료: 월 %d원 (총 %d원)\n", product.SubscriptionPrice6Y, total)
			diff := total - product.PurchasePrice
			if diff > 0 {
				fmt.Fprintf(&sb, "- 구독이 구매보다 총 %d원 더 비쌈\n", diff)
			} else {
				fmt.Fprintf(&sb, "- 구독이 구매보다 총 %d원 더 저렴함\n", -diff)
			}
		}
		if product.CareServiceDesc != "" {
			fmt.Fprintf(&sb, "- 케어서비스: %s (%s)\n", product.CareServiceDesc, product.CareServiceFrequency)
		}
	}

	sb.WriteString("\n[사용자 답변 내역]\n")
	for _, turn := range c.History {
		if turn.Role == model.RoleUser {
			fmt.Fprintf(&sb, "- %s\n", turn.Content)
		}
	}

	writeRecentArguments(&sb, c.History, model.AgentPurchase, "\n[구매봇 주요 주장]\n")
	writeRecentArguments(&sb, c.History, model.AgentSubscription, "\n[구독봇 주요 주장]\n")

	sb.WriteString(`
사용자의 답변에서 드러난 상황과 우선순위를 가장 중요하게 반영하세요.
적합도 퍼센트의 합은 반드시 100이어야 하고, 근거는 정확히 3개여야 합니다.
`)
	return sb.String()
}

func parseVerdict(content string) (*model.Verdict, error) {
	rec := verdictRecommendation.FindStringSubmatch(content)
	if rec == nil {
		return nil, fmt.Errorf("missing recommendation block")
	}

	verdict := &model.Verdict{}
	if rec[1] == "구매" {
		verdict.Recommendation = model.RecommendBuy
	} else {
		verdict.Recommendation = model.RecommendSubscribe
	}

	fit := verdictFitness.FindStringSubmatch(content)
	if fit == nil {
		return nil, fmt.Errorf("missing fitness block")
	}
	buy, _ := strconv.Atoi(fit[1])
	sub, _ := strconv.Atoi(fit[2])
	if buy+sub != 100 {
		// Normalize against the buy share rather than rejecting outright.
		if buy > 100 {
			buy = 100
		}
		sub = 100 - buy
	}
	verdict.BuyPercent = buy
	verdict.SubscribePercent = sub

	reasonsBlock := verdictReasons.FindStringSubmatch(content)
	if reasonsBlock == nil {
		return nil, fmt.Errorf("missing reasons block")
	}
	for _, line := range strings.Split(reasonsBlock[1], "\n") {
		match := bulletLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		reason := strings.TrimSpace(match[1])
		if reason != "" {
			verdict.Reasons = append(verdict.Reasons, reason)
		}
	}
	if len(verdict.Reasons) < 3 {
		return nil, fmt.Errorf("expected 3 reasons, got %d", len(verdict.Reasons))
	}
	verdict.Reasons = verdict.Reasons[:3]

	next := verdictNextStep.FindStringSubmatch(content)
	if next == nil {
		return nil, fmt.Errorf("missing next step block")
	}
	verdict.NextStep = strings.TrimSpace(next[1])

	if !verdict.WellFormed() {
		return nil, fmt.Errorf("verdict failed well-formedness check")
	}
	return verdict, nil
}

func renderVerdict(v *model.Verdict) string {
	label := "구매를"
	if v.Recommendation == model.RecommendSubscribe {
		label = "구독을"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "토론을 종합한 결과, %s 추천하긴해!\n\n", label)
	fmt.Fprintf(&sb, "적합도는 구매 %d%%, 구독 %d%%이긴해.\n\n", v.BuyPercent, v.SubscribePercent)
	sb.WriteString("핵심 근거는 이렇긴해:\n")
	for i, reason := range v.Reasons {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, reason)
	}
	fmt.Fprintf(&sb, "\n다음 단계로는 %s", applyHouseStyle(v.NextStep))
	return sb.String()
}

func (m *Moderator) fallbackConclusion(err error) model.Turn {
	verdict := &model.Verdict{
		Recommendation:   model.RecommendBuy,
		BuyPercent:       50,
		SubscribePercent: 50,
		Reasons: []string{
			"구매와 구독 모두 충분한 장점이 있어 상황에 따라 선택이 달라질 수 있긴해",
			"초기 비용 부담이 괜찮다면 장기적으로는 구매가 총비용이 낮긴해",
			"케어서비스와 최신 제품 교체가 중요하다면 구독이 유리하긴해",
		},
		NextStep: "매장이나 온라인에서 관심 제품의 구독 견적과 구매 가격을 직접 비교해보는 걸 추천하긴해",
	}
	turn := m.newTurn(renderVerdict(verdict))
	turn.Verdict = verdict
	turn.ConversationEnded = true
	if err != nil {
		turn.Err = err.Error()
	}
	return turn
}
