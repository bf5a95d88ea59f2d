package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/appliance-labs/debate-platform/internal/model"
)

const wellFormedConclusion = `[최종 결론]: 구독
[적합도]: 구매 35%, 구독 65%
[핵심 근거 3줄]:
- 초기 비용 부담을 크게 느끼고 계십니다
- 케어 서비스를 중요하게 생각하십니다
- 이사 가능성이 있어 유연성이 필요합니다
[다음 단계 제안 1줄]: 매장에서 6년 구독 견적을 받아보세요`

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	verdict, err := parseVerdict(wellFormedConclusion)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if verdict.Recommendation != model.RecommendSubscribe {
		t.Fatalf("wrong recommendation %q", verdict.Recommendation)
	}
	if verdict.BuyPercent != 35 || verdict.SubscribePercent != 65 {
		t.Fatalf("wrong percentages %d/%d", verdict.BuyPercent, verdict.SubscribePercent)
	}
	if len(verdict.Reasons) != 3 {
		t.Fatalf("expected 3 reasons, got %d", len(verdict.Reasons))
	}
	if verdict.NextStep == "" {
		t.Fatal("next step missing")
	}
	if !verdict.WellFormed() {
		t.Fatal("parsed verdict must be well-formed")
	}
}

func TestParseVerdictNormalizesPercentages(t *testing.T) {
	t.Parallel()

	content := strings.Replace(wellFormedConclusion, "구매 35%, 구독 65%", "구매 40%, 구독 70%", 1)
	verdict, err := parseVerdict(content)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if verdict.BuyPercent+verdict.SubscribePercent != 100 {
		t.Fatalf("percentages not normalized: %d/%d", verdict.BuyPercent, verdict.SubscribePercent)
	}
	if verdict.BuyPercent != 40 {
		t.Fatalf("buy share should be preserved, got %d", verdict.BuyPercent)
	}
}

func TestParseVerdictRejectsMissingBlocks(t *testing.T) {
	t.Parallel()

	for _, content := range []string{
		"",
		"구독을 추천합니다",
		"[최종 결론]: 구독\n[적합도]: 구매 35%, 구독 65%",
	} {
		if _, err := parseVerdict(content); err == nil {
			t.Fatalf("expected parse error for %q", content)
		}
	}
}

func TestGenerateConclusionProducesVerdictTurn(t *testing.T) {
	t.Parallel()

	client := &fakeLLM{responses: []string{wellFormedConclusion}}
	m := newTestModerator(client)

	turn := m.GenerateConclusion(context.Background(), Context{})

	if turn.Verdict == nil {
		t.Fatal("conclusion turn must carry a verdict")
	}
	if !turn.ConversationEnded {
		t.Fatal("conclusion must mark the conversation ended")
	}
	if !strings.Contains(turn.Content, "구독") {
		t.Fatalf("rendered verdict should name the recommendation: %q", turn.Content)
	}
}

func TestGenerateConclusionFallsBackToBalancedVerdict(t *testing.T) {
	t.Parallel()

	m := newTestModerator(&fakeLLM{})
	turn := m.GenerateConclusion(context.Background(), Context{})

	if turn.Verdict == nil || !turn.Verdict.WellFormed() {
		t.Fatalf("fallback verdict must be well-formed: %+v", turn.Verdict)
	}
	if turn.Verdict.BuyPercent != 50 || turn.Verdict.SubscribePercent != 50 {
		t.Fatalf("fallback should be balanced, got %d/%d", turn.Verdict.BuyPercent, turn.Verdict.SubscribePercent)
	}
	if !turn.ConversationEnded {
		t.Fatal("fallback conclusion must still end the conversation")
	}
}

func TestGenerateConclusionFallsBackOnUnparsableOutput(t *testing.T) {
	t.Parallel()

	client := &fakeLLM{responses: []string{"그냥 구독이 좋을 것 같긴해"}}
	m := newTestModerator(client)

	turn := m.GenerateConclusion(context.Background(), Context{})
	if turn.Verdict == nil || !turn.Verdict.WellFormed() {
		t.Fatalf("unparsable output must yield a well-formed fallback: %+v", turn.Verdict)
	}
}

func TestBuildConclusionPromptComparesTotals(t *testing.T) {
	t.Parallel()

	m := newTestModerator(&fakeLLM{})
	prompt := m.buildConclusionPrompt(Context{}, testProduct())

	if !strings.Contains(prompt, "2296800") {
		t.Fatalf("6-year total missing from prompt:\n%s", prompt)
	}
	// 2296800 - 1890000
	if !strings.Contains(prompt, "406800") {
		t.Fatalf("price difference missing from prompt:\n%s", prompt)
	}
}
