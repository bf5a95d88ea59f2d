package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/llm"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/internal/retrieval"
	"github.com/appliance-labs/debate-platform/pkg/logger"
)

// Moderator is the neutral agent: it welcomes, summarizes both advocates,
// probes unexplored topics and renders the final verdict.
type Moderator struct {
	base
	tagger TopicTagger
}

// NewModerator builds the moderator over a topic tagger.
func NewModerator(client llm.Client, catalog retrieval.Client, tagger TopicTagger, log *logger.Logger) *Moderator {
	return &Moderator{
		base:   newBase(ModeratorPersona(), client, catalog, log),
		tagger: tagger,
	}
}

var fallbackQuickReplies = [][2]string{
	{"비용이 부담스러워요", "장기적으로 경제적인 게 중요해요"},
	{"케어서비스가 필요해요", "최신기술을 원해요"},
	{"사용빈도가 높아요", "가끔씩만 쓸 것 같아요"},
	{"이사할 가능성이 있어요", "안정적으로 쓸 것 같아요"},
}

// GenerateWelcome greets with no history and proposes starting the debate.
func (m *Moderator) GenerateWelcome(ctx context.Context) model.Turn {
	system := m.persona.SystemPrompt + `
사용자를 환영하고, 구매와 구독이 애매하지만 이 중 최적의 선택을 도와드리겠다고 안내하세요.
"토론을 시작할까요?"라는 질문으로 마무리하세요.
가능한 한 간결하게 2문장 이내로 말하세요.
`
	messages := []llm.ChatMessage{{Role: "user", Content: "챗봇을 시작합니다."}}

	content, err := m.complete(ctx, messages, system, 0.5)
	var turn model.Turn
	if err != nil {
		turn = m.newTurn("안녕하긴해! 구매할지 구독할지 애매하긴해. 제가 도와줄 수 있긴해. 토론을 시작할래말래?")
		turn.Err = err.Error()
	} else {
		turn = m.newTurn(content)
	}
	turn.QuickResponses = []string{model.StartSentinel}
	return turn
}

// SummarizeAndQuestion synthesizes the advocates' latest statements and asks
// one new question targeting an unexplored topic, avoiding questions already
// posed in this session.
func (m *Moderator) SummarizeAndQuestion(ctx context.Context, c Context) model.Turn {
	product := m.productContext(ctx, c.ProductID)
	explored := exploredTopics(m.tagger, c.History)
	suggested := suggestTopics(explored)

	prompt := m.buildQuestionPrompt(c, product, suggested)
	system := m.persona.SystemPrompt + `
필수 규칙:
- 구매봇과 구독봇의 주장 요약 없이 바로 사용자에게 질문하세요
- 정확히 1문장으로만 응답하세요
- 사용자가 이미 답변한 주제는 피하고 아직 답변하지 않은 주제에 대해 질문하세요
`

	content, err := m.complete(ctx, []llm.ChatMessage{{Role: "user", Content: prompt}}, system, m.persona.Temperature)
	if err != nil {
		turn := m.fallbackTurn(err)
		turn.QuickResponses = m.withConcludeOption(fallbackQuickReplies[0][0], fallbackQuickReplies[0][1])
		return turn
	}

	question := strings.TrimSpace(content)
	if question == "" {
		question = model.FillerContent
	}
	// Style exactly once, before the guard. The guard compares, remembers
	// and stores the same string; restyling would redraw the random suffix
	// and let a duplicate slip past.
	question = applyHouseStyle(question)

	// Hard guard on literal duplicates: one stronger retry, then a
	// disambiguating clause.
	if containsQuestion(c.AskedQuestions, question) {
		retryPrompt := prompt + fmt.Sprintf("\n\n방금 생성한 질문 \"%s\"은(는) 이미 했던 질문입니다. 완전히 다른 주제로 새로운 질문을 만드세요.", question)
		retry, rerr := m.complete(ctx, []llm.ChatMessage{{Role: "user", Content: retryPrompt}}, system, m.persona.Temperature)
		if rerr == nil && strings.TrimSpace(retry) != "" && !containsQuestion(c.AskedQuestions, applyHouseStyle(strings.TrimSpace(retry))) {
			question = applyHouseStyle(strings.TrimSpace(retry))
		} else {
			for containsQuestion(c.AskedQuestions, question) {
				question += " 다른 관점에서도 듣고 싶긴해"
			}
		}
	}

	turn := m.styledTurn(question)

	first, second := m.generateQuickReplies(ctx, turn.Content)
	turn.QuickResponses = m.withConcludeOption(first, second)
	return turn
}

func (m *Moderator) buildQuestionPrompt(c Context, product *retrieval.Product, suggested []string) string {
	var sb strings.Builder

	if len(c.History) > 0 {
		sb.WriteString("[전체 대화 내역]\n")
		start := len(c.History) - 10
		if start < 0 {
			start = 0
		}
		for _, turn := range c.History[start:] {
			speaker := "사용자"
			if turn.Role != model.RoleUser {
				speaker = displayName(turn.Agent)
			}
			fmt.Fprintf(&sb, "%s: %s\n", speaker, turn.Content)
		}
	}

	writeRecentArguments(&sb, c.History, model.AgentPurchase, "\n[구매봇 최근 주장]\n")
	writeRecentArguments(&sb, c.History, model.AgentSubscription, "\n[구독봇 최근 주장]\n")

	if product != nil {
		sb.WriteString("\n[현재 논의 제품]\n")
		fmt.Fprintf(&sb, "- 제품명: %s\n", product.Name)
		fmt.Fprintf(&sb, "- 구매가격: %d원\n", product.PurchasePrice)
		if product.SubscriptionPrice6Y > 0 {
			fmt.Fprintf(&sb, "- 6년 구독료: 월 %d원\n", product.SubscriptionPrice6Y)
		}
	}

	if len(c.AskedQuestions) > 0 {
		sb.WriteString("\n[이미 했던 질문들 - 절대 반복하지 마세요]\n")
		for _, q := range c.AskedQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}

	fmt.Fprintf(&sb, "\n아직 다루지 않은 주제: %s\n", strings.Join(suggested, ", "))
	sb.WriteString(`
필수 응답 형식:
1. 이전 질문과 완전히 다른 새로운 질문을 하세요
2. 답변은 정확히 1문장으로만 하세요
3. 아직 답변하지 않은 주제에 대해 구체적으로 질문하세요
`)
	return sb.String()
}

func writeRecentArguments(sb *strings.Builder, history []model.Turn, agent, header string) {
	var recent []string
	for _, turn := range history {
		if turn.Agent == agent {
			recent = append(recent, turn.Content)
		}
	}
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	if len(recent) == 0 {
		return
	}
	sb.WriteString(header)
	for _, arg := range recent {
		fmt.Fprintf(sb, "- %s\n", arg)
	}
}

var quickReplyLine = regexp.MustCompile(`^(?:\d+[.)]|[-•])\s*(.+)$`)

// generateQuickReplies asks a secondary completion for exactly two expected
// user answers to the question just posed. Falls back to a static pair when
// the numbered-list format cannot be parsed.
func (m *Moderator) generateQuickReplies(ctx context.Context, question string) (string, string) {
	prompt := fmt.Sprintf(`안내봇이 방금 한 질문: "%s"

이 질문에 대해 사용자가 어떻게 답변할지 예상하여 정확히 2가지 응답 옵션만 생성해주세요.

규칙:
- 구매나 구독에 대한 선호도를 드러내지 말고 사용자의 예상되는 상황에 대해서만 작성하세요
- 각 응답은 1마디로 아주 짧게 작성하세요

응답 형식 (반드시 이 형식을 따라주세요):
1. [첫 번째 응답]
2. [두 번째 응답]`, question)

	system := `당신은 사용자의 구매/구독 결정을 돕는 AI 어시스턴트입니다.
안내봇의 질문에 대해 사용자가 어떻게 답변할지 예상하여 정확히 2가지 응답 옵션만 생성해주세요.
반드시 "1. [응답]" "2. [응답]" 형식으로만 작성하세요.`

	content, err := m.complete(ctx, []llm.ChatMessage{{Role: "user", Content: prompt}}, system, 0.3)
	if err != nil {
		m.log.Warn("quick reply generation failed", zap.Error(err))
		pair := fallbackQuickReplies[0]
		return pair[0], pair[1]
	}

	replies := parseQuickReplies(content)
	if len(replies) >= 2 {
		return replies[0], replies[1]
	}

	pair := fallbackQuickReplies[len(question)%len(fallbackQuickReplies)]
	if len(replies) == 1 {
		return replies[0], pair[1]
	}
	return pair[0], pair[1]
}

func parseQuickReplies(content string) []string {
	var replies []string
	for _, line := range strings.Split(content, "\n") {
		match := quickReplyLine.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		reply := strings.Trim(strings.TrimSpace(match[1]), "[]")
		if reply != "" && !contains(replies, reply) {
			replies = append(replies, reply)
		}
	}
	return replies
}

func (m *Moderator) withConcludeOption(replies ...string) []string {
	return append(replies, model.ConcludeSentinel)
}

func containsQuestion(asked []string, q string) bool {
	return contains(asked, q)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
