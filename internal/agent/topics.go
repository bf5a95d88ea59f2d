package agent

import (
	"strings"

	"github.com/appliance-labs/debate-platform/internal/model"
)

// Topic is one axis of the buy-vs-subscribe decision.
type Topic string

const (
	TopicCost        Topic = "초기비용"
	TopicCare        Topic = "케어서비스"
	TopicReplacement Topic = "교체주기"
	TopicUsage       Topic = "사용패턴"
	TopicEconomics   Topic = "경제성"
	TopicOwnership   Topic = "소유권"
	TopicTech        Topic = "최신기술"
	TopicRelocation  Topic = "환경변화"
)

// topicDisplayNames map topics to the phrasing used in moderator prompts.
var topicDisplayNames = map[Topic]string{
	TopicCost:        "초기 비용 부담",
	TopicCare:        "케어 서비스 필요성",
	TopicReplacement: "제품 교체 주기",
	TopicUsage:       "사용 패턴과 라이프스타일",
	TopicEconomics:   "장기 경제성",
	TopicOwnership:   "소유권의 가치",
	TopicTech:        "최신 기술 선호도",
	TopicRelocation:  "이사나 환경 변화 가능성",
}

// allTopics fixes iteration order for deterministic suggestions.
var allTopics = []Topic{
	TopicCost, TopicCare, TopicReplacement, TopicUsage,
	TopicEconomics, TopicOwnership, TopicTech, TopicRelocation,
}

// TopicTagger classifies a user utterance into debate topics. Pluggable so
// the keyword matcher can later be swapped for an embedding classifier
// without touching the orchestrator.
type TopicTagger interface {
	Tag(utterance string) []Topic
}

// KeywordTagger is the rule-based tagger: case-insensitive substring match
// against per-topic keyword sets.
type KeywordTagger struct {
	keywords map[Topic][]string
}

// NewKeywordTagger builds the tagger with the built-in keyword sets.
func NewKeywordTagger() *KeywordTagger {
	return &KeywordTagger{keywords: map[Topic][]string{
		TopicCost:        {"초기", "비용", "부담", "일시불", "할부", "현금", "월 납부", "부담스러워", "부담돼"},
		TopicCare:        {"케어", "서비스", "as", "관리", "점검", "고장", "보증", "걱정돼"},
		TopicReplacement: {"교체", "최신", "신제품", "업그레이드", "중고", "성능"},
		TopicUsage:       {"사용", "패턴", "라이프", "생활", "가구", "주말", "매일", "사용빈도", "가끔씩만", "쓸 것 같아"},
		TopicEconomics:   {"경제", "절약", "비교", "총비용", "전기료", "감가상각", "투자", "장기적으로", "경제적인"},
		TopicOwnership:   {"소유", "내 것", "자산", "짐", "커스터마이징", "소유권"},
		TopicTech:        {"최신 기능", "ai 기능", "스마트 기능", "기존 모델", "최신기술", "기능이"},
		TopicRelocation:  {"이사", "해외", "전세", "자가", "이사할", "환경변화", "안정적으로"},
	}}
}

// Tag returns every topic whose keyword set matches the utterance.
func (t *KeywordTagger) Tag(utterance string) []Topic {
	content := strings.ToLower(utterance)
	var tagged []Topic
	for _, topic := range allTopics {
		for _, word := range t.keywords[topic] {
			if strings.Contains(content, word) {
				tagged = append(tagged, topic)
				break
			}
		}
	}
	return tagged
}

// exploredTopics tags the user's own utterances across the transcript.
func exploredTopics(tagger TopicTagger, history []model.Turn) map[Topic]bool {
	explored := make(map[Topic]bool)
	for _, turn := range history {
		if turn.Role != model.RoleUser {
			continue
		}
		for _, topic := range tagger.Tag(turn.Content) {
			explored[topic] = true
		}
	}
	return explored
}

// suggestTopics picks up to three unexplored topics for the next question.
// When everything has been covered it falls back to core topics so the
// conversation can continue.
func suggestTopics(explored map[Topic]bool) []string {
	var suggested []string
	for _, topic := range allTopics {
		if !explored[topic] {
			suggested = append(suggested, topicDisplayNames[topic])
			if len(suggested) == 3 {
				return suggested
			}
		}
	}
	if len(suggested) == 0 {
		return []string{
			topicDisplayNames[TopicCost],
			topicDisplayNames[TopicEconomics],
			topicDisplayNames[TopicUsage],
		}
	}
	return suggested
}
