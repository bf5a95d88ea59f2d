package agent

import (
	"testing"

	"github.com/appliance-labs/debate-platform/internal/model"
)

func TestKeywordTaggerMatchesCostUtterance(t *testing.T) {
	t.Parallel()

	tagger := NewKeywordTagger()
	topics := tagger.Tag("비용이 부담돼요")

	found := false
	for _, topic := range topics {
		if topic == TopicCost {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %v in %v", TopicCost, topics)
	}
}

func TestKeywordTaggerNoMatch(t *testing.T) {
	t.Parallel()

	tagger := NewKeywordTagger()
	if topics := tagger.Tag("그냥 고민이에요"); len(topics) != 0 {
		t.Fatalf("expected no topics, got %v", topics)
	}
}

func TestExploredTopicsReadsUserTurnsOnly(t *testing.T) {
	t.Parallel()

	history := []model.Turn{
		{Agent: model.AgentUser, Role: model.RoleUser, Content: "초기비용이 부담돼요"},
		{Agent: model.AgentPurchase, Role: model.RoleAssistant, Content: "케어서비스는 필요 없긴해"},
	}

	explored := exploredTopics(NewKeywordTagger(), history)
	if !explored[TopicCost] {
		t.Fatal("user cost utterance not recorded")
	}
	if explored[TopicCare] {
		t.Fatal("agent utterance must not mark topics explored")
	}
}

func TestSuggestTopicsSkipsExplored(t *testing.T) {
	t.Parallel()

	suggested := suggestTopics(map[Topic]bool{TopicCost: true, TopicCare: true})
	if len(suggested) == 0 || len(suggested) > 3 {
		t.Fatalf("expected 1-3 suggestions, got %v", suggested)
	}
	for _, name := range suggested {
		if name == topicDisplayNames[TopicCost] || name == topicDisplayNames[TopicCare] {
			t.Fatalf("explored topic suggested: %v", suggested)
		}
	}
}

func TestSuggestTopicsFallsBackWhenAllExplored(t *testing.T) {
	t.Parallel()

	explored := make(map[Topic]bool, len(allTopics))
	for _, topic := range allTopics {
		explored[topic] = true
	}

	if suggested := suggestTopics(explored); len(suggested) == 0 {
		t.Fatal("expected core-topic fallback when everything is explored")
	}
}
