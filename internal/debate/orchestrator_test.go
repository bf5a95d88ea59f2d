package debate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appliance-labs/debate-platform/internal/agent"
	"github.com/appliance-labs/debate-platform/internal/llm"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/internal/retrieval"
	"github.com/appliance-labs/debate-platform/internal/store"
	"github.com/appliance-labs/debate-platform/pkg/logger"
)

// scriptLLM replays responses in order; when exhausted or failing it errors.
type scriptLLM struct {
	mu        sync.Mutex
	responses []string
	next      int
	failAll   bool
}

func (s *scriptLLM) Complete(_ context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll || s.next >= len(s.responses) {
		return nil, errors.New("provider unavailable")
	}
	content := s.responses[s.next]
	s.next++
	return &llm.CompletionResponse{Content: content}, nil
}

func (s *scriptLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := cb(resp.Content, 0); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *scriptLLM) Name() string            { return "script" }
func (s *scriptLLM) SupportsStreaming() bool { return false }

type nilCatalog struct{}

func (nilCatalog) Search(_ context.Context, _ string, _ map[string]string) ([]retrieval.Match, error) {
	return nil, nil
}

func (nilCatalog) GetProduct(_ context.Context, _ string) (*retrieval.Product, error) {
	return nil, nil
}

// recordingStore decorates the memory store to observe archives and inject
// flush failures.
type recordingStore struct {
	store.Store
	mu        sync.Mutex
	archived  [][]model.Turn
	failFlush bool
}

func (r *recordingStore) AppendBatch(ctx context.Context, sessionID, batchID string, turns []model.Turn) error {
	r.mu.Lock()
	fail := r.failFlush
	r.mu.Unlock()
	if fail {
		return errors.New("store unavailable")
	}
	return r.Store.AppendBatch(ctx, sessionID, batchID, turns)
}

func (r *recordingStore) Archive(ctx context.Context, sessionID string, transcript []model.Turn) (string, error) {
	r.mu.Lock()
	cp := make([]model.Turn, len(transcript))
	copy(cp, transcript)
	r.archived = append(r.archived, cp)
	r.mu.Unlock()
	return r.Store.Archive(ctx, sessionID, transcript)
}

func (r *recordingStore) archiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.archived)
}

// debateScript is one full round: purchase, subscription, moderator question,
// quick replies.
func debateScript(round string) []string {
	return []string{
		"구매가 이득이긴해 (" + round + ")",
		"구독이 합리적이긴해 (" + round + ")",
		"어떤 점이 더 중요하긴해? (" + round + ")",
		"1. 비용이요\n2. 서비스요",
	}
}

func newTestOrchestrator(t *testing.T, client llm.Client, durable store.Store, opts Options) *Orchestrator {
	t.Helper()
	log := logger.NewNop()
	catalog := nilCatalog{}

	purchase := agent.NewAdvocate(agent.PurchasePersona(), client, catalog, log)
	subscribe := agent.NewAdvocate(agent.SubscriptionPersona(), client, catalog, log)
	moderator := agent.NewModerator(client, catalog, agent.NewKeywordTagger(), log)

	if opts.TurnDelay == 0 {
		opts.TurnDelay = time.Millisecond
	}
	sessions := NewSessions(durable, log)
	return NewOrchestrator(sessions, purchase, subscribe, moderator, durable, nil, opts, log)
}

func initSession(t *testing.T, orch *Orchestrator, welcome string) *model.Session {
	t.Helper()
	session, turn := orch.InitSession(context.Background(), "wm-001", nil)
	if turn.Agent != model.AgentModerator {
		t.Fatalf("welcome must come from the moderator, got %q", turn.Agent)
	}
	if welcome != "" && !strings.Contains(turn.Content, welcome) {
		t.Fatalf("unexpected welcome %q", turn.Content)
	}
	return session
}

func sendMessage(t *testing.T, orch *Orchestrator, sessionID, message string) ([]model.Turn, model.State) {
	t.Helper()
	turns, state, err := orch.ProcessMessage(context.Background(), &model.ChatMessageRequest{
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	return turns, state
}

func TestInitSessionCreatesWelcomeState(t *testing.T) {
	t.Parallel()

	client := &scriptLLM{responses: []string{"반갑긴해! 토론 시작할래말래?"}}
	durable := store.NewMemoryStore()
	orch := newTestOrchestrator(t, client, durable, Options{})

	session := initSession(t, orch, "반갑긴해")

	if session.State != model.StateWelcome {
		t.Fatalf("expected welcome state, got %q", session.State)
	}
	if rec, err := durable.GetSession(context.Background(), session.SessionID); err != nil || rec == nil {
		t.Fatalf("durable record missing: %v", err)
	}
	if len(session.History) != 1 {
		t.Fatalf("welcome turn not recorded, history=%d", len(session.History))
	}
}

func TestStartSentinelRunsOpeningDebate(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	turns, state := sendMessage(t, orch, session.SessionID, model.StartSentinel)

	if state != model.StateOngoingDebate {
		t.Fatalf("expected ongoing state after opening, got %q", state)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 opening turns, got %d", len(turns))
	}
	if turns[0].Agent != model.AgentPurchase ||
		turns[1].Agent != model.AgentSubscription ||
		turns[2].Agent != model.AgentModerator {
		t.Fatalf("wrong turn order: %s, %s, %s", turns[0].Agent, turns[1].Agent, turns[2].Agent)
	}
	if !strings.Contains(turns[2].Content, "중요하긴해") {
		t.Fatalf("moderator question missing: %q", turns[2].Content)
	}
	// Conclude action must always be reachable from the moderator turn.
	last := turns[2].QuickResponses[len(turns[2].QuickResponses)-1]
	if last != model.ConcludeSentinel {
		t.Fatalf("conclude option missing: %v", turns[2].QuickResponses)
	}
}

func TestStartControlMessageRecordsNoUserTurn(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	before := len(session.History)
	turns, state, err := orch.ProcessMessage(context.Background(), &model.ChatMessageRequest{
		SessionID:   session.SessionID,
		MessageType: model.MessageTypeStart,
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if state != model.StateOngoingDebate {
		t.Fatalf("expected ongoing state, got %q", state)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 opening turns, got %d", len(turns))
	}
	if appended := len(session.History) - before; appended != 3 {
		t.Fatalf("start action must append exactly the 3 agent turns, appended %d", appended)
	}
	for _, turn := range session.History {
		if turn.Content == "" {
			t.Fatalf("empty content stored in transcript: %+v", turn)
		}
		if turn.Role == model.RoleUser {
			t.Fatalf("control message stored as a user turn: %+v", turn)
		}
	}
}

func TestNonStartMessageRepromptsInWelcome(t *testing.T) {
	t.Parallel()

	client := &scriptLLM{responses: []string{"반갑긴해!"}}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	turns, state := sendMessage(t, orch, session.SessionID, "안녕하세요")

	if state != model.StateWelcome {
		t.Fatalf("state must not advance, got %q", state)
	}
	if len(turns) != 1 {
		t.Fatalf("expected a single re-prompt, got %d turns", len(turns))
	}
	if len(turns[0].QuickResponses) != 1 || turns[0].QuickResponses[0] != model.StartSentinel {
		t.Fatalf("re-prompt must offer the start action: %v", turns[0].QuickResponses)
	}
}

func TestOngoingDebateTurnOrderAndCausality(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	script = append(script, debateScript("round2")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)

	turns, state := sendMessage(t, orch, session.SessionID, "비용이 부담돼요")

	if state != model.StateOngoingDebate {
		t.Fatalf("expected ongoing state, got %q", state)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []string{model.AgentPurchase, model.AgentSubscription, model.AgentModerator} {
		if turns[i].Agent != want {
			t.Fatalf("turn %d: expected %s, got %s", i, want, turns[i].Agent)
		}
	}
	if !strings.Contains(turns[0].Content, "round2") {
		t.Fatalf("second round should use fresh completions: %q", turns[0].Content)
	}
}

func TestModeratorQuestionsAreRemembered(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	turns, _ := sendMessage(t, orch, session.SessionID, model.StartSentinel)

	question := turns[2].Content
	if !session.HasAskedQuestion(question) {
		t.Fatalf("moderator question not remembered: %q", question)
	}
}

func TestConcludeSentinelRendersVerdictAndArchives(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	script = append(script, `[최종 결론]: 구매
[적합도]: 구매 70%, 구독 30%
[핵심 근거 3줄]:
- 사용 빈도가 높습니다
- 장기 거주 예정입니다
- 총비용이 더 낮습니다
[다음 단계 제안 1줄]: 매장에서 구매 상담을 받아보세요`)
	client := &scriptLLM{responses: script}
	durable := &recordingStore{Store: store.NewMemoryStore()}
	orch := newTestOrchestrator(t, client, durable, Options{})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)

	turns, state := sendMessage(t, orch, session.SessionID, model.ConcludeSentinel)

	if state != model.StateConclusion {
		t.Fatalf("expected conclusion state, got %q", state)
	}
	if len(turns) != 1 || turns[0].Verdict == nil {
		t.Fatalf("expected a single verdict turn, got %+v", turns)
	}
	if turns[0].Verdict.Recommendation != model.RecommendBuy {
		t.Fatalf("wrong recommendation %q", turns[0].Verdict.Recommendation)
	}
	if !turns[0].ConversationEnded {
		t.Fatal("conclusion must end the conversation")
	}
	if durable.archiveCount() != 1 {
		t.Fatalf("transcript not archived, count=%d", durable.archiveCount())
	}

	batches, err := durable.ListBatches(context.Background(), session.SessionID)
	if err != nil || len(batches) == 0 {
		t.Fatalf("conclusion must flush the transcript: %v, %d batches", err, len(batches))
	}
}

func TestMessagesAfterConclusionReturnEndedNotice(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	script = append(script, `[최종 결론]: 구매
[적합도]: 구매 60%, 구독 40%
[핵심 근거 3줄]:
- 근거 하나
- 근거 둘
- 근거 셋
[다음 단계 제안 1줄]: 매장 방문`)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)
	sendMessage(t, orch, session.SessionID, model.ConcludeSentinel)

	turns, state := sendMessage(t, orch, session.SessionID, "그래도 더 얘기하고 싶어요")

	if state != model.StateConclusion {
		t.Fatalf("conclusion state must be terminal, got %q", state)
	}
	if len(turns) != 1 || !turns[0].ConversationEnded {
		t.Fatalf("expected the ended notice, got %+v", turns)
	}
	if !strings.Contains(turns[0].Content, "종료") {
		t.Fatalf("unexpected notice %q", turns[0].Content)
	}
}

func TestPostConclusionNoticesAreNotRecorded(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	script = append(script, `[최종 결론]: 구독
[적합도]: 구매 30%, 구독 70%
[핵심 근거 3줄]:
- 근거 하나
- 근거 둘
- 근거 셋
[다음 단계 제안 1줄]: 구독 신청`)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)
	sendMessage(t, orch, session.SessionID, model.ConcludeSentinel)

	frozen := len(session.History)
	for i := 0; i < 3; i++ {
		turns, _ := sendMessage(t, orch, session.SessionID, "한 번만 더 물어볼게요")
		if len(turns) != 1 || !turns[0].ConversationEnded {
			t.Fatalf("expected the ended notice, got %+v", turns)
		}
	}

	if len(session.History) != frozen {
		t.Fatalf("terminal transcript grew from %d to %d turns", frozen, len(session.History))
	}
}

func TestStateNeverMovesBackward(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	script = append(script, debateScript("round2")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	order := map[model.State]int{
		model.StateWelcome:       0,
		model.StateInitialDebate: 1,
		model.StateOngoingDebate: 2,
		model.StateConclusion:    3,
	}

	prev := order[session.State]
	for _, msg := range []string{model.StartSentinel, "케어서비스가 궁금해요", model.StartSentinel} {
		_, state := sendMessage(t, orch, session.SessionID, msg)
		if order[state] < prev {
			t.Fatalf("state moved backward to %q", state)
		}
		prev = order[state]
	}
}

func TestDebateContinuesWhenAllProvidersFail(t *testing.T) {
	t.Parallel()

	client := &scriptLLM{failAll: true}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	turns, state := sendMessage(t, orch, session.SessionID, model.StartSentinel)

	if state != model.StateOngoingDebate {
		t.Fatalf("debate must keep moving on fallback turns, got state %q", state)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 fallback turns, got %d", len(turns))
	}
	for _, turn := range turns {
		if turn.Err == "" {
			t.Fatalf("fallback turn missing error tag: %+v", turn)
		}
		if turn.Content == "" {
			t.Fatal("fallback turn must carry persona content")
		}
	}
}

func TestPeriodicFlushPersistsBatchesAsync(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	script = append(script, debateScript("round2")...)
	client := &scriptLLM{responses: script}
	durable := store.NewMemoryStore()
	orch := newTestOrchestrator(t, client, durable, Options{FlushInterval: 2})
	session := initSession(t, orch, "")

	before := session.ConversationID
	sendMessage(t, orch, session.SessionID, model.StartSentinel)
	sendMessage(t, orch, session.SessionID, "비용이 부담돼요") // 2nd message triggers the flush

	if session.ConversationID == before {
		t.Fatal("conversation id must rotate on flush")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		batches, err := durable.ListBatches(context.Background(), session.SessionID)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(batches) > 0 {
			if batches[0].BatchID != before {
				t.Fatalf("batch keyed by %q, want pre-flush conversation id %q", batches[0].BatchID, before)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("flush never reached the durable store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFlushFailureDoesNotBreakTheDebate(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	script = append(script, debateScript("round2")...)
	client := &scriptLLM{responses: script}
	durable := &recordingStore{Store: store.NewMemoryStore(), failFlush: true}
	orch := newTestOrchestrator(t, client, durable, Options{FlushInterval: 2})
	session := initSession(t, orch, "")

	sendMessage(t, orch, session.SessionID, model.StartSentinel)
	turns, state := sendMessage(t, orch, session.SessionID, "비용이 부담돼요")

	if state != model.StateOngoingDebate || len(turns) != 3 {
		t.Fatalf("debate must survive flush failures: state=%q turns=%d", state, len(turns))
	}
}

func TestEndSessionFlushesAndEvicts(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	durable := store.NewMemoryStore()
	orch := newTestOrchestrator(t, client, durable, Options{})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)

	if err := orch.EndSession(context.Background(), session.SessionID); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	if orch.Sessions().Len() != 0 {
		t.Fatal("session must be evicted from memory")
	}
	batches, err := durable.ListBatches(context.Background(), session.SessionID)
	if err != nil || len(batches) == 0 {
		t.Fatalf("unflushed turns lost on end: %v, %d batches", err, len(batches))
	}
}

func TestCleanupIdlePersistsBeforeEvicting(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	durable := store.NewMemoryStore()
	orch := newTestOrchestrator(t, client, durable, Options{IdleThreshold: time.Nanosecond})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)

	time.Sleep(time.Millisecond)
	if reaped := orch.CleanupIdle(context.Background()); reaped != 1 {
		t.Fatalf("expected 1 reaped session, got %d", reaped)
	}
	if orch.Sessions().Len() != 0 {
		t.Fatal("reaped session still in memory")
	}

	batches, err := durable.ListBatches(context.Background(), session.SessionID)
	if err != nil || len(batches) == 0 {
		t.Fatalf("reaper must persist before evicting: %v, %d batches", err, len(batches))
	}
}

func TestReapedSessionArchivedByTaskWorker(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	durable := &recordingStore{Store: store.NewMemoryStore()}
	orch := newTestOrchestrator(t, client, durable, Options{IdleThreshold: time.Nanosecond})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)

	time.Sleep(time.Millisecond)
	orch.CleanupIdle(context.Background())

	if handled := orch.ProcessQueuedTasks(context.Background()); handled != 1 {
		t.Fatalf("expected 1 queued archive task, handled %d", handled)
	}
	if durable.archiveCount() != 1 {
		t.Fatalf("reaped transcript not archived, count=%d", durable.archiveCount())
	}
	if len(durable.archived[0]) != len(session.History) {
		t.Fatalf("archive incomplete: %d turns, want %d", len(durable.archived[0]), len(session.History))
	}
}

func TestReapedSessionRehydratesFromStore(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	durable := store.NewMemoryStore()
	orch := newTestOrchestrator(t, client, durable, Options{IdleThreshold: time.Nanosecond})
	session := initSession(t, orch, "")
	sendMessage(t, orch, session.SessionID, model.StartSentinel)
	historyLen := len(session.History)

	time.Sleep(time.Millisecond)
	orch.CleanupIdle(context.Background())

	revived, err := orch.Sessions().Get(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("rehydration failed: %v", err)
	}
	if revived.State != model.StateOngoingDebate {
		t.Fatalf("state not restored, got %q", revived.State)
	}
	if len(revived.History) != historyLen {
		t.Fatalf("history not restored: got %d turns, want %d", len(revived.History), historyLen)
	}
}

func TestHistorySnapshotNeverObservesHalfRounds(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("r1")...)
	script = append(script, debateScript("r2")...)
	script = append(script, debateScript("r3")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	// Each client message appends a user turn plus a full three-agent round
	// under one lock hold, so a snapshot sees 1, 5, 9 or 13 turns.
	valid := map[int]bool{1: true, 5: true, 9: true, 13: true}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			resp, err := orch.History(context.Background(), session.SessionID)
			if err != nil {
				t.Errorf("snapshot failed: %v", err)
				return
			}
			if !valid[len(resp.History)] {
				t.Errorf("snapshot caught a half-appended round: %d turns", len(resp.History))
				return
			}
		}
	}()

	sendMessage(t, orch, session.SessionID, model.StartSentinel)
	sendMessage(t, orch, session.SessionID, "비용이 부담돼요")
	sendMessage(t, orch, session.SessionID, "케어서비스도 궁금해요")
	close(stop)
	wg.Wait()
}

func TestUnknownSessionReturnsNotFound(t *testing.T) {
	t.Parallel()

	orch := newTestOrchestrator(t, &scriptLLM{}, store.NewMemoryStore(), Options{})

	_, _, err := orch.ProcessMessage(context.Background(), &model.ChatMessageRequest{
		SessionID: "b6f3dd48-0000-0000-0000-000000000000",
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

// collectEmitter records frames; it can be set to fail after N emits to
// simulate a client disconnect.
type collectEmitter struct {
	mu        sync.Mutex
	frames    []model.StreamFrame
	failAfter int
}

func (c *collectEmitter) Emit(frame model.StreamFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter > 0 && len(c.frames) >= c.failAfter {
		return errors.New("client disconnected")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *collectEmitter) byType(frameType string) []model.StreamFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.StreamFrame
	for _, f := range c.frames {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

func TestProcessMessageStreamEmitsFramePairs(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	emitter := &collectEmitter{}
	state, err := orch.ProcessMessageStream(context.Background(), &model.ChatMessageRequest{
		SessionID: session.SessionID,
		Message:   model.StartSentinel,
	}, emitter)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if state != model.StateOngoingDebate {
		t.Fatalf("unexpected state %q", state)
	}

	streams := emitter.byType(model.FrameStream)
	messages := emitter.byType(model.FrameMessage)
	if len(streams) != 3 || len(messages) != 3 {
		t.Fatalf("expected 3 stream and 3 message frames, got %d/%d", len(streams), len(messages))
	}
	if messages[0].Data == nil || messages[0].Data.Agent != model.AgentPurchase {
		t.Fatalf("first message frame must carry the purchase turn: %+v", messages[0])
	}
	if streams[1].Agent != model.AgentSubscription || streams[1].Content == "" {
		t.Fatalf("stream frame missing agent attribution: %+v", streams[1])
	}
}

func TestStreamingSurvivesClientDisconnect(t *testing.T) {
	t.Parallel()

	script := append([]string{"반갑긴해!"}, debateScript("opening")...)
	client := &scriptLLM{responses: script}
	orch := newTestOrchestrator(t, client, store.NewMemoryStore(), Options{})
	session := initSession(t, orch, "")

	emitter := &collectEmitter{failAfter: 2} // drops mid-debate
	state, err := orch.ProcessMessageStream(context.Background(), &model.ChatMessageRequest{
		SessionID: session.SessionID,
		Message:   model.StartSentinel,
	}, emitter)
	if err != nil {
		t.Fatalf("disconnect must not fail orchestration: %v", err)
	}
	if state != model.StateOngoingDebate {
		t.Fatalf("orchestration must complete after disconnect, got %q", state)
	}

	// All three agent turns plus user and welcome turns are in the transcript
	// even though the client saw only two frames.
	if len(session.History) != 5 {
		t.Fatalf("transcript truncated after disconnect: %d turns", len(session.History))
	}
}
