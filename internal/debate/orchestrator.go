package debate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/agent"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/internal/nats"
	"github.com/appliance-labs/debate-platform/internal/store"
	"github.com/appliance-labs/debate-platform/pkg/logger"
	"github.com/appliance-labs/debate-platform/pkg/metrics"
)

const (
	startPromptContent   = "토론을 시작하려면 아래 버튼을 눌러달라긴해!"
	conversationEndedMsg = "대화가 종료되었습니다. 새로운 상담을 원하시면 페이지를 새로고침해주세요."
)

// Emitter receives orchestration output incrementally. The SSE handler is the
// production implementation; tests supply their own.
type Emitter interface {
	Emit(frame model.StreamFrame) error
}

// Options tunes orchestration behavior.
type Options struct {
	// TurnDelay paces streamed agent turns apart.
	TurnDelay time.Duration
	// FlushInterval persists the transcript every Nth client message.
	FlushInterval int
	// IdleThreshold ages out inactive sessions.
	IdleThreshold time.Duration
}

// Orchestrator sequences the three agents through a debate session. Each
// client message is answered by the purchase advocate, then the subscription
// advocate rebutting it, then the moderator; the three steps are strictly
// ordered and each conditions on its predecessors.
type Orchestrator struct {
	sessions  *Sessions
	purchase  agent.Debater
	subscribe agent.Debater
	moderator *agent.Moderator
	durable   store.Store
	feed      *nats.Feed
	opts      Options
	log       *logger.Logger

	mu    sync.Mutex
	locks map[string]*sessionState
}

// sessionState serializes concurrent messages for one session and tracks how
// much of the transcript has been flushed.
type sessionState struct {
	mu      sync.Mutex
	flushed int
}

// NewOrchestrator wires the agents, stores and optional event feed.
func NewOrchestrator(sessions *Sessions, purchase, subscribe agent.Debater, moderator *agent.Moderator, durable store.Store, feed *nats.Feed, opts Options, log *logger.Logger) *Orchestrator {
	if opts.TurnDelay == 0 {
		opts.TurnDelay = 4 * time.Second
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = 5
	}
	if opts.IdleThreshold == 0 {
		opts.IdleThreshold = 30 * time.Minute
	}
	return &Orchestrator{
		sessions:  sessions,
		purchase:  purchase,
		subscribe: subscribe,
		moderator: moderator,
		durable:   durable,
		feed:      feed,
		opts:      opts,
		log:       log,
		locks:     make(map[string]*sessionState),
	}
}

// InitSession creates a session and produces the moderator's welcome turn.
func (o *Orchestrator) InitSession(ctx context.Context, productID string, userData map[string]string) (*model.Session, model.Turn) {
	session := o.sessions.Create(productID, userData)
	log := o.log.WithSession(session.SessionID, session.ProductID)

	if err := o.durable.CreateSession(ctx, &store.SessionRecord{
		SessionID:    session.SessionID,
		ProductID:    session.ProductID,
		State:        session.State,
		UserData:     session.UserData,
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
	}); err != nil {
		log.Warn("durable session create failed", zap.Error(err))
	}

	welcome := o.moderator.GenerateWelcome(ctx)

	state := o.lockFor(session.SessionID)
	state.mu.Lock()
	o.record(ctx, session, welcome)
	state.mu.Unlock()

	log.Info("session initialized")
	return session, welcome
}

// ProcessMessage advances the session by one client message and returns the
// produced turns in order.
func (o *Orchestrator) ProcessMessage(ctx context.Context, req *model.ChatMessageRequest) ([]model.Turn, model.State, error) {
	var turns []model.Turn
	state, err := o.advance(ctx, req, func(turn model.Turn) {
		turns = append(turns, turn)
	})
	return turns, state, err
}

// ProcessMessageStream advances the session while emitting each turn as it
// completes, paced TurnDelay apart. Orchestration runs on a cancel-free
// context: a dropped client never truncates the transcript, emit failures
// are logged and the remaining steps still run and persist.
func (o *Orchestrator) ProcessMessageStream(ctx context.Context, req *model.ChatMessageRequest, emitter Emitter) (model.State, error) {
	ctx = context.WithoutCancel(ctx)

	emitted := 0
	state, err := o.advance(ctx, req, func(turn model.Turn) {
		if emitted > 0 {
			time.Sleep(o.opts.TurnDelay)
		}
		emitted++

		if serr := emitter.Emit(model.StreamFrame{
			Type:    model.FrameStream,
			Agent:   turn.Agent,
			Content: turn.Content,
		}); serr != nil {
			o.log.Warn("stream frame dropped, continuing orchestration",
				zap.String("session_id", req.SessionID),
				zap.Error(serr))
		}
		t := turn
		if serr := emitter.Emit(model.StreamFrame{
			Type: model.FrameMessage,
			Data: &t,
		}); serr != nil {
			o.log.Warn("message frame dropped, continuing orchestration",
				zap.String("session_id", req.SessionID),
				zap.Error(serr))
		}
	})
	return state, err
}

// advance is the state machine. All turns, user and agent, flow through emit
// in transcript order.
func (o *Orchestrator) advance(ctx context.Context, req *model.ChatMessageRequest, emit func(model.Turn)) (model.State, error) {
	session, err := o.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return "", err
	}
	if req.MessageType == "" {
		req.MessageType = model.MessageTypeText
	}

	state := o.lockFor(session.SessionID)
	state.mu.Lock()
	defer state.mu.Unlock()

	session.Touch()

	// Terminal state: the ended notice is returned but never recorded, so
	// the transcript stays frozen at the verdict.
	if session.State == model.StateConclusion {
		ended := o.moderatorNotice(conversationEndedMsg)
		ended.ConversationEnded = true
		emit(ended)
		return session.State, nil
	}

	session.TurnCount++

	// Only typed user content belongs in the transcript. Start and
	// conclusion requests are control messages; an empty message would
	// violate the never-empty-content rule.
	if req.Message != "" &&
		(req.MessageType == model.MessageTypeText || req.MessageType == model.MessageTypeQuickResponse) {
		o.record(ctx, session, model.NewUserTurn(uuid.Must(uuid.NewV7()).String(), req.Message))
	}

	switch session.State {
	case model.StateWelcome:
		if isStart(req) {
			o.runOpeningDebate(ctx, session, emit)
		} else {
			o.emitTurn(ctx, session, o.startPrompt(), emit)
		}

	case model.StateInitialDebate, model.StateOngoingDebate:
		if isConcludeRequest(req) {
			o.runConclusion(ctx, session, emit)
		} else {
			o.runDebateTurn(ctx, session, req.Message, emit)
		}
	}

	o.maybeFlush(ctx, session, state)
	return session.State, nil
}

// runOpeningDebate performs the three opening statements and moves the
// session into the ongoing phase.
func (o *Orchestrator) runOpeningDebate(ctx context.Context, session *model.Session, emit func(model.Turn)) {
	session.State = model.StateInitialDebate

	purchaseTurn := o.purchase.GenerateInitialArgument(ctx, session.ProductID)
	o.emitTurn(ctx, session, purchaseTurn, emit)

	rebuttal := o.subscribe.GenerateRebuttal(ctx, o.agentContext(session), purchaseTurn.Content)
	o.emitTurn(ctx, session, rebuttal, emit)

	o.runModeratorQuestion(ctx, session, emit)

	session.State = model.StateOngoingDebate
}

// runDebateTurn performs one full ongoing round: advocate, counter-advocate,
// moderator.
func (o *Orchestrator) runDebateTurn(ctx context.Context, session *model.Session, userMessage string, emit func(model.Turn)) {
	purchaseTurn := o.purchase.ProcessMessage(ctx, o.agentContext(session), userMessage)
	o.emitTurn(ctx, session, purchaseTurn, emit)

	rebuttal := o.subscribe.GenerateRebuttal(ctx, o.agentContext(session), purchaseTurn.Content)
	o.emitTurn(ctx, session, rebuttal, emit)

	o.runModeratorQuestion(ctx, session, emit)
}

func (o *Orchestrator) runModeratorQuestion(ctx context.Context, session *model.Session, emit func(model.Turn)) {
	question := o.moderator.SummarizeAndQuestion(ctx, o.agentContext(session))
	session.RememberQuestion(question.Content)
	o.emitTurn(ctx, session, question, emit)
}

// runConclusion renders the verdict, flushes the session synchronously and
// archives the full transcript.
func (o *Orchestrator) runConclusion(ctx context.Context, session *model.Session, emit func(model.Turn)) {
	conclusion := o.moderator.GenerateConclusion(ctx, o.agentContext(session))
	o.emitTurn(ctx, session, conclusion, emit)
	session.State = model.StateConclusion

	o.flushLocked(ctx, session, o.lockFor(session.SessionID))

	if location, err := o.durable.Archive(ctx, session.SessionID, session.History); err != nil {
		o.log.Warn("transcript archive failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	} else {
		o.log.Info("transcript archived",
			zap.String("session_id", session.SessionID),
			zap.String("location", location))
	}
}

// History returns a stable snapshot of the session transcript. Reads take
// the same per-session lock as message processing, so a snapshot never
// observes a half-appended debate round.
func (o *Orchestrator) History(ctx context.Context, sessionID string) (*model.HistoryResponse, error) {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state := o.lockFor(sessionID)
	state.mu.Lock()
	defer state.mu.Unlock()

	history := make([]model.Turn, len(session.History))
	copy(history, session.History)
	return &model.HistoryResponse{
		SessionID: session.SessionID,
		History:   history,
		State:     session.State,
		TurnCount: session.TurnCount,
	}, nil
}

// EndSession concludes persistence for a session and evicts it from memory.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	state := o.lockFor(sessionID)
	state.mu.Lock()
	o.flushLocked(ctx, session, state)
	state.mu.Unlock()

	o.sessions.Evict(sessionID)
	o.forgetLock(sessionID)
	o.log.Info("session ended", zap.String("session_id", sessionID))
	return nil
}

// CleanupIdle persists and evicts every session idle past the threshold.
// Persist always runs before evict so no turns are lost to the reaper.
// Idleness is judged under the session lock; a message in flight refreshes
// the activity timestamp before it is read here.
func (o *Orchestrator) CleanupIdle(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-o.opts.IdleThreshold)
	reaped := 0

	for _, session := range o.sessions.All() {
		state := o.lockFor(session.SessionID)
		state.mu.Lock()
		if !session.LastActivity.Before(cutoff) {
			state.mu.Unlock()
			continue
		}
		o.flushLocked(ctx, session, state)
		sessionState := session.State
		lastActivity := session.LastActivity
		state.mu.Unlock()

		o.sessions.Evict(session.SessionID)
		o.forgetLock(session.SessionID)
		metrics.SessionsReaped.Inc()
		reaped++

		// Conclusion archives inline; anything reaped mid-debate gets its
		// transcript archived by the background worker.
		if sessionState != model.StateConclusion {
			o.enqueueTask(ctx, task{Type: taskArchiveTranscript, SessionID: session.SessionID})
		}
		o.log.Info("idle session reaped",
			zap.String("session_id", session.SessionID),
			zap.Time("last_activity", lastActivity))
	}
	return reaped
}

// FlushAll synchronously persists every in-memory session. Used at shutdown.
func (o *Orchestrator) FlushAll(ctx context.Context) {
	for _, session := range o.sessions.All() {
		state := o.lockFor(session.SessionID)
		state.mu.Lock()
		o.flushLocked(ctx, session, state)
		state.mu.Unlock()
	}
}

// RunReaper ticks CleanupIdle until the context ends.
func (o *Orchestrator) RunReaper(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := o.CleanupIdle(ctx); reaped > 0 {
				o.log.Info("reaper pass complete", zap.Int("reaped", reaped))
			}
		}
	}
}

// Sessions exposes the registry for handlers that read session state.
func (o *Orchestrator) Sessions() *Sessions {
	return o.sessions
}

// emitTurn appends a turn to the transcript, publishes it and hands it to the
// caller's sink.
func (o *Orchestrator) emitTurn(ctx context.Context, session *model.Session, turn model.Turn, emit func(model.Turn)) {
	o.record(ctx, session, turn)
	emit(turn)
}

// record appends to history, counts the turn and publishes it on the event
// feed when one is configured.
func (o *Orchestrator) record(ctx context.Context, session *model.Session, turn model.Turn) {
	session.Append(turn)
	metrics.TurnsTotal.WithLabelValues(turn.Agent).Inc()

	if o.feed != nil {
		if err := o.feed.PublishTurn(ctx, session.SessionID, turn); err != nil {
			o.log.Debug("turn publish failed",
				zap.String("session_id", session.SessionID),
				zap.Error(err))
		}
	}
}

// maybeFlush persists asynchronously on every FlushInterval-th client
// message. The batch is snapshotted under the session lock; the write runs
// in the background and failures are logged only.
func (o *Orchestrator) maybeFlush(ctx context.Context, session *model.Session, state *sessionState) {
	if session.TurnCount == 0 || session.TurnCount%o.opts.FlushInterval != 0 {
		return
	}
	if state.flushed >= len(session.History) {
		return
	}

	batchID := session.ConversationID
	turns := make([]model.Turn, len(session.History)-state.flushed)
	copy(turns, session.History[state.flushed:])
	state.flushed = len(session.History)
	session.ConversationID = uuid.Must(uuid.NewV7()).String()

	patch := store.SessionPatch{
		State:        session.State,
		TurnCount:    session.TurnCount,
		LastActivity: session.LastActivity,
	}

	go func(ctx context.Context) {
		if err := o.durable.AppendBatch(ctx, session.SessionID, batchID, turns); err != nil {
			metrics.FlushesTotal.WithLabelValues("error").Inc()
			o.log.Error("conversation flush failed",
				zap.String("session_id", session.SessionID),
				zap.String("batch_id", batchID),
				zap.Error(err))
			return
		}
		if err := o.durable.UpdateSession(ctx, session.SessionID, patch); err != nil {
			o.log.Warn("session record update failed",
				zap.String("session_id", session.SessionID),
				zap.Error(err))
		}
		metrics.FlushesTotal.WithLabelValues("success").Inc()
	}(context.WithoutCancel(ctx))
}

// flushLocked persists the unflushed tail synchronously. Caller holds the
// session lock.
func (o *Orchestrator) flushLocked(ctx context.Context, session *model.Session, state *sessionState) {
	if state.flushed >= len(session.History) {
		return
	}

	batchID := session.ConversationID
	turns := session.History[state.flushed:]

	if err := o.durable.AppendBatch(ctx, session.SessionID, batchID, turns); err != nil {
		metrics.FlushesTotal.WithLabelValues("error").Inc()
		o.log.Error("final flush failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return
	}
	state.flushed = len(session.History)
	session.ConversationID = uuid.Must(uuid.NewV7()).String()

	if err := o.durable.UpdateSession(ctx, session.SessionID, store.SessionPatch{
		State:        session.State,
		TurnCount:    session.TurnCount,
		LastActivity: session.LastActivity,
	}); err != nil {
		o.log.Warn("session record update failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	}
	metrics.FlushesTotal.WithLabelValues("success").Inc()
}

func (o *Orchestrator) lockFor(sessionID string) *sessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.locks[sessionID]
	if !ok {
		state = &sessionState{}
		o.locks[sessionID] = state
	}
	return state
}

func (o *Orchestrator) forgetLock(sessionID string) {
	o.mu.Lock()
	delete(o.locks, sessionID)
	o.mu.Unlock()
}

func (o *Orchestrator) agentContext(session *model.Session) agent.Context {
	return agent.Context{
		SessionID:      session.SessionID,
		ProductID:      session.ProductID,
		History:        session.History,
		UserData:       session.UserData,
		AskedQuestions: session.AskedQuestions,
	}
}

func (o *Orchestrator) startPrompt() model.Turn {
	turn := o.moderatorNotice(startPromptContent)
	turn.QuickResponses = []string{model.StartSentinel}
	return turn
}

func (o *Orchestrator) moderatorNotice(content string) model.Turn {
	return model.Turn{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Agent:     model.AgentModerator,
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func isStart(req *model.ChatMessageRequest) bool {
	return req.MessageType == model.MessageTypeStart || req.Message == model.StartSentinel
}

func isConcludeRequest(req *model.ChatMessageRequest) bool {
	return req.MessageType == model.MessageTypeConclusion || req.Message == model.ConcludeSentinel
}
