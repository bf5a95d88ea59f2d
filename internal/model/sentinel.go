package model

// Distinguished user inputs recognized by the orchestrator.
const (
	// StartSentinel moves a welcome-state session into the opening debate.
	StartSentinel = "시작하자"

	// ConcludeSentinel forces an immediate transition to the conclusion
	// state instead of running the three-step debate turn.
	ConcludeSentinel = "이제 결론을 내줘"
)
