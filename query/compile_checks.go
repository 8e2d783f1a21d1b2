package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-socialengine/core"
)

var (
	_ gocmd.Querier[GetPendingAttemptMessage, PendingAttempt]         = (*GetPendingAttemptQuery)(nil)
	_ gocmd.Querier[ListPendingAttemptsMessage, []core.AuthAttempt]   = (*ListPendingAttemptsQuery)(nil)
	_ gocmd.Querier[GetAttemptRecordMessage, core.AttemptRecord]      = (*GetAttemptRecordQuery)(nil)
	_ gocmd.Querier[ListAttemptHistoryMessage, core.AttemptPage]      = (*ListAttemptHistoryQuery)(nil)

	_ PendingAttemptReader = (*core.Orchestrator)(nil)
	_ AttemptHistoryReader = (*core.MemoryAttemptStore)(nil)
)
