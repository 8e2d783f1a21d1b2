package sqlstore

import "github.com/goliatone/go-socialengine/core"

var (
	_ core.AttemptStore = (*AttemptStore)(nil)
	_ core.AttemptStore = (*CachedAttemptStore)(nil)
)
