package sqlstore

import (
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-socialengine/core"
)

type attemptRecord struct {
	bun.BaseModel `bun:"table:social_auth_attempts,alias:saa"`

	ID          string         `bun:"id,pk"`
	AttemptID   string         `bun:"attempt_id,notnull,unique"`
	ProviderID  string         `bun:"provider_id,notnull"`
	Scope       string         `bun:"scope,notnull"`
	Fields      string         `bun:"fields,notnull"`
	Status      string         `bun:"status,notnull"`
	Outcome     string         `bun:"outcome,notnull"`
	ErrorKind   string         `bun:"error_kind,notnull"`
	Error       string         `bun:"error_message,notnull"`
	Profile     map[string]any `bun:"profile,type:jsonb,notnull"`
	StartedAt   time.Time      `bun:"started_at,notnull"`
	CompletedAt time.Time      `bun:"completed_at,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newAttemptRecord(id string, in core.AttemptRecord, now time.Time) *attemptRecord {
	completed := in.CompletedAt.UTC()
	if completed.IsZero() {
		completed = now
	}
	started := in.StartedAt.UTC()
	if started.IsZero() {
		started = completed
	}
	scope := strings.TrimSpace(string(in.Scope))
	if scope == "" {
		scope = string(core.ScopeDefault)
	}
	return &attemptRecord{
		ID:          id,
		AttemptID:   strings.TrimSpace(in.AttemptID),
		ProviderID:  strings.TrimSpace(strings.ToLower(in.ProviderID)),
		Scope:       scope,
		Fields:      strings.Join(in.Fields, ","),
		Status:      string(in.Status),
		Outcome:     string(in.Outcome),
		ErrorKind:   string(in.ErrorKind),
		Error:       in.Error,
		Profile:     copyAnyMap(in.Profile),
		StartedAt:   started,
		CompletedAt: completed,
		CreatedAt:   now,
	}
}

func (r *attemptRecord) toDomain() core.AttemptRecord {
	if r == nil {
		return core.AttemptRecord{}
	}
	out := core.AttemptRecord{
		AttemptID:   r.AttemptID,
		ProviderID:  r.ProviderID,
		Scope:       core.Scope(r.Scope),
		Status:      core.AttemptStatus(r.Status),
		Outcome:     core.Outcome(r.Outcome),
		ErrorKind:   core.ErrorKind(r.ErrorKind),
		Error:       r.Error,
		StartedAt:   r.StartedAt.UTC(),
		CompletedAt: r.CompletedAt.UTC(),
	}
	if fields := strings.TrimSpace(r.Fields); fields != "" {
		out.Fields = strings.Split(fields, ",")
	}
	if len(r.Profile) > 0 {
		out.Profile = copyAnyMap(r.Profile)
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
