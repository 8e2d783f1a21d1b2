package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func attemptHandlers() repository.ModelHandlers[*attemptRecord] {
	return repository.ModelHandlers[*attemptRecord]{
		NewRecord: func() *attemptRecord {
			return &attemptRecord{}
		},
		GetID: func(record *attemptRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *attemptRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "attempt_id"
		},
		GetIdentifierValue: func(record *attemptRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.AttemptID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
