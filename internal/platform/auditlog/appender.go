package auditlog

import (
	"context"
	"errors"
)

// Appender binds Insert to a database handle so services can depend on a
// narrow interface instead of the database directly.
type Appender struct {
	db QueryRower
}

func NewAppender(db QueryRower) (*Appender, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	return &Appender{db: db}, nil
}

func (a *Appender) Append(ctx context.Context, event Event) (int64, error) {
	if a == nil || a.db == nil {
		return 0, errors.New("appender not initialized")
	}
	return Insert(ctx, a.db, event)
}
