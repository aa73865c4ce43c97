package base

import (
	"context"
	"net/http"
)

// ReadyCheckStorage holds readiness checks: a failing one means traffic
// should go elsewhere for now.
type ReadyCheckStorage struct {
	readyCheck *MapCheckOptions
}

func NewReadyCheckStorage() *ReadyCheckStorage {
	return &ReadyCheckStorage{readyCheck: NewMapCheckOptions()}
}

func (s *ReadyCheckStorage) GetReadyHandlers() *MapCheckOptions {
	return s.readyCheck
}

func (s *ReadyCheckStorage) ReadyCheckHandler(ctx context.Context, w http.ResponseWriter) {
	s.readyCheck.WriteAnswer(ctx, w)
}
