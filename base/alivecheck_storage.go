package base

import (
	"context"
	"net/http"
)

// AliveCheckStorage holds liveness checks: a failing one means the process
// should be restarted.
type AliveCheckStorage struct {
	aliveCheck *MapCheckOptions
}

func NewAliveCheckStorage() *AliveCheckStorage {
	return &AliveCheckStorage{aliveCheck: NewMapCheckOptions()}
}

func (s *AliveCheckStorage) GetAliveHandlers() *MapCheckOptions {
	return s.aliveCheck
}

func (s *AliveCheckStorage) AliveCheckHandler(ctx context.Context, w http.ResponseWriter) {
	s.aliveCheck.WriteAnswer(ctx, w)
}
