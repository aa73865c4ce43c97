package base

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Enity is the named part shared by every long-living component of the service:
// the dispatch engine, the http server and the events publisher.
type Enity struct {
	name         string
	providerName string
	shuttingDown int32
}

type EnityDeps struct {
	Name         string
	ProviderName string
}

func NewEnity(deps *EnityDeps) *Enity {
	return &Enity{
		name:         deps.Name,
		providerName: deps.ProviderName,
	}
}

func (e *Enity) GetName() string {
	return e.name
}

func (e *Enity) GetProviderName() string {
	return e.providerName
}

// GetFullName is used as a prefix for metric names.
func (e *Enity) GetFullName() string {
	return e.providerName + "_" + e.name
}

func (e *Enity) GetLogger(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx).With().
		Str("provider_type", e.providerName).
		Str("enity_name", e.name).
		Logger()
	return &logger
}

func (e *Enity) IsShuttingDown() bool {
	return atomic.LoadInt32(&e.shuttingDown) == 1
}

func (e *Enity) SetShuttingDown(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&e.shuttingDown, i)
}
