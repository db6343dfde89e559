package methods

import (
	"context"

	"github.com/nextlevelbuilder/numcheck/internal/gateway"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// CacheMethods handles cache.stats and cache.clear.
type CacheMethods struct {
	engine *verify.Engine
}

func NewCacheMethods(engine *verify.Engine) *CacheMethods {
	return &CacheMethods{engine: engine}
}

func (m *CacheMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodCacheStats, m.handleStats)
	router.Register(protocol.MethodCacheClear, m.handleClear)
}

func (m *CacheMethods) handleStats(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, m.engine.CacheStats()))
}

func (m *CacheMethods) handleClear(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	m.engine.ClearCache()
	client.SendResponse(protocol.NewOKResponse(req.ID, m.engine.CacheStats()))
}
