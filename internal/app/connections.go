package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Together/internal/core"
	"github.com/dkeye/Together/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrDuplicateConn = errors.New("connection id already bound")

// Connections is the table of live transports, used to resolve relay targets.
type Connections struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]core.SignalConnection
}

func NewConnections() *Connections {
	return &Connections{conns: make(map[domain.ConnID]core.SignalConnection)}
}

func (c *Connections) Bind(id domain.ConnID, conn core.SignalConnection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conns[id]; ok {
		return ErrDuplicateConn
	}
	c.conns[id] = conn
	log.Debug().Str("module", "app.connections").Str("sid", string(id)).Msg("bound signal")
	return nil
}

func (c *Connections) Get(id domain.ConnID) (core.SignalConnection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.conns[id]
	return conn, ok
}

// Unbind reports whether id was bound.
func (c *Connections) Unbind(id domain.ConnID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conns[id]; !ok {
		return false
	}
	delete(c.conns, id)
	log.Debug().Str("module", "app.connections").Str("sid", string(id)).Msg("unbind signal")
	return true
}

func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}
