package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/wxdatadog/internal/types"
	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

// UDPListener receives loop packets as JSON, one packet per datagram
type UDPListener struct {
	gnet.BuiltinEventEngine

	addr    string
	handler Handler
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	eng     gnet.Engine
	started chan struct{}
}

// NewUDPListener creates a listener for addr ("host:port")
func NewUDPListener(addr string, handler Handler, logger *zap.SugaredLogger) *UDPListener {
	return &UDPListener{
		addr:    addr,
		handler: handler,
		logger:  logger,
		started: make(chan struct{}),
	}
}

// Run serves until ctx is cancelled
func (u *UDPListener) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- gnet.Run(u, "udp://"+u.addr,
			gnet.WithMulticore(false),
			gnet.WithReusePort(true),
			gnet.WithReadBufferCap(MaxPacketBytes),
			gnet.WithLogger(u.logger),
		)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("UDP ingest listener on %s: %w", u.addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	u.logger.Info("stopping UDP ingest listener")
	select {
	case <-u.started:
	case err := <-errc:
		return err
	}

	u.mu.Lock()
	eng := u.eng
	u.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping UDP ingest listener: %w", err)
	}
	return <-errc
}

// OnBoot implements gnet.EventHandler
func (u *UDPListener) OnBoot(eng gnet.Engine) gnet.Action {
	u.mu.Lock()
	u.eng = eng
	u.mu.Unlock()
	close(u.started)

	u.logger.Infof("UDP ingest listener on %s", u.addr)
	return gnet.None
}

// OnTraffic implements gnet.EventHandler. Each call carries one datagram.
func (u *UDPListener) OnTraffic(c gnet.Conn) gnet.Action {
	buf, err := c.Next(-1)
	if err != nil {
		u.logger.Debugf("UDP read error: %v", err)
		return gnet.None
	}

	var packet map[string]any
	if err := json.Unmarshal(buf, &packet); err != nil {
		u.logger.Debugf("ignoring malformed datagram from %s: %v", c.RemoteAddr(), err)
		return gnet.None
	}

	if _, err := dispatch(u.handler, types.LoopPacket, packet); err != nil {
		u.logger.Debugf("ignoring datagram from %s: %v", c.RemoteAddr(), err)
	}
	return gnet.None
}
