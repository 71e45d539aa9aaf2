package app

import (
	"context"

	"hydrafloods/internal/logger"
	"hydrafloods/internal/shutdown"
)

// Lifecycle stops tracked components on a signal, on context cancellation or
// on an explicit Shutdown, whichever comes first.
type Lifecycle struct {
	manager *shutdown.Manager
	logger  logger.Logger
}

func NewLifecycle(log logger.Logger) *Lifecycle {
	return &Lifecycle{
		manager: shutdown.NewManager(log),
		logger:  log,
	}
}

func (l *Lifecycle) Track(name string, c shutdown.Shutdownable) {
	l.manager.Register(name, c)
}

func (l *Lifecycle) Start(ctx context.Context) {
	l.manager.Listen()
	go func() {
		select {
		case <-ctx.Done():
			l.logger.Info("Lifecycle", "context cancelled", nil)
			l.manager.Shutdown()
		case <-l.manager.Done():
		}
	}()
}

func (l *Lifecycle) Shutdown() {
	l.manager.Shutdown()
}

func (l *Lifecycle) Done() <-chan struct{} {
	return l.manager.Done()
}
