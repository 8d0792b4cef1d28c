package listener

import (
	"context"
	"io"
	"log/slog"

	"aiquest/internal/session"
)

type ConnectionManager struct {
	sm *session.Manager
}

func NewConnectionManager(sm *session.Manager) *ConnectionManager {
	return &ConnectionManager{
		sm: sm,
	}
}

func (m *ConnectionManager) AcceptConnection(ctx context.Context, conn io.ReadWriter) {
	if err := m.sm.RunSession(ctx, conn); err != nil {
		slog.WarnContext(ctx, "player session ended", "error", err)
	}
}
