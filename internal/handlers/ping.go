package handlers

import (
	"context"

	"github.com/rcss-tournament/team-builder/internal/dispatch"
)

// Ping replies a liveness token
func (s *Service) Ping(ctx context.Context, data map[string]any, reply dispatch.ReplyFunc) {
	s.logger.Debug("Handling ping command")
	_ = reply(ctx, "pong")
}
