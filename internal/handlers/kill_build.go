package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rcss-tournament/team-builder/internal/dispatch"
	"github.com/rcss-tournament/team-builder/internal/state"
)

var killRequiredFields = []string{
	"build_id",
	"team_name",
}

// KillBuild resolves a kill request against the job registry. Both the build
// id and the team name must match the targeted job; cancellation is
// cooperative and only takes effect once the pipeline yields.
func (s *Service) KillBuild(ctx context.Context, data map[string]any, reply dispatch.ReplyFunc) {
	buildID := fmt.Sprintf("%v", data["build_id"])
	teamName := fmt.Sprintf("%v", data["team_name"])

	snap, err := s.state.Get(buildID)
	if err != nil || snap.TeamName != teamName {
		s.logger.Warn("Kill request did not match a job",
			slog.String("build_id", buildID),
			slog.String("team", teamName),
		)
		_ = reply(ctx, fmt.Sprintf("Build not found: %s", buildID))
		return
	}

	if err := s.state.Kill(buildID); err != nil {
		if errors.Is(err, state.ErrJobTerminal) {
			_ = reply(ctx, map[string]any{
				"build_id": buildID,
				"status":   string(snap.Status),
			})
			return
		}
		_ = reply(ctx, fmt.Sprintf("Failed to kill build %s: %v", buildID, err))
		return
	}

	_ = reply(ctx, map[string]any{
		"build_id": buildID,
		"status":   string(state.StatusKilled),
	})
}
