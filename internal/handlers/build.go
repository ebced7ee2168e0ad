package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rcss-tournament/team-builder/internal/builder"
	"github.com/rcss-tournament/team-builder/internal/dispatch"
)

var buildRequiredFields = []string{
	"build_id",
	"team_name",
	"image_name",
	"image_tag",
	"file.file_id",
	"file.bucket",
	"file._type",
}

// Build registers a new job and schedules its pipeline. The pipeline runs on
// its own goroutine with a cancelable context owned by the state manager, so
// the handler returns as soon as the job is accepted.
func (s *Service) Build(ctx context.Context, data map[string]any, reply dispatch.ReplyFunc) {
	req := builder.ParseRequest(data)

	jobCtx, cancel := context.WithCancel(context.Background())

	if err := s.state.Add(req.BuildID, req.TeamName, req.ImageName, data, cancel); err != nil {
		cancel()
		s.logger.Error("Rejecting build request",
			slog.String("build_id", req.BuildID),
			slog.String("error", err.Error()),
		)
		_ = reply(ctx, fmt.Sprintf("Build %s already exists", req.BuildID))
		return
	}

	s.logger.Info("Build accepted",
		slog.String("build_id", req.BuildID),
		slog.String("team", req.TeamName),
		slog.String("image", req.ImageName+":"+req.ImageTag),
	)

	pipeline := builder.NewPipeline(req, s.pipelineCfg, s.deps, reply)
	go pipeline.Run(jobCtx)
}
