package handlers

import (
	"context"
	"time"

	"github.com/rcss-tournament/team-builder/internal/dispatch"
)

// Status reports the registry contents. mode "fetch" answers one snapshot;
// mode "subscribe" (the default) re-sends the snapshot roughly once per
// interval for a bounded window, stopping early when the reply channel dies.
func (s *Service) Status(ctx context.Context, data map[string]any, reply dispatch.ReplyFunc) {
	mode, _ := data["mode"].(string)
	if mode == "" {
		mode = "subscribe"
	}
	fetch, _ := data["fetch"].(string)
	if fetch == "" {
		fetch = "all"
	}

	if mode == "subscribe" && fetch == "all" {
		deadline := time.Now().Add(s.subscribeWindow)
		for {
			if err := reply(ctx, s.snapshot()); err != nil {
				s.logger.Info("Status subscription closed")
				return
			}
			if time.Now().After(deadline) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.subscribeInterval):
			}
		}
	}

	_ = reply(ctx, s.snapshot())
}

// snapshot renders the registry's current contents
func (s *Service) snapshot() map[string]any {
	jobs := s.state.All()
	out := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, map[string]any{
			"build_id": job.BuildID,
			"status":   string(job.Status),
		})
	}
	return map[string]any{"jobs": out}
}
