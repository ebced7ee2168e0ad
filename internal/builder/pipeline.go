package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/pkg/archive"

	"github.com/rcss-tournament/team-builder/internal/dispatch"
	"github.com/rcss-tournament/team-builder/internal/state"
	"github.com/rcss-tournament/team-builder/shared/minio"
)

// Config holds pipeline behavior settings
type Config struct {
	UploadDir         string        // base for stable per-job working directories
	UseTempDir        bool          // use an ephemeral temp dir instead of UploadDir
	RemoveAfterBuild  bool          // delete artifacts in the cleanup stage
	DefaultDockerfile string        // built-in recipe applied to every build
	KillGracePeriod   time.Duration // wait before the pre-build kill re-check
	StreamBuffer      int           // streaming bridge channel capacity
}

// Deps are the pipeline's collaborators. Store and Engine are the shared
// process defaults; the factories construct request-scoped clients when a
// build carries override credentials.
type Deps struct {
	Store     ObjectStore
	Engine    BuildEngine
	NewStore  StoreFactory
	NewEngine EngineFactory
	State     *state.Manager
	Logger    *slog.Logger
}

// Pipeline runs the fixed build stages for one job. It is owned by a single
// goroutine and never shared across jobs.
type Pipeline struct {
	req   Request
	cfg   Config
	deps  Deps
	reply dispatch.ReplyFunc

	store  ObjectStore
	engine BuildEngine

	workDir      string
	extractedDir string
	dockerDir    string
	archivePath  string
	recipePath   string
	imageRef     string
}

// NewPipeline creates a pipeline for one build request
func NewPipeline(req Request, cfg Config, deps Deps, reply dispatch.ReplyFunc) *Pipeline {
	return &Pipeline{
		req:   req,
		cfg:   cfg,
		deps:  deps,
		reply: reply,
	}
}

// Run executes the stages in order, streaming stage events and log lines to
// the reply channel. It owns the job's terminal state transition. No failure
// escapes the pipeline goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.deps.Logger.Error("Pipeline panicked",
				slog.String("build_id", p.req.BuildID),
				slog.Any("panic", r),
			)
			p.fail(ctx, "pipeline", fmt.Errorf("internal error: %v", r))
		}
	}()

	_ = p.reply(ctx, map[string]any{
		"build_id": p.req.BuildID,
		"stages":   Stages(),
	})
	_ = p.deps.State.Update(p.req.BuildID, state.StatusProgress)

	for _, stage := range Stages() {
		if ctx.Err() != nil {
			p.finishKilled(ctx)
			return
		}

		p.stageEvent(ctx, stage.ID, "start")

		if err := p.runStage(ctx, stage.ID); err != nil {
			if errors.Is(err, context.Canceled) || p.isKilled() {
				p.finishKilled(ctx)
				return
			}
			p.fail(ctx, stage.ID, err)
			return
		}

		p.stageEvent(ctx, stage.ID, "success")
	}

	_ = p.deps.State.Update(p.req.BuildID, state.StatusFinished)
	_ = p.reply(ctx, map[string]any{
		"build_id":   p.req.BuildID,
		"status":     string(state.StatusFinished),
		"image_name": p.req.ImageName,
		"image_tag":  p.req.ImageTag,
		"message": fmt.Sprintf("Building done image_name:%s , image_tag:%s",
			p.req.ImageName, p.req.ImageTag),
	})

	p.deps.Logger.Info("Build finished",
		slog.String("build_id", p.req.BuildID),
		slog.String("image", p.imageRef),
	)
}

func (p *Pipeline) runStage(ctx context.Context, stageID string) error {
	switch stageID {
	case StageInputValidation:
		return p.inputValidation(ctx)
	case StageFileDownload:
		return p.fileDownload(ctx)
	case StageFileExtract:
		return p.fileExtract(ctx)
	case StageFileValidate:
		return p.fileValidate(ctx)
	case StageTeamBuild:
		return p.teamBuild(ctx)
	case StageTeamPush:
		return p.teamPush(ctx)
	case StageCleanup:
		return p.cleanup(ctx)
	default:
		return fmt.Errorf("unknown stage: %s", stageID)
	}
}

// inputValidation resolves the job's clients, working directory and recipe
func (p *Pipeline) inputValidation(ctx context.Context) error {
	p.store = resolveStore(p.req, p.deps.Store, p.deps.NewStore, p.deps.Logger)
	p.engine = resolveEngine(p.req, p.deps.Engine, p.deps.NewEngine, p.deps.Logger)

	if p.cfg.UseTempDir {
		dir, err := os.MkdirTemp("", "team-build-"+p.req.BuildID+"-")
		if err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
		p.workDir = dir
	} else {
		p.workDir = filepath.Join(p.cfg.UploadDir, p.req.BuildID+"-"+p.req.TeamName)
		if err := os.MkdirAll(p.workDir, 0o755); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
	}

	p.recipePath = p.cfg.DefaultDockerfile
	if p.req.RecipeBucket != "" && p.req.RecipeFileID != "" {
		custom := filepath.Join(p.workDir, "team.Dockerfile")
		if err := p.store.Download(ctx, p.req.RecipeBucket, p.req.RecipeFileID, custom); err != nil {
			p.log(ctx, StageInputValidation, "custom dockerfile not retrievable, using default")
		} else {
			p.recipePath = custom
			p.log(ctx, StageInputValidation, "using custom dockerfile")
		}
	}

	p.log(ctx, StageInputValidation, fmt.Sprintf("working directory ready: %s", p.workDir))
	return nil
}

// fileDownload verifies the archive exists, then pulls it into the workdir.
// A missing object and an unreachable store are reported as distinct errors.
func (p *Pipeline) fileDownload(ctx context.Context) error {
	object := p.req.ArchiveObject()

	if err := p.store.StatObject(ctx, p.req.Bucket, object); err != nil {
		if errors.Is(err, minio.ErrObjectNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrArchiveNotFound, p.req.Bucket, object)
		}
		return fmt.Errorf("failed to check archive %s/%s: %w", p.req.Bucket, object, err)
	}

	p.archivePath = filepath.Join(p.workDir, object)
	if err := p.store.Download(ctx, p.req.Bucket, object, p.archivePath); err != nil {
		return fmt.Errorf("failed to download archive: %w", err)
	}

	p.log(ctx, StageFileDownload, fmt.Sprintf("downloaded %s/%s", p.req.Bucket, object))
	return nil
}

// fileExtract unpacks the archive into a fresh extracted/ directory next to
// a fresh docker/ build-context directory
func (p *Pipeline) fileExtract(ctx context.Context) error {
	p.extractedDir = filepath.Join(p.workDir, "extracted")
	p.dockerDir = filepath.Join(p.workDir, "docker")

	for _, dir := range []string{p.extractedDir, p.dockerDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to reset %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := archive.NewDefaultArchiver().UntarPath(p.archivePath, p.extractedDir); err != nil {
		return fmt.Errorf("failed to extract archive: %w", err)
	}

	p.log(ctx, StageFileExtract, "archive extracted")
	return nil
}

// fileValidate checks the archive layout and assembles the build context
func (p *Pipeline) fileValidate(ctx context.Context) error {
	err := normalizeLayout(p.extractedDir, p.dockerDir, p.req.TeamName, p.recipePath, p.cfg.DefaultDockerfile)
	if err != nil {
		return err
	}
	p.log(ctx, StageFileValidate, "build context assembled")
	return nil
}

// teamBuild waits out the kill grace period, re-checks for a kill request,
// then streams the external image build
func (p *Pipeline) teamBuild(ctx context.Context) error {
	if p.cfg.KillGracePeriod > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.KillGracePeriod):
		}
	}
	if p.isKilled() {
		return context.Canceled
	}

	p.imageRef = p.engine.ImageRef(p.req.ImageName, p.req.ImageTag)

	rc, err := p.engine.Build(ctx, p.dockerDir, p.imageRef)
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	return p.forwardStream(ctx, StageTeamBuild, rc)
}

// teamPush streams the push of the built image to the registry
func (p *Pipeline) teamPush(ctx context.Context) error {
	rc, err := p.engine.Push(ctx, p.imageRef)
	if err != nil {
		return fmt.Errorf("failed to push image: %w", err)
	}
	return p.forwardStream(ctx, StageTeamPush, rc)
}

// cleanup removes build artifacts when configured to. Its failures are
// reported but never change the job's outcome.
func (p *Pipeline) cleanup(ctx context.Context) error {
	if !p.cfg.RemoveAfterBuild {
		p.log(ctx, StageCleanup, "artifact removal disabled")
		return nil
	}
	if err := p.removeArtifacts(); err != nil {
		p.log(ctx, StageCleanup, fmt.Sprintf("cleanup incomplete: %v", err))
		return nil
	}
	p.log(ctx, StageCleanup, "artifacts removed")
	return nil
}

// forwardStream drains the bridge channel, forwarding every line to the
// caller as it arrives. Lines that parse as JSON are forwarded structured
// with the build id attached; anything else goes out as raw text. An engine
// error line terminates the stage.
func (p *Pipeline) forwardStream(ctx context.Context, stageID string, rc io.ReadCloser) error {
	lines := StreamLines(ctx, rc, p.cfg.StreamBuffer)

	for line := range lines {
		if line.Err != nil {
			return fmt.Errorf("%s stream failed: %w", stageID, line.Err)
		}

		var parsed map[string]any
		if err := json.Unmarshal([]byte(line.Text), &parsed); err == nil && parsed != nil {
			if msg, ok := parsed["error"]; ok {
				return fmt.Errorf("%s failed: %v", stageID, msg)
			}
			parsed["build_id"] = p.req.BuildID
			_ = p.reply(ctx, parsed)
		} else if line.Text != "" {
			_ = p.reply(ctx, line.Text)
		}
	}

	return ctx.Err()
}

func (p *Pipeline) stageEvent(ctx context.Context, stageID, stateName string) {
	_ = p.reply(ctx, map[string]any{
		"build_id": p.req.BuildID,
		"stage":    stageID,
		"state":    stateName,
	})
}

// log emits a stage-scoped progress line to the caller and the service log
func (p *Pipeline) log(ctx context.Context, stageID, msg string) {
	p.deps.Logger.Info(msg,
		slog.String("build_id", p.req.BuildID),
		slog.String("stage", stageID),
	)
	_ = p.reply(ctx, map[string]any{
		"build_id": p.req.BuildID,
		"stage":    stageID,
		"data":     msg,
	})
}

func (p *Pipeline) isKilled() bool {
	snap, err := p.deps.State.Get(p.req.BuildID)
	return err == nil && snap.Status == state.StatusKilled
}

// fail reports a stage failure, applies the cleanup-on-failure policy and
// marks the job failed
func (p *Pipeline) fail(ctx context.Context, stageID string, err error) {
	p.deps.Logger.Error("Stage failed",
		slog.String("build_id", p.req.BuildID),
		slog.String("stage", stageID),
		slog.String("error", err.Error()),
	)
	_ = p.reply(ctx, map[string]any{
		"build_id": p.req.BuildID,
		"stage":    stageID,
		"state":    "failure",
		"error":    err.Error(),
	})

	if p.cfg.RemoveAfterBuild {
		if rmErr := p.removeArtifacts(); rmErr != nil {
			p.deps.Logger.Warn("Failed to remove artifacts after failure",
				slog.String("build_id", p.req.BuildID),
				slog.String("error", rmErr.Error()),
			)
		}
	}

	_ = p.deps.State.Update(p.req.BuildID, state.StatusFailed)
}

// finishKilled ends a pipeline whose job was killed. The registry already
// holds the killed state; this only reports and cleans up.
func (p *Pipeline) finishKilled(ctx context.Context) {
	p.deps.Logger.Info("Build killed",
		slog.String("build_id", p.req.BuildID),
	)
	_ = p.reply(ctx, map[string]any{
		"build_id": p.req.BuildID,
		"status":   string(state.StatusKilled),
		"message":  "Build killed",
	})

	if p.cfg.RemoveAfterBuild {
		if err := p.removeArtifacts(); err != nil {
			p.deps.Logger.Warn("Failed to remove artifacts after kill",
				slog.String("build_id", p.req.BuildID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pipeline) removeArtifacts() error {
	var errs []error
	for _, path := range []string{p.extractedDir, p.dockerDir, p.archivePath} {
		if path == "" {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
