package agents

import (
	"context"
	"time"

	"github.com/reelforge/reelforge/internal/agent"
	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// Video template names passed to the renderer.
const (
	templateStandard = "standard"
	templateWow      = "wow"
)

// minVideoDuration rejects renders that are too short to be a real
// Top-5 video.
const minVideoDuration = 10 * time.Second

// VideoProduction turns validated assets into a rendered, checked
// video file and stages media in shared storage.
type VideoProduction struct {
	*agent.Runtime
	log *logging.Logger
}

// NewVideoProduction wires the agent and its sub-agents.
func NewVideoProduction(b *bus.Bus, log *logging.Logger, collab core.Collaborators) *VideoProduction {
	rt := agent.New(core.AgentVideo, b, log)
	a := &VideoProduction{Runtime: rt, log: log.WithAgent(string(core.AgentVideo))}

	rt.RegisterSubAgent(&uploadAssetsSub{assets: collab.Assets})
	rt.RegisterSubAgent(&renderVideoSub{renderer: collab.Renderer})
	rt.Bind(a)
	return a
}

// ExecuteTask dispatches a phase to its handler.
func (a *VideoProduction) ExecuteTask(ctx context.Context, task core.Task) (map[string]any, error) {
	switch task.Phase {
	case core.PhaseUploadAssets:
		return a.handleUploadAssets(ctx, task)
	case core.PhaseCreateVideo:
		return a.handleRender(ctx, task, templateStandard)
	case core.PhaseCreateWowVideo:
		return a.handleRender(ctx, task, templateWow)
	case core.PhaseValidateVideo:
		return a.handleValidateVideo(ctx, task)
	default:
		return nil, errUnroutedPhase(a.ID(), task.Phase)
	}
}

func (a *VideoProduction) handleUploadAssets(ctx context.Context, task core.Task) (map[string]any, error) {
	imagesVal, ok := task.Upstream(core.PhaseGenerateImages, "images")
	if !ok {
		return nil, core.ErrMissingInput(task.Phase, "generate_images.images")
	}
	images, _ := imagesVal.([]any)

	voicePath, err := task.UpstreamString(core.PhaseGenerateVoice, "voice_path")
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(images)+1)
	for _, img := range images {
		if p, ok := img.(string); ok && p != "" {
			paths = append(paths, p)
		}
	}
	paths = append(paths, voicePath)

	return a.Delegate(ctx, subUploadAssets, map[string]any{"paths": paths})
}

func (a *VideoProduction) handleRender(ctx context.Context, task core.Task, template string) (map[string]any, error) {
	if _, ok := task.Upstream(core.PhaseValidateContent, "valid"); !ok {
		return nil, core.ErrMissingInput(task.Phase, "validate_content.valid")
	}
	script, err := task.UpstreamString(core.PhaseGenerateText, "script")
	if err != nil {
		return nil, err
	}
	voicePath, err := task.UpstreamString(core.PhaseGenerateVoice, "voice_path")
	if err != nil {
		return nil, err
	}
	imagesVal, _ := task.Upstream(core.PhaseGenerateImages, "images")
	title, err := task.UpstreamString(core.PhaseFetchTitle, "title")
	if err != nil {
		return nil, err
	}

	return a.Delegate(ctx, subRenderVideo, map[string]any{
		"template": template,
		"video_data": map[string]any{
			"title":      title,
			"script":     script,
			"voice_path": voicePath,
			"images":     imagesVal,
		},
	})
}

// handleValidateVideo checks the render output. Pure validation.
// Standard and wow runs store their output under different phase
// names, so probe both.
func (a *VideoProduction) handleValidateVideo(_ context.Context, task core.Task) (map[string]any, error) {
	renderPhase := core.PhaseCreateVideo
	if _, ok := task.Params[core.PhaseCreateWowVideo.String()]; ok {
		renderPhase = core.PhaseCreateWowVideo
	}

	videoPath, err := task.UpstreamString(renderPhase, "video_path")
	if err != nil {
		return nil, err
	}
	durationMS, _ := task.Upstream(renderPhase, "duration_ms")
	ms, _ := durationMS.(int64)
	if time.Duration(ms)*time.Millisecond < minVideoDuration {
		return nil, core.ErrValidation(core.CodeRenderFailed,
			"rendered video is shorter than the minimum duration")
	}

	return map[string]any{
		"video_path":  videoPath,
		"duration_ms": ms,
		"valid":       true,
	}, nil
}

// uploadAssetsSub wraps the asset store collaborator.
type uploadAssetsSub struct {
	assets core.AssetStore
}

func (s *uploadAssetsSub) Name() string { return subUploadAssets }

func (s *uploadAssetsSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	paths, _ := payload["paths"].([]string)
	if len(paths) == 0 {
		return nil, core.ErrMissingInput(core.PhaseUploadAssets, "paths")
	}
	urls, err := s.assets.Upload(ctx, paths)
	if err != nil {
		return nil, core.ErrExternal(core.CodeRecordStore, "asset upload failed").WithCause(err)
	}
	return map[string]any{"urls": urls, "count": len(urls)}, nil
}

// renderVideoSub wraps the video renderer collaborator.
type renderVideoSub struct {
	renderer core.VideoRenderer
}

func (s *renderVideoSub) Name() string { return subRenderVideo }

func (s *renderVideoSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	template, err := agent.PayloadString(payload, "template", core.PhaseCreateVideo)
	if err != nil {
		return nil, err
	}
	videoData, _ := payload["video_data"].(map[string]any)
	if len(videoData) == 0 {
		return nil, core.ErrMissingInput(core.PhaseCreateVideo, "video_data")
	}

	out, err := s.renderer.Render(ctx, template, videoData)
	if err != nil {
		return nil, core.ErrExternal(core.CodeRenderFailed, "video render failed").WithCause(err)
	}
	if out.VideoPath == "" {
		return nil, core.ErrExternal(core.CodeRenderFailed, "renderer returned no video path")
	}
	return map[string]any{
		"video_path":  out.VideoPath,
		"duration_ms": out.Duration.Milliseconds(),
		"template":    template,
	}, nil
}
