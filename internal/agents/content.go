package agents

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/reelforge/reelforge/internal/agent"
	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// imageWorkers bounds concurrent image generation calls.
const imageWorkers = 3

// ContentGeneration produces the creative assets: product images, the
// review script and its narration.
type ContentGeneration struct {
	*agent.Runtime
	log *logging.Logger
}

// NewContentGeneration wires the agent and its sub-agents.
func NewContentGeneration(b *bus.Bus, log *logging.Logger, collab core.Collaborators) *ContentGeneration {
	rt := agent.New(core.AgentContent, b, log)
	a := &ContentGeneration{Runtime: rt, log: log.WithAgent(string(core.AgentContent))}

	rt.RegisterSubAgent(&generateImageSub{images: collab.Images})
	rt.RegisterSubAgent(&generateTextSub{texts: collab.Texts})
	rt.RegisterSubAgent(&generateVoiceSub{voices: collab.Voices})
	rt.Bind(a)
	return a
}

// ExecuteTask dispatches a phase to its handler.
func (a *ContentGeneration) ExecuteTask(ctx context.Context, task core.Task) (map[string]any, error) {
	switch task.Phase {
	case core.PhaseGenerateImages:
		return a.handleGenerateImages(ctx, task)
	case core.PhaseGenerateText:
		return a.handleGenerateText(ctx, task)
	case core.PhaseGenerateVoice:
		return a.handleGenerateVoice(ctx, task)
	case core.PhaseValidateContent:
		return a.handleValidateContent(ctx, task)
	default:
		return nil, errUnroutedPhase(a.ID(), task.Phase)
	}
}

// handleGenerateImages fans out one generation call per product.
// Individual failures become nil entries instead of aborting the
// batch; the phase fails only when nothing succeeded.
func (a *ContentGeneration) handleGenerateImages(ctx context.Context, task core.Task) (map[string]any, error) {
	products, err := upstreamProducts(task, core.PhaseValidateProducts)
	if err != nil {
		return nil, err
	}

	images := make([]any, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageWorkers)
	for i, p := range products {
		g.Go(func() error {
			res, err := a.Delegate(gctx, subGenerateImage, map[string]any{
				"prompt": "Product showcase photo: " + p.Title,
			})
			if err != nil {
				a.log.Warn("image generation failed for item",
					"index", i, "product", p.Title, "error", err.Error())
				return nil
			}
			images[i] = res["path"]
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, img := range images {
		if img != nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, core.ErrExternal(core.CodeGenerateFailed, "every image generation call failed")
	}

	a.log.Info("images generated", "requested", len(products), "succeeded", succeeded)
	return map[string]any{
		"images": images,
		"count":  succeeded,
	}, nil
}

func (a *ContentGeneration) handleGenerateText(ctx context.Context, task core.Task) (map[string]any, error) {
	products, err := upstreamProducts(task, core.PhaseValidateProducts)
	if err != nil {
		return nil, err
	}
	title, err := task.UpstreamString(core.PhaseFetchTitle, "title")
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a short engaging script for a video titled %q reviewing these products:\n", title)
	for i, p := range products {
		fmt.Fprintf(&sb, "%d. %s ($%.2f, %.1f stars, %d reviews)\n",
			i+1, p.Title, p.Price, p.Rating, p.ReviewCount)
	}

	return a.Delegate(ctx, subGenerateText, map[string]any{"prompt": sb.String()})
}

func (a *ContentGeneration) handleGenerateVoice(ctx context.Context, task core.Task) (map[string]any, error) {
	script, err := task.UpstreamString(core.PhaseGenerateText, "script")
	if err != nil {
		return nil, err
	}
	return a.Delegate(ctx, subGenerateVoice, map[string]any{"script": script})
}

// handleValidateContent verifies all three asset streams before the
// pipeline spends money on rendering.
func (a *ContentGeneration) handleValidateContent(_ context.Context, task core.Task) (map[string]any, error) {
	imagesVal, ok := task.Upstream(core.PhaseGenerateImages, "images")
	if !ok {
		return nil, core.ErrMissingInput(task.Phase, "generate_images.images")
	}
	images, _ := imagesVal.([]any)
	imageCount := 0
	for _, img := range images {
		if img != nil {
			imageCount++
		}
	}
	if imageCount == 0 {
		return nil, core.ErrValidation(core.CodeGenerateFailed, "no usable image to build the video from")
	}

	script, err := task.UpstreamString(core.PhaseGenerateText, "script")
	if err != nil {
		return nil, err
	}
	voicePath, err := task.UpstreamString(core.PhaseGenerateVoice, "voice_path")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"valid":       true,
		"image_count": imageCount,
		"script_len":  len(script),
		"voice_path":  voicePath,
	}, nil
}

// generateImageSub wraps the image generation collaborator.
type generateImageSub struct {
	images core.ImageGenerator
}

func (s *generateImageSub) Name() string { return subGenerateImage }

func (s *generateImageSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	prompt, err := agent.PayloadString(payload, "prompt", core.PhaseGenerateImages)
	if err != nil {
		return nil, err
	}
	res, err := s.images.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, core.ErrExternal(core.CodeGenerateFailed, "image generation failed").WithCause(err)
	}
	if res.Path == "" {
		return nil, core.ErrExternal(core.CodeGenerateFailed, "image collaborator returned no path")
	}
	return map[string]any{"path": res.Path}, nil
}

// generateTextSub wraps the text generation collaborator.
type generateTextSub struct {
	texts core.TextGenerator
}

func (s *generateTextSub) Name() string { return subGenerateText }

func (s *generateTextSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	prompt, err := agent.PayloadString(payload, "prompt", core.PhaseGenerateText)
	if err != nil {
		return nil, err
	}
	res, err := s.texts.GenerateText(ctx, prompt)
	if err != nil {
		return nil, core.ErrExternal(core.CodeGenerateFailed, "script generation failed").WithCause(err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, core.ErrExternal(core.CodeGenerateFailed, "text collaborator returned an empty script")
	}
	return map[string]any{"script": res.Text}, nil
}

// generateVoiceSub wraps the voice synthesis collaborator.
type generateVoiceSub struct {
	voices core.VoiceGenerator
}

func (s *generateVoiceSub) Name() string { return subGenerateVoice }

func (s *generateVoiceSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	script, err := agent.PayloadString(payload, "script", core.PhaseGenerateVoice)
	if err != nil {
		return nil, err
	}
	res, err := s.voices.GenerateVoice(ctx, script)
	if err != nil {
		return nil, core.ErrExternal(core.CodeGenerateFailed, "voice synthesis failed").WithCause(err)
	}
	if res.Path == "" {
		return nil, core.ErrExternal(core.CodeGenerateFailed, "voice collaborator returned no path")
	}
	return map[string]any{"voice_path": res.Path}, nil
}
