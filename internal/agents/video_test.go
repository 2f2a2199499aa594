package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
	"github.com/reelforge/reelforge/internal/testutil"
)

func videoLedger() map[string]map[string]any {
	return map[string]map[string]any{
		"fetch_title":      {"title": "Top 5 Blenders"},
		"generate_images":  {"images": []any{"/tmp/a.png", "/tmp/b.png"}, "count": 2},
		"generate_text":    {"script": "a script"},
		"generate_voice":   {"voice_path": "/tmp/v.mp3"},
		"validate_content": {"valid": true, "image_count": 2},
	}
}

func TestUploadAssetsGathersImagesAndVoice(t *testing.T) {
	a := NewVideoProduction(newBus(t), logging.NewNop(), testutil.Happy())

	out, err := a.ExecuteTask(context.Background(), task(core.PhaseUploadAssets, videoLedger()))
	require.NoError(t, err)
	assert.Equal(t, 3, out["count"])
	urls := out["urls"].([]string)
	assert.Contains(t, urls[2], "/tmp/v.mp3")
}

func TestRenderStandardAndWowUseDifferentTemplates(t *testing.T) {
	a := NewVideoProduction(newBus(t), logging.NewNop(), testutil.Happy())

	out, err := a.ExecuteTask(context.Background(), task(core.PhaseCreateVideo, videoLedger()))
	require.NoError(t, err)
	assert.Equal(t, "standard", out["template"])
	assert.Contains(t, out["video_path"], "standard")

	out, err = a.ExecuteTask(context.Background(), task(core.PhaseCreateWowVideo, videoLedger()))
	require.NoError(t, err)
	assert.Equal(t, "wow", out["template"])
}

func TestRenderRequiresValidatedContent(t *testing.T) {
	a := NewVideoProduction(newBus(t), logging.NewNop(), testutil.Happy())

	ledger := videoLedger()
	delete(ledger, "validate_content")
	_, err := a.ExecuteTask(context.Background(), task(core.PhaseCreateVideo, ledger))
	require.Error(t, err)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatValidation, Code: core.CodeMissingInput})
}

func TestRenderFailurePropagates(t *testing.T) {
	collab := testutil.Happy()
	collab.Renderer = testutil.FailingRenderer{}
	a := NewVideoProduction(newBus(t), logging.NewNop(), collab)

	_, err := a.ExecuteTask(context.Background(), task(core.PhaseCreateVideo, videoLedger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatExternal, Code: core.CodeRenderFailed})
}

func TestValidateVideoAcceptsLongEnoughRender(t *testing.T) {
	a := NewVideoProduction(newBus(t), logging.NewNop(), testutil.Happy())

	ledger := videoLedger()
	ledger["create_video"] = map[string]any{"video_path": "/tmp/v.mp4", "duration_ms": int64(90000)}
	out, err := a.ExecuteTask(context.Background(), task(core.PhaseValidateVideo, ledger))
	require.NoError(t, err)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, "/tmp/v.mp4", out["video_path"])
}

func TestValidateVideoRejectsShortRender(t *testing.T) {
	a := NewVideoProduction(newBus(t), logging.NewNop(), testutil.Happy())

	ledger := videoLedger()
	ledger["create_video"] = map[string]any{"video_path": "/tmp/v.mp4", "duration_ms": int64(2000)}
	_, err := a.ExecuteTask(context.Background(), task(core.PhaseValidateVideo, ledger))
	require.Error(t, err)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatValidation, Code: core.CodeRenderFailed})
}

func TestValidateVideoProbesWowPhase(t *testing.T) {
	a := NewVideoProduction(newBus(t), logging.NewNop(), testutil.Happy())

	ledger := videoLedger()
	ledger["create_wow_video"] = map[string]any{"video_path": "/tmp/wow.mp4", "duration_ms": int64(120000)}
	out, err := a.ExecuteTask(context.Background(), task(core.PhaseValidateVideo, ledger))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/wow.mp4", out["video_path"])
}
