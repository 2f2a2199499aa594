package agents

import (
	"context"
	"time"

	"github.com/reelforge/reelforge/internal/agent"
	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// PublishTargets toggles the platforms a run publishes to. A disabled
// platform's phase completes with a skipped result instead of failing
// the run, so the remaining platforms still publish.
type PublishTargets struct {
	YouTube   bool
	WordPress bool
	Instagram bool
}

// AllPlatforms returns targets with every platform enabled.
func AllPlatforms() PublishTargets {
	return PublishTargets{YouTube: true, WordPress: true, Instagram: true}
}

// Publishing pushes the finished video to each platform and writes the
// outcome back to the record store. Each platform is its own phase so
// one failed upload does not undo the ones that already succeeded.
type Publishing struct {
	*agent.Runtime
	log     *logging.Logger
	targets PublishTargets
}

// NewPublishing wires the agent and its sub-agents.
func NewPublishing(b *bus.Bus, log *logging.Logger, collab core.Collaborators, targets PublishTargets) *Publishing {
	rt := agent.New(core.AgentPublishing, b, log)
	a := &Publishing{
		Runtime: rt,
		log:     log.WithAgent(string(core.AgentPublishing)),
		targets: targets,
	}

	rt.RegisterSubAgent(&publishSub{name: subPublishYouTube, platform: "youtube", publisher: collab.YouTube})
	rt.RegisterSubAgent(&publishSub{name: subPublishWP, platform: "wordpress", publisher: collab.WordPress})
	rt.RegisterSubAgent(&publishSub{name: subPublishIG, platform: "instagram", publisher: collab.Instagram})
	rt.RegisterSubAgent(&updateRecordSub{store: collab.Records})
	rt.Bind(a)
	return a
}

// ExecuteTask dispatches a phase to its handler.
func (a *Publishing) ExecuteTask(ctx context.Context, task core.Task) (map[string]any, error) {
	switch task.Phase {
	case core.PhasePublishYouTube:
		return a.handlePublish(ctx, task, subPublishYouTube, "youtube", a.targets.YouTube)
	case core.PhasePublishWordPress:
		return a.handlePublish(ctx, task, subPublishWP, "wordpress", a.targets.WordPress)
	case core.PhasePublishInstagram:
		return a.handlePublish(ctx, task, subPublishIG, "instagram", a.targets.Instagram)
	case core.PhaseUpdateRecord:
		return a.handleUpdateRecord(ctx, task)
	default:
		return nil, errUnroutedPhase(a.ID(), task.Phase)
	}
}

func (a *Publishing) handlePublish(ctx context.Context, task core.Task, sub, platform string, enabled bool) (map[string]any, error) {
	if !enabled {
		a.log.Info("platform disabled, skipping publish", "platform", platform)
		return map[string]any{"skipped": true, "platform": platform}, nil
	}

	videoPath, err := task.UpstreamString(core.PhaseValidateVideo, "video_path")
	if err != nil {
		return nil, err
	}
	title, err := task.UpstreamString(core.PhaseFetchTitle, "title")
	if err != nil {
		return nil, err
	}
	script, err := task.UpstreamString(core.PhaseGenerateText, "script")
	if err != nil {
		return nil, err
	}

	return a.Delegate(ctx, sub, map[string]any{
		"video_path": videoPath,
		"content": map[string]any{
			"title":       title,
			"description": script,
		},
	})
}

// handleUpdateRecord writes publish URLs and final status back to the
// record store row the run started from.
func (a *Publishing) handleUpdateRecord(ctx context.Context, task core.Task) (map[string]any, error) {
	recordID, err := task.UpstreamString(core.PhaseFetchTitle, "record_id")
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"status":       "published",
		"published_at": time.Now().Format(time.RFC3339),
	}
	for phase, field := range map[core.Phase]string{
		core.PhasePublishYouTube:   "youtube_url",
		core.PhasePublishWordPress: "wordpress_url",
		core.PhasePublishInstagram: "instagram_url",
	} {
		if url, ok := task.Upstream(phase, "url"); ok {
			fields[field] = url
		}
	}

	return a.Delegate(ctx, subUpdateRecord, map[string]any{
		"record_id": recordID,
		"fields":    fields,
	})
}

// publishSub wraps one platform publisher.
type publishSub struct {
	name      string
	platform  string
	publisher core.Publisher
}

func (s *publishSub) Name() string { return s.name }

func (s *publishSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	videoPath, err := agent.PayloadString(payload, "video_path", core.Phase("publish_"+s.platform))
	if err != nil {
		return nil, err
	}
	content, _ := payload["content"].(map[string]any)

	url, err := s.publisher.Publish(ctx, content, videoPath)
	if err != nil {
		return nil, core.ErrExternal(core.CodePublishFailed, "publishing to "+s.platform+" failed").WithCause(err)
	}
	return map[string]any{"url": url, "platform": s.platform}, nil
}

// updateRecordSub wraps RecordStore.UpdateRecord.
type updateRecordSub struct {
	store core.RecordStore
}

func (s *updateRecordSub) Name() string { return subUpdateRecord }

func (s *updateRecordSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	recordID, err := agent.PayloadString(payload, "record_id", core.PhaseUpdateRecord)
	if err != nil {
		return nil, err
	}
	fields, _ := payload["fields"].(map[string]any)
	if len(fields) == 0 {
		return nil, core.ErrMissingInput(core.PhaseUpdateRecord, "fields")
	}

	if err := s.store.UpdateRecord(ctx, recordID, fields); err != nil {
		return nil, core.ErrExternal(core.CodeRecordStore, "updating record "+recordID).WithCause(err)
	}
	return map[string]any{"record_id": recordID, "updated": true}, nil
}
