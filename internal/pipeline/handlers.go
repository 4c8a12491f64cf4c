package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/generation"
	"github.com/phrazzld/reelchain/internal/orchestrator"
	"github.com/phrazzld/reelchain/internal/retry"
	"github.com/phrazzld/reelchain/internal/store"
)

// Task ids of the pipeline.
const (
	TaskTopic       domain.TaskID = 1
	TaskTrends      domain.TaskID = 2
	TaskOutline     domain.TaskID = 3
	TaskScript      domain.TaskID = 4
	TaskHooks       domain.TaskID = 5
	TaskKeywords    domain.TaskID = 6
	TaskDescription domain.TaskID = 7
	TaskAudio       domain.TaskID = 8
	TaskSentiment   domain.TaskID = 9
	TaskStoryboard  domain.TaskID = 10
	TaskImages      domain.TaskID = 11
)

// Deps are the external collaborators of the pipeline tasks.
type Deps struct {
	Text   generation.TextGenerator
	Voice  generation.VoiceSynthesizer
	Prober generation.AudioProber
	Images generation.ImageRenderer
	Audio  store.AudioStore

	// AudioTTL is how long synthesized audio is kept.
	AudioTTL time.Duration

	// MaxScriptChars bounds the narration script.
	MaxScriptChars int

	// Seed returns an image seed. Defaults to a uniform draw from
	// [10000, 99999].
	Seed func() int
}

type pipeline struct {
	Deps
}

// Handlers builds the static task table.
func Handlers(d Deps) orchestrator.HandlerTable {
	if d.AudioTTL <= 0 {
		d.AudioTTL = time.Hour
	}
	if d.MaxScriptChars <= 0 {
		d.MaxScriptChars = MaxScriptChars
	}
	if d.Seed == nil {
		d.Seed = func() int { return 10000 + rand.IntN(90000) }
	}
	p := &pipeline{Deps: d}

	return orchestrator.HandlerTable{
		TaskTopic:       orchestrator.HandlerFunc(p.topic),
		TaskTrends:      orchestrator.HandlerFunc(p.trends),
		TaskOutline:     orchestrator.HandlerFunc(p.outline),
		TaskScript:      orchestrator.HandlerFunc(p.script),
		TaskHooks:       orchestrator.HandlerFunc(p.hooks),
		TaskKeywords:    orchestrator.HandlerFunc(p.keywords),
		TaskDescription: orchestrator.HandlerFunc(p.description),
		TaskAudio:       orchestrator.HandlerFunc(p.audio),
		TaskSentiment:   orchestrator.HandlerFunc(p.sentiment),
		TaskStoryboard:  orchestrator.HandlerFunc(p.storyboard),
		TaskImages:      orchestrator.HandlerFunc(p.images),
	}
}

// generate renders a prompt and calls the text generator under the task's
// retry policy. Blank replies are retried.
func (p *pipeline) generate(ctx context.Context, tc *orchestrator.TaskContext, name string, data any) (string, error) {
	prompt, err := render(name, data)
	if err != nil {
		return "", domain.E(domain.KindConfiguration, "pipeline."+name, err)
	}
	return retry.DoValue(ctx, tc.Retry(), "generate "+name, func(ctx context.Context) (string, error) {
		text, err := p.Text.Generate(ctx, prompt)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", domain.E(domain.KindExternalService, "pipeline."+name,
				fmt.Errorf("%w: empty reply", generation.ErrInvalidResponse))
		}
		return text, nil
	})
}

func (p *pipeline) text(ctx context.Context, tc *orchestrator.TaskContext, name string, data any) (domain.TaskResult, error) {
	text, err := p.generate(ctx, tc, name, data)
	if err != nil {
		return domain.TaskResult{}, err
	}
	return tc.Success(TextContent{Text: text})
}

// upstream collects the text results the later text tasks build on.
type upstream struct {
	Topic    string
	Trends   string
	Outline  string
	Script   string
	Hooks    string
	MaxChars int
}

func (p *pipeline) load(tc *orchestrator.TaskContext, ids ...domain.TaskID) (upstream, error) {
	u := upstream{MaxChars: p.MaxScriptChars}
	for _, id := range ids {
		var err error
		switch id {
		case TaskTopic:
			var c TopicContent
			err = tc.Decode(id, &c)
			u.Topic = c.Text
		case TaskTrends:
			var c TextContent
			err = tc.Decode(id, &c)
			u.Trends = c.Text
		case TaskOutline:
			var c TextContent
			err = tc.Decode(id, &c)
			u.Outline = c.Text
		case TaskScript:
			var c ScriptContent
			err = tc.Decode(id, &c)
			u.Script = c.Text
		case TaskHooks:
			var c TextContent
			err = tc.Decode(id, &c)
			u.Hooks = c.Text
		}
		if err != nil {
			return upstream{}, err
		}
	}
	return u, nil
}

func (p *pipeline) topic(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	text, err := p.generate(ctx, tc, promptTopic, upstream{Topic: tc.Topic})
	if err != nil {
		return domain.TaskResult{}, err
	}
	return tc.Success(TopicContent{Requested: tc.Topic, Text: text})
}

func (p *pipeline) trends(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	u, err := p.load(tc, TaskTopic)
	if err != nil {
		return domain.TaskResult{}, err
	}
	return p.text(ctx, tc, promptTrends, u)
}

func (p *pipeline) outline(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	u, err := p.load(tc, TaskTrends)
	if err != nil {
		return domain.TaskResult{}, err
	}
	return p.text(ctx, tc, promptOutline, u)
}

func (p *pipeline) script(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	u, err := p.load(tc, TaskTrends, TaskOutline)
	if err != nil {
		return domain.TaskResult{}, err
	}
	text, err := p.generate(ctx, tc, promptScript, u)
	if err != nil {
		return domain.TaskResult{}, err
	}
	text, truncated := TrimScript(text, p.MaxScriptChars)
	if truncated {
		tc.Logger.WarnContext(ctx, "script trimmed to length limit", "limit", p.MaxScriptChars)
	}
	return tc.Success(ScriptContent{
		Text:       text,
		Characters: len([]rune(text)),
		Truncated:  truncated,
	})
}

func (p *pipeline) hooks(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	u, err := p.load(tc, TaskTopic, TaskTrends, TaskScript)
	if err != nil {
		return domain.TaskResult{}, err
	}
	return p.text(ctx, tc, promptHooks, u)
}

func (p *pipeline) keywords(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	u, err := p.load(tc, TaskTrends, TaskScript, TaskHooks)
	if err != nil {
		return domain.TaskResult{}, err
	}
	return p.text(ctx, tc, promptKeywords, u)
}

func (p *pipeline) description(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	u, err := p.load(tc, TaskTrends, TaskScript, TaskHooks)
	if err != nil {
		return domain.TaskResult{}, err
	}
	return p.text(ctx, tc, promptDescription, u)
}

func (p *pipeline) audio(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	const op = "pipeline.audio"

	u, err := p.load(tc, TaskScript)
	if err != nil {
		return domain.TaskResult{}, err
	}

	audio, err := retry.DoValue(ctx, tc.Retry(), "synthesize narration", func(ctx context.Context) ([]byte, error) {
		return p.Voice.Synthesize(ctx, u.Script)
	})
	if err != nil {
		return domain.TaskResult{}, err
	}

	info, err := p.Prober.Probe(audio)
	if err != nil {
		return domain.TaskResult{}, err
	}

	key, err := p.Audio.SaveAudio(ctx, tc.RunID, audio, p.AudioTTL)
	if err != nil {
		return domain.TaskResult{}, domain.E(domain.KindConnection, op, err)
	}

	tc.Logger.InfoContext(ctx, "narration synthesized",
		"audio_bytes", len(audio),
		"duration_seconds", info.Duration.Seconds())

	return tc.Success(AudioContent{
		AudioKey:        key,
		Format:          "mp3",
		SizeBytes:       len(audio),
		DurationSeconds: info.Duration.Seconds(),
		SampleRate:      info.SampleRate,
		Channels:        info.Channels,
		Dimensions:      Dimensions(info.Duration),
	})
}

// audioDuration returns the narration length, or the default when the audio
// task did not complete.
func audioDuration(tc *orchestrator.TaskContext) time.Duration {
	var c AudioContent
	if err := tc.Decode(TaskAudio, &c); err != nil || c.DurationSeconds <= 0 {
		return DefaultAudioDuration
	}
	return time.Duration(c.DurationSeconds * float64(time.Second))
}

func (p *pipeline) sentiment(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	const op = "pipeline.sentiment"

	u, err := p.load(tc, TaskScript)
	if err != nil {
		return domain.TaskResult{}, err
	}
	duration := audioDuration(tc)
	count := SceneCount(duration)

	prompt, err := render(promptSentiment, struct {
		Script     string
		SceneCount int
	}{u.Script, count})
	if err != nil {
		return domain.TaskResult{}, domain.E(domain.KindConfiguration, op, err)
	}

	// Unparseable replies are retried along with transport failures.
	scenes, err := retry.DoValue(ctx, tc.Retry(), "generate scenes", func(ctx context.Context) ([]Scene, error) {
		reply, err := p.Text.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		scenes, err := ParseSentiments(reply)
		if err != nil {
			return nil, domain.E(domain.KindExternalService, op, err)
		}
		return scenes, nil
	})
	if err != nil {
		return domain.TaskResult{}, err
	}

	meta := &SceneMetadata{
		AudioDuration: duration.Seconds(),
		SceneDuration: duration.Seconds() / float64(count),
		Dimensions:    Dimensions(duration),
	}
	for i := range scenes {
		scenes[i].Metadata = meta
	}

	return tc.Success(SentimentContent{
		Sentiments:    scenes,
		SceneCount:    count,
		AudioDuration: duration.Seconds(),
		Dimensions:    meta.Dimensions,
	})
}

func (p *pipeline) storyboard(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	const op = "pipeline.storyboard"

	var in SentimentContent
	if err := tc.Decode(TaskSentiment, &in); err != nil {
		return domain.TaskResult{}, err
	}
	if len(in.Sentiments) == 0 {
		return domain.TaskResult{}, domain.Errorf(domain.KindValidation, op, "no scenes to expand")
	}

	details, report, err := orchestrator.FanOut(ctx, tc, in.Sentiments, func(ctx context.Context, s Scene) (SceneDetail, error) {
		prompt, err := render(promptScene, struct{ Description string }{s.SceneDescription})
		if err != nil {
			return SceneDetail{}, domain.E(domain.KindConfiguration, op, err)
		}
		text, err := p.Text.Generate(ctx, prompt)
		if err != nil {
			return SceneDetail{}, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return SceneDetail{}, domain.E(domain.KindExternalService, op,
				fmt.Errorf("%w: empty scene description", generation.ErrInvalidResponse))
		}
		return SceneDetail{
			SceneNumber:         s.SceneNumber,
			OriginalDescription: s.SceneDescription,
			DetailedDescription: text,
		}, nil
	})
	if err != nil {
		return domain.TaskResult{}, err
	}
	if report.Succeeded == 0 {
		return domain.TaskResult{}, domain.Errorf(domain.KindExternalService, op,
			"all %d scenes failed", report.Total)
	}
	logReport(ctx, tc.Logger, "storyboard scenes expanded", report)

	return tc.Success(StoryboardContent{
		Scenes:       details,
		TotalScenes:  report.Succeeded,
		FailedScenes: report.Dropped,
	})
}

func (p *pipeline) images(ctx context.Context, tc *orchestrator.TaskContext) (domain.TaskResult, error) {
	const op = "pipeline.images"

	var in StoryboardContent
	if err := tc.Decode(TaskStoryboard, &in); err != nil {
		return domain.TaskResult{}, err
	}
	if len(in.Scenes) == 0 {
		return domain.TaskResult{}, domain.Errorf(domain.KindValidation, op, "no scenes to render")
	}

	total := audioDuration(tc)
	sceneDuration := total.Seconds() / float64(len(in.Scenes))
	hd := HDSize(total)

	rendered, report, err := orchestrator.FanOut(ctx, tc, in.Scenes, func(_ context.Context, s SceneDetail) (SceneImages, error) {
		if strings.TrimSpace(s.DetailedDescription) == "" {
			return SceneImages{}, domain.Errorf(domain.KindValidation, op,
				"scene %d has no description", s.SceneNumber)
		}
		prompt := Promptify(s.DetailedDescription)
		seed := p.Seed()
		return SceneImages{
			SceneNumber: s.SceneNumber,
			Description: s.DetailedDescription,
			ImagePrompt: prompt,
			Seed:        seed,
			Images: ImageSet{
				Preview: p.Images.ImageURL(prompt, PreviewSize, seed),
				Display: p.Images.ImageURL(prompt, DisplaySize, seed),
				HD:      p.Images.ImageURL(prompt, hd, seed),
			},
			Timing: SceneTiming{
				Start:    float64(max(s.SceneNumber-1, 0)) * sceneDuration,
				Duration: sceneDuration,
			},
		}, nil
	})
	if err != nil {
		return domain.TaskResult{}, err
	}
	if report.Succeeded == 0 {
		return domain.TaskResult{}, domain.Errorf(domain.KindValidation, op,
			"all %d scenes failed", report.Total)
	}
	logReport(ctx, tc.Logger, "scene images prepared", report)

	return tc.Success(ImagesContent{
		Scenes: rendered,
		Metadata: ImagesMetadata{
			TotalDuration: total.Seconds(),
			SceneDuration: sceneDuration,
			Dimensions:    Dimensions(total),
		},
		TotalScenes:  report.Succeeded,
		FailedScenes: report.Dropped,
	})
}

func logReport(ctx context.Context, logger *slog.Logger, msg string, r orchestrator.FanOutReport) {
	level := slog.LevelInfo
	if r.Dropped > 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, msg, "total", r.Total, "succeeded", r.Succeeded, "dropped", r.Dropped)
}
