package pipeline

// TextContent is the result of a plain text generation task.
type TextContent struct {
	Text string `json:"text"`
}

// TopicContent is the result of the topic task.
type TopicContent struct {
	Requested string `json:"requested"`
	Text      string `json:"text"`
}

// ScriptContent is the narration script.
type ScriptContent struct {
	Text       string `json:"text"`
	Characters int    `json:"characters"`
	Truncated  bool   `json:"truncated"`
}

// AudioContent describes synthesized narration. The audio bytes are stored
// separately under AudioKey.
type AudioContent struct {
	AudioKey        string  `json:"audio_key"`
	Format          string  `json:"format"`
	SizeBytes       int     `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	Dimensions      string  `json:"dimensions"`
}

// SceneMetadata carries timing shared by every scene of a storyboard.
type SceneMetadata struct {
	AudioDuration float64 `json:"audio_duration"`
	SceneDuration float64 `json:"scene_duration"`
	Dimensions    string  `json:"dimensions"`
}

// Scene is one scene proposed by the sentiment task.
type Scene struct {
	SceneNumber      int            `json:"scene_number"`
	SceneDescription string         `json:"scene_description"`
	Metadata         *SceneMetadata `json:"metadata,omitempty"`
}

// SentimentContent is the result of the sentiment task.
type SentimentContent struct {
	Sentiments    []Scene `json:"sentiments"`
	SceneCount    int     `json:"scene_count"`
	AudioDuration float64 `json:"audio_duration"`
	Dimensions    string  `json:"dimensions"`
}

// SceneDetail is a scene expanded into a detailed visual description.
type SceneDetail struct {
	SceneNumber         int    `json:"scene_number"`
	OriginalDescription string `json:"original_description"`
	DetailedDescription string `json:"detailed_description"`
}

// StoryboardContent is the result of the storyboard task.
type StoryboardContent struct {
	Scenes       []SceneDetail `json:"scenes"`
	TotalScenes  int           `json:"total_scenes"`
	FailedScenes int           `json:"failed_scenes"`
}

// ImageSet holds the URLs of one scene at each resolution.
type ImageSet struct {
	Preview string `json:"preview"`
	Display string `json:"display"`
	HD      string `json:"hd"`
}

// SceneTiming places a scene on the narration timeline, in seconds.
type SceneTiming struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// SceneImages is one rendered scene.
type SceneImages struct {
	SceneNumber int         `json:"scene_number"`
	Description string      `json:"description"`
	ImagePrompt string      `json:"image_prompt"`
	Seed        int         `json:"seed"`
	Images      ImageSet    `json:"images"`
	Timing      SceneTiming `json:"timing"`
}

// ImagesMetadata describes the timeline the images were cut for.
type ImagesMetadata struct {
	TotalDuration float64 `json:"total_duration"`
	SceneDuration float64 `json:"scene_duration"`
	Dimensions    string  `json:"dimensions"`
}

// ImagesContent is the result of the images task.
type ImagesContent struct {
	Scenes       []SceneImages  `json:"scenes"`
	Metadata     ImagesMetadata `json:"metadata"`
	TotalScenes  int            `json:"total_scenes"`
	FailedScenes int            `json:"failed_scenes"`
}
