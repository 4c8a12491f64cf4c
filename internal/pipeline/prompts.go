package pipeline

import (
	"bytes"
	"fmt"
	"text/template"
)

// Prompt template names.
const (
	promptTopic       = "topic"
	promptTrends      = "trends"
	promptOutline     = "outline"
	promptScript      = "script"
	promptHooks       = "hooks"
	promptKeywords    = "keywords"
	promptDescription = "description"
	promptSentiment   = "sentiment"
	promptScene       = "scene"
)

var prompts = template.Must(template.New("prompts").Parse(`
{{define "topic"}}You are a short-form video strategist. Starting from the subject "{{.Topic}}", propose one specific, curiosity-driven angle for a vertical video under sixty seconds. Reply with the angle as a single paragraph, followed by the target audience in one sentence.{{end}}

{{define "trends"}}Analyse what currently performs well in short-form video for this angle:

{{.Topic}}

Cover formats, pacing, visual styles and recurring viewer questions. Reply as a concise bulleted list.{{end}}

{{define "outline"}}Using this trend analysis:

{{.Trends}}

Outline a short video that maximises audience engagement: the opening beat, three to five content beats, and a closing call to action. Reply as a numbered list.{{end}}

{{define "script"}}Write the spoken narration for a vertical short video.

Trend analysis:
{{.Trends}}

Outline:
{{.Outline}}

Write only the words the narrator says, in plain sentences, without scene directions, headings or emoji. Keep it under {{.MaxChars}} characters.{{end}}

{{define "hooks"}}Topic: {{.Topic}}

Trends:
{{.Trends}}

Script:
{{.Script}}

Write five alternative opening hooks of at most twelve words each that would stop a viewer from scrolling. Reply as a numbered list.{{end}}

{{define "keywords"}}Trends:
{{.Trends}}

Script:
{{.Script}}

Hooks:
{{.Hooks}}

List fifteen search keywords and ten hashtags for this video, ordered by expected search volume. Reply with two bulleted lists.{{end}}

{{define "description"}}Trends:
{{.Trends}}

Script:
{{.Script}}

Hooks:
{{.Hooks}}

Write a publishing title of at most sixty characters and a description of at most three short paragraphs that works in the hooks naturally.{{end}}

{{define "sentiment"}}Break the following narration into exactly {{.SceneCount}} visual scenes, in order, each capturing one moment and the emotion it should evoke.

Narration:
{{.Script}}

Reply with JSON only, in this shape:
{"sentiments":[{"scene_number":1,"scene_description":"..."}]}{{end}}

{{define "scene"}}Describe a single photograph that illustrates this scene: {{.Description}}

Name the subject, setting, lighting, camera angle and mood in one paragraph of at most sixty words. Do not mention text, captions or logos.{{end}}
`))

func render(name string, data any) (string, error) {
	var b bytes.Buffer
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return b.String(), nil
}
