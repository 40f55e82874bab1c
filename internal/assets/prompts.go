// Package assets holds the prompt templates sent to the generative models.
//
// Templates are stored as text files under prompts/ and embedded at compile
// time so wording can change without touching the calling code.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed prompts/caption.txt
var captionTemplate string

//go:embed prompts/translate-image-prompt.txt
var translateTemplate string

// template.Must panics on malformed templates at program startup rather
// than at call time.
var (
	captionPromptTmpl   = template.Must(template.New("caption").Parse(captionTemplate))
	translatePromptTmpl = template.Must(template.New("translate").Parse(translateTemplate))
)

// CaptionPromptData is the dynamic part of the caption prompt.
type CaptionPromptData struct {
	// Language the post is written in, e.g. "Ukrainian".
	Language string
	// MetadataContext is the formatted EXIF section. Empty when the photo has none.
	MetadataContext string
}

// RenderCaptionPrompt renders the caption instruction.
func RenderCaptionPrompt(language, metadataContext string) string {
	return render(captionPromptTmpl, CaptionPromptData{Language: language, MetadataContext: metadataContext})
}

// RenderTranslatePrompt renders the instruction that turns an image prompt
// in any language into English.
func RenderTranslatePrompt(prompt string) string {
	return render(translatePromptTmpl, struct{ Prompt string }{prompt})
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// Execution errors are not expected with these templates; return
	// whatever was rendered.
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
