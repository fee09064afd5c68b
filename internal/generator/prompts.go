package generator

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
)

//go:embed prompts
var promptFS embed.FS

var (
	headingSystem = mustRead("prompts/heading_system.txt")
	contentSystem = mustRead("prompts/content_system.txt")

	promptTemplates = template.Must(template.New("").
			Funcs(template.FuncMap{"join": strings.Join}).
			ParseFS(promptFS, "prompts/*.tmpl"))

	// Parsed as HTML so backlink URLs and campaign text are escaped in attributes and bodies.
	fallbackContentTemplate = htmltemplate.Must(htmltemplate.ParseFS(promptFS, "prompts/fallback_content.tmpl"))
)

func mustRead(name string) string {
	b, err := promptFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("read embedded prompt %s: %v", name, err))
	}
	return strings.TrimSpace(string(b))
}

type headingPromptData struct {
	Category     string
	Location     string
	Keywords     []string
	UsedHeadings []string
}

type contentPromptData struct {
	Heading     string
	Category    string
	Location    string
	CompanyName string
	URLs        []string
	Keywords    []string
}

type fallbackLink struct {
	URL    string
	Anchor string
}

type fallbackContentData struct {
	Heading     string
	Category    string
	Location    string
	CompanyName string
	Links       []fallbackLink
}

func renderPrompt(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
