package generator

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	entityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
		"—", "-",
		`\n`, "",
		"\r", "",
		"\n", "",
	)

	articlePolicy = newArticlePolicy()

	contentElements = "h2, h3, h4, p, ul, ol, li, a"
)

func newArticlePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "h2", "h3", "h4", "p", "ul", "ol", "li", "a")
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	return p
}

// CleanHTML normalises model output into WordPress-ready body HTML: entities
// decoded, line breaks removed, only h1-h4/p/lists/links kept, links reduced
// to href, empty elements dropped and the h1 removed (the post title carries it).
func CleanHTML(raw string) string {
	html := entityReplacer.Replace(raw)
	html = articlePolicy.Sanitize(html)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}

	doc.Find("h1").Remove()
	// Deepest first so a list emptied by removing its items goes too.
	elements := doc.Find(contentElements)
	for i := elements.Length() - 1; i >= 0; i-- {
		s := elements.Eq(i)
		if strings.TrimSpace(s.Text()) == "" && s.Children().Length() == 0 {
			s.Remove()
		}
	}

	out, err := doc.Find("body").Html()
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(out)
}
