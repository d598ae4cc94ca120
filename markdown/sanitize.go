package markdown

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// languageClassRe admits syntax-highlighting classes emitted for fenced
// code blocks (e.g. language-go).
var languageClassRe = regexp.MustCompile(`^language-[a-zA-Z0-9+#-]+$`)

var sanitizer = buildPolicy()

// buildPolicy constructs the allow-list applied to every rendered post.
// This policy is the security boundary between untrusted uploads and
// stored HTML: anything not listed here is stripped, not escaped.
func buildPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"a", "abbr", "b", "blockquote", "br", "caption", "code", "dd", "div",
		"dl", "dt", "em", "h1", "h2", "h3", "h4", "h5", "h6", "hr", "i",
		"img", "li", "ol", "p", "pre", "s", "span", "strike", "strong",
		"sub", "sup", "table", "tbody", "td", "th", "thead", "tr", "ul",
	)

	p.AllowAttrs("href", "name", "target", "rel").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowAttrs("class").Matching(languageClassRe).OnElements("code", "pre")
	p.AllowAttrs("class").OnElements("span", "div")
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("align").OnElements("td", "th")

	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)

	return p
}

// SanitizeHTML filters rendered HTML through the post allow-list policy.
func SanitizeHTML(input string) string {
	return sanitizer.Sanitize(input)
}
