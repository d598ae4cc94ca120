// Package markdown turns raw uploaded markdown documents into structured,
// sanitized post payloads. It is a pure transformation layer: no storage
// access, no knowledge of existing posts.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// MaxTitleLength bounds post titles, matching the public API contract.
const MaxTitleLength = 200

// DefaultAuthor is used when the front matter carries no author field.
const DefaultAuthor = "Pinkhuff"

const excerptLength = 200

// Validation and parse failures form a closed set so callers can map them
// onto distinct API responses.
var (
	ErrEmptyInput        = errors.New("markdown content is empty")
	ErrMissingTitle      = errors.New("missing required field: title")
	ErrMalformedMetadata = errors.New("invalid frontmatter")
	ErrTitleTooLong      = fmt.Errorf("title is too long (max %d characters)", MaxTitleLength)
)

// ParsedPost is the structured result of parsing an uploaded document.
// Derived fields (Slug, HTMLContent, Excerpt) sit alongside the verbatim
// body and the raw metadata map, so callers needing extra front-matter
// fields are not blocked by this contract.
type ParsedPost struct {
	Title       string
	Slug        string
	Content     string
	HTMLContent string
	Excerpt     string
	Author      string
	Tags        string
	Published   bool
	Metadata    map[string]any
}

var renderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		// Raw HTML passes through here and is stripped by the sanitizer
		// below, so disallowed constructs are removed rather than escaped.
		html.WithUnsafe(),
	),
)

// Validate checks an upload before parsing. It rejects empty documents,
// missing or oversized titles, and unparseable front matter.
func Validate(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrEmptyInput
	}

	meta, _, err := splitFrontMatter(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	title, _ := meta["title"].(string)
	if strings.TrimSpace(title) == "" {
		return ErrMissingTitle
	}
	if len([]rune(title)) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// Parse converts a raw markdown document with optional YAML front matter
// into a ParsedPost. Validation runs again here so Parse is safe to call
// directly.
func Parse(raw []byte) (*ParsedPost, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}

	meta, body, err := splitFrontMatter(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	title, _ := meta["title"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrMissingTitle
	}

	var buf bytes.Buffer
	if err := renderer.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	htmlContent := SanitizeHTML(buf.String())

	slug, _ := meta["slug"].(string)
	if slug == "" {
		slug = DeriveSlug(title)
	}

	excerpt, _ := meta["excerpt"].(string)
	if excerpt == "" {
		excerpt = ExtractExcerpt(string(body))
	}

	author, _ := meta["author"].(string)
	if author == "" {
		author = DefaultAuthor
	}

	published := true
	if v, ok := meta["published"].(bool); ok {
		published = v
	}

	return &ParsedPost{
		Title:       title,
		Slug:        slug,
		Content:     string(body),
		HTMLContent: htmlContent,
		Excerpt:     excerpt,
		Author:      author,
		Tags:        flattenTags(meta["tags"]),
		Published:   published,
		Metadata:    meta,
	}, nil
}

var (
	slugStripRe    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapseRe = regexp.MustCompile(`[\s_-]+`)
)

// DeriveSlug produces a URL-safe slug from a title. The derivation is
// deterministic and idempotent: lowercase, strip non-word characters,
// collapse whitespace/underscore/hyphen runs into single hyphens, and trim
// hyphens at either end.
func DeriveSlug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugCollapseRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

var (
	headerRe     = regexp.MustCompile(`#+\s`)
	boldRe       = regexp.MustCompile(`\*\*`)
	italicRe     = regexp.MustCompile(`\*`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	inlineCodeRe = regexp.MustCompile("`")
)

// ExtractExcerpt strips common markdown markup from the body and returns
// the first 200 characters of plain text, ellipsis-terminated when the
// body is longer.
func ExtractExcerpt(content string) string {
	plain := headerRe.ReplaceAllString(content, "")
	plain = boldRe.ReplaceAllString(plain, "")
	plain = italicRe.ReplaceAllString(plain, "")
	plain = linkRe.ReplaceAllString(plain, "$1")
	plain = inlineCodeRe.ReplaceAllString(plain, "")
	plain = strings.TrimSpace(plain)

	runes := []rune(plain)
	if len(runes) <= excerptLength {
		return plain
	}
	return string(runes[:excerptLength]) + "..."
}

var frontMatterDelim = []byte("---")

// splitFrontMatter separates an optional leading YAML block from the
// markdown body. A document without a front-matter block yields an empty
// metadata map and the full input as body.
func splitFrontMatter(raw []byte) (map[string]any, []byte, error) {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(normalized, frontMatterDelim) {
		return map[string]any{}, normalized, nil
	}
	rest, ok := bytes.CutPrefix(normalized, append(frontMatterDelim, '\n'))
	if !ok {
		return map[string]any{}, normalized, nil
	}

	end := bytes.Index(rest, []byte("\n---"))
	var block, body []byte
	if end < 0 {
		// Unterminated block: treat the whole remainder as metadata.
		block = rest
		body = nil
	} else {
		block = rest[:end]
		body = rest[end+len("\n---"):]
		body = bytes.TrimPrefix(body, []byte("\n"))
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal(block, &meta); err != nil {
		return nil, nil, err
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, body, nil
}

// flattenTags normalizes the front-matter tags field, which may be a YAML
// list or a scalar, into the comma-joined representation used for storage.
func flattenTags(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ",")
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// SplitTags expands the stored comma-joined representation back into a
// list, dropping empty entries but preserving order.
func SplitTags(tags string) []string {
	if tags == "" {
		return []string{}
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
