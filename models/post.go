package models

import (
	"time"

	"github.com/pinkhuff/blog-api/markdown"
)

// Post is the sole persisted entity: one row per blog post, with a
// synchronized full-text index entry when published.
//
// HTMLContent is always derived from Content at write time and is never
// editable on its own. Tags are stored flattened as a comma-joined string
// and re-expanded on read.
type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Slug        string    `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	Content     string    `gorm:"type:text;not null" json:"content,omitempty"`
	HTMLContent string    `gorm:"column:html_content;type:text;not null" json:"html_content,omitempty"`
	Excerpt     string    `gorm:"type:text" json:"excerpt"`
	Author      string    `gorm:"size:100;not null;default:'Pinkhuff'" json:"author"`
	Tags        string    `gorm:"type:text" json:"-"`
	Published   bool      `gorm:"not null;default:true;index" json:"published"`
	ViewCount   int64     `gorm:"column:view_count;not null;default:0" json:"view_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TagList expands the flattened tag representation for display.
func (p *Post) TagList() []string {
	return markdown.SplitTags(p.Tags)
}
