package fourchan

import (
	"fmt"
	"strings"
)

// SummaryMaxWords is the number of words kept by Post.Summary.
const SummaryMaxWords = 15

// MediaHosts holds the base URLs used to derive image links.
type MediaHosts struct {
	Image string
	Thumb string
}

// DefaultMediaHosts are the public image and thumbnail hosts.
var DefaultMediaHosts = MediaHosts{
	Image: "https://i.4cdn.org",
	Thumb: "https://t.4cdn.org",
}

// ThreadStub is one entry of a board's thread index.
type ThreadStub struct {
	// No is the thread number, equal to the number of its OP.
	No int64 `json:"no"`

	// LastModified is the upstream modification time in unix seconds. It is
	// mostly monotonic, but stale reads may briefly report a lower value.
	LastModified int64 `json:"last_modified"`

	// Replies is the reply count at index time.
	Replies int64 `json:"replies"`
}

type indexPage struct {
	Page    int          `json:"page"`
	Threads []ThreadStub `json:"threads"`
}

type threadResponse struct {
	Posts []Post `json:"posts"`
}

// Post is a single post of a thread. Every upstream field used by the bridge
// is mapped explicitly; unknown fields are ignored.
type Post struct {
	// No is the post number, unique within a board. Posts are equal iff
	// their numbers are.
	No int64 `json:"no"`

	// Resto is the thread the post replies to, or 0 for an OP.
	Resto int64 `json:"resto"`

	Sticky       int    `json:"sticky,omitempty"`
	Closed       int    `json:"closed,omitempty"`
	Now          string `json:"now,omitempty"`
	Time         int64  `json:"time"`
	Name         string `json:"name,omitempty"`
	Trip         string `json:"trip,omitempty"`
	PosterID     string `json:"id,omitempty"`
	Capcode      string `json:"capcode,omitempty"`
	Country      string `json:"country,omitempty"`
	CountryName  string `json:"country_name,omitempty"`
	Subject      string `json:"sub,omitempty"`
	Comment      string `json:"com,omitempty"`
	Replies      int64  `json:"replies,omitempty"`
	Images       int64  `json:"images,omitempty"`
	LastModified int64  `json:"last_modified,omitempty"`
	SemanticURL  string `json:"semantic_url,omitempty"`
	UniqueIPs    int64  `json:"unique_ips,omitempty"`

	// Attachment fields. Tim is only set when the post carries a file.
	Filename    string `json:"filename,omitempty"`
	Tim         int64  `json:"tim,omitempty"`
	Ext         string `json:"ext,omitempty"`
	Fsize       int64  `json:"fsize,omitempty"`
	MD5         string `json:"md5,omitempty"`
	W           int    `json:"w,omitempty"`
	H           int    `json:"h,omitempty"`
	TnW         int    `json:"tn_w,omitempty"`
	TnH         int    `json:"tn_h,omitempty"`
	FileDeleted int    `json:"filedeleted,omitempty"`
	Spoiler     int    `json:"spoiler,omitempty"`

	// Board is not part of the upstream record; the client fills it in.
	Board string `json:"-"`

	media *MediaHosts
}

// Image describes a post attachment.
type Image struct {
	Filename string
	Tim      int64
	Ext      string
	Fsize    int64
	MD5      string
	W, H     int
	TnW, TnH int
	Board    string

	hosts MediaHosts
}

// URL returns the full size image link.
func (i Image) URL() string {
	return fmt.Sprintf("%s/%s/%d%s", i.hosts.Image, i.Board, i.Tim, i.Ext)
}

// ThumbURL returns the thumbnail link.
func (i Image) ThumbURL() string {
	return fmt.Sprintf("%s/%s/%ds.jpg", i.hosts.Thumb, i.Board, i.Tim)
}

func (i Image) String() string {
	return fmt.Sprintf("<Image %s%s (%dx%d)>", i.Filename, i.Ext, i.W, i.H)
}

// Equal reports whether both posts have the same number.
func (p Post) Equal(o Post) bool {
	return p.No == o.No
}

// IsReply reports whether the post is a reply rather than an OP.
func (p Post) IsReply() bool {
	return p.Resto != 0
}

// ThreadNo returns the number of the thread the post belongs to.
func (p Post) ThreadNo() int64 {
	if p.Resto == 0 {
		return p.No
	}
	return p.Resto
}

// Image returns the attachment, or nil when the post has none.
func (p Post) Image() *Image {
	if p.Tim == 0 {
		return nil
	}
	hosts := DefaultMediaHosts
	if p.media != nil {
		hosts = *p.media
	}
	return &Image{
		Filename: p.Filename,
		Tim:      p.Tim,
		Ext:      p.Ext,
		Fsize:    p.Fsize,
		MD5:      p.MD5,
		W:        p.W,
		H:        p.H,
		TnW:      p.TnW,
		TnH:      p.TnH,
		Board:    p.Board,
		hosts:    hosts,
	}
}

// Text renders the whole comment for display, prefixed by the image link.
func (p Post) Text() string {
	comment := Sanitize(p.Comment)
	if img := p.Image(); img != nil {
		comment = fmt.Sprintf("[%s] %s", img.URL(), comment)
	}
	return comment
}

// Summary renders the first line of the comment, cut to SummaryMaxWords
// words, with the subject and image link in front.
func (p Post) Summary() string {
	comment := Sanitize(p.Comment)
	if strings.TrimSpace(comment) == "" {
		comment = "(no post text)"
	} else {
		first, _, _ := strings.Cut(strings.TrimSpace(comment), "\n")
		words := strings.Fields(first)
		if len(words) > SummaryMaxWords {
			comment = strings.Join(words[:SummaryMaxWords], " ") + "..."
		} else {
			comment = strings.Join(words, " ")
		}
	}

	if sub := Sanitize(p.Subject); sub != "" {
		comment = fmt.Sprintf("\x02%s\x02: %s", sub, comment)
	}
	if img := p.Image(); img != nil {
		comment = fmt.Sprintf("[%s] %s", img.URL(), comment)
	}
	return comment
}

func (p Post) String() string {
	return fmt.Sprintf("<Post %s/%d>", p.Board, p.No)
}
