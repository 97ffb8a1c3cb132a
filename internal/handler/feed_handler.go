package handler

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/view"
)

const (
	// feedEntryLimit はAtomフィードに含める最大件数。
	feedEntryLimit = 50
	// feedTitleRunes は題名なし投稿の本文抜粋の最大文字数。
	feedTitleRunes = 40
	atomNamespace  = "http://www.w3.org/2005/Atom"
)

// FeedServiceInterface はAtomフィードが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
}

// atomFeed はAtom 1.0のfeed要素。
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	XMLNS   string      `xml:"xmlns,attr"`
	ID      string      `xml:"id"`
	Title   string      `xml:"title"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomContent struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

type atomEntry struct {
	ID      string      `xml:"id"`
	Title   string      `xml:"title"`
	Updated string      `xml:"updated"`
	Author  atomAuthor  `xml:"author"`
	Link    atomLink    `xml:"link"`
	Content atomContent `xml:"content"`
}

// FeedHandler は新着投稿のAtomフィードを返すHTTPハンドラー。
type FeedHandler struct {
	service FeedServiceInterface
	baseURL string
	now     func() time.Time
}

// NewFeedHandler はFeedHandlerを生成する。baseURLはリンクの絶対URLに使う。
func NewFeedHandler(service FeedServiceInterface, baseURL string) *FeedHandler {
	return &FeedHandler{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Atom は新しい順に最大50件の投稿をAtomフィードとして返す。
// GET /feed.atom
func (h *FeedHandler) Atom(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.ListPosts(r.Context())
	if err != nil {
		logServerError(r, "failed to list posts for feed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(posts) > feedEntryLimit {
		posts = posts[:feedEntryLimit]
	}

	updated := h.now()
	if len(posts) > 0 {
		updated = posts[0].CreatedAt
	}

	feed := atomFeed{
		XMLNS:   atomNamespace,
		ID:      h.baseURL + "/feed.atom",
		Title:   view.SiteTitle,
		Updated: updated.UTC().Format(time.RFC3339),
		Links: []atomLink{
			{Href: h.baseURL + "/feed.atom", Rel: "self", Type: "application/atom+xml"},
			{Href: h.baseURL + "/posts", Rel: "alternate", Type: "text/html"},
		},
		Entries: make([]atomEntry, 0, len(posts)),
	}
	for _, p := range posts {
		feed.Entries = append(feed.Entries, atomEntry{
			ID:      fmt.Sprintf("%s/posts/%d", h.baseURL, p.ID),
			Title:   entryTitle(p),
			Updated: p.CreatedAt.UTC().Format(time.RFC3339),
			Author:  atomAuthor{Name: p.Author},
			Link:    atomLink{Href: fmt.Sprintf("%s/posts/thread/%d#post-%d", h.baseURL, p.ThreadID, p.ID), Rel: "alternate"},
			Content: atomContent{Type: "text", Body: p.Body},
		})
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		logServerError(r, "failed to encode feed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// entryTitle は投稿の題名を返す。題名が空の場合は本文の先頭を抜粋する。
func entryTitle(p model.Post) string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	line := strings.TrimSpace(strings.SplitN(p.Body, "\n", 2)[0])
	if utf8.RuneCountInString(line) > feedTitleRunes {
		runes := []rune(line)
		line = string(runes[:feedTitleRunes]) + "…"
	}
	if line == "" {
		return fmt.Sprintf("#%d", p.ID)
	}
	return line
}
