// Package view は埋め込みHTMLテンプレートによる画面描画を提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/security"
	"github.com/hitoshi/bbs/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// SiteTitle は全ページ共通のサイト名。
const SiteTitle = "あやしいわーるど＠あやしいわーるど"

// 画面名。templates/<name>.html に対応する。
const (
	PagePostsIndex  = "posts_index"
	PagePostsCreate = "posts_create"
	PagePostsEdit   = "posts_edit"
	PagePostsThread = "posts_thread"
	PageLogsIndex   = "logs_index"
	PagePress       = "press"
)

// Page はレイアウトに渡す共通データ。Dataに画面固有の値を入れる。
type Page struct {
	Title     string
	CSRFToken string
	Flash     session.Flash
	Notices   []string
	Data      any
}

// DocumentTitle は<title>に出す文字列を返す。
func (p Page) DocumentTitle() string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t + " | " + SiteTitle
	}
	return SiteTitle
}

// PostCard は投稿1件の表示に必要な値。
type PostCard struct {
	Post       model.Post
	Liked      bool
	CanManage  bool
	CSRFToken  string
	RedirectTo string
	ShowParent bool
}

// Renderer は画面ごとにレイアウトと組み合わせたテンプレートを保持する。
type Renderer struct {
	pages map[string]*template.Template
}

// New はテンプレートを読み込んでRendererを生成する。
// 本文の整形にformatterを、日時表示にlocを使う。
func New(formatter security.TextFormatterService, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	funcs := template.FuncMap{
		"formatBody": func(text string) template.HTML {
			// Formatはエスケープとサニタイズ済みのHTMLを返す
			return template.HTML(formatter.Format(text))
		},
		"datetime": func(t time.Time) string {
			return t.In(loc).Format("2006-01-02 15:04:05")
		},
		"ago": func(t time.Time) string {
			return humanize.Time(t)
		},
		"comma": func(n int) string {
			return humanize.Comma(int64(n))
		},
		"tagQuery": func(tag, ng string) string {
			v := url.Values{}
			v.Set("q", "#"+tag)
			if ng != "" {
				v.Set("ng", ng)
			}
			return "/posts?" + v.Encode()
		},
		"query": func(q string) string {
			return url.QueryEscape(q)
		},
	}

	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, path := range names {
		name := strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".html")
		if name == "layout" || name == "partials" {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout: %w", err)
		}
		if _, err := t.ParseFS(templateFS, path); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render は画面を描画してレスポンスに書き込む。
// 描画に失敗した場合は途中までの出力を送らずに500を返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) {
	t, ok := r.pages[name]
	if !ok {
		slog.Error("unknown template", slog.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
