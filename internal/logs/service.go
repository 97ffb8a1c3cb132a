// Package logs は過去ログの検索と日別・月別のテキストエクスポートを提供する。
package logs

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/bbs/internal/model"
	"github.com/hitoshi/bbs/internal/repository"
)

const (
	dateLayout      = "2006-01-02"
	monthLayout     = "2006-01"
	createdAtLayout = "2006-01-02 15:04:05"
	separatorWidth  = 60
)

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// LogService は過去ログのユースケースを提供する。
type LogService struct {
	repo repository.PostRepository
	loc  *time.Location
}

// NewLogService はLogServiceの新しいインスタンスを生成する。
// locはエクスポートの作成日時表記に使うタイムゾーン。
func NewLogService(repo repository.PostRepository, loc *time.Location) *LogService {
	if loc == nil {
		loc = time.UTC
	}
	return &LogService{repo: repo, loc: loc}
}

// HasCriteria は検索条件が1つでも指定されているかを返す。
func HasCriteria(query, fromDate, toDate string) bool {
	return strings.TrimSpace(query) != "" ||
		strings.TrimSpace(fromDate) != "" ||
		strings.TrimSpace(toDate) != ""
}

// SearchLogs は検索語と作成日の範囲で過去ログを検索する。
// 日付は空なら無制限。指定時はYYYY-MM-DD形式の実在する日付でなければならない。
func (s *LogService) SearchLogs(ctx context.Context, query, fromDate, toDate string) ([]model.Post, error) {
	from, err := normalizeOptionalDate(fromDate, "開始日")
	if err != nil {
		return nil, err
	}
	to, err := normalizeOptionalDate(toDate, "終了日")
	if err != nil {
		return nil, err
	}
	if from != "" && to != "" && from > to {
		return nil, model.NewInvalidDateRangeError()
	}
	return s.repo.Search(ctx, query, from, to)
}

// ListDownloadableDates は日別の投稿件数を新しい順に返す。
func (s *LogService) ListDownloadableDates(ctx context.Context) ([]model.PeriodCount, error) {
	return s.repo.ListDatesWithCounts(ctx)
}

// ListDownloadableMonths は月別の投稿件数を新しい順に返す。
func (s *LogService) ListDownloadableMonths(ctx context.Context) ([]model.PeriodCount, error) {
	return s.repo.ListMonthsWithCounts(ctx)
}

// BuildDailyLogText は指定日の投稿をテキスト形式で書き出す。
func (s *LogService) BuildDailyLogText(ctx context.Context, date string) (string, error) {
	date = strings.TrimSpace(date)
	if !isValidDate(date) {
		return "", model.NewInvalidDateError("日付")
	}
	posts, err := s.repo.FindByDate(ctx, date)
	if err != nil {
		return "", err
	}
	return s.render("Date: "+date, posts), nil
}

// BuildMonthlyLogText は指定月の投稿をテキスト形式で書き出す。
func (s *LogService) BuildMonthlyLogText(ctx context.Context, month string) (string, error) {
	month = strings.TrimSpace(month)
	if !isValidMonth(month) {
		return "", model.NewInvalidMonthError()
	}
	posts, err := s.repo.FindByMonth(ctx, month)
	if err != nil {
		return "", err
	}
	return s.render("Month: "+month, posts), nil
}

// render はヘッダーと投稿ごとのブロックを改行で連結する。末尾にも改行を付ける。
func (s *LogService) render(header string, posts []model.Post) string {
	lines := make([]string, 0, 3+len(posts)*3)
	lines = append(lines,
		header,
		fmt.Sprintf("Count: %d", len(posts)),
		strings.Repeat("=", separatorWidth),
	)
	for _, p := range posts {
		lines = append(lines,
			fmt.Sprintf("[%d] %s / %s / %s", p.ID, p.Author, p.Title, p.CreatedAt.In(s.loc).Format(createdAtLayout)),
			p.Body,
			strings.Repeat("-", separatorWidth),
		)
	}
	return strings.Join(lines, "\n") + "\n"
}

// DailyFilename は日別ログのダウンロードファイル名を返す。
func DailyFilename(date string) string {
	return "posts-" + strings.TrimSpace(date) + ".txt"
}

// MonthlyFilename は月別ログのダウンロードファイル名を返す。
func MonthlyFilename(month string) string {
	return "posts-" + strings.TrimSpace(month) + ".txt"
}

func normalizeOptionalDate(date, label string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", nil
	}
	if !isValidDate(date) {
		return "", model.NewInvalidDateError(label)
	}
	return date, nil
}

// isValidDate はYYYY-MM-DD形式かつ暦上に実在する日付かを返す。
func isValidDate(date string) bool {
	if !datePattern.MatchString(date) {
		return false
	}
	_, err := time.Parse(dateLayout, date)
	return err == nil
}

// isValidMonth はYYYY-MM形式かつ月が1〜12かを返す。
func isValidMonth(month string) bool {
	if !monthPattern.MatchString(month) {
		return false
	}
	_, err := time.Parse(monthLayout, month)
	return err == nil
}
