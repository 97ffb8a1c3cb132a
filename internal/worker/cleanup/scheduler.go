package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// retryDelay は次回時刻の計算に失敗したときの待ち時間。
const retryDelay = 30 * time.Second

// Job はスケジューラから実行される処理。
type Job interface {
	Run(ctx context.Context) error
}

// Scheduler はcron式に従ってジョブを実行する。
type Scheduler struct {
	job    Job
	expr   string
	loc    *time.Location
	logger *slog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// NewScheduler はSchedulerを生成する。cron式が不正な場合はエラーを返す。
// locはcron式を解釈するタイムゾーン。
func NewScheduler(job Job, expr string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression: %q", expr)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		job:    job,
		expr:   expr,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Next はfromより後の次回実行時刻を返す。
func (s *Scheduler) Next(from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, from.In(s.loc), false)
}

// Start はコンテキストがキャンセルされるまでジョブを実行し続ける。
// 起動直後に1回実行する。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("クリーンアップスケジューラを開始しました",
		slog.String("schedule", s.expr),
		slog.String("timezone", s.loc.String()),
	)

	s.runOnce(ctx)

	for {
		now := s.now()
		next, err := s.Next(now)
		wait := next.Sub(now)
		if err != nil {
			s.logger.Error("次回実行時刻の計算に失敗しました",
				slog.String("schedule", s.expr),
				slog.String("error", err.Error()),
			)
			wait = retryDelay
		} else {
			s.logger.Info("次回のクリーンアップを予約しました",
				slog.Time("next_run", next),
			)
		}
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			s.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-s.after(wait):
			if err == nil {
				s.runOnce(ctx)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job.Run(ctx); err != nil {
		s.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
