// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 実行時刻はcron式で指定し、gronxで次回時刻を計算する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bbs/internal/repository"
)

// DefaultTimeout は1回の削除処理のタイムアウト。
const DefaultTimeout = 30 * time.Second

// CleanedRecorder は削除件数を記録するインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type CleanedRecorder interface {
	RecordSessionsCleaned(count int64)
}

// CleanupJob は有効期限を過ぎたセッションを削除するジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	deleter  repository.ExpiredSessionDeleter
	logger   *slog.Logger
	recorder CleanedRecorder
	Timeout  time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(deleter repository.ExpiredSessionDeleter, logger *slog.Logger, recorder CleanedRecorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		deleter:  deleter,
		logger:   logger,
		recorder: recorder,
		Timeout:  DefaultTimeout,
	}
}

// Run は期限切れセッションを削除し、件数をログとメトリクスに記録する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	deleted, err := j.deleter.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsCleaned(deleted)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
