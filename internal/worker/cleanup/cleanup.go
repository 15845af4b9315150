// Package cleanup は論理削除済みアカウントの自動削除ジョブを提供する。
// 保持期間（デフォルト180日）を超過した論理削除済みアカウントを
// 日次バッチで物理削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/postdeck/internal/repository"
)

// DefaultRetention は論理削除済みアカウントのデフォルト保持期間。
const DefaultRetention = 180 * 24 * time.Hour

// CleanupJob は保持期間を超過した論理削除済みアカウントの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	purger    repository.DeletedAccountPurger
	logger    *slog.Logger
	Retention time.Duration
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionが0以下の場合はDefaultRetentionを使う。
func NewCleanupJob(purger repository.DeletedAccountPurger, logger *slog.Logger, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &CleanupJob{
		purger:    purger,
		logger:    logger,
		Retention: retention,
		now:       time.Now,
	}
}

// Run は保持期間を超過した論理削除済みアカウントを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.Retention)

	deletedCount, err := j.purger.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("アカウントクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Float64("retention_days", j.Retention.Hours()/24),
		)
		return fmt.Errorf("アカウントクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("アカウントクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("retention_days", j.Retention.Hours()/24),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 起動直後に1回実行（エラーはRun内でログ出力済み）
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
