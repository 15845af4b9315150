// Package reconcile はデフォルトアカウント整合処理の定期実行を提供する。
// 起動直後に1回、その後は一定間隔で全グループの整合処理を実行する。
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/postdeck/internal/account"
)

// Sweeper は全グループ整合処理の実行インターフェース。
type Sweeper interface {
	ReconcileAll(ctx context.Context) (account.SweepReport, error)
}

// Runner は整合処理を定期的に実行するワーカー。
// 1回の実行が長引いても次の実行とは重ならない。
type Runner struct {
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration
}

// NewRunner はRunnerを生成する。
// timeoutが0より大きい場合、1回の整合処理全体にその期限を設定する。
func NewRunner(sweeper Sweeper, logger *slog.Logger, timeout time.Duration) *Runner {
	return &Runner{
		sweeper: sweeper,
		logger:  logger,
		timeout: timeout,
	}
}

// Start は指定間隔のティッカーで整合処理を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("整合ワーカーを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	r.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("整合ワーカーを停止しました")
			return
		case <-ticker.C:
			r.runAndLog(ctx)
		}
	}
}

// RunOnce は全グループの整合処理を1回実行する。
func (r *Runner) RunOnce(ctx context.Context) (account.SweepReport, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.sweeper.ReconcileAll(ctx)
}

func (r *Runner) runAndLog(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("整合サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
