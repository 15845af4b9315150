package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/postdeck/internal/model"
)

// GroupStatus は一括整合処理におけるグループごとの結果。
type GroupStatus string

const (
	// GroupUnchanged はデフォルトが0件または1件で変更不要だったグループ。
	GroupUnchanged GroupStatus = "unchanged"
	// GroupRepaired は重複デフォルトを解除したグループ。
	GroupRepaired GroupStatus = "repaired"
	// GroupFailed はトランザクションが失敗したグループ。
	GroupFailed GroupStatus = "failed"
	// GroupSkipped はキャンセルにより処理しなかったグループ。
	GroupSkipped GroupStatus = "skipped"
)

// GroupOutcome は1グループ分の整合結果。
type GroupOutcome struct {
	Group   model.AccountGroup
	Status  GroupStatus
	Kept    string
	Cleared []string
	Err     error
}

// SweepReport はReconcileAllの実行結果。
// Groupsは列挙順に並ぶ。
type SweepReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Groups     []GroupOutcome
}

// Count は指定状態のグループ数を返す。
func (r SweepReport) Count(status GroupStatus) int {
	n := 0
	for _, g := range r.Groups {
		if g.Status == status {
			n++
		}
	}
	return n
}

// Duration は処理時間を返す。
func (r SweepReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ReconcileAll は未削除アカウントを持つ全グループに対してReconcileGroupを実行する。
// グループごとに独立したトランザクションで処理し、失敗したグループがあっても残りの処理を続ける。
// 失敗があった場合はレポートとともにPARTIAL_SWEEP_FAILUREを返す。
// ctxがキャンセルされると新しいグループの開始を止め、未着手のグループはskippedとして報告し、
// 返すエラーはctx.Err()をラップする。
func (e *DefaultEnforcer) ReconcileAll(ctx context.Context) (SweepReport, error) {
	report := SweepReport{StartedAt: e.now()}

	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		report.FinishedAt = e.now()
		return report, toStorageFailure("list account groups", err)
	}

	report.Groups = make([]GroupOutcome, len(groups))
	for i, g := range groups {
		report.Groups[i] = GroupOutcome{Group: g, Status: GroupSkipped}
	}

	e.logger.Info("全グループの整合処理を開始します",
		slog.Int("group_count", len(groups)),
		slog.Int("concurrency", e.sweep.Concurrency),
	)

	limiter := e.newLimiter()

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, e.sweep.Concurrency)
	var wg sync.WaitGroup
	var waitErr error

dispatch:
	for i, g := range groups {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		// 次のトークンが期限後になる場合、ctx.Err()がnilのままWaitは失敗する
		if err := limiter.Wait(ctx); err != nil {
			<-sem
			waitErr = err
			break dispatch
		}

		wg.Add(1)
		go func(i int, g model.AccountGroup) {
			defer wg.Done()
			defer func() { <-sem }()

			// 各ゴルーチンは自分の添字にのみ書き込む
			report.Groups[i] = e.reconcileOutcome(ctx, g)
		}(i, g)
	}

	wg.Wait()
	report.FinishedAt = e.now()

	var groupErrs []error
	for _, o := range report.Groups {
		if o.Status == GroupFailed {
			groupErrs = append(groupErrs, fmt.Errorf("%s: %w", o.Group, o.Err))
		}
	}
	skipped := report.Count(GroupSkipped)
	e.recorder.RecordGroupsReconciled(string(GroupSkipped), skipped)
	e.recorder.RecordSweepDuration(report.Duration())
	e.recorder.SetSweepFailedGroups(len(groupErrs))

	e.logger.Info("全グループの整合処理が完了しました",
		slog.Int("group_count", len(groups)),
		slog.Int("unchanged", report.Count(GroupUnchanged)),
		slog.Int("repaired", report.Count(GroupRepaired)),
		slog.Int("failed", len(groupErrs)),
		slog.Int("skipped", skipped),
		slog.Float64("duration_ms", float64(report.Duration().Milliseconds())),
	)

	var errs []error
	if len(groupErrs) > 0 {
		errs = append(errs, model.NewPartialSweepFailureError(len(groupErrs), len(groups), errors.Join(groupErrs...)))
	}
	if cause := interruptCause(ctx, waitErr); cause != nil {
		errs = append(errs, fmt.Errorf("reconcile sweep interrupted: %w", cause))
	}
	switch len(errs) {
	case 0:
		return report, nil
	case 1:
		return report, errs[0]
	default:
		return report, errors.Join(errs...)
	}
}

// interruptCause はsweepを途中で止めた原因を返す。
// レートリミッタが期限内にトークンを用意できなかった場合はcontext.DeadlineExceededをラップする。
func interruptCause(ctx context.Context, waitErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, waitErr)
	}
	return nil
}

func (e *DefaultEnforcer) reconcileOutcome(ctx context.Context, g model.AccountGroup) GroupOutcome {
	res, err := e.ReconcileGroup(ctx, g.UserID, g.Platform)
	if err != nil {
		e.logger.Error("グループの整合処理に失敗しました",
			slog.String("group", g.String()),
			slog.String("error", err.Error()),
		)
		return GroupOutcome{Group: g, Status: GroupFailed, Err: err}
	}

	status := GroupUnchanged
	if res.Repaired() {
		status = GroupRepaired
	}
	return GroupOutcome{Group: g, Status: status, Kept: res.Kept, Cleared: res.Cleared}
}

// newLimiter はトランザクション開始を制限するトークンバケットを生成する。
func (e *DefaultEnforcer) newLimiter() *rate.Limiter {
	if e.sweep.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, e.sweep.Concurrency)
	}
	return rate.NewLimiter(rate.Limit(e.sweep.RatePerSecond), e.sweep.Concurrency)
}
