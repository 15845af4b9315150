// Package account は連携SNSアカウントのデフォルト整合ルールを提供する。
//
// 同一ユーザー・同一プラットフォームの未削除アカウントのうち、
// デフォルトフラグが立つものは高々1件でなければならない。
// DefaultEnforcerはこのルールを書き込み時（SetDefault）と
// 事後修復時（ReconcileGroup, ReconcileAll）の両方で保証する。
package account

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/postdeck/internal/database"
	"github.com/hitoshi/postdeck/internal/metrics"
	"github.com/hitoshi/postdeck/internal/model"
	"github.com/hitoshi/postdeck/internal/repository"
)

const (
	defaultSweepConcurrency = 4
)

// SweepConfig はReconcileAllの並列数と開始レートを指定する。
type SweepConfig struct {
	// Concurrency は同時に実行するグループトランザクションの最大数。0以下の場合は4。
	Concurrency int
	// RatePerSecond は1秒あたりに開始するトランザクション数の上限。0以下の場合は無制限。
	RatePerSecond float64
}

// SetDefaultResult はSetDefaultの実行結果。
type SetDefaultResult struct {
	Group     model.AccountGroup
	AccountID string
	// Cleared はデフォルトを解除した他アカウントの件数。
	Cleared int
	// Flipped は対象アカウントのフラグが false から true に変わったかどうか。
	Flipped bool
}

// ReconcileResult はReconcileGroupの実行結果。
type ReconcileResult struct {
	Group model.AccountGroup
	// Kept は残したデフォルトアカウントのID。デフォルトが無い場合は空。
	Kept string
	// Cleared はデフォルトを解除したアカウントのID。
	Cleared []string
}

// Repaired は重複デフォルトを解除したかどうかを返す。
func (r ReconcileResult) Repaired() bool {
	return len(r.Cleared) > 0
}

// DefaultEnforcer はグループ単位でデフォルトアカウントの一意性を保証する。
type DefaultEnforcer struct {
	store    repository.AccountGroupStore
	recorder metrics.Recorder
	logger   *slog.Logger
	sweep    SweepConfig
	now      func() time.Time
}

// NewDefaultEnforcer はDefaultEnforcerを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewDefaultEnforcer(
	store repository.AccountGroupStore,
	recorder metrics.Recorder,
	logger *slog.Logger,
	sweep SweepConfig,
) *DefaultEnforcer {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sweep.Concurrency <= 0 {
		sweep.Concurrency = defaultSweepConcurrency
	}
	return &DefaultEnforcer{
		store:    store,
		recorder: recorder,
		logger:   logger,
		sweep:    sweep,
		now:      time.Now,
	}
}

// SetDefault は指定アカウントをグループのデフォルトにする。
// グループの他のデフォルトはすべて同一トランザクション内で解除される。
// 対象が存在しない、論理削除済み、または別グループに属する場合はACCOUNT_NOT_FOUNDを返し、何も変更しない。
func (e *DefaultEnforcer) SetDefault(ctx context.Context, userID string, platform model.Platform, accountID string) (SetDefaultResult, error) {
	group := model.AccountGroup{UserID: userID, Platform: platform}
	result := SetDefaultResult{Group: group, AccountID: accountID}

	if !platform.Valid() {
		e.recorder.RecordSetDefault(metrics.ResultError)
		return result, model.NewInvalidPlatformError(string(platform))
	}
	if _, err := uuid.Parse(accountID); err != nil {
		e.recorder.RecordSetDefault(metrics.ResultNotFound)
		return result, model.NewAccountNotFoundError(accountID)
	}

	err := e.store.WithGroupLock(ctx, group, func(ctx context.Context, tx repository.AccountGroupTx) error {
		active, err := tx.ListActive(ctx)
		if err != nil {
			return err
		}
		if findAccount(active, accountID) == nil {
			return model.NewAccountNotFoundError(accountID)
		}

		at := e.now()
		for _, a := range active {
			if a.ID == accountID || !a.IsDefault {
				continue
			}
			cleared, err := tx.SetDefaultFlag(ctx, a.ID, false, at)
			if err != nil {
				return err
			}
			if cleared {
				result.Cleared++
			}
		}

		flipped, err := tx.SetDefaultFlag(ctx, accountID, true, at)
		if err != nil {
			return err
		}
		result.Flipped = flipped
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			e.recorder.RecordSetDefault(metrics.ResultNotFound)
			return SetDefaultResult{Group: group, AccountID: accountID}, err
		}
		e.recorder.RecordSetDefault(metrics.ResultError)
		e.logger.Error("デフォルトアカウントの設定に失敗しました",
			slog.String("group", group.String()),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return SetDefaultResult{Group: group, AccountID: accountID}, toStorageFailure("set default", err)
	}

	e.recorder.RecordSetDefault(metrics.ResultOK)
	e.recorder.RecordDefaultsCleared(result.Cleared)
	e.logger.Info("デフォルトアカウントを設定しました",
		slog.String("group", group.String()),
		slog.String("account_id", accountID),
		slog.Int("cleared", result.Cleared),
		slog.Bool("flipped", result.Flipped),
	)
	return result, nil
}

// AddAccount はアカウントをグループに追加する。
// makeDefaultがtrueの場合、またはグループに未削除のデフォルトが無い場合は、
// 他のデフォルトを解除して追加したアカウントをデフォルトにする。
// 挿入とデフォルトの決定は同一トランザクションで行うため、失敗時は何も残らない。
// 成功時はaccount.IsDefaultに保存した値を設定する。
func (e *DefaultEnforcer) AddAccount(ctx context.Context, account *model.Account, makeDefault bool) (SetDefaultResult, error) {
	group := account.Group()
	result := SetDefaultResult{Group: group, AccountID: account.ID}
	if !group.Platform.Valid() {
		return result, model.NewInvalidPlatformError(string(group.Platform))
	}

	err := e.store.WithGroupLock(ctx, group, func(ctx context.Context, tx repository.AccountGroupTx) error {
		result = SetDefaultResult{Group: group, AccountID: account.ID}

		active, err := tx.ListActive(ctx)
		if err != nil {
			return err
		}
		defaults := rankDefaults(active)
		isDefault := makeDefault || len(defaults) == 0

		if isDefault {
			at := e.now()
			for _, a := range defaults {
				cleared, err := tx.SetDefaultFlag(ctx, a.ID, false, at)
				if err != nil {
					return err
				}
				if cleared {
					result.Cleared++
				}
			}
		}

		row := *account
		row.IsDefault = isDefault
		if err := tx.Insert(ctx, &row); err != nil {
			return err
		}
		result.Flipped = isDefault
		return nil
	})
	if err != nil {
		e.logger.Error("アカウントの追加に失敗しました",
			slog.String("group", group.String()),
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return SetDefaultResult{Group: group, AccountID: account.ID}, toStorageFailure("add account", err)
	}

	account.IsDefault = result.Flipped
	if result.Flipped {
		e.recorder.RecordSetDefault(metrics.ResultOK)
		e.recorder.RecordDefaultsCleared(result.Cleared)
	}
	return result, nil
}

// ReconcileGroup はグループ内の重複デフォルトを解消する。
// updated_atが最も新しいものを残し（同時刻はIDの昇順で先のもの）、残りを解除する。
// デフォルトが0件または1件の場合は何も変更しない。繰り返し実行しても結果は変わらない。
func (e *DefaultEnforcer) ReconcileGroup(ctx context.Context, userID string, platform model.Platform) (ReconcileResult, error) {
	group := model.AccountGroup{UserID: userID, Platform: platform}
	if !platform.Valid() {
		return ReconcileResult{Group: group}, model.NewInvalidPlatformError(string(platform))
	}

	var result ReconcileResult
	err := e.store.WithGroupLock(ctx, group, func(ctx context.Context, tx repository.AccountGroupTx) error {
		result = ReconcileResult{Group: group}

		active, err := tx.ListActive(ctx)
		if err != nil {
			return err
		}
		defaults := rankDefaults(active)
		if len(defaults) == 0 {
			return nil
		}
		result.Kept = defaults[0].ID
		if len(defaults) == 1 {
			return nil
		}

		at := e.now()
		for _, a := range defaults[1:] {
			cleared, err := tx.SetDefaultFlag(ctx, a.ID, false, at)
			if err != nil {
				return err
			}
			if cleared {
				result.Cleared = append(result.Cleared, a.ID)
			}
		}
		return nil
	})
	if err != nil {
		e.recorder.RecordGroupReconciled(string(GroupFailed))
		return ReconcileResult{Group: group}, toStorageFailure("reconcile group", err)
	}

	if result.Repaired() {
		e.recorder.RecordGroupReconciled(string(GroupRepaired))
		e.recorder.RecordDefaultsCleared(len(result.Cleared))
		e.logger.Warn("重複したデフォルトアカウントを解除しました",
			slog.String("group", group.String()),
			slog.String("kept", result.Kept),
			slog.Any("cleared", result.Cleared),
		)
	} else {
		e.recorder.RecordGroupReconciled(string(GroupUnchanged))
	}
	return result, nil
}

// rankDefaults はデフォルトフラグが立つアカウントを優先順に並べて返す。
// 先頭が残すべきデフォルト。
func rankDefaults(accounts []*model.Account) []*model.Account {
	var defaults []*model.Account
	for _, a := range accounts {
		if a.IsDefault && !a.IsDeleted() {
			defaults = append(defaults, a)
		}
	}
	sort.SliceStable(defaults, func(i, j int) bool {
		if !defaults[i].UpdatedAt.Equal(defaults[j].UpdatedAt) {
			return defaults[i].UpdatedAt.After(defaults[j].UpdatedAt)
		}
		return defaults[i].ID < defaults[j].ID
	})
	return defaults
}

func findAccount(accounts []*model.Account, id string) *model.Account {
	for _, a := range accounts {
		if a.ID == id && !a.IsDeleted() {
			return a
		}
	}
	return nil
}

// toStorageFailure はドメインエラー以外をSTORAGE_FAILUREに変換する。
func toStorageFailure(op string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	failure := model.NewStorageFailureError(op, err)
	failure.Temporary = database.IsRetryable(err)
	return failure
}
