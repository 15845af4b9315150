package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/postdeck/internal/metrics"
	"github.com/hitoshi/postdeck/internal/model"
)

// skipRecorder はskippedとして記録されたグループ数と呼び出し回数を数える。
type skipRecorder struct {
	metrics.Noop
	calls   int
	skipped int
}

func (r *skipRecorder) RecordGroupsReconciled(status string, count int) {
	if status == string(GroupSkipped) {
		r.calls++
		r.skipped += count
	}
}

func sweepFixture() *fakeStore {
	u2 := testAccount(idD, model.PlatformTwitter, true, baseTime)
	u2.UserID = "user-2"
	return newFakeStore(
		// user-1/linkedin: 重複あり
		testAccount(idA, model.PlatformLinkedIn, true, baseTime.Add(time.Minute)),
		testAccount(idB, model.PlatformLinkedIn, true, baseTime),
		// user-1/twitter: デフォルト1件
		testAccount(idC, model.PlatformTwitter, true, baseTime),
		// user-2/twitter: デフォルト1件
		u2,
	)
}

func TestReconcileAll_RepairsEveryGroup(t *testing.T) {
	store := sweepFixture()
	e := newTestEnforcer(store)

	report, err := e.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(report.Groups))
	}
	if n := report.Count(GroupRepaired); n != 1 {
		t.Errorf("repaired = %d, want 1", n)
	}
	if n := report.Count(GroupUnchanged); n != 2 {
		t.Errorf("unchanged = %d, want 2", n)
	}
	if store.get(idB).IsDefault {
		t.Error("older duplicate default should be cleared")
	}
	if !store.get(idA).IsDefault {
		t.Error("newest default should be kept")
	}
}

func TestReconcileAll_NoGroups(t *testing.T) {
	e := newTestEnforcer(newFakeStore())

	report, err := e.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Groups) != 0 {
		t.Errorf("groups = %d, want 0", len(report.Groups))
	}
}

func TestReconcileAll_ListGroupsFailure(t *testing.T) {
	store := newFakeStore()
	store.listGroupsErr = errors.New("connection refused")
	e := newTestEnforcer(store)

	_, err := e.ReconcileAll(context.Background())
	if !errors.Is(err, model.ErrStorageFailure) {
		t.Fatalf("err = %v, want STORAGE_FAILURE", err)
	}
}

// 一部グループの失敗は残りの処理を止めない
func TestReconcileAll_PartialFailure(t *testing.T) {
	store := sweepFixture()
	failing := model.AccountGroup{UserID: testUserID, Platform: model.PlatformTwitter}
	store.lockErr[failing] = errors.New("lock timeout")
	e := newTestEnforcer(store)

	report, err := e.ReconcileAll(context.Background())
	if !errors.Is(err, model.ErrPartialSweepFailure) {
		t.Fatalf("err = %v, want PARTIAL_SWEEP_FAILURE", err)
	}
	if !errors.Is(err, model.ErrStorageFailure) {
		t.Error("group errors should be joined into the sweep error")
	}

	if n := report.Count(GroupFailed); n != 1 {
		t.Errorf("failed = %d, want 1", n)
	}
	if n := report.Count(GroupRepaired); n != 1 {
		t.Errorf("repaired = %d, want 1", n)
	}
	for _, o := range report.Groups {
		if o.Group == failing {
			if o.Status != GroupFailed || o.Err == nil {
				t.Errorf("failing group outcome = %+v", o)
			}
		}
	}
}

// キャンセル後に未着手のグループはskippedとして報告される
func TestReconcileAll_CanceledSkipsRemainingGroups(t *testing.T) {
	store := newFakeStore(
		testAccount(idA, model.PlatformFacebook, true, baseTime),
		testAccount(idB, model.PlatformInstagram, true, baseTime),
		testAccount(idC, model.PlatformLinkedIn, true, baseTime),
		testAccount(idD, model.PlatformTwitter, true, baseTime),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	second := model.AccountGroup{UserID: testUserID, Platform: model.PlatformInstagram}
	store.onLock = func(_ context.Context, g model.AccountGroup) {
		if g == second {
			cancel()
		}
	}

	e := newTestEnforcer(store)
	e.sweep.Concurrency = 1

	report, err := e.ReconcileAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	want := []GroupStatus{GroupUnchanged, GroupFailed, GroupSkipped, GroupSkipped}
	if len(report.Groups) != len(want) {
		t.Fatalf("groups = %d, want %d", len(report.Groups), len(want))
	}
	for i, o := range report.Groups {
		if o.Status != want[i] {
			t.Errorf("group %s status = %s, want %s", o.Group, o.Status, want[i])
		}
	}
	if len(store.locked) != 2 {
		t.Errorf("locked groups = %v, want only the first two", store.locked)
	}
}

func TestReconcileAll_RespectsRateLimit(t *testing.T) {
	store := sweepFixture()
	e := newTestEnforcer(store)
	e.sweep = SweepConfig{Concurrency: 1, RatePerSecond: 1000}

	report, err := e.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Count(GroupSkipped) != 0 {
		t.Errorf("skipped = %d, want 0", report.Count(GroupSkipped))
	}
}

// 次のトークンが期限に間に合わない場合、ctx.Err()がnilでも中断エラーを返す
func TestReconcileAll_RateLimitBeyondDeadline_ReturnsError(t *testing.T) {
	store := newFakeStore(
		testAccount(idA, model.PlatformFacebook, true, baseTime),
		testAccount(idB, model.PlatformInstagram, true, baseTime),
		testAccount(idC, model.PlatformLinkedIn, true, baseTime),
		testAccount(idD, model.PlatformTwitter, true, baseTime),
	)
	rec := &skipRecorder{}
	e := newTestEnforcer(store)
	e.recorder = rec
	// 10秒に1トランザクション、バースト1
	e.sweep = SweepConfig{Concurrency: 1, RatePerSecond: 0.1}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	report, err := e.ReconcileAll(ctx)
	if err == nil {
		t.Fatal("expected error when groups are left unreconciled")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapping context.DeadlineExceeded", err)
	}
	if errors.Is(err, model.ErrPartialSweepFailure) {
		t.Errorf("err = %v, should not report group failures", err)
	}

	if n := report.Count(GroupUnchanged); n != 1 {
		t.Errorf("unchanged = %d, want 1", n)
	}
	if n := report.Count(GroupSkipped); n != 3 {
		t.Errorf("skipped = %d, want 3", n)
	}
	if len(store.locked) != 1 {
		t.Errorf("locked groups = %v, want only the first", store.locked)
	}
	if rec.calls != 1 || rec.skipped != 3 {
		t.Errorf("skipped metric calls=%d count=%d, want one call with 3", rec.calls, rec.skipped)
	}
}

func TestNewDefaultEnforcer_Defaults(t *testing.T) {
	e := NewDefaultEnforcer(newFakeStore(), nil, nil, SweepConfig{})
	if e.sweep.Concurrency != defaultSweepConcurrency {
		t.Errorf("Concurrency = %d, want %d", e.sweep.Concurrency, defaultSweepConcurrency)
	}
	if e.recorder == nil || e.logger == nil {
		t.Error("recorder and logger should have defaults")
	}
}
