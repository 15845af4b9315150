package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/postdeck/internal/account"
	"github.com/hitoshi/postdeck/internal/model"
)

// groupLine はreconcileコマンドが1グループごとに出力するJSON行。
type groupLine struct {
	UserID   string   `json:"user_id"`
	Platform string   `json:"platform"`
	Status   string   `json:"status"`
	Kept     string   `json:"kept,omitempty"`
	Cleared  []string `json:"cleared,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// accountLine はaccountsコマンドが1アカウントごとに出力するJSON行。
type accountLine struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	Handle    string    `json:"handle"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// setDefaultLine はset-defaultコマンドの出力。
type setDefaultLine struct {
	UserID    string `json:"user_id"`
	Platform  string `json:"platform"`
	AccountID string `json:"account_id"`
	Cleared   int    `json:"cleared"`
	Flipped   bool   `json:"flipped"`
}

// runReconcile は整合処理を1回実行する。
// userIDとplatformが空の場合は全グループを対象にする。
// 出力を書き終えてから整合処理のエラーを返す。
func runReconcile(ctx context.Context, c *components, out io.Writer, userID, platform string) error {
	enc := json.NewEncoder(out)

	if userID != "" {
		p, err := model.ParsePlatform(platform)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
		defer cancel()

		res, err := c.enforcer.ReconcileGroup(ctx, userID, p)
		if err != nil {
			return err
		}
		status := account.GroupUnchanged
		if res.Repaired() {
			status = account.GroupRepaired
		}
		return enc.Encode(groupLine{
			UserID:   userID,
			Platform: string(p),
			Status:   string(status),
			Kept:     res.Kept,
			Cleared:  res.Cleared,
		})
	}

	report, sweepErr := c.enforcer.ReconcileAll(ctx)
	for _, g := range report.Groups {
		line := groupLine{
			UserID:   g.Group.UserID,
			Platform: string(g.Group.Platform),
			Status:   string(g.Status),
			Kept:     g.Kept,
			Cleared:  g.Cleared,
		}
		if g.Err != nil {
			line.Error = g.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}

	slog.Info("reconcile finished",
		slog.Int("groups", len(report.Groups)),
		slog.Int("repaired", report.Count(account.GroupRepaired)),
		slog.Int("failed", report.Count(account.GroupFailed)),
		slog.Int("skipped", report.Count(account.GroupSkipped)),
		slog.Float64("duration_ms", float64(report.Duration())/float64(time.Millisecond)),
	)
	return sweepErr
}

// runSetDefault は保守用にSetDefaultを実行する。
func runSetDefault(ctx context.Context, c *components, out io.Writer, userID, platform, accountID string) error {
	p, err := model.ParsePlatform(platform)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	res, err := c.enforcer.SetDefault(ctx, userID, p, accountID)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(setDefaultLine{
		UserID:    userID,
		Platform:  string(p),
		AccountID: res.AccountID,
		Cleared:   res.Cleared,
		Flipped:   res.Flipped,
	})
}

// runAccounts はユーザーの未削除アカウントを1行ずつ出力する。
func runAccounts(ctx context.Context, c *components, out io.Writer, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	accounts, err := c.service.List(ctx, userID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, a := range accounts {
		if err := enc.Encode(accountLine{
			ID:        a.ID,
			Platform:  string(a.Platform),
			Handle:    a.Handle,
			IsDefault: a.IsDefault,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}
