package account

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/postdeck/internal/model"
	"github.com/hitoshi/postdeck/internal/repository"
	"github.com/hitoshi/postdeck/internal/security"
)

// AccountAdder はデフォルトの決定を含めてアカウントを追加するインターフェース。
type AccountAdder interface {
	AddAccount(ctx context.Context, account *model.Account, makeDefault bool) (SetDefaultResult, error)
}

// ConnectInput はアカウント連携の入力。
type ConnectInput struct {
	UserID   string
	Platform string
	Handle   string
	// MakeDefault がtrueの場合、既存のデフォルトを置き換えて新しいアカウントをデフォルトにする。
	MakeDefault bool
}

// Service は連携アカウント管理のサービス層。
// アカウントの追加とデフォルトフラグの変更はAccountAdder経由で行う。
type Service struct {
	userRepo    repository.UserRepository
	accountRepo repository.AccountRepository
	adder       AccountAdder
	handles     *security.HandleSanitizer
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	accountRepo repository.AccountRepository,
	adder AccountAdder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:    userRepo,
		accountRepo: accountRepo,
		adder:       adder,
		handles:     security.NewHandleSanitizer(),
		logger:      logger,
		now:         time.Now,
	}
}

// Connect はアカウントを連携する。
// ハンドルはマークアップを除去したプレーンテキストとして保存する。
// MakeDefaultが指定された場合、またはグループにまだデフォルトが無い場合はデフォルトになる。
// 作成とデフォルトの決定は1つのトランザクションで行い、エラー時はアカウントを残さない。
func (s *Service) Connect(ctx context.Context, in ConnectInput) (*model.Account, error) {
	platform, err := model.ParsePlatform(in.Platform)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, toStorageFailure("find user", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := s.now().UTC()
	account := &model.Account{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Platform:  platform,
		Handle:    s.handles.Sanitize(in.Handle),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.adder.AddAccount(ctx, account, in.MakeDefault); err != nil {
		return nil, err
	}

	s.logger.Info("アカウントを連携しました",
		slog.String("user_id", account.UserID),
		slog.String("platform", string(account.Platform)),
		slog.String("account_id", account.ID),
		slog.Bool("is_default", account.IsDefault),
	)
	return account, nil
}

// Disconnect はユーザーが所有するアカウントを論理削除する。
// デフォルトフラグは変更しない。削除済みアカウントは整合処理の対象外になる。
func (s *Service) Disconnect(ctx context.Context, userID, accountID string) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return model.NewAccountNotFoundError(accountID)
	}

	ok, err := s.accountRepo.SoftDelete(ctx, userID, accountID, s.now())
	if err != nil {
		return toStorageFailure("disconnect account", err)
	}
	if !ok {
		return model.NewAccountNotFoundError(accountID)
	}

	s.logger.Info("アカウントの連携を解除しました",
		slog.String("user_id", userID),
		slog.String("account_id", accountID),
	)
	return nil
}

// DefaultFor はグループの現在のデフォルトアカウントを返す。
// 重複が残っている場合はReconcileGroupが残すものと同じアカウントを返す。
func (s *Service) DefaultFor(ctx context.Context, userID, platform string) (*model.Account, error) {
	p, err := model.ParsePlatform(platform)
	if err != nil {
		return nil, err
	}

	active, err := s.accountRepo.ListActive(ctx, model.AccountGroup{UserID: userID, Platform: p})
	if err != nil {
		return nil, toStorageFailure("find default account", err)
	}
	defaults := rankDefaults(active)
	if len(defaults) == 0 {
		return nil, model.NewNoDefaultAccountError(p)
	}
	return defaults[0], nil
}

// List はユーザーの未削除アカウントをplatform、created_at順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Account, error) {
	accounts, err := s.accountRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, toStorageFailure("list accounts", err)
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].Platform != accounts[j].Platform {
			return accounts[i].Platform < accounts[j].Platform
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}
