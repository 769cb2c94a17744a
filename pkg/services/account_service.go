package services

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/audit"
	"github.com/trucost-labs/trucost-engine/pkg/models"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
)

// Usage account ids are the numeric ids assigned by the cloud provider.
// They double as partition schema suffixes, so the format is enforced here.
var accountIDPattern = regexp.MustCompile(`^[0-9]{6,20}$`)

// AccountService maintains the tenant directory that TenantPartitioner
// resolves against.
type AccountService interface {
	// Register inserts or refreshes a directory entry. The billing sync
	// calls this for every account it discovers.
	Register(ctx context.Context, account *models.Account) error

	Get(ctx context.Context, usageAccountID string) (*models.Account, error)

	List(ctx context.Context) ([]*models.Account, error)
}

type accountService struct {
	accountRepo repositories.AccountRepository
	trail       *audit.Trail
	logger      *zap.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(accountRepo repositories.AccountRepository, trail *audit.Trail, logger *zap.Logger) AccountService {
	return &accountService{
		accountRepo: accountRepo,
		trail:       trail,
		logger:      logger.Named("account-service"),
	}
}

var _ AccountService = (*accountService)(nil)

func (s *accountService) Register(ctx context.Context, account *models.Account) error {
	if !accountIDPattern.MatchString(account.UsageAccountID) {
		return fmt.Errorf("usage account id %q: %w", account.UsageAccountID, apperrors.ErrInvalidInput)
	}
	if account.PayerAccountID != "" && !accountIDPattern.MatchString(account.PayerAccountID) {
		return fmt.Errorf("payer account id %q: %w", account.PayerAccountID, apperrors.ErrInvalidInput)
	}

	if err := s.accountRepo.Upsert(ctx, account); err != nil {
		return fmt.Errorf("failed to register account %s: %w", account.UsageAccountID, err)
	}

	s.logger.Info("Registered account",
		zap.String("usage_account_id", account.UsageAccountID),
		zap.String("payer_account_id", account.PayerAccountID),
		zap.Bool("active", account.Active),
	)
	s.trail.Record(audit.Event{
		EventType:      audit.EventAccountRegistered,
		UsageAccountID: account.UsageAccountID,
		Details:        map[string]bool{"active": account.Active},
	})
	return nil
}

func (s *accountService) Get(ctx context.Context, usageAccountID string) (*models.Account, error) {
	account, err := s.accountRepo.Get(ctx, usageAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", usageAccountID, err)
	}
	if account == nil {
		return nil, apperrors.ErrUnknownTenant
	}
	return account, nil
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	return s.accountRepo.List(ctx)
}
