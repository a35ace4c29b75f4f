package service

import (
	"context"
	"strings"

	"github.com/billfold/billfold/internal/wallet/domain"
	"github.com/billfold/billfold/pkg/db"
	"github.com/billfold/billfold/pkg/db/option"
	"github.com/billfold/billfold/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	wallets      repository.Repository[domain.Wallet]
	transactions repository.Repository[domain.Transaction]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,

		wallets:      repository.ProvideStore[domain.Wallet](p.DB),
		transactions: repository.ProvideStore[domain.Transaction](p.DB),
	}
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (*domain.Wallet, error) {
	wallet, err := s.wallets.FindOne(ctx, &domain.Wallet{UserID: userID})
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	wallet = &domain.Wallet{
		ID:     s.genID.Generate(),
		UserID: userID,
	}
	if err := s.wallets.Create(ctx, wallet); err != nil {
		// Lost the race against a concurrent first access.
		if db.IsDuplicateKeyErr(err) {
			return s.wallets.FindOne(ctx, &domain.Wallet{UserID: userID})
		}
		return nil, err
	}
	return wallet, nil
}

func (s *Service) Deposit(ctx context.Context, userID snowflake.ID, amount int64, description string, reference string) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	wallet, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Wallet{}).
			Where("user_id = ?", userID).
			Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}
		entry := &domain.Transaction{
			ID:          s.genID.Generate(),
			UserID:      userID,
			Type:        domain.TransactionDeposit,
			Amount:      amount,
			Description: strings.TrimSpace(description),
			Reference:   strings.TrimSpace(reference),
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("wallet deposit",
		zap.String("user_id", userID.String()),
		zap.Int64("amount", amount),
	)
	wallet.Balance += amount
	return wallet, nil
}

func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount int64, description string, reference string) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	res := tx.WithContext(ctx).Model(&domain.Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInsufficientFunds
	}

	entry := &domain.Transaction{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Type:        domain.TransactionPayment,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		Reference:   strings.TrimSpace(reference),
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (s *Service) Transactions(ctx context.Context, userID snowflake.ID, limit int) ([]*domain.Transaction, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Field: "created_at", Desc: true}),
	}
	if limit > 0 {
		opts = append(opts, option.WithLimit(limit))
	}
	return s.transactions.Find(ctx, &domain.Transaction{UserID: userID}, opts...)
}
