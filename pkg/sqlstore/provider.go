package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/quka-ai/supportchat/pkg/utils"
)

const DRIVER_NAME = "postgres"

type SqlCommons interface {
	GetTable() string
}

type ConnectConfig interface {
	FormatDSN() string
}

type SqlProvider struct {
	master   *sqlx.DB
	replicas []*sqlx.DB
}

func (s *SqlProvider) GetTxFromCtx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(TransactionKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

func (s *SqlProvider) GetMaster() *sqlx.DB {
	return s.master
}

func (s *SqlProvider) GetReplica() *sqlx.DB {
	return s.replicas[utils.Random(0, len(s.replicas)-1)]
}

type TransactionKey struct{}

// Transaction runs next inside a transaction stored in ctx. Nested calls
// join the outer transaction.
func (s *SqlProvider) Transaction(ctx context.Context, next func(ctx context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if s.GetTxFromCtx(ctx) != nil {
		return next(ctx)
	}

	tx, err := s.GetMaster().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panic: %v", r)
		}
		if err != nil {
			slog.Error("Transaction rollbacked", slog.String("error", err.Error()))
			_ = tx.Rollback()
		}
	}()

	if err = next(context.WithValue(ctx, TransactionKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// Ping checks the master connection.
func (s *SqlProvider) Ping(ctx context.Context) error {
	return s.GetMaster().PingContext(ctx)
}

func (s *SqlProvider) Close() error {
	errs := []error{s.master.Close()}
	for _, r := range s.replicas {
		if r != s.master {
			errs = append(errs, r.Close())
		}
	}
	return errors.Join(errs...)
}

// SetupProvider opens the pools lazily; the first query establishes the
// connection.
func SetupProvider(m ConnectConfig, s ...ConnectConfig) (*SqlProvider, error) {
	master, err := sqlx.Open(DRIVER_NAME, m.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open master database, %w", err)
	}

	provider := &SqlProvider{master: master}
	for _, v := range s {
		replica, err := sqlx.Open(DRIVER_NAME, v.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open replica database, %w", err)
		}
		provider.replicas = append(provider.replicas, replica)
	}
	if len(provider.replicas) == 0 {
		provider.replicas = append(provider.replicas, master)
	}
	return provider, nil
}

func MustSetupProvider(m ConnectConfig, s ...ConnectConfig) *SqlProvider {
	provider, err := SetupProvider(m, s...)
	if err != nil {
		panic(err)
	}
	return provider
}
