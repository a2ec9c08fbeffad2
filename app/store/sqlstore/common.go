package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/quka-ai/supportchat/pkg/types"
)

func ErrorSqlBuild(err error) error {
	return fmt.Errorf("failed to build sql query, %w", err)
}

type SqlProviderAchieve interface {
	GetMaster() *sqlx.DB
	GetReplica() *sqlx.DB
	GetTxFromCtx(ctx context.Context) *sqlx.Tx
}

// CommonFields binds a store to its table. Writes go to the master, reads
// to the replica, and both join the transaction carried by ctx if any.
type CommonFields struct {
	table    types.TableName
	columns  []string
	provider SqlProviderAchieve
}

func newCommonFields(provider SqlProviderAchieve, table types.TableName, columns ...string) CommonFields {
	return CommonFields{
		table:    table,
		columns:  columns,
		provider: provider,
	}
}

func (c *CommonFields) GetTable() string {
	return c.table.Name()
}

func (c *CommonFields) GetAllColumns() []string {
	return c.columns
}

func (c *CommonFields) master(ctx context.Context) sqlx.ExtContext {
	if tx := c.provider.GetTxFromCtx(ctx); tx != nil {
		return tx
	}
	return c.provider.GetMaster()
}

func (c *CommonFields) replica(ctx context.Context) sqlx.ExtContext {
	if tx := c.provider.GetTxFromCtx(ctx); tx != nil {
		return tx
	}
	return c.provider.GetReplica()
}

func (c *CommonFields) exec(ctx context.Context, query sq.Sqlizer) error {
	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	_, err = c.master(ctx).ExecContext(ctx, queryString, args...)
	return err
}

// get scans a single row into dest, sql.ErrNoRows when there is none.
func (c *CommonFields) get(ctx context.Context, dest any, query sq.Sqlizer) error {
	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	return sqlx.GetContext(ctx, c.replica(ctx), dest, queryString, args...)
}

func (c *CommonFields) list(ctx context.Context, dest any, query sq.Sqlizer) error {
	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	return sqlx.SelectContext(ctx, c.replica(ctx), dest, queryString, args...)
}

func (c *CommonFields) total(ctx context.Context, where ...sq.Sqlizer) (uint64, error) {
	query := sq.Select("COUNT(*)").From(c.GetTable())
	for _, w := range where {
		query = query.Where(w)
	}
	var res uint64
	if err := c.get(ctx, &res, query); err != nil {
		return 0, err
	}
	return res, nil
}
