package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function inside a database transaction,
// passing the transaction handle through `tx`.
//
// Keeping the handle opaque keeps use-case interfaces free of storage types:
// repository methods accept `tx Tx` and detect the concrete handle on the
// infra side, and they MUST gracefully accept nil (non-transactional path).
//
// The commit of a processed update — conversation mutation, cursor advance,
// outbox inserts, archive mutations — runs through a single WithTx call; that
// is the atomicity guarantee the engine relies on.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
