package postgres

import (
	"context"

	"stocktally/internal/core/tenant"
)

// MustGetTxManager returns the tenant's transaction manager as the concrete
// postgres implementation. Repositories need GetQuerier, which the tx.Manager
// interface deliberately does not expose. Panics when the context carries no
// manager or a non-postgres one; both indicate broken middleware wiring.
func MustGetTxManager(ctx context.Context) *TxManager {
	txm := tenant.MustGetTxManager(ctx)
	pgTxm, ok := txm.(*TxManager)
	if !ok {
		panic("postgres: context tx manager is not *postgres.TxManager")
	}
	return pgTxm
}
