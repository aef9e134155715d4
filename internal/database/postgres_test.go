package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConn_UsesPoolOutsideTransaction(t *testing.T) {
	db := &DB{DB: &sql.DB{}}

	_, isTx := db.Conn(context.Background()).(*sql.Tx)
	require.False(t, isTx)
}

func TestWithinTx_JoinsOuterTransaction(t *testing.T) {
	req := require.New(t)
	// A pool that was never opened: beginning a transaction on it would fail.
	db := &DB{}
	outer := &sql.Tx{}
	ctx := context.WithValue(context.Background(), txKey{}, outer)

	called := false
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		called = true
		req.Same(outer, db.Conn(ctx))
		return nil
	})

	req.NoError(err)
	req.True(called)
}
