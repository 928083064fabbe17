// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface holds the database access interfaces shared by the
// stores. It has no dependencies so both the database package and the
// models can import it without cycles.
package dbinterface

import (
	"context"
	"database/sql"
)

// Querier is implemented by *sql.DB, *sql.Tx and *database.DB. Stores accept
// a Querier so the same code runs inside and outside transactions.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TxBeginner is a Querier that can also open transactions.
type TxBeginner interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
