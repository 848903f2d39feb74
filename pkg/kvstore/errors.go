// Copyright 2025 Certen Protocol

package kvstore

import "errors"

// Sentinel errors for the transaction manager (spec §4.2, §7).
var (
	// ErrTxIDNotFound is returned when an operation references a TxID the
	// manager has no record of.
	ErrTxIDNotFound = errors.New("kvstore: tx id not found")

	// ErrInvalidUpdateKeyLength is returned when CreateTransaction is given
	// a non-nil, empty update key.
	ErrInvalidUpdateKeyLength = errors.New("kvstore: invalid update key length")

	// ErrCommitTx is returned when Commit is called on a transaction that
	// has already committed, rolled back, or never reached Begin.
	ErrCommitTx = errors.New("kvstore: commit failed")

	// ErrWaitMutex wraps a failure while blocking in Prepare for another
	// update transaction's mutex.
	ErrWaitMutex = errors.New("kvstore: wait for update-key mutex failed")

	// ErrAlreadyPrepared is returned when Prepare is called twice on the
	// same transaction.
	ErrAlreadyPrepared = errors.New("kvstore: transaction already prepared")

	// ErrNotPrepared is returned when Begin is called before Prepare.
	ErrNotPrepared = errors.New("kvstore: transaction not prepared")

	// ErrNotBegun is returned when Get, Set, Remove or Iterator is called on a
	// transaction that is not in its begun phase.
	ErrNotBegun = errors.New("kvstore: transaction not begun")

	// ErrReadOnlyTransaction is returned when Set or Remove is called on a
	// transaction created without an update key.
	ErrReadOnlyTransaction = errors.New("kvstore: read-only transaction")
)
