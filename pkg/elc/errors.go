// Copyright 2025 Certen Protocol
//
// Package elc is the Enclave Light Client engine (spec §4.5): the
// transactional state-transition core that dispatches InitClient,
// UpdateClient, VerifyMembership, VerifyNonMembership, QueryClient, and
// AggregateMessages against the store and a registered light-client
// implementation, then hands the result to the commitment prover.
// Grounded on pkg/execution/executor.go and
// pkg/execution/proof_cycle_orchestrator.go's "resolve → load → invoke →
// store → commit" command-dispatch-under-a-transaction shape.
package elc

import (
	"errors"
	"fmt"
)

// ErrLightClient wraps any error returned by a light-client implementation,
// preserving the underlying kind (errors.Is still matches it) while marking
// it as having come from the light-client boundary (spec §7 propagation
// policy).
var ErrLightClient = errors.New("elc: light client error")

func wrapLightClientError(err error) error {
	return fmt.Errorf("%w: %w", ErrLightClient, err)
}

// ErrNonAdvancingUpdate is returned when an UpdateClient result's height
// does not strictly advance beyond the client's pre-update height.
var ErrNonAdvancingUpdate = errors.New("elc: update does not advance client height")

// ErrMessageKindMismatch is returned by AggregateMessages when a
// sub-message is not an UpdateState proxy message.
var ErrMessageKindMismatch = errors.New("elc: aggregate message is not UpdateState")

// ErrEmptyAggregate is returned by AggregateMessages when given no messages.
var ErrEmptyAggregate = errors.New("elc: aggregate requires at least one message")
