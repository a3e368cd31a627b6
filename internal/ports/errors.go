package ports

import "errors"

// Sentinel errors for programmer-facing misuse of the port contracts.
// Policy-sensitive conditions (ring full, mailbox coalesced, best-effort
// drop) are never errors, they surface as SubmitOutcome values handled
// by the adapter.
var (
	ErrOutOfBounds = errors.New("ports: offset out of bounds")
	ErrMisaligned  = errors.New("ports: offset is not aligned")
	ErrRingFull    = errors.New("ports: ring has no space for record")
	ErrQueueEmpty  = errors.New("ports: ring is empty")
	ErrTooLarge    = errors.New("ports: payload exceeds ring capacity")
	ErrDoubleGrant = errors.New("ports: a grant is already outstanding")
	ErrNoGrant     = errors.New("ports: commit called without a pending grant")
	ErrSchemaSkew  = errors.New("ports: record version unknown at consumer")
	ErrCorrupted   = errors.New("ports: debug magic mismatch")
)
