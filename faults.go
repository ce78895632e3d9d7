// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"errors"
	"fmt"
)

// FaultKind classifies a contract violation.
type FaultKind uint8

const (
	// FaultArity: operand count does not match the operation's fixed arity.
	FaultArity FaultKind = iota
	// FaultOperandShape: operand combination outside the operation's
	// legal shape set (mismatched ciphertext types, scalar in a
	// ciphertext position, variant that does not support the operation).
	FaultOperandShape
	// FaultTypeTag: a scalar-carried destination type tag outside the
	// supported range.
	FaultTypeTag
	// FaultOperation: operation code outside the supported enumeration.
	FaultOperation
	// FaultReservationUnderflow: release amount exceeds the outstanding
	// reservation counter.
	FaultReservationUnderflow
)

func (k FaultKind) String() string {
	switch k {
	case FaultArity:
		return "arity mismatch"
	case FaultOperandShape:
		return "unsupported operand shape"
	case FaultTypeTag:
		return "unknown type tag"
	case FaultOperation:
		return "unsupported operation"
	case FaultReservationUnderflow:
		return "reservation underflow"
	default:
		return "unknown fault"
	}
}

// ContractFault reports a programming error in the caller: wrong arity,
// an operand combination no operation supports, an unknown type tag, or
// a release without a matching reserve. These are bugs in upstream type
// resolution, not runtime conditions, so they are raised as panics and
// never returned as recoverable errors. Transient device fullness is
// not a fault; the reservation pool retries it.
type ContractFault struct {
	Kind   FaultKind
	Detail string
}

func (f *ContractFault) Error() string {
	if f.Detail == "" {
		return "fhevm: " + f.Kind.String()
	}
	return "fhevm: " + f.Kind.String() + ": " + f.Detail
}

// newFault builds a ContractFault; call sites raise it with panic.
func newFault(kind FaultKind, format string, args ...any) *ContractFault {
	return &ContractFault{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// FaultKindOf extracts the fault kind from a recovered panic value or a
// wrapped error. Daemons use it to convert contract faults into failed
// jobs at a goroutine boundary; tests use it to assert on the failure
// class rather than the panic text.
func FaultKindOf(r any) (FaultKind, bool) {
	switch v := r.(type) {
	case *ContractFault:
		return v.Kind, true
	case error:
		var f *ContractFault
		if errors.As(v, &f) {
			return f.Kind, true
		}
	}
	return 0, false
}
