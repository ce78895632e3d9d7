// Package fhevm implements the admission-control and cost-estimation layer
// that gates homomorphic operations on accelerator devices.
//
// Before an encrypted operation runs on a device, a caller asks the
// Estimator how many bytes of device memory the operation will need,
// reserves that amount against the device through gpu.Pool (blocking until
// the device can admit it), executes the operation via the accelerator
// runtime, then releases the reservation. The cryptographic operations
// themselves and the actual device allocations live in the accelerator
// runtime, behind the CostModel and gpu.Prober interfaces.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package fhevm

// FheUintType identifies the type of an encrypted value. The numeric
// values are the type tags carried by scalar operands of Cast,
// TrivialEncrypt, Rand and RandBounded.
type FheUintType uint8

const (
	FheBool     FheUintType = 0
	FheUint4    FheUintType = 1
	FheUint8    FheUintType = 2
	FheUint16   FheUintType = 3
	FheUint32   FheUintType = 4
	FheUint64   FheUintType = 5
	FheUint128  FheUintType = 6
	FheUint160  FheUintType = 7 // For Ethereum addresses
	FheUint256  FheUintType = 8
	FheBytes64  FheUintType = 9
	FheBytes128 FheUintType = 10
	FheBytes256 FheUintType = 11
)

// NumBits returns the logical width of the type in bits.
func (t FheUintType) NumBits() int {
	switch t {
	case FheBool:
		return 1
	case FheUint4:
		return 4
	case FheUint8:
		return 8
	case FheUint16:
		return 16
	case FheUint32:
		return 32
	case FheUint64:
		return 64
	case FheUint128:
		return 128
	case FheUint160:
		return 160
	case FheUint256:
		return 256
	case FheBytes64:
		return 512
	case FheBytes128:
		return 1024
	case FheBytes256:
		return 2048
	default:
		return 0
	}
}

// DeviceBits returns the width used for device sizing. A boolean
// ciphertext is carried on device as a 2-bit integer; all other types
// size at their logical width.
func (t FheUintType) DeviceBits() int {
	if t == FheBool {
		return 2
	}
	return t.NumBits()
}

func (t FheUintType) String() string {
	switch t {
	case FheBool:
		return "ebool"
	case FheUint4:
		return "euint4"
	case FheUint8:
		return "euint8"
	case FheUint16:
		return "euint16"
	case FheUint32:
		return "euint32"
	case FheUint64:
		return "euint64"
	case FheUint128:
		return "euint128"
	case FheUint160:
		return "euint160"
	case FheUint256:
		return "euint256"
	case FheBytes64:
		return "ebytes64"
	case FheBytes128:
		return "ebytes128"
	case FheBytes256:
		return "ebytes256"
	default:
		return "unknown"
	}
}

// IsUint reports whether t is one of the sized unsigned integer types.
// FheBool is not a uint; neither are the byte-string types.
func (t FheUintType) IsUint() bool {
	return t >= FheUint4 && t <= FheUint256
}

// IsBytes reports whether t is one of the fixed-length byte-string types.
func (t FheUintType) IsBytes() bool {
	return t >= FheBytes64 && t <= FheBytes256
}

// TypeFromTag maps a numeric type tag to its FheUintType. The second
// return is false for tags outside the supported range.
func TypeFromTag(tag uint16) (FheUintType, bool) {
	if tag > uint16(FheBytes256) {
		return 0, false
	}
	return FheUintType(tag), true
}
