// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"math/bits"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/utils"
)

// Parameters defines the lattice parameter set the device ciphertexts
// are sampled under. The admission layer never touches key material;
// it only needs the geometry (ring dimension, modulus, decomposition)
// to price device footprints.
type Parameters struct {
	// params defines parameters for the LWE samples backing each
	// radix block
	params rlwe.Parameters
	// evkParams defines evaluation key decomposition
	evkParams rlwe.EvaluationKeyParameters
}

// ParametersLiteral is a user-friendly parameter specification
type ParametersLiteral struct {
	// LogN is log2 of the LWE dimension (typically 9-11)
	LogN int
	// Q is the ciphertext modulus
	Q uint64
	// BaseTwoDecomposition for key switching (typically 5-10)
	BaseTwoDecomposition int
}

// Standard parameter sets
var (
	// PN10QP27 provides ~128-bit security with good performance.
	// N=1024, Q=134215681
	PN10QP27 = ParametersLiteral{
		LogN:                 10,
		Q:                    0x7fff801, // ~134M
		BaseTwoDecomposition: 7,
	}

	// PN11QP54 provides ~128-bit security with higher precision.
	// N=2048, Q=~2^54
	PN11QP54 = ParametersLiteral{
		LogN:                 11,
		Q:                    0x3FFFFFFFFFC0001, // ~2^54
		BaseTwoDecomposition: 10,
	}
)

// NewParametersFromLiteral creates Parameters from a literal specification
func NewParametersFromLiteral(lit ParametersLiteral) (params Parameters, err error) {
	params.params, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogN,
		Q:       []uint64{lit.Q},
		NTTFlag: true,
	})
	if err != nil {
		return
	}

	params.evkParams = rlwe.EvaluationKeyParameters{
		BaseTwoDecomposition: utils.Pointy(lit.BaseTwoDecomposition),
	}

	return
}

// N returns the LWE dimension
func (p Parameters) N() int {
	return p.params.N()
}

// Q returns the ciphertext modulus
func (p Parameters) Q() uint64 {
	return p.params.Q()[0]
}

// LWECostModel prices operations from the LWE geometry of the device
// ciphertexts. Every encrypted value is a vector of 2-bit radix blocks;
// each block is one LWE sample of N mask words plus a body. Bootstrapped
// kernels additionally keep the block's decomposition rows live, so
// their per-block working set is a small multiple of the resident size.
type LWECostModel struct {
	// blockBytes is the resident footprint of one radix block
	blockBytes uint64
	// scratchBytes is the peak per-block working set of a
	// bootstrapped kernel
	scratchBytes uint64
}

// NewLWECostModel derives a cost model from a parameter set.
func NewLWECostModel(p Parameters) *LWECostModel {
	block := 8 * uint64(p.N()+1)

	base := 0
	if p.evkParams.BaseTwoDecomposition != nil {
		base = *p.evkParams.BaseTwoDecomposition
	}
	scratch := block
	if base > 0 {
		levels := (bits.Len64(p.Q()) + base - 1) / base
		scratch = block * uint64(1+levels)
	}

	return &LWECostModel{blockBytes: block, scratchBytes: scratch}
}

// DefaultCostModel prices against the PN10QP27 parameter set.
func DefaultCostModel() *LWECostModel {
	params, err := NewParametersFromLiteral(PN10QP27)
	if err != nil {
		panic(err) // the standard literal always validates
	}
	return NewLWECostModel(params)
}

// blocks is the radix block count for a width: one block per 2 bits,
// so a 1-bit boolean still occupies a full block.
func blocks(bits int) uint64 {
	return uint64(bits+1) / 2
}

// scratchFactor is the working-set multiplier for ct-ct kernels, in
// units of one operand's scratch footprint.
func scratchFactor(op Op) uint64 {
	switch op {
	case FheBitAnd, FheBitOr, FheBitXor, FheNot:
		return 1
	case FheAdd, FheSub, FheNeg:
		return 2
	case FheMul:
		return 4
	case FheDiv, FheRem:
		return 6
	case FheShl, FheShr, FheRotl, FheRotr:
		return 3
	case FheEq, FheNe, FheGe, FheGt, FheLe, FheLt:
		return 2
	case FheMin, FheMax:
		return 3
	default:
		return 1
	}
}

// scalarScratchFactor adjusts for kernels where the second operand is a
// cleartext: multiplication drops one partial-product pass, and
// division by a known divisor degenerates to a multiply-shift.
func scalarScratchFactor(op Op) uint64 {
	switch op {
	case FheMul:
		return 3
	case FheDiv, FheRem:
		return 2
	default:
		return scratchFactor(op)
	}
}

func (m *LWECostModel) BinaryOpSize(op Op, bits int) uint64 {
	return scratchFactor(op) * blocks(bits) * m.scratchBytes
}

func (m *LWECostModel) ScalarOpSize(op Op, bits int) uint64 {
	return scalarScratchFactor(op) * blocks(bits) * m.scratchBytes
}

func (m *LWECostModel) UnaryOpSize(op Op, bits int) uint64 {
	return scratchFactor(op) * blocks(bits) * m.scratchBytes
}

// SelectSize keeps both branches resident while the selector is
// applied blockwise.
func (m *LWECostModel) SelectSize(bits int) uint64 {
	return 2 * blocks(bits) * m.scratchBytes
}

// TrivialEncryptSize is a resident footprint, not kernel scratch: a
// trivially-encrypted value is written once and needs no bootstrap.
func (m *LWECostModel) TrivialEncryptSize(t FheUintType) uint64 {
	return blocks(t.DeviceBits()) * m.blockBytes
}

func (m *LWECostModel) RandSize(bits int) uint64 {
	return 2 * blocks(bits) * m.scratchBytes
}

// RandBoundedSize covers the rejection test against the bound on top
// of plain generation.
func (m *LWECostModel) RandBoundedSize(bits int) uint64 {
	return 4 * blocks(bits) * m.scratchBytes
}
