// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"testing"
)

func TestStandardParameterSets(t *testing.T) {
	tests := []struct {
		name string
		lit  ParametersLiteral
		n    int
		q    uint64
	}{
		{"PN10QP27", PN10QP27, 1024, 0x7fff801},
		{"PN11QP54", PN11QP54, 2048, 0x3FFFFFFFFFC0001},
	}

	for _, tc := range tests {
		params, err := NewParametersFromLiteral(tc.lit)
		if err != nil {
			t.Fatalf("%s failed to validate: %v", tc.name, err)
		}
		if params.N() != tc.n {
			t.Errorf("%s: N = %d, want %d", tc.name, params.N(), tc.n)
		}
		if params.Q() != tc.q {
			t.Errorf("%s: Q = %d, want %d", tc.name, params.Q(), tc.q)
		}
	}
}

func TestLWECostModelDerivation(t *testing.T) {
	params, err := NewParametersFromLiteral(PN10QP27)
	if err != nil {
		t.Fatalf("NewParametersFromLiteral failed: %v", err)
	}
	model := NewLWECostModel(params)

	// One radix block is an LWE sample of N mask words plus a body:
	// 8*(1024+1) = 8200 bytes. A boolean occupies a single block.
	if got := model.TrivialEncryptSize(FheBool); got != 8200 {
		t.Errorf("boolean block = %d bytes, want 8200", got)
	}

	// Q is 27 bits and the decomposition base is 7, so a bootstrapped
	// kernel keeps ceil(27/7) = 4 decomposition rows live per block:
	// 8200 * (1+4) = 41000 bytes of scratch. BitAnd over a single
	// block has scratch factor 1.
	if got := model.BinaryOpSize(FheBitAnd, 2); got != 41000 {
		t.Errorf("single-block scratch = %d bytes, want 41000", got)
	}

	// A width maps to ceil(bits/2) radix blocks.
	if got := model.BinaryOpSize(FheBitAnd, 8); got != 4*41000 {
		t.Errorf("euint8 bitand = %d bytes, want %d", got, 4*41000)
	}
	if got := model.BinaryOpSize(FheBitAnd, 1); got != 41000 {
		t.Errorf("1-bit bitand = %d bytes, want 41000", got)
	}
}

func TestCostModelRelations(t *testing.T) {
	model := DefaultCostModel()

	// Kernel working sets order by complexity at a fixed width.
	and := model.BinaryOpSize(FheBitAnd, 64)
	add := model.BinaryOpSize(FheAdd, 64)
	shl := model.BinaryOpSize(FheShl, 64)
	mul := model.BinaryOpSize(FheMul, 64)
	div := model.BinaryOpSize(FheDiv, 64)
	if !(and < add && add < shl && shl < mul && mul < div) {
		t.Errorf("kernel ordering violated: and=%d add=%d shl=%d mul=%d div=%d",
			and, add, shl, mul, div)
	}

	// A cleartext operand makes multiplication and division cheaper,
	// and leaves addition unchanged.
	if got := model.ScalarOpSize(FheMul, 64); got >= mul {
		t.Errorf("scalar mul = %d, want less than ct mul %d", got, mul)
	}
	if got := model.ScalarOpSize(FheDiv, 64); got >= div {
		t.Errorf("scalar div = %d, want less than ct div %d", got, div)
	}
	if got := model.ScalarOpSize(FheAdd, 64); got != add {
		t.Errorf("scalar add = %d, want %d", got, add)
	}

	// Bounded randomness pays for the rejection test.
	if got, want := model.RandBoundedSize(16), 2*model.RandSize(16); got != want {
		t.Errorf("bounded rand = %d, want %d", got, want)
	}

	// Trivial encryption is a resident write, not kernel scratch: it
	// must undercut even the cheapest kernel at the same width.
	if got := model.TrivialEncryptSize(FheUint8); got >= model.BinaryOpSize(FheBitAnd, 8) {
		t.Errorf("trivial euint8 = %d, want below %d", got, model.BinaryOpSize(FheBitAnd, 8))
	}

	// Costs grow with operand width.
	prev := uint64(0)
	for _, bits := range []int{4, 8, 16, 32, 64, 128, 160, 256, 512} {
		got := model.BinaryOpSize(FheAdd, bits)
		if got <= prev {
			t.Errorf("add at %d bits = %d, want above %d", bits, got, prev)
		}
		prev = got
	}
}

func TestDefaultCostModel(t *testing.T) {
	params, err := NewParametersFromLiteral(PN10QP27)
	if err != nil {
		t.Fatalf("NewParametersFromLiteral failed: %v", err)
	}
	derived := NewLWECostModel(params)

	model := DefaultCostModel()
	if got, want := model.BinaryOpSize(FheAdd, 64), derived.BinaryOpSize(FheAdd, 64); got != want {
		t.Errorf("default model prices add at %d, derived at %d", got, want)
	}
	if got, want := model.TrivialEncryptSize(FheUint160), derived.TrivialEncryptSize(FheUint160); got != want {
		t.Errorf("default model prices trivial euint160 at %d, derived at %d", got, want)
	}
}
