// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"bytes"
	"math/big"
	"testing"
)

func TestCoerceBE(t *testing.T) {
	tests := []struct {
		name string
		in   Scalar
		bits int
		want Scalar
	}{
		{"truncate to low byte", Scalar{0x01, 0x02, 0x03}, 8, Scalar{0x03}},
		{"zero extend", Scalar{0xFF}, 16, Scalar{0x00, 0xFF}},
		{"mask partial byte", Scalar{0xFF}, 4, Scalar{0x0F}},
		{"exact width", Scalar{0xAB, 0xCD}, 16, Scalar{0xAB, 0xCD}},
		{"empty input", Scalar{}, 8, Scalar{0x00}},
		{"nil input", nil, 32, Scalar{0, 0, 0, 0}},
		{"160-bit address", Scalar{0x01}, 160, append(make(Scalar, 19), 0x01)},
		{"zero width", Scalar{0xFF}, 0, Scalar{}},
		{"negative width", Scalar{0xFF}, -8, Scalar{}},
	}

	for _, tc := range tests {
		got := tc.in.CoerceBE(tc.bits)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("%s: CoerceBE(%d) = %x, want %x", tc.name, tc.bits, got, tc.want)
		}
	}
}

func TestCoerceBEReduction(t *testing.T) {
	// Coercion is reduction modulo 2^bits. Check against big.Int
	// arithmetic across every supported target width.
	value := new(big.Int)
	value.SetString("36893488147419103231876543210987654321", 10)
	src := Scalar(value.Bytes())

	for _, width := range []int{4, 8, 16, 32, 64, 128, 160, 256, 512, 1024, 2048} {
		got := src.CoerceBE(width)

		if len(got) != (width+7)/8 {
			t.Errorf("width %d: %d bytes, want %d", width, len(got), (width+7)/8)
		}

		mod := new(big.Int).Lsh(big.NewInt(1), uint(width))
		want := new(big.Int).Mod(value, mod)
		if new(big.Int).SetBytes(got).Cmp(want) != 0 {
			t.Errorf("width %d: value %s, want %s", width, new(big.Int).SetBytes(got), want)
		}
	}
}

func TestScalarBit(t *testing.T) {
	tests := []struct {
		in   Scalar
		want bool
	}{
		{Scalar{0x00}, false},
		{Scalar{0x01}, true},
		{Scalar{0x0F}, true},
		{Scalar{0x10}, false}, // only the low 4 bits count
		{Scalar{0xF0}, false},
		{Scalar{0xAB, 0x00}, false},
		{Scalar{0xAB, 0x01}, true},
		{Scalar{}, false},
		{nil, false},
	}

	for _, tc := range tests {
		if got := tc.in.Bit(); got != tc.want {
			t.Errorf("Scalar(%x).Bit() = %v, want %v", []byte(tc.in), got, tc.want)
		}
	}
}

func TestScalarTypeTag(t *testing.T) {
	tests := []struct {
		in   Scalar
		want uint16
	}{
		{Scalar{0x05}, 5},
		{Scalar{0x00, 0x05}, 5},
		{Scalar{0x01, 0x00, 0x02}, 2}, // low 16 bits only
		{Scalar{0x0B}, 11},
		{Scalar{}, 0},
	}

	for _, tc := range tests {
		if got := tc.in.TypeTag(); got != tc.want {
			t.Errorf("Scalar(%x).TypeTag() = %d, want %d", []byte(tc.in), got, tc.want)
		}
	}
}

func TestScalarOperand(t *testing.T) {
	s := Scalar{0x01, 0x02, 0x03}
	if got := s.SizeOnDevice(); got != 3 {
		t.Errorf("SizeOnDevice = %d, want 3", got)
	}

	// Relocation never changes a scalar.
	s.MoveToDevice(2)
	if !bytes.Equal(s, Scalar{0x01, 0x02, 0x03}) {
		t.Error("MoveToDevice changed the scalar")
	}
}
