// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

// Scalar coercion: a plaintext operand is raw bytes of arbitrary length.
// Before it can stand in as the non-encrypted side of a mixed operation
// it is reduced to a fixed-width big-endian encoding of the ciphertext
// operand's width. Supported target widths are 4, 8, 16, 32, 64, 128,
// 160, 256, 512, 1024 and 2048 bits.

// CoerceBE returns the value of s reduced modulo 2^bits, encoded
// big-endian in exactly ceil(bits/8) bytes. Longer inputs are truncated
// to their low bits, shorter inputs zero-extended. Pure and total for
// every positive width.
func (s Scalar) CoerceBE(bits int) Scalar {
	if bits <= 0 {
		return Scalar{}
	}
	n := (bits + 7) / 8
	out := make(Scalar, n)

	src := []byte(s)
	if len(src) > n {
		src = src[len(src)-n:]
	}
	copy(out[n-len(src):], src)

	if rem := bits % 8; rem != 0 {
		out[0] &= byte(1<<rem - 1)
	}
	return out
}

// Bit collapses s to a boolean: nonzero after 4-bit coercion. This is
// the conversion applied when a scalar stands against a boolean
// ciphertext in And.
func (s Scalar) Bit() bool {
	return s.CoerceBE(4)[0] != 0
}

// TypeTag decodes s as a 16-bit big-endian type tag. Used wherever a
// scalar operand names a destination type (Cast, TrivialEncrypt, Rand,
// RandBounded).
func (s Scalar) TypeTag() uint16 {
	b := s.CoerceBE(16)
	return uint16(b[0])<<8 | uint16(b[1])
}
