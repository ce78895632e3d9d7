// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// HostDevice is the residency of a ciphertext that has not been moved
// to an accelerator device.
const HostDevice = -1

// Operand is an input to a homomorphic operation: either a ciphertext
// variant or a plaintext scalar. The set is closed; the estimator
// dispatches exhaustively over it.
type Operand interface {
	// SizeOnDevice returns the operand's device-resident footprint in
	// bytes. A scalar reports its raw byte length: it never occupies
	// device memory, but callers treat it uniformly when sizing
	// plaintext-fallback paths.
	SizeOnDevice() uint64
	// MoveToDevice relocates the operand's backing object to the given
	// device. Idempotent; never changes the logical value. A no-op for
	// scalars.
	MoveToDevice(device int)

	isOperand()
}

// Ciphertext is a device-resident encrypted value of a fixed type. It
// exclusively owns its backing payload; the residency (which device it
// currently lives on) is the only mutable state.
type Ciphertext struct {
	fheType FheUintType
	payload []byte
	size    uint64
	device  int
}

// NewCiphertext wraps an encrypted payload of the given type.
// deviceSize is the payload's device-resident footprint as reported by
// the accelerator runtime when the value was materialized.
func NewCiphertext(t FheUintType, payload []byte, deviceSize uint64) *Ciphertext {
	return &Ciphertext{
		fheType: t,
		payload: payload,
		size:    deviceSize,
		device:  HostDevice,
	}
}

// TrivialCiphertext builds the trivially-encrypted representation of a
// known plaintext: no confidentiality, used as a baseline-cost
// placeholder and as the result shape of Cast and TrivialEncrypt. The
// footprint comes from the cost model's one-unit size for the type.
func TrivialCiphertext(m CostModel, t FheUintType, value []byte) *Ciphertext {
	return &Ciphertext{
		fheType: t,
		payload: value,
		size:    m.TrivialEncryptSize(t),
		device:  HostDevice,
	}
}

// Type returns the ciphertext's FHE type.
func (c *Ciphertext) Type() FheUintType { return c.fheType }

// Payload returns the opaque encrypted payload.
func (c *Ciphertext) Payload() []byte { return c.payload }

// Device returns the current residency ordinal, or HostDevice.
func (c *Ciphertext) Device() int { return c.device }

func (c *Ciphertext) SizeOnDevice() uint64 { return c.size }

func (c *Ciphertext) MoveToDevice(device int) {
	if c.device == device {
		return // already resident there
	}
	c.device = device
}

func (c *Ciphertext) isOperand() {}

// MarshalBinary serializes the ciphertext as
// [type u8][device size u64][payload length u32][payload].
func (c *Ciphertext) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, uint8(c.fheType)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, c.size); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(c.payload))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(c.payload); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes a ciphertext produced by MarshalBinary.
// Residency resets to HostDevice: serialized ciphertexts are never
// device-resident.
func (c *Ciphertext) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)

	var t uint8
	if err := binary.Read(buf, binary.LittleEndian, &t); err != nil {
		return fmt.Errorf("read type: %w", err)
	}
	if _, ok := TypeFromTag(uint16(t)); !ok {
		return fmt.Errorf("unknown ciphertext type %d", t)
	}

	var size uint64
	if err := binary.Read(buf, binary.LittleEndian, &size); err != nil {
		return fmt.Errorf("read size: %w", err)
	}

	var plen uint32
	if err := binary.Read(buf, binary.LittleEndian, &plen); err != nil {
		return fmt.Errorf("read payload length: %w", err)
	}

	payload := make([]byte, plen)
	if _, err := io.ReadFull(buf, payload); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	c.fheType = FheUintType(t)
	c.size = size
	c.payload = payload
	c.device = HostDevice
	return nil
}

// Scalar is a plaintext operand carried as raw bytes: the non-encrypted
// side of a mixed operation, or a type-tag selector for conversion and
// randomness operations.
type Scalar []byte

func (s Scalar) SizeOnDevice() uint64 { return uint64(len(s)) }

// MoveToDevice is a no-op: scalars are never device-resident.
func (s Scalar) MoveToDevice(device int) {}

func (s Scalar) isOperand() {}
