// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

// CostModel supplies the leaf cost functions the estimator dispatches
// into: the per-operation device scratch sizes the accelerator runtime
// knows for each operand width. Implementations must be safe for
// concurrent use and deterministic; the estimator's purity depends on
// both. bits is the device width of the ciphertext operand (a boolean
// is 1 where the native boolean kernel applies, 2 where it is promoted
// to a small integer first).
type CostModel interface {
	// BinaryOpSize costs ct⊗ct with both operands of the given width.
	BinaryOpSize(op Op, bits int) uint64
	// ScalarOpSize costs ct⊗scalar with the ciphertext of the given
	// width and the scalar coerced to match.
	ScalarOpSize(op Op, bits int) uint64
	// UnaryOpSize costs Not and Neg.
	UnaryOpSize(op Op, bits int) uint64
	// SelectSize costs IfThenElse over branches of the given width.
	SelectSize(bits int) uint64
	// TrivialEncryptSize is the footprint of one trivially-encrypted
	// unit of the type: the cost of Cast and TrivialEncrypt results.
	TrivialEncryptSize(t FheUintType) uint64
	// RandSize costs generating one oblivious pseudo-random value of
	// the given width; RandBoundedSize is the bounded variant.
	RandSize(bits int) uint64
	RandBoundedSize(bits int) uint64
}

// Estimator computes how many bytes of device memory an operation will
// additionally require, given the operation code and the runtime shapes
// of its operands. Estimates are pure: equal operation and equal
// operand shapes always produce the identical byte count, and no call
// touches device state. Contract violations (wrong arity, unsupported
// operand shape, unknown type tag) panic with *ContractFault; they are
// caller bugs, never retried.
type Estimator struct {
	model CostModel
}

// NewEstimator returns an estimator backed by the given cost model.
func NewEstimator(m CostModel) *Estimator {
	return &Estimator{model: m}
}

// Estimate returns the device bytes op will need for the given
// operands.
func (e *Estimator) Estimate(op Op, operands []Operand) uint64 {
	arity := op.Arity()
	if arity < 0 {
		panic(newFault(FaultOperation, "operation code %d", uint8(op)))
	}
	if len(operands) != arity {
		panic(newFault(FaultArity, "%s takes %d operands, got %d", op, arity, len(operands)))
	}

	switch op {
	case FheNot, FheNeg:
		return e.unary(op, operands[0])
	case FheIfThenElse:
		return e.selectCost(operands)
	case FheCast, FheTrivialEncrypt:
		return e.trivialCost(op, operands[1])
	case FheRand:
		return e.randCost(op, operands[1], false)
	case FheRandBounded:
		return e.randCost(op, operands[2], true)
	default:
		return e.binary(op, operands[0], operands[1])
	}
}

// catSet is a bitmask of operand type categories.
type catSet uint8

const (
	catBool catSet = 1 << iota
	catUint
	catBytes
)

func category(t FheUintType) catSet {
	switch {
	case t == FheBool:
		return catBool
	case t.IsUint():
		return catUint
	case t.IsBytes():
		return catBytes
	default:
		return 0
	}
}

// binShapes lists, per two-operand op, the legal ciphertext categories
// for the ct-ct case and for the ct-scalar case. The asymmetries are
// part of the contract: arithmetic is integers only; Min/Max and the
// ordered comparisons take no bytes-scalar mix; the ordered comparisons
// additionally have no boolean pair but do accept boolean-scalar.
var binShapes = map[Op]struct{ ct, scalar catSet }{
	FheAdd:    {catUint, catUint},
	FheSub:    {catUint, catUint},
	FheMul:    {catUint, catUint},
	FheDiv:    {catUint, catUint},
	FheRem:    {catUint, catUint},
	FheBitAnd: {catBool | catUint | catBytes, catBool | catUint | catBytes},
	FheBitOr:  {catBool | catUint | catBytes, catBool | catUint | catBytes},
	FheBitXor: {catBool | catUint | catBytes, catBool | catUint | catBytes},
	FheShl:    {catUint | catBytes, catUint | catBytes},
	FheShr:    {catUint | catBytes, catUint | catBytes},
	FheRotl:   {catUint | catBytes, catUint | catBytes},
	FheRotr:   {catUint | catBytes, catUint | catBytes},
	FheEq:     {catBool | catUint | catBytes, catBool | catUint | catBytes},
	FheNe:     {catBool | catUint | catBytes, catBool | catUint | catBytes},
	FheGe:     {catUint | catBytes, catBool | catUint},
	FheGt:     {catUint | catBytes, catBool | catUint},
	FheLe:     {catUint | catBytes, catBool | catUint},
	FheLt:     {catUint | catBytes, catBool | catUint},
	FheMin:    {catUint | catBytes, catUint},
	FheMax:    {catUint | catBytes, catUint},
}

func (e *Estimator) binary(op Op, lhs, rhs Operand) uint64 {
	shapes := binShapes[op]

	lct, ok := lhs.(*Ciphertext)
	if !ok {
		panic(newFault(FaultOperandShape, "%s: first operand must be a ciphertext", op))
	}
	lcat := category(lct.Type())

	switch r := rhs.(type) {
	case *Ciphertext:
		if lct.Type() != r.Type() {
			panic(newFault(FaultOperandShape, "%s: operand types %s and %s differ", op, lct.Type(), r.Type()))
		}
		if lcat&shapes.ct == 0 {
			panic(newFault(FaultOperandShape, "%s does not support %s operands", op, lct.Type()))
		}
		// Boolean pairs use the native boolean kernel at width 1.
		return e.model.BinaryOpSize(op, lct.Type().NumBits())

	case Scalar:
		if lcat&shapes.scalar == 0 {
			panic(newFault(FaultOperandShape, "%s does not support %s with a scalar", op, lct.Type()))
		}
		bits := lct.Type().NumBits()
		if lct.Type() == FheBool && op != FheBitAnd {
			// Against a scalar, And collapses the scalar to a bit and
			// keeps the boolean kernel; every other op promotes the
			// boolean ciphertext to a 2-bit integer.
			bits = lct.Type().DeviceBits()
		}
		return e.model.ScalarOpSize(op, bits)

	default:
		panic(newFault(FaultOperandShape, "%s: unsupported second operand", op))
	}
}

func (e *Estimator) unary(op Op, operand Operand) uint64 {
	ct, ok := operand.(*Ciphertext)
	if !ok {
		panic(newFault(FaultOperandShape, "%s: operand must be a ciphertext", op))
	}
	if op == FheNeg && !ct.Type().IsUint() {
		panic(newFault(FaultOperandShape, "neg is undefined for %s", ct.Type()))
	}
	return e.model.UnaryOpSize(op, ct.Type().NumBits())
}

func (e *Estimator) selectCost(operands []Operand) uint64 {
	sel, ok := operands[0].(*Ciphertext)
	if !ok || sel.Type() != FheBool {
		// Deliberate short-circuit: a non-boolean selector reports zero
		// cost rather than faulting; the real type check is deferred to
		// the layer that executes the select.
		return 0
	}

	a, okA := operands[1].(*Ciphertext)
	b, okB := operands[2].(*Ciphertext)
	if !okA || !okB || a.Type() != b.Type() {
		panic(newFault(FaultOperandShape, "ifthenelse branches must be ciphertexts of a single type"))
	}
	// Boolean branches are promoted to 2-bit integers before selection.
	return e.model.SelectSize(a.Type().DeviceBits())
}

func (e *Estimator) trivialCost(op Op, tagOperand Operand) uint64 {
	s, ok := tagOperand.(Scalar)
	if !ok {
		panic(newFault(FaultOperandShape, "%s: destination type must be a scalar tag", op))
	}
	t, ok := TypeFromTag(s.TypeTag())
	if !ok {
		panic(newFault(FaultTypeTag, "%s: tag %d", op, s.TypeTag()))
	}
	return e.model.TrivialEncryptSize(t)
}

func (e *Estimator) randCost(op Op, tagOperand Operand, bounded bool) uint64 {
	s, ok := tagOperand.(Scalar)
	if !ok {
		// Same short-circuit family as the ifthenelse selector.
		return 0
	}
	t, ok := TypeFromTag(s.TypeTag())
	if !ok {
		panic(newFault(FaultTypeTag, "%s: tag %d", op, s.TypeTag()))
	}
	if bounded {
		return e.model.RandBoundedSize(t.DeviceBits())
	}
	return e.model.RandSize(t.DeviceBits())
}
