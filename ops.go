// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

// Op identifies a homomorphic operation. The numeric values are the
// operation codes used in coprocessor job records. Value 22 is reserved
// for input verification, which runs outside the evaluator.
type Op uint8

const (
	FheAdd            Op = 0
	FheSub            Op = 1
	FheMul            Op = 2
	FheDiv            Op = 3
	FheRem            Op = 4
	FheBitAnd         Op = 5
	FheBitOr          Op = 6
	FheBitXor         Op = 7
	FheShl            Op = 8
	FheShr            Op = 9
	FheRotl           Op = 10
	FheRotr           Op = 11
	FheEq             Op = 12
	FheNe             Op = 13
	FheGe             Op = 14
	FheGt             Op = 15
	FheLe             Op = 16
	FheLt             Op = 17
	FheMin            Op = 18
	FheMax            Op = 19
	FheNeg            Op = 20
	FheNot            Op = 21
	FheCast           Op = 23
	FheTrivialEncrypt Op = 24
	FheIfThenElse     Op = 25
	FheRand           Op = 26
	FheRandBounded    Op = 27
)

func (op Op) String() string {
	switch op {
	case FheAdd:
		return "add"
	case FheSub:
		return "sub"
	case FheMul:
		return "mul"
	case FheDiv:
		return "div"
	case FheRem:
		return "rem"
	case FheBitAnd:
		return "bitand"
	case FheBitOr:
		return "bitor"
	case FheBitXor:
		return "bitxor"
	case FheShl:
		return "shl"
	case FheShr:
		return "shr"
	case FheRotl:
		return "rotl"
	case FheRotr:
		return "rotr"
	case FheEq:
		return "eq"
	case FheNe:
		return "ne"
	case FheGe:
		return "ge"
	case FheGt:
		return "gt"
	case FheLe:
		return "le"
	case FheLt:
		return "lt"
	case FheMin:
		return "min"
	case FheMax:
		return "max"
	case FheNeg:
		return "neg"
	case FheNot:
		return "not"
	case FheCast:
		return "cast"
	case FheTrivialEncrypt:
		return "trivialencrypt"
	case FheIfThenElse:
		return "ifthenelse"
	case FheRand:
		return "rand"
	case FheRandBounded:
		return "randbounded"
	default:
		return "unknown"
	}
}

// Arity returns the fixed operand count of op, or -1 for an unknown
// operation code.
func (op Op) Arity() int {
	switch op {
	case FheNeg, FheNot:
		return 1
	case FheAdd, FheSub, FheMul, FheDiv, FheRem,
		FheBitAnd, FheBitOr, FheBitXor,
		FheShl, FheShr, FheRotl, FheRotr,
		FheEq, FheNe, FheGe, FheGt, FheLe, FheLt,
		FheMin, FheMax,
		FheCast, FheTrivialEncrypt, FheRand:
		return 2
	case FheIfThenElse, FheRandBounded:
		return 3
	default:
		return -1
	}
}

// ResultType reports the type of the value op produces for the given
// operands: comparisons yield booleans, conversion and randomness
// operations yield their tag type, everything else carries the first
// ciphertext operand's type. The second return is false when the
// operands do not determine a result type (an unknown tag, or a shape
// the estimator would short-circuit to zero).
func ResultType(op Op, operands []Operand) (FheUintType, bool) {
	tagType := func(i int) (FheUintType, bool) {
		if i >= len(operands) {
			return 0, false
		}
		s, ok := operands[i].(Scalar)
		if !ok {
			return 0, false
		}
		return TypeFromTag(s.TypeTag())
	}

	switch op {
	case FheEq, FheNe, FheGe, FheGt, FheLe, FheLt:
		return FheBool, true
	case FheCast, FheTrivialEncrypt, FheRand:
		return tagType(1)
	case FheRandBounded:
		return tagType(2)
	case FheIfThenElse:
		if len(operands) < 2 {
			return 0, false
		}
		branch, ok := operands[1].(*Ciphertext)
		if !ok {
			return 0, false
		}
		return branch.Type(), true
	default:
		if len(operands) == 0 {
			return 0, false
		}
		ct, ok := operands[0].(*Ciphertext)
		if !ok {
			return 0, false
		}
		return ct.Type(), true
	}
}
