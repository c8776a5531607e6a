package prover

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// groth16Arguments is the ABI layout of a Groth16 seal: uint256[2] a, uint256[2][2] b, uint256[2] c.
var groth16Arguments = abi.Arguments{
	{Name: "a", Type: mustNewType("uint256[2]")},
	{Name: "b", Type: mustNewType("uint256[2][2]")},
	{Name: "c", Type: mustNewType("uint256[2]")},
}

// encodeSeal ABI encodes a Groth16 seal and prefixes it with the selector of the verifier
// contract it is meant for.
func encodeSeal(selector [4]byte, seal groth16Seal) ([]byte, error) {
	if len(seal.A) != 2 || len(seal.B) != 2 || len(seal.C) != 2 {
		return nil, fmt.Errorf("malformed Groth16 seal: expected 2 elements per coordinate, got a: %d, b: %d, c: %d",
			len(seal.A), len(seal.B), len(seal.C))
	}

	var a, c [2]*big.Int
	var b [2][2]*big.Int
	for i := 0; i < 2; i++ {
		var err error
		if a[i], err = uint256FromBytes(seal.A[i]); err != nil {
			return nil, fmt.Errorf("decoding a[%d]: %w", i, err)
		}
		if c[i], err = uint256FromBytes(seal.C[i]); err != nil {
			return nil, fmt.Errorf("decoding c[%d]: %w", i, err)
		}
		if len(seal.B[i]) != 2 {
			return nil, fmt.Errorf("malformed Groth16 seal: expected 2 elements in b[%d], got %d", i, len(seal.B[i]))
		}
		for j := 0; j < 2; j++ {
			if b[i][j], err = uint256FromBytes(seal.B[i][j]); err != nil {
				return nil, fmt.Errorf("decoding b[%d][%d]: %w", i, j, err)
			}
		}
	}

	encoded, err := groth16Arguments.Pack(a, b, c)
	if err != nil {
		return nil, fmt.Errorf("ABI encoding seal: %w", err)
	}
	return append(selector[:], encoded...), nil
}

// uint256FromBytes interprets a big-endian byte slice of at most 32 bytes as an unsigned integer.
func uint256FromBytes(b []byte) (*big.Int, error) {
	if len(b) > 32 {
		return nil, fmt.Errorf("value of %d bytes exceeds uint256", len(b))
	}
	return new(big.Int).SetBytes(b), nil
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
