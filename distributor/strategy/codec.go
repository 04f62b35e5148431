package strategy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ABI type definitions shared by the aux codecs.
var (
	addressType, _      = abi.NewType("address", "", nil)
	uint256Type, _      = abi.NewType("uint256", "", nil)
	bytes4Type, _       = abi.NewType("bytes4", "", nil)
	boolType, _         = abi.NewType("bool", "", nil)
	bytes32ArrayType, _ = abi.NewType("bytes32[]", "", nil)

	merkleClaimArgs = abi.Arguments{
		{Type: uint256Type},      // amount
		{Type: bytes32ArrayType}, // proof
	}
	callDescriptorArgs = abi.Arguments{
		{Type: addressType}, // eligibility target
		{Type: bytes4Type},  // eligibility selector
		{Type: addressType}, // amount target
		{Type: bytes4Type},  // amount selector
		{Type: boolType},    // multiple claims allowed
	}
	openSetupArgs = abi.Arguments{
		{Type: uint256Type}, // fixed amount
	}
)

// CallDescriptors binds the call-delegation allocator's two external reads
// and its claim policy. A zero eligibility target means every account is
// eligible.
type CallDescriptors struct {
	EligibilityTarget   ethcommon.Address
	EligibilitySelector [4]byte
	AmountTarget        ethcommon.Address
	AmountSelector      [4]byte
	MultipleClaims      bool
}

// EncodeMerkleSetup encodes the merkle allocator's setup aux data: the raw
// 32-byte root.
func EncodeMerkleSetup(root ethcommon.Hash) []byte {
	return root.Bytes()
}

// EncodeMerkleClaim encodes a merkle claim's aux data:
// (uint256 amount, bytes32[] proof).
func EncodeMerkleClaim(amount *big.Int, proof []ethcommon.Hash) ([]byte, error) {
	raw := make([][32]byte, len(proof))
	for i, h := range proof {
		raw[i] = h
	}
	return merkleClaimArgs.Pack(amount, raw)
}

func decodeMerkleClaim(aux []byte) (*big.Int, []ethcommon.Hash, error) {
	values, err := merkleClaimArgs.Unpack(aux)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack merkle claim data: %w", err)
	}

	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected amount type %T", values[0])
	}
	rawProof, ok := values[1].([][32]byte)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected proof type %T", values[1])
	}

	proof := make([]ethcommon.Hash, len(rawProof))
	for i, h := range rawProof {
		proof[i] = h
	}
	return amount, proof, nil
}

// EncodeCallDelegateSetup encodes the call-delegation allocator's setup aux
// data: (address,bytes4,address,bytes4,bool).
func EncodeCallDelegateSetup(desc CallDescriptors) ([]byte, error) {
	return callDescriptorArgs.Pack(
		desc.EligibilityTarget,
		desc.EligibilitySelector,
		desc.AmountTarget,
		desc.AmountSelector,
		desc.MultipleClaims,
	)
}

func decodeCallDelegateSetup(aux []byte) (CallDescriptors, error) {
	values, err := callDescriptorArgs.Unpack(aux)
	if err != nil {
		return CallDescriptors{}, fmt.Errorf("failed to unpack call descriptors: %w", err)
	}

	desc := CallDescriptors{}
	var ok bool
	if desc.EligibilityTarget, ok = values[0].(ethcommon.Address); !ok {
		return CallDescriptors{}, fmt.Errorf("unexpected eligibility target type %T", values[0])
	}
	if desc.EligibilitySelector, ok = values[1].([4]byte); !ok {
		return CallDescriptors{}, fmt.Errorf("unexpected eligibility selector type %T", values[1])
	}
	if desc.AmountTarget, ok = values[2].(ethcommon.Address); !ok {
		return CallDescriptors{}, fmt.Errorf("unexpected amount target type %T", values[2])
	}
	if desc.AmountSelector, ok = values[3].([4]byte); !ok {
		return CallDescriptors{}, fmt.Errorf("unexpected amount selector type %T", values[3])
	}
	if desc.MultipleClaims, ok = values[4].(bool); !ok {
		return CallDescriptors{}, fmt.Errorf("unexpected multiple claims type %T", values[4])
	}
	return desc, nil
}

// EncodeOpenSetup encodes the open allocator's setup aux data:
// (uint256 fixedAmount).
func EncodeOpenSetup(amount *big.Int) ([]byte, error) {
	return openSetupArgs.Pack(amount)
}

func decodeOpenSetup(aux []byte) (*big.Int, error) {
	values, err := openSetupArgs.Unpack(aux)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack open setup data: %w", err)
	}

	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amount type %T", values[0])
	}
	return amount, nil
}

// accountCallData builds the calldata for one descriptor read:
// selector ‖ abi.encode(account).
func accountCallData(selector [4]byte, account ethcommon.Address) ([]byte, error) {
	args := abi.Arguments{{Type: addressType}}
	encoded, err := args.Pack(account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack account argument: %w", err)
	}
	return append(selector[:], encoded...), nil
}

// decodeUint256 decodes a single uint256 return value.
func decodeUint256(out []byte) (*big.Int, error) {
	args := abi.Arguments{{Type: uint256Type}}
	values, err := args.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack uint256 return: %w", err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected return type %T", values[0])
	}
	return value, nil
}
