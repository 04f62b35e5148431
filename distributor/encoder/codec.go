package encoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ABI type definitions shared by the payout codecs.
var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	uint40Type, _  = abi.NewType("uint40", "", nil)
	boolType, _    = abi.NewType("bool", "", nil)

	vaultSetupArgs = abi.Arguments{
		{Type: addressType}, // vault
	}
	streamSetupArgs = abi.Arguments{
		{Type: addressType}, // streamer
		{Type: uint40Type},  // total duration seconds
		{Type: uint40Type},  // cliff seconds
		{Type: boolType},    // cancelable
		{Type: boolType},    // transferable
		{Type: addressType}, // broker
		{Type: uint256Type}, // broker fee, wad
	}
)

// Function selectors, computed from the canonical signatures.
var (
	// transfer(address,uint256) - selector 0xa9059cbb
	transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	// approve(address,uint256) - selector 0x095ea7b3
	approveSelector = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	// deposit(uint256,address) - ERC-4626, selector 0x6e553f65
	depositSelector = crypto.Keccak256([]byte("deposit(uint256,address)"))[:4]
	// createWithDurations((address,address,uint128,address,bool,bool,(uint40,uint40),(address,uint256)))
	createStreamSelector = crypto.Keccak256([]byte("createWithDurations((address,address,uint128,address,bool,bool,(uint40,uint40),(address,uint256)))"))[:4]
)

// StreamConfig is the stream encoder's per-campaign configuration.
type StreamConfig struct {
	Streamer     ethcommon.Address // stream protocol contract
	Duration     uint64            // total stream length in seconds
	Cliff        uint64            // cliff length in seconds, 0 = none
	Cancelable   bool
	Transferable bool
	Broker       ethcommon.Address // optional broker, zero = none
	BrokerFeeWad *big.Int          // broker fee as an 18-decimal fraction
}

// EncodeVaultSetup encodes the vault encoder's setup aux data:
// (address vault).
func EncodeVaultSetup(vault ethcommon.Address) ([]byte, error) {
	return vaultSetupArgs.Pack(vault)
}

func decodeVaultSetup(aux []byte) (ethcommon.Address, error) {
	values, err := vaultSetupArgs.Unpack(aux)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("failed to unpack vault setup data: %w", err)
	}
	vault, ok := values[0].(ethcommon.Address)
	if !ok {
		return ethcommon.Address{}, fmt.Errorf("unexpected vault type %T", values[0])
	}
	return vault, nil
}

// EncodeStreamSetup encodes the stream encoder's setup aux data:
// (address,uint40,uint40,bool,bool,address,uint256).
func EncodeStreamSetup(config StreamConfig) ([]byte, error) {
	fee := config.BrokerFeeWad
	if fee == nil {
		fee = new(big.Int)
	}
	return streamSetupArgs.Pack(
		config.Streamer,
		new(big.Int).SetUint64(config.Duration),
		new(big.Int).SetUint64(config.Cliff),
		config.Cancelable,
		config.Transferable,
		config.Broker,
		fee,
	)
}

func decodeStreamSetup(aux []byte) (StreamConfig, error) {
	values, err := streamSetupArgs.Unpack(aux)
	if err != nil {
		return StreamConfig{}, fmt.Errorf("failed to unpack stream setup data: %w", err)
	}

	config := StreamConfig{}
	var ok bool
	if config.Streamer, ok = values[0].(ethcommon.Address); !ok {
		return StreamConfig{}, fmt.Errorf("unexpected streamer type %T", values[0])
	}
	duration, ok := values[1].(*big.Int)
	if !ok {
		return StreamConfig{}, fmt.Errorf("unexpected duration type %T", values[1])
	}
	config.Duration = duration.Uint64()
	cliff, ok := values[2].(*big.Int)
	if !ok {
		return StreamConfig{}, fmt.Errorf("unexpected cliff type %T", values[2])
	}
	config.Cliff = cliff.Uint64()
	if config.Cancelable, ok = values[3].(bool); !ok {
		return StreamConfig{}, fmt.Errorf("unexpected cancelable type %T", values[3])
	}
	if config.Transferable, ok = values[4].(bool); !ok {
		return StreamConfig{}, fmt.Errorf("unexpected transferable type %T", values[4])
	}
	if config.Broker, ok = values[5].(ethcommon.Address); !ok {
		return StreamConfig{}, fmt.Errorf("unexpected broker type %T", values[5])
	}
	if config.BrokerFeeWad, ok = values[6].(*big.Int); !ok {
		return StreamConfig{}, fmt.Errorf("unexpected broker fee type %T", values[6])
	}
	return config, nil
}

// erc20TransferData encodes transfer(to, amount).
func erc20TransferData(to ethcommon.Address, amount *big.Int) ([]byte, error) {
	args := abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	encoded, err := args.Pack(to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer arguments: %w", err)
	}
	return append(append([]byte{}, transferSelector...), encoded...), nil
}

// erc20ApproveData encodes approve(spender, amount).
func erc20ApproveData(spender ethcommon.Address, amount *big.Int) ([]byte, error) {
	args := abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	encoded, err := args.Pack(spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve arguments: %w", err)
	}
	return append(append([]byte{}, approveSelector...), encoded...), nil
}

// vaultDepositData encodes the ERC-4626 deposit(assets, receiver).
func vaultDepositData(assets *big.Int, receiver ethcommon.Address) ([]byte, error) {
	args := abi.Arguments{{Type: uint256Type}, {Type: addressType}}
	encoded, err := args.Pack(assets, receiver)
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit arguments: %w", err)
	}
	return append(append([]byte{}, depositSelector...), encoded...), nil
}

// streamCreateParams mirrors the stream contract's CreateWithDurations
// struct: (address sender, address recipient, uint128 totalAmount,
// address asset, bool cancelable, bool transferable, (uint40 cliff,
// uint40 total), (address account, uint256 fee)).
type streamCreateParams struct {
	Sender       ethcommon.Address
	Recipient    ethcommon.Address
	TotalAmount  *big.Int
	Asset        ethcommon.Address
	Cancelable   bool
	Transferable bool
	Durations    streamDurations
	Broker       streamBroker
}

type streamDurations struct {
	Cliff *big.Int
	Total *big.Int
}

type streamBroker struct {
	Account ethcommon.Address
	Fee     *big.Int
}

// streamCreateData encodes createWithDurations(params).
func streamCreateData(params streamCreateParams) ([]byte, error) {
	tupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "sender", Type: "address"},
		{Name: "recipient", Type: "address"},
		{Name: "totalAmount", Type: "uint128"},
		{Name: "asset", Type: "address"},
		{Name: "cancelable", Type: "bool"},
		{Name: "transferable", Type: "bool"},
		{Name: "durations", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "cliff", Type: "uint40"},
			{Name: "total", Type: "uint40"},
		}},
		{Name: "broker", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "account", Type: "address"},
			{Name: "fee", Type: "uint256"},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build stream tuple type: %w", err)
	}

	args := abi.Arguments{{Type: tupleType}}
	encoded, err := args.Pack(params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack stream arguments: %w", err)
	}
	return append(append([]byte{}, createStreamSelector...), encoded...), nil
}
