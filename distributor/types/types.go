// Package types holds the shared contracts of the distribution engine:
// the allocator strategy and payout encoder interfaces, the executor port,
// and the small value types (kind identifiers, actions, execution ids)
// that flow between the engine packages.
package types

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KindID is the fixed-width identifier of a registered implementation kind
// (an allocator strategy or a payout encoder). Kind ids are namespaced short
// strings hashed to 32 bytes, e.g. "allocator.merkle.v1".
type KindID [32]byte

// KindIDFromString derives a kind id from its namespaced name.
func KindIDFromString(name string) KindID {
	var id KindID
	copy(id[:], crypto.Keccak256([]byte(name)))
	return id
}

// KindIDFromHex parses a 0x-prefixed 32-byte hex string into a kind id.
func KindIDFromHex(s string) (KindID, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return KindID{}, err
	}
	if len(raw) != len(KindID{}) {
		return KindID{}, fmt.Errorf("kind id must be %d bytes, got %d", len(KindID{}), len(raw))
	}

	var id KindID
	copy(id[:], raw)
	return id, nil
}

// Hex returns the 0x-prefixed hex form of the kind id.
func (k KindID) Hex() string {
	return "0x" + hex.EncodeToString(k[:])
}

// IsZero reports whether the kind id is the zero value.
func (k KindID) IsZero() bool {
	return k == KindID{}
}

// Builtin kind names. The registry derives the ids at boot.
const (
	KindAllocatorMerkle       = "allocator.merkle.v1"
	KindAllocatorCallDelegate = "allocator.calldelegate.v1"
	KindAllocatorOpen         = "allocator.open.v1"
	KindEncoderVault          = "payout.vault.v1"
	KindEncoderStream         = "payout.stream.v1"
)

// Action is a single execution step handed to the executor: call Target with
// Payload, attaching Value native units. Payout flows only ever carry
// zero-value token calls, but the tuple keeps the general shape the executor
// contract expects.
type Action struct {
	Target  ethcommon.Address `json:"target"`
	Value   *big.Int          `json:"value"`
	Payload []byte            `json:"payload"`
}

// NewAction builds a zero-value call action.
func NewAction(target ethcommon.Address, payload []byte) Action {
	return Action{Target: target, Value: new(big.Int), Payload: payload}
}

// ExecutionID scopes one executor dispatch to its campaign. It is derived
// deterministically from the distributor identity and the campaign id, so
// repeated claims against the same campaign share a stable execution context
// while distinct campaigns never collide.
type ExecutionID [32]byte

// NewExecutionID derives the execution id for a campaign.
func NewExecutionID(distributor ethcommon.Address, campaignID uint64) ExecutionID {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, campaignID)

	var id ExecutionID
	copy(id[:], crypto.Keccak256(distributor.Bytes(), buf))
	return id
}

// ExecutionIDFromHex parses a 0x-prefixed 32-byte hex string into an
// execution id.
func ExecutionIDFromHex(s string) (ExecutionID, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return ExecutionID{}, err
	}
	if len(raw) != len(ExecutionID{}) {
		return ExecutionID{}, fmt.Errorf("execution id must be %d bytes, got %d", len(ExecutionID{}), len(raw))
	}

	var id ExecutionID
	copy(id[:], raw)
	return id, nil
}

// Hex returns the 0x-prefixed hex form of the execution id.
func (e ExecutionID) Hex() string {
	return "0x" + hex.EncodeToString(e[:])
}
