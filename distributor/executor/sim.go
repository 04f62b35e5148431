package executor

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/types"
)

// Call shapes the simulator serves, keyed by their canonical selectors.
var (
	simTransferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	simApproveSelector  = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	simDepositSelector  = crypto.Keccak256([]byte("deposit(uint256,address)"))[:4]
	simStreamSelector   = crypto.Keccak256([]byte("createWithDurations((address,address,uint128,address,bool,bool,(uint40,uint40),(address,uint256)))"))[:4]
)

// SimStream is one vesting stream recorded by the simulator.
type SimStream struct {
	Streamer  ethcommon.Address
	Sender    ethcommon.Address
	Recipient ethcommon.Address
	Asset     ethcommon.Address
	Amount    *big.Int
	Cliff     uint64
	Duration  uint64
}

// SimExecutor is a simple in-memory execution backend used by tests and
// local runs. It applies the token call shapes the payout encoders emit
// against a small simulated world where the executor plays the funded
// treasury account, and doubles as a read oracle serving canned responses.
type SimExecutor struct {
	mu sync.Mutex

	treasury   map[ethcommon.Address]*big.Int                       // token -> undistributed balance
	balances   map[ethcommon.Address]map[ethcommon.Address]*big.Int // token -> holder -> balance
	allowances map[ethcommon.Address]map[ethcommon.Address]*big.Int // token -> spender -> allowance from the treasury
	shares     map[ethcommon.Address]map[ethcommon.Address]*big.Int // vault -> holder -> shares
	vaults     map[ethcommon.Address]ethcommon.Address              // vault -> underlying asset
	streamers  map[ethcommon.Address]bool
	streams    []SimStream

	reads      map[string][]byte // canned read responses keyed by target/selector
	executions int
	failure    error

	logger zerolog.Logger
}

// NewSimExecutor creates an empty simulated world.
func NewSimExecutor(logger zerolog.Logger) *SimExecutor {
	return &SimExecutor{
		treasury:   make(map[ethcommon.Address]*big.Int),
		balances:   make(map[ethcommon.Address]map[ethcommon.Address]*big.Int),
		allowances: make(map[ethcommon.Address]map[ethcommon.Address]*big.Int),
		shares:     make(map[ethcommon.Address]map[ethcommon.Address]*big.Int),
		vaults:     make(map[ethcommon.Address]ethcommon.Address),
		streamers:  make(map[ethcommon.Address]bool),
		reads:      make(map[string][]byte),
		logger:     logger.With().Str("component", "sim_executor").Logger(),
	}
}

// Fund credits the treasury with amount of token.
func (s *SimExecutor) Fund(token ethcommon.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance, ok := s.treasury[token]; ok {
		balance.Add(balance, amount)
		return
	}
	s.treasury[token] = new(big.Int).Set(amount)
}

// RegisterVault declares an ERC-4626 vault and its underlying asset.
func (s *SimExecutor) RegisterVault(vault, asset ethcommon.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults[vault] = asset
}

// RegisterStreamer declares a stream protocol contract.
func (s *SimExecutor) RegisterStreamer(streamer ethcommon.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamers[streamer] = true
}

// RespondRead registers a canned response for reads against
// (target, selector).
func (s *SimExecutor) RespondRead(target ethcommon.Address, selector [4]byte, response []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[simReadKey(target, selector[:])] = response
}

// SetFailure forces every subsequent Execute to fail with err until
// ClearFailure is called.
func (s *SimExecutor) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// ClearFailure re-enables execution.
func (s *SimExecutor) ClearFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = nil
}

// Execute implements types.Executor. The action list applies atomically:
// if any action fails, the world is left untouched.
func (s *SimExecutor) Execute(_ context.Context, id types.ExecutionID, actions []types.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return s.failure
	}
	if len(actions) == 0 {
		return fmt.Errorf("empty action list")
	}

	snapshot := s.snapshot()
	for i, action := range actions {
		if err := s.apply(action); err != nil {
			s.restore(snapshot)
			return fmt.Errorf("action %d against %s: %w", i, action.Target.Hex(), err)
		}
	}

	s.executions++
	s.logger.Debug().
		Str("execution_id", id.Hex()).
		Int("actions", len(actions)).
		Msg("execution applied")

	return nil
}

// Call implements types.ExternalReader against the canned responses.
func (s *SimExecutor) Call(_ context.Context, target ethcommon.Address, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	if response, ok := s.reads[simReadKey(target, data[:4])]; ok {
		return response, nil
	}
	return nil, fmt.Errorf("no read registered for %s", target.Hex())
}

func (s *SimExecutor) apply(action types.Action) error {
	if len(action.Payload) < 4 {
		return fmt.Errorf("calldata too short")
	}
	selector := action.Payload[:4]

	switch {
	case bytes.Equal(selector, simTransferSelector):
		to, err := simWordAddress(action.Payload, 0)
		if err != nil {
			return err
		}
		amount, err := simWordAmount(action.Payload, 1)
		if err != nil {
			return err
		}
		if err := s.debitTreasury(action.Target, amount); err != nil {
			return err
		}
		simCredit(s.balances, action.Target, to, amount)
		return nil

	case bytes.Equal(selector, simApproveSelector):
		spender, err := simWordAddress(action.Payload, 0)
		if err != nil {
			return err
		}
		amount, err := simWordAmount(action.Payload, 1)
		if err != nil {
			return err
		}
		simSet(s.allowances, action.Target, spender, amount)
		return nil

	case bytes.Equal(selector, simDepositSelector):
		asset, ok := s.vaults[action.Target]
		if !ok {
			return fmt.Errorf("target is not a registered vault")
		}
		assets, err := simWordAmount(action.Payload, 0)
		if err != nil {
			return err
		}
		receiver, err := simWordAddress(action.Payload, 1)
		if err != nil {
			return err
		}
		if err := s.spendAllowance(asset, action.Target, assets); err != nil {
			return err
		}
		if err := s.debitTreasury(asset, assets); err != nil {
			return err
		}
		simCredit(s.balances, asset, action.Target, assets)
		simCredit(s.shares, action.Target, receiver, assets)
		return nil

	case bytes.Equal(selector, simStreamSelector):
		if !s.streamers[action.Target] {
			return fmt.Errorf("target is not a registered streamer")
		}
		sender, err := simWordAddress(action.Payload, 0)
		if err != nil {
			return err
		}
		recipient, err := simWordAddress(action.Payload, 1)
		if err != nil {
			return err
		}
		amount, err := simWordAmount(action.Payload, 2)
		if err != nil {
			return err
		}
		asset, err := simWordAddress(action.Payload, 3)
		if err != nil {
			return err
		}
		cliff, err := simWordAmount(action.Payload, 6)
		if err != nil {
			return err
		}
		total, err := simWordAmount(action.Payload, 7)
		if err != nil {
			return err
		}
		if err := s.spendAllowance(asset, action.Target, amount); err != nil {
			return err
		}
		if err := s.debitTreasury(asset, amount); err != nil {
			return err
		}
		simCredit(s.balances, asset, action.Target, amount)
		s.streams = append(s.streams, SimStream{
			Streamer:  action.Target,
			Sender:    sender,
			Recipient: recipient,
			Asset:     asset,
			Amount:    new(big.Int).Set(amount),
			Cliff:     cliff.Uint64(),
			Duration:  total.Uint64(),
		})
		return nil
	}

	return fmt.Errorf("unsupported selector 0x%x", selector)
}

func (s *SimExecutor) debitTreasury(token ethcommon.Address, amount *big.Int) error {
	balance, ok := s.treasury[token]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient treasury balance for token %s", token.Hex())
	}
	balance.Sub(balance, amount)
	return nil
}

func (s *SimExecutor) spendAllowance(token, spender ethcommon.Address, amount *big.Int) error {
	allowance := s.allowances[token][spender]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient allowance for spender %s", spender.Hex())
	}
	allowance.Sub(allowance, amount)
	return nil
}

// BalanceOf returns holder's balance of token.
func (s *SimExecutor) BalanceOf(token, holder ethcommon.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return simRead(s.balances, token, holder)
}

// TreasuryBalance returns the undistributed treasury balance of token.
func (s *SimExecutor) TreasuryBalance(token ethcommon.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance, ok := s.treasury[token]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// SharesOf returns holder's share balance in vault.
func (s *SimExecutor) SharesOf(vault, holder ethcommon.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return simRead(s.shares, vault, holder)
}

// AllowanceOf returns spender's remaining allowance of token.
func (s *SimExecutor) AllowanceOf(token, spender ethcommon.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return simRead(s.allowances, token, spender)
}

// Streams returns a copy of the recorded streams.
func (s *SimExecutor) Streams() []SimStream {
	s.mu.Lock()
	defer s.mu.Unlock()

	streams := make([]SimStream, len(s.streams))
	copy(streams, s.streams)
	return streams
}

// Executions returns the number of successfully applied executions.
func (s *SimExecutor) Executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

// simSnapshot captures the mutable world state before an execution so a
// failing action list can be rolled back wholesale.
type simSnapshot struct {
	treasury   map[ethcommon.Address]*big.Int
	balances   map[ethcommon.Address]map[ethcommon.Address]*big.Int
	allowances map[ethcommon.Address]map[ethcommon.Address]*big.Int
	shares     map[ethcommon.Address]map[ethcommon.Address]*big.Int
	streams    int
}

func (s *SimExecutor) snapshot() simSnapshot {
	return simSnapshot{
		treasury:   simCloneFlat(s.treasury),
		balances:   simCloneNested(s.balances),
		allowances: simCloneNested(s.allowances),
		shares:     simCloneNested(s.shares),
		streams:    len(s.streams),
	}
}

func (s *SimExecutor) restore(snap simSnapshot) {
	s.treasury = snap.treasury
	s.balances = snap.balances
	s.allowances = snap.allowances
	s.shares = snap.shares
	s.streams = s.streams[:snap.streams]
}

func simCloneFlat(src map[ethcommon.Address]*big.Int) map[ethcommon.Address]*big.Int {
	dst := make(map[ethcommon.Address]*big.Int, len(src))
	for key, value := range src {
		dst[key] = new(big.Int).Set(value)
	}
	return dst
}

func simCloneNested(src map[ethcommon.Address]map[ethcommon.Address]*big.Int) map[ethcommon.Address]map[ethcommon.Address]*big.Int {
	dst := make(map[ethcommon.Address]map[ethcommon.Address]*big.Int, len(src))
	for key, value := range src {
		dst[key] = simCloneFlat(value)
	}
	return dst
}

func simCredit(table map[ethcommon.Address]map[ethcommon.Address]*big.Int, outer, inner ethcommon.Address, amount *big.Int) {
	byOuter, ok := table[outer]
	if !ok {
		byOuter = make(map[ethcommon.Address]*big.Int)
		table[outer] = byOuter
	}
	if existing, ok := byOuter[inner]; ok {
		existing.Add(existing, amount)
		return
	}
	byOuter[inner] = new(big.Int).Set(amount)
}

func simSet(table map[ethcommon.Address]map[ethcommon.Address]*big.Int, outer, inner ethcommon.Address, amount *big.Int) {
	byOuter, ok := table[outer]
	if !ok {
		byOuter = make(map[ethcommon.Address]*big.Int)
		table[outer] = byOuter
	}
	byOuter[inner] = new(big.Int).Set(amount)
}

func simRead(table map[ethcommon.Address]map[ethcommon.Address]*big.Int, outer, inner ethcommon.Address) *big.Int {
	if value, ok := table[outer][inner]; ok {
		return new(big.Int).Set(value)
	}
	return new(big.Int)
}

func simWordAt(payload []byte, i int) ([]byte, error) {
	start := 4 + 32*i
	if len(payload) < start+32 {
		return nil, fmt.Errorf("calldata word %d out of range", i)
	}
	return payload[start : start+32], nil
}

func simWordAddress(payload []byte, i int) (ethcommon.Address, error) {
	word, err := simWordAt(payload, i)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return ethcommon.BytesToAddress(word), nil
}

func simWordAmount(payload []byte, i int) (*big.Int, error) {
	word, err := simWordAt(payload, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(word), nil
}

func simReadKey(target ethcommon.Address, selector []byte) string {
	return target.Hex() + "/" + hex.EncodeToString(selector)
}
