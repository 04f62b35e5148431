package strategy

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dropline-network/dropline-node/distributor/db"
)

// stubClaims is an in-memory claim ledger double.
type stubClaims struct {
	amounts map[string]sdkmath.Int
}

func newStubClaims() *stubClaims {
	return &stubClaims{amounts: make(map[string]sdkmath.Int)}
}

func (s *stubClaims) ClaimedAmount(_ context.Context, campaignID uint64, account ethcommon.Address) (sdkmath.Int, error) {
	if amount, ok := s.amounts[claimKey(campaignID, account)]; ok {
		return amount, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (s *stubClaims) set(campaignID uint64, account ethcommon.Address, amount int64) {
	s.amounts[claimKey(campaignID, account)] = sdkmath.NewInt(amount)
}

func claimKey(campaignID uint64, account ethcommon.Address) string {
	return fmt.Sprintf("%d/%s", campaignID, account.Hex())
}

// stubReader is an external read oracle double keyed by (target, selector).
type stubReader struct {
	responses map[string][]byte
	errs      map[string]error
	calls     int
}

func newStubReader() *stubReader {
	return &stubReader{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
	}
}

func (s *stubReader) Call(_ context.Context, target ethcommon.Address, data []byte) ([]byte, error) {
	s.calls++
	key := readKey(target, data[:4])
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	if out, ok := s.responses[key]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("no response configured for %s", key)
}

func (s *stubReader) respond(target ethcommon.Address, selector [4]byte, value int64) {
	s.responses[readKey(target, selector[:])] = encodeUint256Word(value)
}

func (s *stubReader) fail(target ethcommon.Address, selector [4]byte, err error) {
	s.errs[readKey(target, selector[:])] = err
}

func readKey(target ethcommon.Address, selector []byte) string {
	return target.Hex() + "/" + hex.EncodeToString(selector)
}

func encodeUint256Word(value int64) []byte {
	word := make([]byte, 32)
	big.NewInt(value).FillBytes(word)
	return word
}

// testEnv bundles the dependencies an allocator under test needs.
type testEnv struct {
	deps   Deps
	claims *stubClaims
	reader *stubReader
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	claims := newStubClaims()
	reader := newStubReader()
	return &testEnv{
		deps: Deps{
			DB:     database,
			Claims: claims,
			Reader: reader,
			Logger: zerolog.Nop(),
		},
		claims: claims,
		reader: reader,
	}
}
