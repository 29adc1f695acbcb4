package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeBackend is an in-memory node that mines every accepted transaction
// immediately. It enforces strict per-account nonce ordering the way a real
// mempool rejects reused nonces. Methods it does not override panic through
// the nil embedded Backend.
type fakeBackend struct {
	Backend

	chainID    *big.Int
	nonceDelay time.Duration

	mu       sync.Mutex
	nonces   map[common.Address][]uint64
	receipts map[common.Hash]*types.Receipt
	rejected []error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:  big.NewInt(1337),
		nonces:   make(map[common.Address][]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	n := uint64(len(b.nonces[account]))
	b.mu.Unlock()

	if b.nonceDelay > 0 {
		time.Sleep(b.nonceDelay)
	}
	return n, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	want := uint64(len(b.nonces[from]))
	if tx.Nonce() != want {
		err := fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), want)
		b.rejected = append(b.rejected, err)
		return err
	}
	b.nonces[from] = append(b.nonces[from], tx.Nonce())
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(len(b.receipts) + 1)),
	}
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *fakeBackend) sentNonces(account common.Address) []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint64(nil), b.nonces[account]...)
}

func (b *fakeBackend) rejections() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.rejected...)
}
