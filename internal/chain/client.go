package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/gateway"
	"github.com/inzo/orchestrator-go/internal/model"
)

// Backend is the subset of an RPC client the ledger needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type Addresses struct {
	PolicyLedger string
	OracleRelay  string
	Token        string
	FundManager  string
}

type Config struct {
	RPCURL      string
	OracleKey   string
	DeployerKey string
	Addresses   Addresses
	TxTimeout   time.Duration
}

// Client reads and writes the insurance contracts. Orchestrator writes are
// signed by the deployer key, KYC flags by the oracle key, and approvals and
// transfers by the user's custodial key.
type Client struct {
	backend   Backend
	chainID   *big.Int
	oracle    *ecdsa.PrivateKey
	deployer  *ecdsa.PrivateKey
	txTimeout time.Duration

	ledgerABI   abi.ABI
	ledgerAddr  common.Address
	fundAddr    common.Address
	ledger      *bind.BoundContract
	relay       *bind.BoundContract
	token       *bind.BoundContract
	fundManager *bind.BoundContract

	sendersMu sync.Mutex
	senders   map[common.Address]*sender
}

// sender serializes nonce assignment for one signing key. next is the nonce
// after the last accepted transaction, valid while known is set.
type sender struct {
	mu    sync.Mutex
	next  uint64
	known bool
}

// Dial connects to the RPC endpoint and binds the contracts.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c, err := NewClient(ctx, eth, cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}
	return c, nil
}

func NewClient(ctx context.Context, backend Backend, cfg Config) (*Client, error) {
	oracle, err := ParsePrivateKey(cfg.OracleKey)
	if err != nil {
		return nil, fmt.Errorf("oracle key: %w", err)
	}
	deployer, err := ParsePrivateKey(cfg.DeployerKey)
	if err != nil {
		return nil, fmt.Errorf("deployer key: %w", err)
	}

	for name, addr := range map[string]string{
		"policy ledger": cfg.Addresses.PolicyLedger,
		"oracle relay":  cfg.Addresses.OracleRelay,
		"token":         cfg.Addresses.Token,
		"fund manager":  cfg.Addresses.FundManager,
	} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid %s address %q", name, addr)
		}
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	c := &Client{
		backend:   backend,
		chainID:   chainID,
		oracle:    oracle,
		deployer:  deployer,
		txTimeout: cfg.TxTimeout,
		senders:   make(map[common.Address]*sender),
	}
	if c.txTimeout <= 0 {
		c.txTimeout = 3 * time.Minute
	}

	c.ledgerAddr = common.HexToAddress(cfg.Addresses.PolicyLedger)
	c.fundAddr = common.HexToAddress(cfg.Addresses.FundManager)

	if c.ledgerABI, err = abi.JSON(strings.NewReader(policyLedgerABI)); err != nil {
		return nil, fmt.Errorf("parse policy ledger abi: %w", err)
	}
	relayABI, err := abi.JSON(strings.NewReader(oracleRelayABI))
	if err != nil {
		return nil, fmt.Errorf("parse oracle relay abi: %w", err)
	}
	tokABI, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	fundABI, err := abi.JSON(strings.NewReader(fundManagerABI))
	if err != nil {
		return nil, fmt.Errorf("parse fund manager abi: %w", err)
	}

	c.ledger = bind.NewBoundContract(c.ledgerAddr, c.ledgerABI, backend, backend, backend)
	c.relay = bind.NewBoundContract(common.HexToAddress(cfg.Addresses.OracleRelay), relayABI, backend, backend, backend)
	c.token = bind.NewBoundContract(common.HexToAddress(cfg.Addresses.Token), tokABI, backend, backend, backend)
	c.fundManager = bind.NewBoundContract(c.fundAddr, fundABI, backend, backend, backend)

	log.Info().
		Str("chainId", chainID.String()).
		Str("orchestrator", keyAddress(deployer)).
		Str("oracle", keyAddress(oracle)).
		Msg("ledger client initialized")

	return c, nil
}

func (c *Client) fail(op string, err error) error {
	return &gateway.Error{Service: "ledger", Op: op, Err: err}
}

func (c *Client) call(ctx context.Context, contract *bind.BoundContract, method string, args ...any) ([]any, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, c.fail(method, err)
	}
	return out, nil
}

// transact sends a transaction and blocks until it is mined. A reverted
// receipt is an error.
func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, key *ecdsa.PrivateKey, method string, args ...any) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, c.fail(method, err)
	}
	opts.Context = ctx

	s := c.sender(opts.From)
	tx, err := c.send(ctx, s, opts, contract, method, args...)
	if err != nil {
		return nil, c.fail(method, err)
	}

	log.Info().
		Str("method", method).
		Str("txHash", tx.Hash().Hex()).
		Str("from", opts.From.Hex()).
		Msg("ledger transaction sent")

	waitCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		s.forget()
		return nil, c.fail(method, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, c.fail(method, fmt.Errorf("transaction %s reverted", tx.Hash().Hex()))
	}

	log.Info().
		Str("method", method).
		Str("txHash", tx.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Dur("elapsed", time.Since(start)).
		Msg("ledger transaction confirmed")

	return receipt, nil
}

func (c *Client) sender(from common.Address) *sender {
	c.sendersMu.Lock()
	defer c.sendersMu.Unlock()
	s, ok := c.senders[from]
	if !ok {
		s = &sender{}
		c.senders[from] = s
	}
	return s
}

// send assigns the next nonce for opts.From and submits the transaction while
// holding the sender lock, so concurrent writes from one key never share a
// nonce. Mining is awaited outside the lock.
func (c *Client) send(ctx context.Context, s *sender, opts *bind.TransactOpts, contract *bind.BoundContract, method string, args ...any) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := c.backend.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	nonce := pending
	if s.known && s.next > nonce {
		nonce = s.next
	}
	opts.Nonce = new(big.Int).SetUint64(nonce)

	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		s.known = false
		return nil, err
	}
	s.next = nonce + 1
	s.known = true
	return tx, nil
}

// forget drops the local nonce so the next send resyncs with the node.
func (s *sender) forget() {
	s.mu.Lock()
	s.known = false
	s.mu.Unlock()
}

func policyIDArg(id uint64) *big.Int {
	return new(big.Int).SetUint64(id)
}

// GetPolicy reads the full policy record. It returns (nil, nil) when the
// ledger has no policy with that id.
func (c *Client) GetPolicy(ctx context.Context, policyID uint64) (*model.Policy, error) {
	id := policyIDArg(policyID)

	essential, err := c.call(ctx, c.ledger, "getPolicyEssentialDetails", id)
	if err != nil {
		return nil, err
	}
	holder := *abi.ConvertType(essential[1], new(common.Address)).(*common.Address)
	if holder == (common.Address{}) {
		return nil, nil
	}

	terms, err := c.call(ctx, c.ledger, "getPolicyFinancialAndDateTerms", id)
	if err != nil {
		return nil, err
	}
	asset, err := c.call(ctx, c.ledger, "getPolicyAssetIdentifier", id)
	if err != nil {
		return nil, err
	}
	hash, err := c.call(ctx, c.ledger, "getPolicyDetailsHash", id)
	if err != nil {
		return nil, err
	}

	return &model.Policy{
		ID:              policyID,
		Holder:          holder.Hex(),
		Status:          model.PolicyStatus(*abi.ConvertType(essential[2], new(uint8)).(*uint8)),
		CoverageAmount:  *abi.ConvertType(essential[3], new(*big.Int)).(**big.Int),
		PremiumAmount:   *abi.ConvertType(terms[0], new(*big.Int)).(**big.Int),
		LastPremiumPaid: unixTime(*abi.ConvertType(terms[1], new(*big.Int)).(**big.Int)),
		RiskTier:        model.RiskTier(*abi.ConvertType(terms[2], new(uint8)).(*uint8)),
		StartDate:       unixTime(*abi.ConvertType(terms[3], new(*big.Int)).(**big.Int)),
		EndDate:         unixTime(*abi.ConvertType(terms[4], new(*big.Int)).(**big.Int)),
		AssetIdentifier: *abi.ConvertType(asset[0], new(string)).(*string),
		DetailsHash:     *abi.ConvertType(hash[0], new([32]byte)).(*[32]byte),
	}, nil
}

func (c *Client) ListPolicyIDs(ctx context.Context, holder string) ([]uint64, error) {
	out, err := c.call(ctx, c.ledger, "getUserPolicyIds", common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, v.Uint64())
	}
	return ids, nil
}

func (c *Client) TokenBalance(ctx context.Context, address string) (*big.Int, error) {
	out, err := c.call(ctx, c.token, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) GasBalance(ctx context.Context, address string) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, c.fail("balance", err)
	}
	return bal, nil
}

func (c *Client) GetDecision(ctx context.Context, policyID uint64, caseID *big.Int) (*model.Decision, error) {
	out, err := c.call(ctx, c.relay, "getClaimDecision", policyIDArg(policyID), caseID)
	if err != nil {
		return nil, err
	}
	d := *abi.ConvertType(out[0], new(claimDecision)).(*claimDecision)
	return d.toModel(), nil
}

// CreatePolicy submits the draft and returns the id announced by the
// PolicyCreated event in the receipt.
func (c *Client) CreatePolicy(ctx context.Context, draft model.PolicyDraft) (uint64, error) {
	receipt, err := c.transact(ctx, c.ledger, c.deployer, "createPolicy", newPolicyInput(draft))
	if err != nil {
		return 0, err
	}
	id, ok := policyIDFromLogs(c.ledgerABI, c.ledgerAddr, receipt.Logs)
	if !ok {
		return 0, c.fail("createPolicy", fmt.Errorf("no PolicyCreated event in receipt %s", receipt.TxHash.Hex()))
	}
	return id, nil
}

func policyIDFromLogs(ledgerABI abi.ABI, ledger common.Address, logs []*types.Log) (uint64, bool) {
	event, ok := ledgerABI.Events["PolicyCreated"]
	if !ok {
		return 0, false
	}
	for _, l := range logs {
		if l == nil || l.Address != ledger || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(), true
	}
	return 0, false
}

func (c *Client) UpdatePolicyStatus(ctx context.Context, policyID uint64, status model.PolicyStatus) error {
	_, err := c.transact(ctx, c.ledger, c.deployer, "updatePolicyStatus", policyIDArg(policyID), uint8(status))
	return err
}

func (c *Client) SetKYCVerified(ctx context.Context, address string) error {
	_, err := c.transact(ctx, c.relay, c.oracle, "updateKycStatus", common.HexToAddress(address), true)
	return err
}

func (c *Client) Mint(ctx context.Context, to string, amount *big.Int) error {
	_, err := c.transact(ctx, c.token, c.deployer, "mint", common.HexToAddress(to), amount)
	return err
}

// ApproveFund lets the fund manager pull amount from the owner's wallet.
func (c *Client) ApproveFund(ctx context.Context, owner model.Secret, amount *big.Int) error {
	key, err := ParsePrivateKey(owner.Reveal())
	if err != nil {
		return c.fail("approve", err)
	}
	_, err = c.transact(ctx, c.token, key, "approve", c.fundAddr, amount)
	return err
}

func (c *Client) CollectPremium(ctx context.Context, policyID uint64, payer string, amount *big.Int) error {
	_, err := c.transact(ctx, c.fundManager, c.deployer, "collectPremium", policyIDArg(policyID), common.HexToAddress(payer), amount)
	return err
}

func (c *Client) PayOut(ctx context.Context, policyID uint64, holder string, amount *big.Int) error {
	_, err := c.transact(ctx, c.fundManager, c.deployer, "processClaimPayout", policyIDArg(policyID), common.HexToAddress(holder), amount)
	return err
}

// Transfer moves tokens out of a custodial wallet and returns the tx hash.
func (c *Client) Transfer(ctx context.Context, from model.Secret, to string, amount *big.Int) (string, error) {
	key, err := ParsePrivateKey(from.Reveal())
	if err != nil {
		return "", c.fail("transfer", err)
	}
	receipt, err := c.transact(ctx, c.token, key, "transfer", common.HexToAddress(to), amount)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (c *Client) Close() {
	if eth, ok := c.backend.(*ethclient.Client); ok {
		eth.Close()
	}
}
