package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/p2pim/node/internal/logger"
	ptypes "github.com/p2pim/node/pkg/types"
)

// ABI fragments for the three contracts the node speaks to. These are
// hand-written rather than abigen-generated: the node only ever calls a
// handful of methods on each contract, so a minimal bind.BoundContract
// wrapper is simpler than carrying a full generated binding.
const erc20MetadataABIJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]}
]`

const adjudicatorABIJSON = `[
	{"type":"function","name":"balance","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"available","type":"uint256"},{"name":"lockedRents","type":"uint256"},{"name":"lockedLets","type":"uint256"}]},
	{"type":"function","name":"sealLease","stateMutability":"nonpayable","inputs":[
		{"name":"deal","type":"tuple","components":[
			{"name":"lessee","type":"address"},
			{"name":"lessor","type":"address"},
			{"name":"nonce","type":"uint256"},
			{"name":"merkleRoot","type":"bytes32"},
			{"name":"size","type":"uint256"},
			{"name":"price","type":"uint256"},
			{"name":"penalty","type":"uint256"},
			{"name":"leaseDurationSecs","type":"uint256"},
			{"name":"proposalExpirationUnixSecs","type":"uint256"}
		]},
		{"name":"lesseeSignature","type":"bytes"},
		{"name":"lessorSignature","type":"bytes"}
	],"outputs":[]},
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"account","type":"address"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"LeaseSealed","inputs":[
		{"name":"lessor","type":"address","indexed":true},
		{"name":"lessee","type":"address","indexed":true},
		{"name":"nonce","type":"uint256","indexed":false}
	],"anonymous":false}
]`

const masterRecordABIJSON = `[
	{"type":"function","name":"deployments","stateMutability":"view","inputs":[],"outputs":[{"name":"tokens","type":"address[]"},{"name":"adjudicators","type":"address[]"}]}
]`

var leaseSealedEventSignature = crypto.Keccak256Hash([]byte("LeaseSealed(address,address,uint256)"))

type boundERC20 struct {
	address  common.Address
	contract *bind.BoundContract
}

func newBoundERC20(address common.Address, eth *ethclient.Client) (*boundERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABIJSON))
	if err != nil {
		return nil, err
	}
	return &boundERC20{address: address, contract: bind.NewBoundContract(address, parsed, eth, eth, eth)}, nil
}

func (b *boundERC20) balanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (b *boundERC20) allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (b *boundERC20) approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return b.contract.Transact(opts, "approve", spender, amount)
}

// bestEffortMetadata reads name/symbol/decimals, tolerating any method
// that the token does not implement.
func (b *boundERC20) bestEffortMetadata(ctx context.Context) *ptypes.TokenMetadata {
	metadata := &ptypes.TokenMetadata{}

	var nameOut []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &nameOut, "name"); err != nil {
		logger.Warn("token metadata: name call failed", logger.TokenAddress(b.address.Hex()), logger.Err(err))
	} else {
		metadata.Name = nameOut[0].(string)
	}

	var symbolOut []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &symbolOut, "symbol"); err != nil {
		logger.Warn("token metadata: symbol call failed", logger.TokenAddress(b.address.Hex()), logger.Err(err))
	} else {
		metadata.Symbol = symbolOut[0].(string)
	}

	var decimalsOut []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &decimalsOut, "decimals"); err != nil {
		logger.Warn("token metadata: decimals call failed", logger.TokenAddress(b.address.Hex()), logger.Err(err))
	} else {
		metadata.Decimals = decimalsOut[0].(uint8)
	}

	return metadata
}

type boundAdjudicator struct {
	address  common.Address
	contract *bind.BoundContract
	abi      abi.ABI
	eth      *ethclient.Client
}

func newBoundAdjudicator(address common.Address, eth *ethclient.Client) (*boundAdjudicator, error) {
	parsed, err := abi.JSON(strings.NewReader(adjudicatorABIJSON))
	if err != nil {
		return nil, err
	}
	return &boundAdjudicator{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, eth, eth, eth),
		abi:      parsed,
		eth:      eth,
	}, nil
}

func (a *boundAdjudicator) balance(ctx context.Context, account common.Address) (ptypes.StorageBalance, error) {
	var out []interface{}
	if err := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balance", account); err != nil {
		return ptypes.StorageBalance{}, err
	}
	return ptypes.StorageBalance{
		Available:   out[0].(*big.Int),
		LockedRents: out[1].(*big.Int),
		LockedLets:  out[2].(*big.Int),
	}, nil
}

func (a *boundAdjudicator) sealLease(opts *bind.TransactOpts, deal leaseDealStruct, lesseeSig, lessorSig []byte) (*types.Transaction, error) {
	return a.contract.Transact(opts, "sealLease", deal, lesseeSig, lessorSig)
}

func (a *boundAdjudicator) deposit(opts *bind.TransactOpts, amount *big.Int, account common.Address) (*types.Transaction, error) {
	return a.contract.Transact(opts, "deposit", amount, account)
}

func (a *boundAdjudicator) withdraw(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error) {
	return a.contract.Transact(opts, "withdraw", amount)
}

func topicFor(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func (a *boundAdjudicator) decodeLeaseSealedLog(log types.Log) (LeaseSealedEvent, error) {
	if len(log.Topics) != 3 {
		return LeaseSealedEvent{}, fmt.Errorf("unexpected LeaseSealed topic count: %d", len(log.Topics))
	}

	var data struct {
		Nonce *big.Int
	}
	if err := a.abi.UnpackIntoInterface(&data, "LeaseSealed", log.Data); err != nil {
		return LeaseSealedEvent{}, err
	}

	return LeaseSealedEvent{
		Lessor:          common.BytesToAddress(log.Topics[1].Bytes()),
		Lessee:          common.BytesToAddress(log.Topics[2].Bytes()),
		Nonce:           data.Nonce.Uint64(),
		TransactionHash: log.TxHash,
		BlockNumber:     log.BlockNumber,
		Removed:         log.Removed,
	}, nil
}

// leaseSealedEvents polls for LeaseSealed logs from fromBlock matching
// an exact (lessor, lessee) pair, returning the decoded events and the
// latest block number observed.
func (a *boundAdjudicator) leaseSealedEvents(ctx context.Context, fromBlock uint64, lessor, lessee common.Address) ([]LeaseSealedEvent, uint64, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{a.address},
		Topics:    [][]common.Hash{{leaseSealedEventSignature}, {topicFor(lessor)}, {topicFor(lessee)}},
	}

	logs, err := a.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fromBlock, err
	}

	latest := fromBlock
	events := make([]LeaseSealedEvent, 0, len(logs))
	for _, log := range logs {
		ev, err := a.decodeLeaseSealedLog(log)
		if err != nil {
			logger.Warn("skipping undecodable LeaseSealed log", logger.Err(err))
			continue
		}
		events = append(events, ev)
		if log.BlockNumber > latest {
			latest = log.BlockNumber
		}
	}

	return events, latest, nil
}

// subscriptionRetry configures the capped exponential backoff used to
// reconnect a dropped log subscription, grounded on the eigenx-kms-go
// transport client's RetryConfig shape.
type subscriptionRetry struct {
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

var defaultSubscriptionRetry = subscriptionRetry{
	InitialBackoff:  time.Second,
	MaxBackoff:      30 * time.Second,
	BackoffMultiple: 2.0,
}

// subscribeLeaseSealed starts two live log subscriptions for this
// adjudicator — lessor=self (any lessee) and lessee=self (any lessor) —
// and fans both into out, matching spec.md §4.4's merged-stream semantics.
func (a *boundAdjudicator) subscribeLeaseSealed(ctx context.Context, self common.Address, out chan<- LeaseSealedEvent) error {
	asLessor := ethereum.FilterQuery{
		Addresses: []common.Address{a.address},
		Topics:    [][]common.Hash{{leaseSealedEventSignature}, {topicFor(self)}},
	}
	asLessee := ethereum.FilterQuery{
		Addresses: []common.Address{a.address},
		Topics:    [][]common.Hash{{leaseSealedEventSignature}, {}, {topicFor(self)}},
	}

	for _, query := range []ethereum.FilterQuery{asLessor, asLessee} {
		logsCh := make(chan types.Log, 16)
		sub, err := a.eth.SubscribeFilterLogs(ctx, query, logsCh)
		if err != nil {
			return err
		}

		go a.runSubscription(ctx, query, sub, logsCh, out)
	}

	return nil
}

// runSubscription relays decoded logs from sub/logsCh into out until ctx
// is canceled. On a subscription error it reconnects with capped
// exponential backoff instead of giving up, so a transient RPC hiccup
// does not permanently kill this deployment's event relay.
func (a *boundAdjudicator) runSubscription(ctx context.Context, query ethereum.FilterQuery, sub ethereum.Subscription, logsCh chan types.Log, out chan<- LeaseSealedEvent) {
	defer func() { sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			logger.Warn("adjudicator event subscription dropped, reconnecting", logger.Err(err))
			newSub, newLogsCh, ok := a.reconnectSubscription(ctx, query)
			if !ok {
				return
			}
			sub, logsCh = newSub, newLogsCh
		case log := <-logsCh:
			ev, err := a.decodeLeaseSealedLog(log)
			if err != nil {
				logger.Warn("skipping undecodable LeaseSealed log", logger.Err(err))
				continue
			}
			out <- ev
		}
	}
}

// reconnectSubscription retries SubscribeFilterLogs with capped
// exponential backoff until it succeeds or ctx is canceled.
func (a *boundAdjudicator) reconnectSubscription(ctx context.Context, query ethereum.FilterQuery) (ethereum.Subscription, chan types.Log, bool) {
	backoff := defaultSubscriptionRetry.InitialBackoff
	for {
		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-time.After(backoff):
		}

		logsCh := make(chan types.Log, 16)
		sub, err := a.eth.SubscribeFilterLogs(ctx, query, logsCh)
		if err == nil {
			return sub, logsCh, true
		}

		logger.Warn("adjudicator event resubscribe failed, backing off", logger.Err(err))
		backoff = time.Duration(float64(backoff) * defaultSubscriptionRetry.BackoffMultiple)
		if backoff > defaultSubscriptionRetry.MaxBackoff {
			backoff = defaultSubscriptionRetry.MaxBackoff
		}
	}
}

type tokenAdjudicatorPair struct {
	token       common.Address
	adjudicator common.Address
}

type boundMasterRecord struct {
	contract *bind.BoundContract
}

func newBoundMasterRecord(address common.Address, eth *ethclient.Client) (*boundMasterRecord, error) {
	parsed, err := abi.JSON(strings.NewReader(masterRecordABIJSON))
	if err != nil {
		return nil, err
	}
	return &boundMasterRecord{contract: bind.NewBoundContract(address, parsed, eth, eth, eth)}, nil
}

func (m *boundMasterRecord) deployments(ctx context.Context) ([]tokenAdjudicatorPair, error) {
	var out []interface{}
	if err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "deployments"); err != nil {
		return nil, err
	}

	tokens := out[0].([]common.Address)
	adjudicators := out[1].([]common.Address)
	if len(tokens) != len(adjudicators) {
		return nil, fmt.Errorf("master record: mismatched deployments arrays (%d tokens, %d adjudicators)", len(tokens), len(adjudicators))
	}

	pairs := make([]tokenAdjudicatorPair, len(tokens))
	for i := range tokens {
		pairs[i] = tokenAdjudicatorPair{token: tokens[i], adjudicator: adjudicators[i]}
	}
	return pairs, nil
}
