// Package onchain wires the node's storage identity to the on-chain
// adjudicator contracts described by spec.md §4.4: proposal signing, lease
// sealing, the LeaseSealed event race used by wait_for_seal_lease, balance
// reads, and the deposit/withdraw/approve submission wrappers.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/nodeerrors"
	ptypes "github.com/p2pim/node/pkg/types"
)

// deployment pairs one accepted token with the adjudicator contract that
// settles leases denominated in it.
type deployment struct {
	token          *boundERC20
	adjudicator    *boundAdjudicator
	tokenAddress   common.Address
	adjudicatorAdr common.Address
}

// Client is the node's on-chain identity and its view of the master
// record's deployments. A Client owns exactly one secp256k1 private key,
// the node's storage identity.
type Client struct {
	eth        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	ownAddress common.Address
	chainID    *big.Int

	deployments map[common.Address]deployment
}

// Config parameterizes Client construction.
type Config struct {
	PrivateKey    *ecdsa.PrivateKey
	MasterRecord  common.Address
	RPCEndpoint   string
}

// Dial connects to the configured RPC endpoint, reads the master record's
// fixed set of (token, adjudicator) deployments, and returns a ready
// Client. The deployment set is read once and held for the process
// lifetime, per spec.md §4.4.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, nodeerrors.Transient("dial rpc endpoint", err.Error())
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, nodeerrors.Transient("read chain id", err.Error())
	}

	ownAddress := crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey)

	master, err := newBoundMasterRecord(cfg.MasterRecord, eth)
	if err != nil {
		return nil, nodeerrors.Invariant("bind master record contract", err.Error())
	}

	pairs, err := master.deployments(ctx)
	if err != nil {
		return nil, nodeerrors.Transient("read master record deployments", err.Error())
	}

	deployments := make(map[common.Address]deployment, len(pairs))
	for _, pair := range pairs {
		token, err := newBoundERC20(pair.token, eth)
		if err != nil {
			return nil, nodeerrors.Invariant("bind token contract", err.Error())
		}
		adjudicator, err := newBoundAdjudicator(pair.adjudicator, eth)
		if err != nil {
			return nil, nodeerrors.Invariant("bind adjudicator contract", err.Error())
		}
		deployments[pair.token] = deployment{
			token:          token,
			adjudicator:    adjudicator,
			tokenAddress:   pair.token,
			adjudicatorAdr: pair.adjudicator,
		}
	}

	logger.Info("onchain client ready", logger.PeerAddress(ownAddress.Hex()), logger.ChainBlock(chainID.Uint64()))

	return &Client{
		eth:         eth,
		privateKey:  cfg.PrivateKey,
		ownAddress:  ownAddress,
		chainID:     chainID,
		deployments: deployments,
	}, nil
}

// OwnAddress returns the node's storage identity address.
func (c *Client) OwnAddress() common.Address {
	return c.ownAddress
}

// deploymentFor looks up the adjudicator for a token, returning
// TokenNotDeployed (a Policy-class error) if absent.
func (c *Client) deploymentFor(token common.Address) (deployment, error) {
	d, found := c.deployments[token]
	if !found {
		return deployment{}, nodeerrors.Policy(fmt.Sprintf("token not deployed: %s", token.Hex()))
	}
	return d, nil
}

// transactOpts builds a TransactOpts for ownAddress, computing an EIP-1559
// fee cap from the current base fee and suggested tip cap rather than
// leaving gas fields nil for the bound contract to guess at send time.
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainID)
	if err != nil {
		return nil, nodeerrors.Invariant("build transactor", err.Error())
	}
	opts.Context = ctx

	tipCap, feeCap, err := c.estimateGasFees(ctx)
	if err != nil {
		return nil, err
	}
	opts.GasTipCap = tipCap
	opts.GasFeeCap = feeCap

	return opts, nil
}

// estimateGasFees suggests an EIP-1559 tip cap and computes a fee cap as
// 2x the latest base fee plus that tip, falling back to a fixed tip cap
// when the endpoint does not support eth_maxPriorityFeePerGas.
func (c *Client) estimateGasFees(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	const baseFeeMultiplier = 2
	fallbackTipCap := big.NewInt(1_500_000_000) // 1.5 gwei

	tipCap, err = c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		logger.Warn("cannot read suggested gas tip cap, using fallback", logger.Err(err))
		tipCap = fallbackTipCap
	}

	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, nodeerrors.Transient("read latest header", err.Error())
	}

	feeCap = new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(baseFeeMultiplier)), tipCap)

	logger.Debug("estimated gas fees", logger.GasTipCap(tipCap.String()), logger.GasFeeCap(feeCap.String()))
	return tipCap, feeCap, nil
}

// SignProposal signs the lease proposal tuple as the lessee, matching
// spec.md §4.4's ABI-encode -> keccak256 -> EIP-191 -> sign pipeline.
func (c *Client) SignProposal(lessorAddress common.Address, nonce uint64, terms ptypes.LeaseTerms, data ptypes.DataParameters) (ptypes.Signature, error) {
	return c.sign(c.ownAddress, lessorAddress, nonce, terms, data)
}

// sign builds the canonical lease tuple, keccak256-hashes it, frames it
// with the EIP-191 personal-message prefix and signs with the node's
// storage identity key.
func (c *Client) sign(lesseeAddress, lessorAddress common.Address, nonce uint64, terms ptypes.LeaseTerms, data ptypes.DataParameters) (ptypes.Signature, error) {
	digest, err := hashLeaseMessage(terms.TokenAddress, lesseeAddress, lessorAddress, nonce, terms, data)
	if err != nil {
		return ptypes.Signature{}, nodeerrors.Invariant("encode lease message", err.Error())
	}

	framed := accounts191Hash(digest)
	sig, err := crypto.Sign(framed, c.privateKey)
	if err != nil {
		return ptypes.Signature{}, nodeerrors.Invariant("sign lease message", err.Error())
	}

	var out ptypes.Signature
	copy(out.R[:], sig[0:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64] + 27

	return out, nil
}

// SealLease signs the deal as lessor and submits sealLease(deal,
// lessee_sig, lessor_sig) to the token's adjudicator.
func (c *Client) SealLease(ctx context.Context, lesseeAddress common.Address, nonce uint64, terms ptypes.LeaseTerms, data ptypes.DataParameters, lesseeSig ptypes.Signature) (*types.Transaction, error) {
	d, err := c.deploymentFor(terms.TokenAddress)
	if err != nil {
		return nil, err
	}

	lessorSig, err := c.sign(lesseeAddress, c.ownAddress, nonce, terms, data)
	if err != nil {
		return nil, err
	}

	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	deal := leaseDealTuple(lesseeAddress, c.ownAddress, nonce, terms, data)
	tx, err := d.adjudicator.sealLease(opts, deal, lesseeSig.Bytes(), lessorSig.Bytes())
	if err != nil {
		return nil, nodeerrors.Protocol("seal lease submission failed", err.Error())
	}

	logger.Info("seal lease submitted", logger.Nonce(nonce), logger.TxHash(tx.Hash().Hex()))
	return tx, nil
}

// LeaseSealedEvent is the decoded form of the adjudicator's LeaseSealed log.
// Removed is set when the originating log was retracted by a chain
// reorg, per spec.md §4.8 Loop B's Added/Removed handling.
type LeaseSealedEvent struct {
	Lessor          common.Address
	Lessee          common.Address
	Nonce           uint64
	TransactionHash common.Hash
	BlockNumber     uint64
	Removed         bool
}

// BlockTimestamp looks up the timestamp of a block by number, used by the
// reactor's Loop B to attach a chain-confirmation timestamp to a
// LeaseSealed event.
func (c *Client) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, nodeerrors.Transient("read block header", err.Error())
	}
	return time.Unix(int64(header.Time), 0), nil
}

// WaitForSealLease polls the adjudicator's LeaseSealed log starting from a
// 10-block reorg cushion, racing the poll against new-block timestamps.
// It returns the matching event, or nil once a block timestamped after
// until is observed.
func (c *Client) WaitForSealLease(ctx context.Context, token common.Address, lessorAddress common.Address, nonce uint64, until time.Time) (*LeaseSealedEvent, error) {
	d, err := c.deploymentFor(token)
	if err != nil {
		return nil, err
	}

	lastBlock, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, nodeerrors.Transient("read block number", err.Error())
	}
	fromBlock := uint64(0)
	if lastBlock > 10 {
		fromBlock = lastBlock - 10
	}

	heads := make(chan *types.Header, 1)
	headSub, err := c.eth.SubscribeNewHead(ctx, heads)
	if err != nil {
		return nil, nodeerrors.Transient("subscribe new heads", err.Error())
	}
	defer headSub.Unsubscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	pollFrom := fromBlock
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case err := <-headSub.Err():
			return nil, nodeerrors.Transient("head subscription error", err.Error())

		case head := <-heads:
			if time.Unix(int64(head.Time), 0).After(until) {
				logger.Debug("wait_for_seal_lease: deadline exceeded", logger.Nonce(nonce))
				return nil, nil
			}

		case <-ticker.C:
			events, latest, err := d.adjudicator.leaseSealedEvents(ctx, pollFrom, lessorAddress, c.ownAddress)
			if err != nil {
				logger.Warn("wait_for_seal_lease: poll error", logger.Err(err))
				continue
			}
			pollFrom = latest + 1
			for _, ev := range events {
				if ev.Nonce == nonce {
					return &ev, nil
				}
			}
		}
	}
}

// ListenAdjudicatorEvents merges, across every known deployment, the
// lessor=self and lessee=self LeaseSealed log streams into a single
// channel. The returned channel is closed when ctx is canceled.
func (c *Client) ListenAdjudicatorEvents(ctx context.Context) (<-chan LeaseSealedEvent, error) {
	out := make(chan LeaseSealedEvent, 16)

	for _, d := range c.deployments {
		if err := d.adjudicator.subscribeLeaseSealed(ctx, c.ownAddress, out); err != nil {
			return nil, nodeerrors.Transient("subscribe adjudicator events", err.Error())
		}
	}

	return out, nil
}

// Balance reads the adjudicator's triple (available, locked_rents,
// locked_lets) for this node's storage identity plus the token's wallet
// allowance/balance, tolerating missing ERC-20 metadata.
func (c *Client) Balance(ctx context.Context, token common.Address) (ptypes.Balance, error) {
	d, err := c.deploymentFor(token)
	if err != nil {
		return ptypes.Balance{}, err
	}

	storageBalance, err := d.adjudicator.balance(ctx, c.ownAddress)
	if err != nil {
		return ptypes.Balance{}, nodeerrors.Protocol("read adjudicator balance", err.Error())
	}

	available, err := d.token.balanceOf(ctx, c.ownAddress)
	if err != nil {
		return ptypes.Balance{}, nodeerrors.Protocol("read wallet balance", err.Error())
	}
	allowance, err := d.token.allowance(ctx, c.ownAddress, d.adjudicatorAdr)
	if err != nil {
		return ptypes.Balance{}, nodeerrors.Protocol("read wallet allowance", err.Error())
	}

	metadata := d.token.bestEffortMetadata(ctx)

	return ptypes.Balance{
		TokenMetadata:  metadata,
		StorageBalance: storageBalance,
		WalletBalance: ptypes.WalletBalance{
			Available: available,
			Allowance: allowance,
		},
	}, nil
}

// Deposit submits adjudicator.deposit(amount, own_address) for token.
func (c *Client) Deposit(ctx context.Context, token common.Address, amount *big.Int) (*types.Transaction, error) {
	d, err := c.deploymentFor(token)
	if err != nil {
		return nil, err
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := d.adjudicator.deposit(opts, amount, c.ownAddress)
	if err != nil {
		return nil, nodeerrors.Protocol("deposit submission failed", err.Error())
	}
	return tx, nil
}

// Withdraw submits adjudicator.withdraw(amount) for token.
func (c *Client) Withdraw(ctx context.Context, token common.Address, amount *big.Int) (*types.Transaction, error) {
	d, err := c.deploymentFor(token)
	if err != nil {
		return nil, err
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := d.adjudicator.withdraw(opts, amount)
	if err != nil {
		return nil, nodeerrors.Protocol("withdraw submission failed", err.Error())
	}
	return tx, nil
}

// Approve submits token.approve(adjudicator, max_uint256), granting the
// adjudicator unlimited pull access, matching the original's single
// approve-to-max flow.
func (c *Client) Approve(ctx context.Context, token common.Address) (*types.Transaction, error) {
	d, err := c.deploymentFor(token)
	if err != nil {
		return nil, err
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	tx, err := d.token.approve(opts, d.adjudicatorAdr, maxUint256)
	if err != nil {
		return nil, nodeerrors.Protocol("approve submission failed", err.Error())
	}
	return tx, nil
}
