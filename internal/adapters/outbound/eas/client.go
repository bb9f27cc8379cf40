// Package eas talks to the attestation service and the trusted oracle
// arbiter over JSON-RPC: attestation lookups and arbitration writes over
// HTTP, live arbitration-request streams over WebSocket.
package eas

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time checks that Client implements the ledger ports
var (
	_ outbound.ArbitrationClient = (*Client)(nil)
	_ outbound.AttestationSource = (*Client)(nil)
)

const easABIJSON = `[
	{"type":"function","name":"getAttestation","stateMutability":"view",
	 "inputs":[{"name":"uid","type":"bytes32"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"uid","type":"bytes32"},
		{"name":"schema","type":"bytes32"},
		{"name":"time","type":"uint64"},
		{"name":"expirationTime","type":"uint64"},
		{"name":"revocationTime","type":"uint64"},
		{"name":"refUID","type":"bytes32"},
		{"name":"recipient","type":"address"},
		{"name":"attester","type":"address"},
		{"name":"revocable","type":"bool"},
		{"name":"data","type":"bytes"}]}]}
]`

const arbiterABIJSON = `[
	{"type":"function","name":"arbitrate","stateMutability":"nonpayable",
	 "inputs":[{"name":"obligation","type":"bytes32"},{"name":"decision","type":"bool"}],"outputs":[]},
	{"type":"function","name":"requestArbitration","stateMutability":"nonpayable",
	 "inputs":[{"name":"obligation","type":"bytes32"},{"name":"oracle","type":"address"}],"outputs":[]},
	{"type":"event","name":"ArbitrationRequested","anonymous":false,
	 "inputs":[{"name":"obligation","type":"bytes32","indexed":true},{"name":"oracle","type":"address","indexed":true}]},
	{"type":"event","name":"ArbitrationMade","anonymous":false,
	 "inputs":[{"name":"obligation","type":"bytes32","indexed":true},{"name":"oracle","type":"address","indexed":true},{"name":"decision","type":"bool"}]}
]`

// attestationRecord mirrors the attestation tuple returned by the contract.
// Field names follow the ABI component names after camel-casing.
type attestationRecord struct {
	Uid            [32]byte
	Schema         [32]byte
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	RefUID         [32]byte
	Recipient      common.Address
	Attester       common.Address
	Revocable      bool
	Data           []byte
}

// Client is the JSON-RPC ledger adapter. It serves attestation lookups,
// historical arbitration-request queries, arbitration status checks, and
// signed arbitration transactions.
type Client struct {
	config Config
	eth    *ethclient.Client
	logger *slog.Logger

	easABI     abi.ABI
	arbiterABI abi.ABI

	key  *ecdsa.PrivateKey
	from common.Address

	chainMu sync.Mutex
	chainID *big.Int
}

// NewClient creates a ledger client from the given configuration. The
// private key is optional; without it the client is read-only and every
// transaction attempt fails.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applyDefaults()

	eth, err := ethclient.Dial(config.HTTPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	easABI, err := abi.JSON(strings.NewReader(easABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse eas abi: %w", err)
	}
	arbiterABI, err := abi.JSON(strings.NewReader(arbiterABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse arbiter abi: %w", err)
	}

	c := &Client{
		config:     config,
		eth:        eth,
		logger:     config.Logger.With("component", "eas-client"),
		easABI:     easABI,
		arbiterABI: arbiterABI,
	}

	if config.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Signer returns the address transactions are sent from, or the zero
// address for a read-only client.
func (c *Client) Signer() common.Address { return c.from }

// GetAttestation fetches one attestation record by uid.
func (c *Client) GetAttestation(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
	data, err := c.easABI.Pack("getAttestation", uid)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getAttestation call: %w", err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.config.EAS, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAttestation call failed: %w", err)
	}

	vals, err := c.easABI.Unpack("getAttestation", out)
	if err != nil {
		return nil, &entity.DecodeError{Reason: "attestation record has wrong shape", Err: err}
	}
	rec := *abi.ConvertType(vals[0], new(attestationRecord)).(*attestationRecord)
	if rec.Uid == ([32]byte{}) {
		return nil, &entity.NotFoundError{UID: uid}
	}

	return &entity.Attestation{
		UID:            common.Hash(rec.Uid),
		Schema:         common.Hash(rec.Schema),
		RefUID:         common.Hash(rec.RefUID),
		Time:           rec.Time,
		ExpirationTime: rec.ExpirationTime,
		RevocationTime: rec.RevocationTime,
		Recipient:      rec.Recipient,
		Attester:       rec.Attester,
		Revocable:      rec.Revocable,
		Data:           rec.Data,
	}, nil
}

// HasDecision reports whether the oracle has already arbitrated the
// obligation, by looking for a past decision event.
func (c *Client) HasDecision(ctx context.Context, uid common.Hash, oracle common.Address) (bool, error) {
	madeID := c.arbiterABI.Events["ArbitrationMade"].ID
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: c.startBlock(),
		Addresses: []common.Address{c.config.Arbiter},
		Topics: [][]common.Hash{
			{madeID},
			{uid},
			{addressTopic(oracle)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to query decision events: %w", err)
	}
	return len(logs) > 0, nil
}

// SubmitArbitration sends a signed arbitrate transaction and waits for it
// to be mined. A reverted transaction is a SubmissionError.
func (c *Client) SubmitArbitration(ctx context.Context, uid common.Hash, oracle common.Address, decision bool) (common.Hash, error) {
	data, err := c.arbiterABI.Pack("arbitrate", uid, decision)
	if err != nil {
		return common.Hash{}, &entity.SubmissionError{UID: uid, Err: err}
	}
	tx, err := c.sendTransaction(ctx, c.config.Arbiter, data)
	if err != nil {
		return common.Hash{}, &entity.SubmissionError{UID: uid, Err: err}
	}
	return tx, nil
}

// RequestArbitration sends a signed requestArbitration transaction and
// waits for it to be mined.
func (c *Client) RequestArbitration(ctx context.Context, uid common.Hash, oracle common.Address) (common.Hash, error) {
	data, err := c.arbiterABI.Pack("requestArbitration", uid, oracle)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode requestArbitration: %w", err)
	}
	return c.sendTransaction(ctx, c.config.Arbiter, data)
}

// FetchHistorical returns all past arbitration requests addressed to the
// oracle, in ledger order, each resolved to its full attestation record.
func (c *Client) FetchHistorical(ctx context.Context, oracle common.Address) ([]*entity.Attestation, error) {
	requestedID := c.arbiterABI.Events["ArbitrationRequested"].ID
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: c.startBlock(),
		Addresses: []common.Address{c.config.Arbiter},
		Topics: [][]common.Hash{
			{requestedID},
			nil,
			{addressTopic(oracle)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query arbitration requests: %w", err)
	}

	atts := make([]*entity.Attestation, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue
		}
		att, err := c.GetAttestation(ctx, lg.Topics[1])
		if err != nil {
			return nil, fmt.Errorf("failed to resolve requested attestation %s: %w", lg.Topics[1].Hex(), err)
		}
		atts = append(atts, att)
	}
	return atts, nil
}

// Subscribe opens a live WebSocket stream of arbitration requests for the
// oracle. Each raw event is resolved to its attestation through this
// client before delivery.
func (c *Client) Subscribe(ctx context.Context, oracle common.Address) (outbound.AttestationStream, error) {
	if c.config.WebSocketURL == "" {
		return nil, fmt.Errorf("WebSocketURL is required for live subscriptions")
	}
	sub := newSubscriber(c.config, oracle, c.arbiterABI.Events["ArbitrationRequested"].ID, c.GetAttestation)
	sub.start(ctx)
	return sub, nil
}

// sendTransaction signs, submits, and waits out one contract call.
func (c *Client) sendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, fmt.Errorf("no signing key configured")
	}

	chainID, err := c.getChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas estimation failed: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	if err := c.waitMined(ctx, signed.Hash()); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// waitMined polls for the transaction receipt until it lands or the wait
// times out.
func (c *Client) waitMined(ctx context.Context, tx common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.config.ReceiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, tx)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("transaction %s reverted", tx.Hex())
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for transaction %s: %w", tx.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) getChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

// startBlock is the lower bound for historical log queries. The contracts
// cannot emit events before their deployment block, so callers that know it
// can skip the dead range.
func (c *Client) startBlock() *big.Int {
	return new(big.Int).SetUint64(c.config.StartBlock)
}

// addressTopic left-pads an address into its indexed topic form.
func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
