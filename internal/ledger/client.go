package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Investorold/KPi-Vault-sub000/internal/events"
)

// txTimeout bounds one audit-log write including mining.
const txTimeout = 2 * time.Minute

// Client talks to the KPI vault contract over a websocket RPC endpoint.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
}

// Dial connects to the ledger RPC endpoint and prepares the vault contract
// binding. The endpoint must support subscriptions (websocket).
func Dial(ctx context.Context, rpcURL string, contract common.Address, key *ecdsa.PrivateKey) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger RPC: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("invalid vault ABI: %w", err)
	}

	return &Client{
		eth:      eth,
		contract: contract,
		abi:      parsed,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// WorkerAddress returns the ledger identity the worker signs with.
func (c *Client) WorkerAddress() common.Address {
	return c.from
}

// WatchMetricRecorded subscribes to MetricRecorded logs on the vault and
// forwards parsed events to sink until the subscription fails or ctx is
// cancelled. Unparseable logs are dropped with a warning.
func (c *Client) WatchMetricRecorded(ctx context.Context, sink chan<- events.MetricEvent) (ethereum.Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{c.abi.Events["MetricRecorded"].ID}},
	}

	logs := make(chan types.Log, 64)
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to MetricRecorded: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case lg, ok := <-logs:
				if !ok {
					return
				}
				ev, err := c.parseMetricRecorded(lg)
				if err != nil {
					slog.Warn("Dropping unparseable MetricRecorded log",
						"tx", lg.TxHash.Hex(),
						"error", err,
					)
					continue
				}
				select {
				case sink <- ev:
				case <-ctx.Done():
					sub.Unsubscribe()
					return
				}
			}
		}
	}()

	return sub, nil
}

func (c *Client) parseMetricRecorded(lg types.Log) (events.MetricEvent, error) {
	if len(lg.Topics) < 3 {
		return events.MetricEvent{}, fmt.Errorf("expected 3 topics, got %d", len(lg.Topics))
	}

	out, err := c.abi.Unpack("MetricRecorded", lg.Data)
	if err != nil {
		return events.MetricEvent{}, fmt.Errorf("failed to unpack event data: %w", err)
	}
	if len(out) != 2 {
		return events.MetricEvent{}, fmt.Errorf("expected 2 data fields, got %d", len(out))
	}

	timestamp, ok := out[0].(uint64)
	if !ok {
		return events.MetricEvent{}, fmt.Errorf("timestamp field has type %T", out[0])
	}
	entryIndex, ok := out[1].(uint64)
	if !ok {
		return events.MetricEvent{}, fmt.Errorf("entryIndex field has type %T", out[1])
	}

	return events.MetricEvent{
		Owner:      common.BytesToAddress(lg.Topics[1].Bytes()),
		MetricID:   lg.Topics[2],
		Timestamp:  timestamp,
		EntryIndex: entryIndex,
	}, nil
}

// Entries reads all stored entries for an owner's metric. Values come back
// as opaque ciphertext handles.
func (c *Client) Entries(ctx context.Context, owner common.Address, metricID common.Hash) ([]Entry, error) {
	data, err := c.abi.Pack("getEntries", owner, metricID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getEntries call: %w", err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getEntries call failed: %w", err)
	}

	out, err := c.abi.Unpack("getEntries", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getEntries result: %w", err)
	}

	decoded := *abi.ConvertType(out[0], new([]vaultEntry)).(*[]vaultEntry)
	entries := make([]Entry, len(decoded))
	for i, e := range decoded {
		entries[i] = Entry{
			MetricID:    common.Hash(e.MetricId),
			Timestamp:   e.Timestamp,
			ValueHandle: common.Hash(e.Value),
			NoteHandle:  common.Hash(e.Note),
		}
	}
	return entries, nil
}

// LogTrigger writes one audit entry for a fired rule and waits for the
// transaction to be mined. An auditor-role revert surfaces as
// ErrNotAuthorized; the caller decides how to tolerate it.
func (c *Client) LogTrigger(ctx context.Context, owner common.Address, metricID common.Hash, entryIndex uint64, commitment common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	data, err := c.abi.Pack("logTrigger", owner, metricID, entryIndex, commitment, uint64(time.Now().Unix()))
	if err != nil {
		return fmt.Errorf("failed to pack logTrigger call: %w", err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data})
	if err != nil {
		return classifyWriteError(err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return fmt.Errorf("failed to read nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to read gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("failed to sign logTrigger transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return classifyWriteError(err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return fmt.Errorf("logTrigger transaction not mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("logTrigger transaction %s reverted", signed.Hash().Hex())
	}
	return nil
}

// classifyWriteError surfaces the vault's auditor-role revert as
// ErrNotAuthorized. Reverts carry no types, so classification is by message.
func classifyWriteError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not authorized") || strings.Contains(msg, "unauthorized") {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, err)
	}
	return fmt.Errorf("logTrigger failed: %w", err)
}
