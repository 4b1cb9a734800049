package oracle

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Investorold/KPi-Vault-sub000/internal/ledger"
	"github.com/Investorold/KPi-Vault-sub000/internal/retry"
)

const (
	// requestTimeout is deliberately generous; relayer decryption round
	// trips are slow. Retry happens only at this layer, never in the
	// orchestrator.
	requestTimeout = 90 * time.Second

	// authorizationDays is the validity window of one signed decryption
	// authorization.
	authorizationDays = 1
)

// Client talks to the decryption relayer. Each Decrypt call generates an
// ephemeral key pair, signs a time-boxed authorization with the worker key,
// and asks the relayer to decrypt the entry's value and note handles in one
// batch.
type Client struct {
	baseURL    string
	contract   common.Address
	workerKey  *ecdsa.PrivateKey
	workerAddr common.Address
	httpClient *http.Client
	retryCfg   retry.Config
}

// NewClient creates a relayer-backed Decryptor for the given vault contract
// and worker identity.
func NewClient(baseURL string, contract common.Address, workerKey *ecdsa.PrivateKey) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		contract:   contract,
		workerKey:  workerKey,
		workerAddr: crypto.PubkeyToAddress(workerKey.PublicKey),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		retryCfg: retry.Config{
			MaxRetries:     2,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     15 * time.Second,
			BackoffFactor:  2.0,
		},
	}
}

func (c *Client) Enabled() bool { return true }

type decryptHandle struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

type decryptRequest struct {
	Handles        []decryptHandle `json:"handles"`
	PublicKey      string          `json:"publicKey"`
	Signature      string          `json:"signature"`
	UserAddress    string          `json:"userAddress"`
	StartTimestamp uint64          `json:"startTimestamp"`
	DurationDays   uint64          `json:"durationDays"`
}

type decryptResponse struct {
	Results map[string]string `json:"results"`
}

// Decrypt reveals one entry. The value handle must be present; the note
// handle is included in the same batch when set.
func (c *Client) Decrypt(ctx context.Context, entry ledger.Entry) (*DecryptedValue, error) {
	if entry.ValueHandle == (common.Hash{}) {
		return nil, ErrMissingCiphertext
	}

	handles := []decryptHandle{
		{Handle: entry.ValueHandle.Hex(), ContractAddress: c.contract.Hex()},
	}
	if entry.NoteHandle != (common.Hash{}) {
		handles = append(handles, decryptHandle{
			Handle:          entry.NoteHandle.Hex(),
			ContractAddress: c.contract.Hex(),
		})
	}

	request, err := c.buildRequest(handles)
	if err != nil {
		return nil, err
	}

	var response decryptResponse
	err = retry.WithRetry(ctx, c.retryCfg, "oracle_decrypt", func() error {
		return c.post(ctx, request, &response)
	})
	if err != nil {
		return nil, err
	}

	raw, ok := response.Results[entry.ValueHandle.Hex()]
	if !ok {
		return nil, fmt.Errorf("relayer response missing value handle %s", entry.ValueHandle.Hex())
	}
	value, err := descale(raw)
	if err != nil {
		return nil, err
	}

	decrypted := &DecryptedValue{Value: value}
	if entry.NoteHandle != (common.Hash{}) {
		decrypted.Note = response.Results[entry.NoteHandle.Hex()]
	}
	return decrypted, nil
}

// buildRequest assembles the batched decrypt request: an ephemeral public
// key plus a time-boxed authorization signed by the worker's own identity.
func (c *Client) buildRequest(handles []decryptHandle) (decryptRequest, error) {
	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return decryptRequest{}, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	publicKey := hexutil.Encode(crypto.FromECDSAPub(&ephemeral.PublicKey))

	start := uint64(time.Now().Unix())
	digest := authorizationDigest(publicKey, c.contract, c.workerAddr, start, authorizationDays)
	signature, err := crypto.Sign(digest, c.workerKey)
	if err != nil {
		return decryptRequest{}, fmt.Errorf("failed to sign decryption authorization: %w", err)
	}

	return decryptRequest{
		Handles:        handles,
		PublicKey:      publicKey,
		Signature:      hexutil.Encode(signature),
		UserAddress:    c.workerAddr.Hex(),
		StartTimestamp: start,
		DurationDays:   authorizationDays,
	}, nil
}

// authorizationDigest binds the ephemeral public key, the vault contract,
// the worker identity, and the validity window into the signed message.
func authorizationDigest(publicKey string, contract, worker common.Address, start, durationDays uint64) []byte {
	var buf bytes.Buffer
	buf.WriteString("kpivault-user-decrypt:")
	buf.WriteString(publicKey)
	buf.Write(contract.Bytes())
	buf.Write(worker.Bytes())
	binary.Write(&buf, binary.BigEndian, start)
	binary.Write(&buf, binary.BigEndian, durationDays)
	return crypto.Keccak256(buf.Bytes())
}

func (c *Client) post(ctx context.Context, payload decryptRequest, out *decryptResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal decrypt request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/user-decrypt", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create relayer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relayer returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode relayer response: %w", err)
	}
	return nil
}

// descale converts the relayer's raw integer string into the decimal metric
// value.
func descale(raw string) (float64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("relayer returned non-integer value %q: %w", raw, err)
	}
	return float64(n) / ValueScale, nil
}
