/**
 * @description
 * JSON-RPC client for the ledger network.
 * No client-side timeout is applied; callers bound each call through ctx.
 */
package nearclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

const FinalityFinal = "final"

var ErrEmptyResult = errors.New("rpc returned an empty result")

// Client talks to a single JSON-RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a new ledger RPC client.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(strings.TrimSpace(endpoint), "/"),
		httpClient: &http.Client{},
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Name    string          `json:"name"`
	Cause   *ErrorCause     `json:"cause,omitempty"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ErrorCause struct {
	Name string          `json:"name"`
	Info json.RawMessage `json:"info,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Name != "" {
		return fmt.Sprintf("rpc error %s/%s: %s", e.Name, e.Cause.Name, e.Message)
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	if c.endpoint == "" {
		return fmt.Errorf("rpc endpoint is not configured")
	}

	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "dontcare", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("rpc returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("rpc returned status %d", resp.StatusCode)
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return ErrEmptyResult
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// queryError covers nodes that report view failures inside the result object.
type queryError struct {
	Error string `json:"error"`
}

type callFunctionResult struct {
	queryError
	Result      []int    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHeight uint64   `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
}

// CallFunction runs a view method and returns its raw return bytes.
func (c *Client) CallFunction(ctx context.Context, accountID, method string, args interface{}) ([]byte, error) {
	argBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s args: %w", method, err)
	}

	params := map[string]interface{}{
		"request_type": "call_function",
		"finality":     FinalityFinal,
		"account_id":   accountID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argBytes),
	}

	var result callFunctionResult
	if err := c.call(ctx, "query", params, &result); err != nil {
		return nil, fmt.Errorf("view %s.%s: %w", accountID, method, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("view %s.%s: %s", accountID, method, result.Error)
	}

	out := make([]byte, len(result.Result))
	for i, v := range result.Result {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("view %s.%s: result byte %d out of range", accountID, method, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// AccessKeyView is the current state of an access key.
type AccessKeyView struct {
	Nonce       uint64 `json:"nonce"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

// ViewAccessKey returns the key's nonce and a recent block hash.
func (c *Client) ViewAccessKey(ctx context.Context, accountID string, publicKey near.PublicKey) (*AccessKeyView, error) {
	params := map[string]interface{}{
		"request_type": "view_access_key",
		"finality":     FinalityFinal,
		"account_id":   accountID,
		"public_key":   publicKey.String(),
	}

	var result struct {
		queryError
		AccessKeyView
	}
	if err := c.call(ctx, "query", params, &result); err != nil {
		return nil, fmt.Errorf("view access key for %s: %w", accountID, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("view access key for %s: %s", accountID, result.Error)
	}
	return &result.AccessKeyView, nil
}

// BroadcastTxCommit submits a signed transaction and waits for its execution outcome.
func (c *Client) BroadcastTxCommit(ctx context.Context, tx *near.SignedTransaction) (*FinalExecutionOutcome, error) {
	raw, err := tx.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	var outcome FinalExecutionOutcome
	if err := c.call(ctx, "broadcast_tx_commit", []string{base64.StdEncoding.EncodeToString(raw)}, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}
