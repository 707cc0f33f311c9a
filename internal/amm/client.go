// Package amm is the REST client for the leveraged AMM engine: trade and
// liquidation dispatch plus the market state reads the admission path needs.
package amm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/versefi/versequeue/internal/crypto"
	"github.com/versefi/versequeue/internal/domain"
)

// Client is the REST client for the AMM engine API. It implements
// domain.TradeExecutor, domain.LiquidationExecutor, and
// domain.MarketStateSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signingKey *ecdsa.PrivateKey
	keeperAddr string
}

// NewClient creates the AMM client.
//
// baseURL is the engine API root, e.g. "https://amm.versefi.io/v1".
// signingKey authenticates dispatch requests; pass nil for read-only use
// (state reads are unauthenticated).
func NewClient(baseURL string, signingKey *ecdsa.PrivateKey) *Client {
	c := &Client{
		baseURL:    baseURL,
		signingKey: signingKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if signingKey != nil {
		c.keeperAddr = crypto.KeeperAddress(signingKey)
	}
	return c
}

type tradeRequest struct {
	EntryID        uint64 `json:"entry_id"`
	User           string `json:"user"`
	SyntheticID    string `json:"synthetic_id"`
	IsBuy          bool   `json:"is_buy"`
	Amount         uint64 `json:"amount"`
	LeverageX100   uint32 `json:"leverage_x100"`
	MaxSlippageBps uint16 `json:"max_slippage_bps"`
	StopLossBps    uint32 `json:"stop_loss_bps,omitempty"`
	TakeProfitBps  uint32 `json:"take_profit_bps,omitempty"`
	DeadlineSlot   uint64 `json:"deadline_slot"`
}

type tradeResponse struct {
	FilledAmount uint64 `json:"filled_amount"`
	AvgPriceBps  uint32 `json:"avg_price_bps"`
	ImpactBps    uint32 `json:"impact_bps"`
	ExecutedSlot uint64 `json:"executed_slot"`
	CUConsumed   uint64 `json:"cu_consumed"`
}

// ExecuteTrade dispatches an admitted entry to the engine for fill.
func (c *Client) ExecuteTrade(ctx context.Context, entry domain.QueueEntry) (domain.ExecutionReceipt, error) {
	req := tradeRequest{
		EntryID:        entry.EntryID,
		User:           entry.User,
		SyntheticID:    entry.Trade.SyntheticID,
		IsBuy:          entry.Trade.IsBuy,
		Amount:         entry.Trade.Amount,
		LeverageX100:   entry.Trade.LeverageX100,
		MaxSlippageBps: entry.Trade.MaxSlippageBps,
		StopLossBps:    entry.Trade.StopLossBps,
		TakeProfitBps:  entry.Trade.TakeProfitBps,
		DeadlineSlot:   entry.Trade.DeadlineSlot,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/trades", req)
	if err != nil {
		return domain.ExecutionReceipt{}, fmt.Errorf("amm: execute trade %d: %w", entry.EntryID, err)
	}

	var resp tradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ExecutionReceipt{}, fmt.Errorf("amm: decode trade response: %w", err)
	}

	return domain.ExecutionReceipt{
		EntryID:      entry.EntryID,
		FilledAmount: resp.FilledAmount,
		AvgPriceBps:  resp.AvgPriceBps,
		ImpactBps:    resp.ImpactBps,
		ExecutedSlot: resp.ExecutedSlot,
		CUConsumed:   resp.CUConsumed,
	}, nil
}

type liquidationRequest struct {
	RequestID  string `json:"request_id"`
	PositionID string `json:"position_id"`
	Liquidator string `json:"liquidator"`
	Amount     uint64 `json:"amount"`
	MinProfit  uint16 `json:"min_profit_bps,omitempty"`
}

type liquidationResponse struct {
	LiquidatedAmount uint64 `json:"liquidated_amount"`
	CollateralSeized uint64 `json:"collateral_seized"`
	CUConsumed       uint64 `json:"cu_consumed"`
}

// ExecuteLiquidation performs one partial liquidation round up to amount.
func (c *Client) ExecuteLiquidation(ctx context.Context, req domain.LiquidationRequest, amount uint64) (domain.LiquidationReceipt, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/liquidations", liquidationRequest{
		RequestID:  req.RequestID.String(),
		PositionID: req.PositionID,
		Liquidator: req.Liquidator,
		Amount:     amount,
		MinProfit:  req.MinProfitBps,
	})
	if err != nil {
		return domain.LiquidationReceipt{}, fmt.Errorf("amm: execute liquidation %s: %w", req.PositionID, err)
	}

	var resp liquidationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.LiquidationReceipt{}, fmt.Errorf("amm: decode liquidation response: %w", err)
	}

	return domain.LiquidationReceipt{
		RequestID:        req.RequestID,
		LiquidatedAmount: resp.LiquidatedAmount,
		CollateralSeized: resp.CollateralSeized,
		CUConsumed:       resp.CUConsumed,
	}, nil
}

// StakeOf returns the user's staked balance.
func (c *Client) StakeOf(ctx context.Context, user string) (uint64, error) {
	path := fmt.Sprintf("/stakes/%s", url.PathEscape(user))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("amm: stake of %s: %w", user, err)
	}

	var resp struct {
		Stake uint64 `json:"stake"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("amm: decode stake: %w", err)
	}
	return resp.Stake, nil
}

// TotalStake returns the system-wide staked total.
func (c *Client) TotalStake(ctx context.Context) (uint64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/stakes/total", nil)
	if err != nil {
		return 0, fmt.Errorf("amm: total stake: %w", err)
	}

	var resp struct {
		Total uint64 `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("amm: decode total stake: %w", err)
	}
	return resp.Total, nil
}

// VerseDepth returns the hierarchy depth of a synthetic market.
func (c *Client) VerseDepth(ctx context.Context, syntheticID string) (uint32, error) {
	path := fmt.Sprintf("/verses/%s/depth", url.PathEscape(syntheticID))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("amm: verse depth %s: %w", syntheticID, err)
	}

	var resp struct {
		Depth uint32 `json:"depth"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("amm: decode verse depth: %w", err)
	}
	return resp.Depth, nil
}

// PositionHealth returns the live collateral and debt of a position.
func (c *Client) PositionHealth(ctx context.Context, positionID string) (domain.PositionHealth, error) {
	path := fmt.Sprintf("/positions/%s/health", url.PathEscape(positionID))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.PositionHealth{}, fmt.Errorf("amm: position health %s: %w", positionID, err)
	}

	var resp struct {
		Collateral     uint64 `json:"collateral"`
		Debt           uint64 `json:"debt"`
		LastUpdateSlot uint64 `json:"last_update_slot"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PositionHealth{}, fmt.Errorf("amm: decode position health: %w", err)
	}

	return domain.PositionHealth{
		PositionID:     positionID,
		Collateral:     resp.Collateral,
		Debt:           resp.Debt,
		LastUpdateSlot: resp.LastUpdateSlot,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, signs, sends, and reads an HTTP request against the
// engine API.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var jsonBody []byte
	var bodyReader io.Reader
	if reqBody != nil {
		var err error
		jsonBody, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path, jsonBody); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds keeper authentication headers: a keccak signature over
// timestamp + method + path + body. Skipped when no key is configured;
// the engine rejects unsigned dispatches but serves unsigned reads.
func (c *Client) signRequest(req *http.Request, method, path string, body []byte) error {
	if c.signingKey == nil {
		return nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	message := append([]byte(ts+method+path), body...)

	sig, err := crypto.SignPayload(c.signingKey, message)
	if err != nil {
		return err
	}

	req.Header.Set("X-Keeper-Address", c.keeperAddr)
	req.Header.Set("X-Keeper-Timestamp", ts)
	req.Header.Set("X-Keeper-Signature", sig)
	return nil
}

// checkStatus maps HTTP errors to domain sentinels where a caller can act
// on them.
func (c *Client) checkStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("engine returned 404: %w", domain.ErrNotFound)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("engine returned 429: %w", domain.ErrRateLimited)
	default:
		return fmt.Errorf("engine returned %d: %s", status, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
