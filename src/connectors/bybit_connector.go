// FULL REST API CLIENT FOR BYBIT V5 USDT PERPETUALS
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	categoryLinear = "linear"
)

// -----------------------------
// API RESPONSE WRAPPER
// -----------------------------
type APIResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// -----------------------------
// A) AUTHENTICATED CLIENT
// -----------------------------
type BybitClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int
	http       *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewBybitClient(apiKey, apiSecret, baseURL string, recvWindow int) *BybitClient {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = "https://api-testnet.bybit.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	if recvWindow <= 0 {
		recvWindow = 5000
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &BybitClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		recvWindow: recvWindow,
		http:       httpClient,
	}
}

// signPayload builds the v5 signature: HMAC-SHA256 over
// timestamp + apiKey + recvWindow + payload, where payload is the raw
// query string for GET and the JSON body for POST.
func signPayload(timestamp, apiKey, recvWindow, payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BybitClient) doRequest(method, path, query string, body []byte) (*APIResponse, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	rw := strconv.Itoa(c.recvWindow)

	payload := query
	if body != nil {
		payload = string(body)
	}
	sig := signPayload(ts, c.apiKey, rw, payload, c.apiSecret)

	req := c.http.R().
		SetHeader("X-BAPI-API-KEY", c.apiKey).
		SetHeader("X-BAPI-TIMESTAMP", ts).
		SetHeader("X-BAPI-RECV-WINDOW", rw).
		SetHeader("X-BAPI-SIGN", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, err
	}

	return &apiResp, nil
}

func (c *BybitClient) doPublic(path, query string) (*APIResponse, error) {
	resp, err := c.http.R().SetQueryString(query).Get(path)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, err
	}
	if apiResp.RetCode != 0 {
		return nil, fmt.Errorf("API error %d: %s", apiResp.RetCode, apiResp.RetMsg)
	}

	return &apiResp, nil
}

func fmtQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// -----------------------------
// B) ORDER PLACEMENT
// -----------------------------

// OrderAck is the part of the create/cancel response the bot cares about.
type OrderAck struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func (c *BybitClient) placeOrder(params map[string]interface{}) (*OrderAck, error) {
	b, _ := json.Marshal(params)

	resp, err := c.doRequest("POST", "/v5/order/create", "", b)
	if err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("order rejected %d (%s): %s", resp.RetCode, GetErrorMsg(resp.RetCode), resp.RetMsg)
	}

	var ack OrderAck
	return &ack, json.Unmarshal(resp.Result, &ack)
}

// TriggerRise and TriggerFall select which way the mark must cross the
// trigger price before a conditional order activates.
const (
	TriggerRise = 1
	TriggerFall = 2
)

// PlaceConditionalEntry submits the conditional market order that opens a
// position once price crosses the trigger.
func (c *BybitClient) PlaceConditionalEntry(symbol, side string, qty, triggerPrice float64, triggerDirection int, orderLinkID string) (*OrderAck, error) {
	return c.placeOrder(map[string]interface{}{
		"category":         categoryLinear,
		"symbol":           symbol,
		"side":             side,
		"orderType":        "Market",
		"qty":              fmtQty(qty),
		"triggerPrice":     fmtQty(triggerPrice),
		"triggerDirection": triggerDirection,
		"triggerBy":        "LastPrice",
		"orderLinkId":      orderLinkID,
		"timeInForce":      "GTC",
	})
}

// PlaceReduceLimit submits a reduce-only limit order. Used for take profits.
func (c *BybitClient) PlaceReduceLimit(symbol, side string, qty, price float64, orderLinkID string) (*OrderAck, error) {
	return c.placeOrder(map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"side":        side,
		"orderType":   "Limit",
		"qty":         fmtQty(qty),
		"price":       fmtQty(price),
		"reduceOnly":  true,
		"orderLinkId": orderLinkID,
		"timeInForce": "GTC",
	})
}

// PlaceLimit submits a plain limit order. Used for DCA adds, which increase
// the position rather than reduce it.
func (c *BybitClient) PlaceLimit(symbol, side string, qty, price float64, orderLinkID string) (*OrderAck, error) {
	return c.placeOrder(map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"side":        side,
		"orderType":   "Limit",
		"qty":         fmtQty(qty),
		"price":       fmtQty(price),
		"orderLinkId": orderLinkID,
		"timeInForce": "GTC",
	})
}

// PlaceMarketReduce submits a reduce-only market order. Used to flatten a
// position immediately.
func (c *BybitClient) PlaceMarketReduce(symbol, side string, qty float64, orderLinkID string) (*OrderAck, error) {
	return c.placeOrder(map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         fmtQty(qty),
		"reduceOnly":  true,
		"orderLinkId": orderLinkID,
		"timeInForce": "IOC",
	})
}

// SetStopLoss sets or moves the position stop via the trading-stop endpoint.
// A zero price clears the stop.
func (c *BybitClient) SetStopLoss(symbol string, price float64) error {
	body := map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"stopLoss":    fmtQty(price),
		"tpslMode":    "Full",
		"slTriggerBy": "LastPrice",
		"positionIdx": 0,
	}
	b, _ := json.Marshal(body)

	resp, err := c.doRequest("POST", "/v5/position/trading-stop", "", b)
	if err != nil {
		return err
	}
	if resp.RetCode != 0 && !IsNotModified(resp.RetCode) {
		return fmt.Errorf("trading-stop rejected %d (%s): %s", resp.RetCode, GetErrorMsg(resp.RetCode), resp.RetMsg)
	}
	return nil
}

// SetLeverage sets isolated buy/sell leverage. "leverage not modified" from
// the exchange is treated as success.
func (c *BybitClient) SetLeverage(symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	body := map[string]interface{}{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	b, _ := json.Marshal(body)

	resp, err := c.doRequest("POST", "/v5/position/set-leverage", "", b)
	if err != nil {
		return err
	}
	if resp.RetCode != 0 && !IsNotModified(resp.RetCode) {
		return fmt.Errorf("set-leverage rejected %d (%s): %s", resp.RetCode, GetErrorMsg(resp.RetCode), resp.RetMsg)
	}
	return nil
}

// -----------------------------
// C) ORDER CANCELLATION & QUERY
// -----------------------------
func (c *BybitClient) CancelOrder(symbol, orderID string) error {
	body := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	b, _ := json.Marshal(body)

	resp, err := c.doRequest("POST", "/v5/order/cancel", "", b)
	if err != nil {
		return err
	}
	if resp.RetCode != 0 && !IsOrderGone(resp.RetCode) {
		return fmt.Errorf("cancel rejected %d (%s): %s", resp.RetCode, GetErrorMsg(resp.RetCode), resp.RetMsg)
	}
	return nil
}

func (c *BybitClient) CancelAllOrders(symbol string) error {
	body := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
	}
	b, _ := json.Marshal(body)

	resp, err := c.doRequest("POST", "/v5/order/cancel-all", "", b)
	if err != nil {
		return err
	}
	if resp.RetCode != 0 {
		return fmt.Errorf("cancel-all rejected %d (%s): %s", resp.RetCode, GetErrorMsg(resp.RetCode), resp.RetMsg)
	}
	return nil
}

// OpenOrder is one row of the realtime order list.
type OpenOrder struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderStatus string `json:"orderStatus"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	ReduceOnly  bool   `json:"reduceOnly"`
	StopOrder   string `json:"stopOrderType"`
}

func (c *BybitClient) OpenOrders(symbol string) ([]OpenOrder, error) {
	resp, err := c.doRequest("GET", "/v5/order/realtime",
		fmt.Sprintf("category=%s&symbol=%s", categoryLinear, symbol), nil)
	if err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("API error %d: %s", resp.RetCode, resp.RetMsg)
	}

	var parsed struct {
		List []OpenOrder `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return nil, err
	}
	return parsed.List, nil
}

// -----------------------------
// D) POSITION & ACCOUNT
// -----------------------------

// PositionInfo is the subset of the position row the reconciliation loop
// needs: live size and average entry price.
type PositionInfo struct {
	Symbol   string
	Side     string
	Size     float64
	AvgPrice float64
}

func (c *BybitClient) Position(symbol string) (*PositionInfo, error) {
	resp, err := c.doRequest("GET", "/v5/position/list",
		fmt.Sprintf("category=%s&symbol=%s", categoryLinear, symbol), nil)
	if err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("API error %d: %s", resp.RetCode, resp.RetMsg)
	}

	var parsed struct {
		List []struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return nil, err
	}

	info := &PositionInfo{Symbol: symbol}
	for _, p := range parsed.List {
		if p.Symbol != symbol {
			continue
		}
		size, _ := strconv.ParseFloat(p.Size, 64)
		if size == 0 {
			continue
		}
		avg, _ := strconv.ParseFloat(p.AvgPrice, 64)
		info.Side = p.Side
		info.Size = size
		info.AvgPrice = avg
		break
	}
	return info, nil
}

// WalletEquity returns the unified account total equity in USDT terms.
func (c *BybitClient) WalletEquity() (float64, error) {
	resp, err := c.doRequest("GET", "/v5/account/wallet-balance",
		"accountType=UNIFIED", nil)
	if err != nil {
		return 0, err
	}
	if resp.RetCode != 0 {
		return 0, fmt.Errorf("API error %d: %s", resp.RetCode, resp.RetMsg)
	}

	var parsed struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return 0, err
	}
	if len(parsed.List) == 0 {
		return 0, fmt.Errorf("empty wallet-balance response")
	}

	equity, err := strconv.ParseFloat(parsed.List[0].TotalEquity, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid totalEquity: %w", err)
	}
	return equity, nil
}

// -----------------------------
// E) MARKET DATA
// -----------------------------
func (c *BybitClient) LastPrice(symbol string) (float64, error) {
	resp, err := c.doPublic("/v5/market/tickers",
		fmt.Sprintf("category=%s&symbol=%s", categoryLinear, symbol))
	if err != nil {
		return 0, err
	}

	var parsed struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return 0, err
	}
	if len(parsed.List) == 0 {
		return 0, fmt.Errorf("no ticker for %s", symbol)
	}

	price, err := strconv.ParseFloat(parsed.List[0].LastPrice, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid price for %s", symbol)
	}
	return price, nil
}
