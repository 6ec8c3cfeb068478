package connectors

import "fmt"

// BybitErrorCodes maps Bybit v5 retCodes to human-readable messages.
var BybitErrorCodes = map[int]string{
	0:      "OK",
	10001:  "PARAMS_ERROR",                 // Request parameter error
	10002:  "INVALID_TIMESTAMP",            // Request time outside recv window
	10003:  "INVALID_API_KEY",              // API key invalid or for wrong environment
	10004:  "INVALID_SIGNATURE",            // Signature mismatch
	10005:  "PERMISSION_DENIED",            // Key lacks permission for endpoint
	10006:  "RATE_LIMIT_EXCEEDED",          // Too many visits
	10010:  "IP_MISMATCH",                  // Request IP not in key whitelist
	10016:  "SERVER_ERROR",                 // Internal server error
	110001: "ORDER_NOT_EXIST",              // Order does not exist or already finished
	110003: "PRICE_OUT_OF_RANGE",           // Order price exceeds allowed range
	110004: "INSUFFICIENT_WALLET_BALANCE",  // Wallet balance insufficient
	110007: "INSUFFICIENT_AVAILABLE",       // Available balance insufficient
	110009: "TOO_MANY_CONDITIONAL_ORDERS",  // Conditional order cap reached
	110012: "INSUFFICIENT_QTY",             // Insufficient position size for reduce
	110017: "REDUCE_ONLY_RULE_VIOLATED",    // Reduce-only would increase position
	110020: "TOO_MANY_ACTIVE_ORDERS",       // Open order cap reached
	110025: "POSITION_MODE_NOT_MODIFIED",   // Position mode unchanged
	110043: "LEVERAGE_NOT_MODIFIED",        // Leverage unchanged
	110066: "TRADING_NOT_ALLOWED",          // Symbol not tradable right now
	170130: "INVALID_ORDER_PRICE_DECIMALS", // Price precision too fine
	170131: "INSUFFICIENT_BALANCE",         // Spot balance insufficient
	170140: "QTY_TOO_SMALL",                // Quantity below minimum
}

// GetErrorMsg returns a human-readable message for a given Bybit retCode.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := BybitErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_BYBIT_ERROR_%d", code)
}

// IsNotModified reports whether the retCode means the exchange state already
// matches what was requested. Those are treated as success.
func IsNotModified(code int) bool {
	return code == 110025 || code == 110043
}

// IsOrderGone reports whether a cancel failed only because the order already
// filled or was cancelled. Those are treated as success.
func IsOrderGone(code int) bool {
	return code == 110001
}
