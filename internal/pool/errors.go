package pool

import "errors"

var (
	ErrUnauthorized          = errors.New("pool: caller not authorized")
	ErrInvalidArgument       = errors.New("pool: invalid argument")
	ErrSlippageExceeded      = errors.New("pool: slippage exceeded")
	ErrPaused                = errors.New("pool: paused")
	ErrInsufficientLiquidity = errors.New("pool: insufficient liquidity")
	ErrStaleOracle           = errors.New("pool: stale oracle")
)

// Kind is a machine-readable error class.
type Kind string

const (
	KindAuthorization         Kind = "AUTHORIZATION_ERROR"
	KindInvalidArgument       Kind = "INVALID_ARGUMENT"
	KindSlippageExceeded      Kind = "SLIPPAGE_EXCEEDED"
	KindPaused                Kind = "PAUSED"
	KindInsufficientLiquidity Kind = "INSUFFICIENT_LIQUIDITY"
	KindStaleOracle           Kind = "STALE_ORACLE"
	KindInternal              Kind = "INTERNAL"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthorized, KindAuthorization},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrSlippageExceeded, KindSlippageExceeded},
	{ErrPaused, KindPaused},
	{ErrInsufficientLiquidity, KindInsufficientLiquidity},
	{ErrStaleOracle, KindStaleOracle},
}

// KindOf classifies err. Errors outside the pool taxonomy are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, entry := range kinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
