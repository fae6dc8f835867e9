package escrow

import "errors"

var (
	ErrNotFound            = errors.New("escrow: not found")
	ErrAccessDenied        = errors.New("escrow: access denied")
	ErrInvalidState        = errors.New("escrow: invalid state")
	ErrInvalidParams       = errors.New("escrow: invalid params")
	ErrAlreadyExists       = errors.New("escrow: already exists")
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	ErrExpired             = errors.New("escrow: expired")
	ErrContractPaused      = errors.New("escrow: contract paused")
	ErrInvalidPercentage   = errors.New("escrow: invalid percentage")
	ErrNotActive           = errors.New("escrow: arbiter not active")

	errNilState = errors.New("escrow engine: state not configured")
	errNilBank  = errors.New("escrow engine: transfer primitive not configured")
)

// ErrorKind is the externally visible classification of a failed operation.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindAccessDenied
	KindInvalidState
	KindInvalidParams
	KindAlreadyExists
	KindInsufficientBalance
	KindExpired
	KindContractPaused
	KindInvalidPercentage
	KindNotActive
)

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindAccessDenied, ErrAccessDenied},
	{KindInvalidState, ErrInvalidState},
	{KindInvalidParams, ErrInvalidParams},
	{KindAlreadyExists, ErrAlreadyExists},
	{KindInsufficientBalance, ErrInsufficientBalance},
	{KindExpired, ErrExpired},
	{KindContractPaused, ErrContractPaused},
	{KindInvalidPercentage, ErrInvalidPercentage},
	{KindNotActive, ErrNotActive},
}

// KindOf classifies err. Errors that do not wrap one of the package
// sentinels (storage faults, misconfiguration) are KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// Code returns the stable numeric code reported to callers. Unknown errors
// report 0.
func (k ErrorKind) Code() uint32 {
	if k == KindUnknown || k > KindNotActive {
		return 0
	}
	return 99 + uint32(k)
}

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindAccessDenied:
		return "access-denied"
	case KindInvalidState:
		return "invalid-state"
	case KindInvalidParams:
		return "invalid-params"
	case KindAlreadyExists:
		return "already-exists"
	case KindInsufficientBalance:
		return "insufficient-balance"
	case KindExpired:
		return "expired"
	case KindContractPaused:
		return "contract-paused"
	case KindInvalidPercentage:
		return "invalid-percentage"
	case KindNotActive:
		return "not-active"
	default:
		return "unknown"
	}
}
