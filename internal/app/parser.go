package app

import (
	"go.uber.org/zap"
)

// Direction classifies a transfer relative to the fee payer.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TokenTransfer is one token movement inside a webhook payload.
type TokenTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Mint            string `json:"mint"`
	TokenAmount     uint64 `json:"tokenAmount"`
	Decimals        *uint8 `json:"decimals,omitempty"`
}

// WebhookPayload is one upstream-pushed transaction notification. Fields the
// pipeline doesn't consume are ignored at decode time.
type WebhookPayload struct {
	Signature      string          `json:"signature"`
	Timestamp      int64           `json:"timestamp"`
	FeePayer       string          `json:"feePayer"`
	TokenTransfers []TokenTransfer `json:"tokenTransfers"`
}

// Valid reports whether the payload carries the required fields.
func (p *WebhookPayload) Valid() bool {
	return p.Signature != "" && p.Timestamp > 0
}

// TransferEvent is the canonical buy/sell event the rule engine consumes.
// Immutable once constructed.
type TransferEvent struct {
	Wallet    string
	Mint      string
	RawAmount uint64
	Decimals  uint8
	Signature string
	Timestamp int64
	Direction Direction

	// USD is the resolved value; nil when the price oracle had no quote.
	USD *float64
}

// UIAmount returns the decimal-adjusted token amount for display.
func (e *TransferEvent) UIAmount() float64 {
	v := float64(e.RawAmount)
	for i := uint8(0); i < e.Decimals; i++ {
		v /= 10
	}
	return v
}

// Parser maps raw webhook payloads to canonical transfer events.
type Parser struct {
	logger     *zap.Logger
	targetMint string
}

func NewParser(logger *zap.Logger, targetMint string) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger, targetMint: targetMint}
}

// Parse emits at most one event per payload: the first target-mint transfer
// that involves the fee payer as sender or recipient. Wallet identity is
// carried for display; tracked-wallet filtering happens (optionally) at the
// ingress, not here.
func (p *Parser) Parse(payload *WebhookPayload) []TransferEvent {
	if payload.FeePayer == "" {
		return nil
	}

	var transfer *TokenTransfer
	var direction Direction
	var wallet string
	for i := range payload.TokenTransfers {
		t := &payload.TokenTransfers[i]
		if t.Mint != p.targetMint {
			continue
		}
		switch payload.FeePayer {
		case t.ToUserAccount:
			transfer, direction, wallet = t, DirectionBuy, t.ToUserAccount
		case t.FromUserAccount:
			transfer, direction, wallet = t, DirectionSell, t.FromUserAccount
		default:
			continue
		}
		break
	}
	if transfer == nil {
		p.logger.Debug("no target-mint transfer involving fee payer",
			zap.String("signature", payload.Signature),
		)
		return nil
	}

	var decimals uint8
	if transfer.Decimals != nil {
		decimals = *transfer.Decimals
	}

	return []TransferEvent{{
		Wallet:    wallet,
		Mint:      transfer.Mint,
		RawAmount: transfer.TokenAmount,
		Decimals:  decimals,
		Signature: payload.Signature,
		Timestamp: payload.Timestamp,
		Direction: direction,
	}}
}
