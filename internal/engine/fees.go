package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/domain"
)

var two = decimal.NewFromInt(2)

// feeRateFor picks the trading fee rate for a position at the given slot.
// A wallet that already traded in this slot pays the escalated anti-bot rate.
func (e *Engine) feeRateFor(pos *domain.UserPosition, slot int64) decimal.Decimal {
	if pos.LastTradeSlot != 0 && pos.LastTradeSlot == slot {
		return e.cfg.BotFeeRate
	}
	return e.cfg.FeeRate
}

// splitFee divides a trading fee between the market creator and the protocol
// treasury. The creator gets half, floored; the treasury keeps the remainder,
// so sub-scale dust always lands on the protocol side. A market created by
// the treasury account itself sends the whole fee to the treasury.
func (e *Engine) splitFee(fee decimal.Decimal, creatorID, treasuryID uuid.UUID) (creator, treasury decimal.Decimal) {
	if creatorID == treasuryID {
		return decimal.Zero, fee
	}
	creator = fee.Div(two).RoundDown(domain.MoneyScale)
	treasury = fee.Sub(creator)
	return creator, treasury
}
