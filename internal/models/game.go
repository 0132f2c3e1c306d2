package models

import "github.com/shopspring/decimal"

type GameType string

const (
	GameTypeSlots    GameType = "slots"
	GameTypeRoulette GameType = "roulette"
)

type SlotSymbol struct {
	Name   string `json:"name"`
	Glyph  string `json:"glyph"`
	Weight int    `json:"weight"`
	Payout int64  `json:"payout"`
}

type SlotWinKind string

const (
	SlotWinNone    SlotWinKind = "none"
	SlotWinJackpot SlotWinKind = "jackpot"
	SlotWinMatch   SlotWinKind = "match"
	SlotWinSpecial SlotWinKind = "special"
)

type SpinResult struct {
	Reels  [3]SlotSymbol   `json:"reels"`
	Bet    decimal.Decimal `json:"bet"`
	Win    SlotWinKind     `json:"win"`
	Payout decimal.Decimal `json:"payout"`
}

type PocketColor string

const (
	ColorGreen PocketColor = "green"
	ColorRed   PocketColor = "red"
	ColorBlack PocketColor = "black"
)

type Pocket struct {
	Number int         `json:"number"`
	Color  PocketColor `json:"color"`
}

// RouletteBet is an even-money outside bet.
type RouletteBet string

const (
	BetRed   RouletteBet = "red"
	BetBlack RouletteBet = "black"
	BetEven  RouletteBet = "even"
	BetOdd   RouletteBet = "odd"
	BetLow   RouletteBet = "low"
	BetHigh  RouletteBet = "high"
)

func (b RouletteBet) Valid() bool {
	switch b {
	case BetRed, BetBlack, BetEven, BetOdd, BetLow, BetHigh:
		return true
	}
	return false
}

type RouletteResult struct {
	Pocket     Pocket                          `json:"pocket"`
	Stakes     map[RouletteBet]decimal.Decimal `json:"stakes"`
	WinningBet []RouletteBet                   `json:"winning_bets"`
	TotalStake decimal.Decimal                 `json:"total_stake"`
	Payout     decimal.Decimal                 `json:"payout"`
}
