package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/models"
)

// RandomSource draws an integer in [0, n). *math/rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
}

// SeededSource derives every draw from HMAC-SHA256(serverSeed, clientSeed:nonce:cursor)
// so a round can be replayed from its seeds.
type SeededSource struct {
	serverSeed string
	clientSeed string
	nonce      int64
	cursor     int
}

func NewSeededSource(serverSeed, clientSeed string, nonce int64) *SeededSource {
	return &SeededSource{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

func (s *SeededSource) Intn(n int) int {
	if n <= 0 {
		panic("invalid argument to Intn")
	}
	message := fmt.Sprintf("%s:%d:%d", s.clientSeed, s.nonce, s.cursor)
	s.cursor++

	h := hmac.New(sha256.New, []byte(s.serverSeed))
	h.Write([]byte(message))
	sum := h.Sum(nil)

	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(n))
}

func GenerateServerSeed() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

var SlotSymbols = []models.SlotSymbol{
	{Name: "Cherry", Glyph: "🍒", Weight: 25, Payout: 2},
	{Name: "Lemon", Glyph: "🍋", Weight: 20, Payout: 3},
	{Name: "Orange", Glyph: "🍊", Weight: 18, Payout: 4},
	{Name: "Clover", Glyph: "🍀", Weight: 15, Payout: 5},
	{Name: "Star", Glyph: "⭐", Weight: 10, Payout: 8},
	{Name: "Bell", Glyph: "🔔", Weight: 8, Payout: 15},
	{Name: "Diamond", Glyph: "💎", Weight: 3, Payout: 50},
	{Name: "Seven", Glyph: "7️⃣", Weight: 1, Payout: 100},
}

// RouletteWheel is the single-zero wheel in physical pocket order.
var RouletteWheel = []models.Pocket{
	{Number: 0, Color: models.ColorGreen},
	{Number: 32, Color: models.ColorRed}, {Number: 15, Color: models.ColorBlack},
	{Number: 19, Color: models.ColorRed}, {Number: 4, Color: models.ColorBlack},
	{Number: 21, Color: models.ColorRed}, {Number: 2, Color: models.ColorBlack},
	{Number: 25, Color: models.ColorRed}, {Number: 17, Color: models.ColorBlack},
	{Number: 34, Color: models.ColorRed}, {Number: 6, Color: models.ColorBlack},
	{Number: 27, Color: models.ColorRed}, {Number: 13, Color: models.ColorBlack},
	{Number: 36, Color: models.ColorRed}, {Number: 11, Color: models.ColorBlack},
	{Number: 30, Color: models.ColorRed}, {Number: 8, Color: models.ColorBlack},
	{Number: 23, Color: models.ColorRed}, {Number: 10, Color: models.ColorBlack},
	{Number: 5, Color: models.ColorRed}, {Number: 24, Color: models.ColorBlack},
	{Number: 16, Color: models.ColorRed}, {Number: 33, Color: models.ColorBlack},
	{Number: 1, Color: models.ColorRed}, {Number: 20, Color: models.ColorBlack},
	{Number: 14, Color: models.ColorRed}, {Number: 31, Color: models.ColorBlack},
	{Number: 9, Color: models.ColorRed}, {Number: 22, Color: models.ColorBlack},
	{Number: 18, Color: models.ColorRed}, {Number: 29, Color: models.ColorBlack},
	{Number: 7, Color: models.ColorRed}, {Number: 28, Color: models.ColorBlack},
	{Number: 12, Color: models.ColorRed}, {Number: 35, Color: models.ColorBlack},
	{Number: 3, Color: models.ColorRed}, {Number: 26, Color: models.ColorBlack},
}

// Order in which winning roulette bets are reported.
var rouletteBets = []models.RouletteBet{
	models.BetRed, models.BetBlack, models.BetEven, models.BetOdd, models.BetLow, models.BetHigh,
}

var (
	pairFactor    = decimal.RequireFromString("0.3")
	specialFactor = decimal.NewFromInt(3)
	evenMoneyOdds = decimal.NewFromInt(2)
)

// GameEngine plays the local mini-games. Outcomes are applied to the balance
// cache optimistically, which leaves it stale until the next server read.
type GameEngine struct {
	mu          sync.Mutex
	rng         RandomSource
	cache       *BalanceCache
	totalWeight int
}

// NewGameEngine uses a time-seeded source when rng is nil.
func NewGameEngine(cache *BalanceCache, rng RandomSource) *GameEngine {
	if cache == nil {
		cache = NewBalanceCache()
	}
	if rng == nil {
		rng = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
	}

	total := 0
	for _, s := range SlotSymbols {
		total += s.Weight
	}
	return &GameEngine{rng: rng, cache: cache, totalWeight: total}
}

func (ge *GameEngine) drawSymbol() models.SlotSymbol {
	r := ge.rng.Intn(ge.totalWeight)
	for _, s := range SlotSymbols {
		if r < s.Weight {
			return s
		}
		r -= s.Weight
	}
	return SlotSymbols[0]
}

func (ge *GameEngine) checkStake(field string, stake decimal.Decimal) error {
	if !stake.IsPositive() {
		return apierror.Validation(field, "bet must be positive")
	}
	if snap, known := ge.cache.Snapshot(); known && stake.GreaterThan(snap.Balance) {
		return apierror.Validation(field, fmt.Sprintf("insufficient balance: have %s, need %s",
			snap.Balance.StringFixed(2), stake.StringFixed(2)))
	}
	return nil
}

func (ge *GameEngine) PlaySlots(bet decimal.Decimal) (*models.SpinResult, error) {
	if err := ge.checkStake("bet", bet); err != nil {
		return nil, err
	}

	ge.mu.Lock()
	reels := [3]models.SlotSymbol{ge.drawSymbol(), ge.drawSymbol(), ge.drawSymbol()}
	ge.mu.Unlock()

	win, payout := EvaluateSpin(reels, bet)
	ge.cache.Apply(payout.Sub(bet))

	return &models.SpinResult{
		Reels:  reels,
		Bet:    bet,
		Win:    win,
		Payout: payout,
	}, nil
}

// EvaluateSpin scores three reels. Three of a kind pays bet*payout, any pair pays
// floor(bet*payout*0.3), a Clover with a Star pays bet*3.
func EvaluateSpin(reels [3]models.SlotSymbol, bet decimal.Decimal) (models.SlotWinKind, decimal.Decimal) {
	first, second, third := reels[0], reels[1], reels[2]

	if first.Name == second.Name && second.Name == third.Name {
		return models.SlotWinJackpot, bet.Mul(decimal.NewFromInt(first.Payout))
	}

	if first.Name == second.Name || second.Name == third.Name || first.Name == third.Name {
		matching := first
		if first.Name != second.Name && second.Name == third.Name {
			matching = second
		}
		return models.SlotWinMatch, bet.Mul(decimal.NewFromInt(matching.Payout)).Mul(pairFactor).Floor()
	}

	var hasClover, hasStar bool
	for _, s := range reels {
		switch s.Name {
		case "Clover":
			hasClover = true
		case "Star":
			hasStar = true
		}
	}
	if hasClover && hasStar {
		return models.SlotWinSpecial, bet.Mul(specialFactor)
	}

	return models.SlotWinNone, decimal.Zero
}

func (ge *GameEngine) PlayRoulette(stakes map[models.RouletteBet]decimal.Decimal) (*models.RouletteResult, error) {
	if len(stakes) == 0 {
		return nil, apierror.Validation("stakes", "place at least one bet")
	}

	total := decimal.Zero
	for bet, stake := range stakes {
		if !bet.Valid() {
			return nil, apierror.Validation("stakes", fmt.Sprintf("unknown bet %q", bet))
		}
		if !stake.IsPositive() {
			return nil, apierror.Validation("stakes", fmt.Sprintf("stake on %s must be positive", bet))
		}
		total = total.Add(stake)
	}
	if err := ge.checkStake("stakes", total); err != nil {
		return nil, err
	}

	ge.mu.Lock()
	pocket := RouletteWheel[ge.rng.Intn(len(RouletteWheel))]
	ge.mu.Unlock()

	result := &models.RouletteResult{
		Pocket:     pocket,
		Stakes:     make(map[models.RouletteBet]decimal.Decimal, len(stakes)),
		TotalStake: total,
		Payout:     decimal.Zero,
	}
	for _, bet := range rouletteBets {
		stake, ok := stakes[bet]
		if !ok {
			continue
		}
		result.Stakes[bet] = stake
		if PocketWins(pocket, bet) {
			result.WinningBet = append(result.WinningBet, bet)
			result.Payout = result.Payout.Add(stake.Mul(evenMoneyOdds))
		}
	}

	ge.cache.Apply(result.Payout.Sub(total))
	return result, nil
}

// PocketWins reports whether an even-money bet wins on p. Zero loses them all.
func PocketWins(p models.Pocket, bet models.RouletteBet) bool {
	if p.Number == 0 {
		return false
	}
	switch bet {
	case models.BetRed:
		return p.Color == models.ColorRed
	case models.BetBlack:
		return p.Color == models.ColorBlack
	case models.BetEven:
		return p.Number%2 == 0
	case models.BetOdd:
		return p.Number%2 == 1
	case models.BetLow:
		return p.Number >= 1 && p.Number <= 18
	case models.BetHigh:
		return p.Number >= 19 && p.Number <= 36
	}
	return false
}
