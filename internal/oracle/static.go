package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// StaticFeed is a settable in-process feed. Each update opens a new round.
type StaticFeed struct {
	mu    sync.RWMutex
	round domain.RoundData
	now   func() time.Time
}

// NewStaticFeed creates a feed whose first round answers answer.
func NewStaticFeed(answer *big.Int) *StaticFeed {
	f := &StaticFeed{now: time.Now}
	f.round = domain.RoundData{RoundID: new(big.Int)}
	f.UpdateAnswer(answer)
	return f
}

// UpdateAnswer publishes a new round with the given answer.
func (f *StaticFeed) UpdateAnswer(answer *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := new(big.Int).Add(f.round.RoundID, big.NewInt(1))
	ts := f.now()
	f.round = domain.RoundData{
		RoundID:         id,
		Answer:          new(big.Int).Set(answer),
		StartedAt:       ts,
		UpdatedAt:       ts,
		AnsweredInRound: new(big.Int).Set(id),
	}
}

// UpdateRoundData replaces the current round wholesale.
func (f *StaticFeed) UpdateRoundData(round domain.RoundData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round = round
}

// LatestRoundData implements domain.PriceFeed.
func (f *StaticFeed) LatestRoundData(_ context.Context) (domain.RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	r := f.round
	return domain.RoundData{
		RoundID:         copyBig(r.RoundID),
		Answer:          copyBig(r.Answer),
		StartedAt:       r.StartedAt,
		UpdatedAt:       r.UpdatedAt,
		AnsweredInRound: copyBig(r.AnsweredInRound),
	}, nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

var _ domain.PriceFeed = (*StaticFeed)(nil)
