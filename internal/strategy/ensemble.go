package strategy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// Ensemble runs its sub-strategies concurrently and applies a unanimous
// vote: a tradable signal is emitted only when every non-SKIP vote
// agrees on direction and the agreeing count reaches minVotes.
type Ensemble struct {
	subs     []Strategy
	minVotes int
}

func NewEnsemble(minVotes int, subs ...Strategy) *Ensemble {
	if minVotes < 1 {
		minVotes = 1
	}
	return &Ensemble{subs: subs, minVotes: minVotes}
}

func (s *Ensemble) Name() string { return "Ensemble" }

func (s *Ensemble) Evaluate(in Input) model.Signal {
	votes := make([]model.Signal, len(s.subs))

	var wg sync.WaitGroup
	for i, sub := range s.subs {
		wg.Add(1)
		go func(i int, sub Strategy) {
			defer wg.Done()
			votes[i] = sub.Evaluate(in)
		}(i, sub)
	}
	wg.Wait()

	lines := make([]string, 0, len(votes))
	var active []model.Signal
	for i, vote := range votes {
		if vote.Kind == enum.SignalSkip {
			lines = append(lines, s.subs[i].Name()+": SKIP")
			continue
		}
		active = append(active, vote)
		lines = append(lines, fmt.Sprintf("%s: %s (%.2f)", s.subs[i].Name(), vote.Direction, vote.Confidence))
	}
	detail := strings.Join(lines, " | ")

	if len(active) < s.minVotes {
		return model.Skip(s.Name(), fmt.Sprintf("%d/%d active (min %d) | %s", len(active), len(votes), s.minVotes, detail))
	}

	dir := active[0].Direction
	var sources []string
	var confidenceSum float64
	for _, vote := range active {
		if vote.Direction != dir {
			return model.Skip(s.Name(), "direction disagreement | "+detail)
		}
		sources = append(sources, vote.Source)
		confidenceSum += vote.Confidence
	}

	kind := enum.SignalBuyUp
	if dir == enum.DirectionDown {
		kind = enum.SignalBuyDown
	}
	return model.Signal{
		Kind:       kind,
		Direction:  dir,
		Confidence: confidenceSum / float64(len(active)),
		Source:     fmt.Sprintf("%s(%s)", s.Name(), strings.Join(sources, ",")),
		Reason:     fmt.Sprintf("%d/%d %s | %s", len(active), len(votes), dir, detail),
		At:         time.Now().UTC(),
	}
}
