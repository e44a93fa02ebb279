package strategy

import (
	"sort"

	"golang-stock-trader/internal/trader/config"

	"github.com/shopspring/decimal"
)

// Ladder is the ascending stage table of the staged ruleset.
type Ladder []config.Stage

func NewLadder(stages []config.Stage) Ladder {
	l := make(Ladder, len(stages))
	copy(l, stages)
	sort.SliceStable(l, func(i, j int) bool { return l[i].Stage < l[j].Stage })
	return l
}

// Next returns the lowest stage above lastStage whose threshold upPct has reached.
// Thresholds ascend, so a stage that is not reached hides every stage after it.
func (l Ladder) Next(lastStage int, upPct decimal.Decimal) (config.Stage, bool) {
	for _, st := range l {
		if st.Stage <= lastStage {
			continue
		}
		if atLeast(upPct, st.UpPct) {
			return st, true
		}
		return config.Stage{}, false
	}
	return config.Stage{}, false
}

// Top is the highest defined stage number.
func (l Ladder) Top() int {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].Stage
}
