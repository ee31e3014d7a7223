package race

import (
	"slices"
)

// Order selects how the published leaderboard is arranged.
type Order string

const (
	// OrderPosition arranges by ranking position.
	OrderPosition Order = "position"
	// OrderNumber arranges by lane number.
	OrderNumber Order = "number"
)

// LeaderboardItem is one published leaderboard row.
type LeaderboardItem struct {
	ID       int      `json:"id"`
	Position int      `json:"position"`
	Driver   Identity `json:"driver"`
	GridPos  *int     `json:"gridpos,omitempty"`
	Refuel   bool     `json:"refuel"`
	Finished bool     `json:"finished"`
	Time     int64    `json:"time"`
	Timed    bool     `json:"timed"`
	Laps     int      `json:"laps"`
	Best     []int64  `json:"best,omitempty"`
	Fuel     int      `json:"fuel"`
	Pit      bool     `json:"pit"`
	Times    []int64  `json:"times,omitempty"`
}

// Rank returns the known cars sorted for mode. The input is not modified.
//
// Race sorts by laps descending, then crossing time ascending with untimed
// cars last. Practice and qualifying sort by best lap ascending with cars
// without a best lap last, then by laps descending. Ties fall back to lane.
func Rank(cars []CarState, mode Mode) []CarState {
	out := make([]CarState, len(cars))
	copy(out, cars)
	var cmp func(a, b CarState) int
	if mode == Race {
		cmp = compareRace
	} else {
		cmp = compareBestLap
	}
	slices.SortStableFunc(out, func(a, b CarState) int {
		if c := cmp(a, b); c != 0 {
			return c
		}
		return a.ID - b.ID
	})
	return out
}

func compareRace(a, b CarState) int {
	if a.Laps != b.Laps {
		return b.Laps - a.Laps
	}
	switch {
	case a.Timed && !b.Timed:
		return -1
	case !a.Timed && b.Timed:
		return 1
	case a.Time < b.Time:
		return -1
	case a.Time > b.Time:
		return 1
	}
	return 0
}

func compareBestLap(a, b CarState) int {
	ab, aok := a.BestLap()
	bb, bok := b.BestLap()
	switch {
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	case aok && ab != bb:
		if ab < bb {
			return -1
		}
		return 1
	}
	return b.Laps - a.Laps
}

// Ranker projects rankings into leaderboard items. It remembers the grid
// position of each lane and the fuel level a car entered the pits with,
// so it must see every ranking of a session in order.
type Ranker struct {
	mode    Mode
	gridpos map[int]int
	pitfuel map[int]int
}

// NewRanker returns a Ranker for a session in mode.
func NewRanker(mode Mode) *Ranker {
	return &Ranker{
		mode:    mode,
		gridpos: make(map[int]int),
		pitfuel: make(map[int]int),
	}
}

// Project converts a ranking into items with positions, grid positions and
// refuel flags. Driver identities are filled in later by Arrange.
func (r *Ranker) Project(ranking []CarState) []LeaderboardItem {
	items := make([]LeaderboardItem, len(ranking))
	for i, car := range ranking {
		item := LeaderboardItem{
			ID:       car.ID,
			Position: i,
			Finished: car.Finished,
			Time:     car.Time,
			Timed:    car.Timed,
			Laps:     car.Laps,
			Best:     append([]int64(nil), car.Best...),
			Fuel:     car.Fuel,
			Pit:      car.Pit,
			Times:    append([]int64(nil), car.Times...),
		}

		if r.mode == Race {
			if _, ok := r.gridpos[car.ID]; !ok && car.Timed {
				r.gridpos[car.ID] = i
			}
		}
		if gp, ok := r.gridpos[car.ID]; ok {
			item.GridPos = &gp
		}

		if pf, ok := r.pitfuel[car.ID]; !car.Pit || (ok && car.Fuel < pf) {
			r.pitfuel[car.ID] = car.Fuel
		}
		pf, ok := r.pitfuel[car.ID]
		item.Refuel = car.Pit && ok && car.Fuel > pf

		items[i] = item
	}
	return items
}

// Arrange returns a copy of items with driver identities joined and sorted
// by order. Unknown orders keep ranking position.
func Arrange(items []LeaderboardItem, identities *IdentityCache, order Order) []LeaderboardItem {
	out := make([]LeaderboardItem, len(items))
	for i, item := range items {
		if identities != nil {
			item.Driver = identities.Lookup(item.ID)
		} else {
			item.Driver = placeholderIdentity(item.ID, "")
		}
		out[i] = item
	}
	if order == OrderNumber {
		slices.SortStableFunc(out, func(a, b LeaderboardItem) int { return a.ID - b.ID })
	} else {
		slices.SortStableFunc(out, func(a, b LeaderboardItem) int { return a.Position - b.Position })
	}
	return out
}
