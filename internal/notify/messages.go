package notify

import "github.com/slotrace/rms/internal/race"

// DefaultMessages is the English message catalog.
var DefaultMessages = race.Catalog{
	race.PlaceholderNameKey: "Driver {{number}}",

	MessageKeyPrefix + "bestlap":     "Fastest lap",
	MessageKeyPrefix + "bests1":      "Fastest sector one",
	MessageKeyPrefix + "bests2":      "Fastest sector two",
	MessageKeyPrefix + "bests3":      "Fastest sector three",
	MessageKeyPrefix + "falsestart":  "False start",
	MessageKeyPrefix + "finallap":    "Final lap",
	MessageKeyPrefix + "finished":    "Finished",
	MessageKeyPrefix + "finished1st": "Winner",
	MessageKeyPrefix + "finished2nd": "Second place",
	MessageKeyPrefix + "finished3rd": "Third place",
	MessageKeyPrefix + "fivelaps":    "Five laps to go",
	MessageKeyPrefix + "fuel0":       "Out of fuel",
	MessageKeyPrefix + "fuel1":       "Fuel almost empty",
	MessageKeyPrefix + "fuel2":       "Fuel low",
	MessageKeyPrefix + "greenflag":   "Green flag",
	MessageKeyPrefix + "newleader":   "New leader",
	MessageKeyPrefix + "oneminute":   "One minute remaining",
	MessageKeyPrefix + "pitenter":    "Pit stop",
	MessageKeyPrefix + "pitexit":     "Pit exit",
	MessageKeyPrefix + "timeout":     "Time is up",
	MessageKeyPrefix + "yellowflag":  "Yellow flag",
}
