package api

import (
	"bytes"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/slotrace/rms/internal/race"
)

// FormatLapTime renders milliseconds as m:ss.mmm, or ss.mmm under a minute.
func FormatLapTime(ms int64) string {
	if ms < 0 {
		return "-"
	}
	minutes := ms / 60_000
	seconds := (ms % 60_000) / 1000
	millis := ms % 1000
	if minutes > 0 {
		return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
	}
	return fmt.Sprintf("%d.%03d", seconds, millis)
}

// RenderLeaderboard draws a leaderboard as a text table. Qualifying and
// practice show best laps; a race shows the gap to the leader. Finished
// drivers are marked with an asterisk.
func RenderLeaderboard(mode race.Mode, items []race.LeaderboardItem) string {
	var b bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)

	if mode == race.Race {
		t.AppendHeader(table.Row{"Pos", "Driver", "Laps", "Time", "Gap", "Best"})
	} else {
		t.AppendHeader(table.Row{"Pos", "Driver", "Laps", "Best", "Gap"})
	}

	for i, it := range items {
		best := "-"
		if len(it.Best) > 0 {
			best = FormatLapTime(it.Best[0])
		}
		name := it.Driver.Code
		if it.Driver.Name != "" {
			name = fmt.Sprintf("%s %s", it.Driver.Code, it.Driver.Name)
		}
		if it.Finished {
			name += " *"
		}

		gap := ""
		if i > 0 {
			gap = leaderGap(mode, items[0], it)
		}

		if mode == race.Race {
			total := "-"
			if it.Timed {
				total = FormatLapTime(it.Time)
			}
			t.AppendRow(table.Row{it.Position, name, it.Laps, total, gap, best})
		} else {
			t.AppendRow(table.Row{it.Position, name, it.Laps, best, gap})
		}
	}
	t.Render()
	return b.String()
}

func leaderGap(mode race.Mode, leader, it race.LeaderboardItem) string {
	if mode == race.Race {
		if d := leader.Laps - it.Laps; d > 0 {
			if d == 1 {
				return "+1 lap"
			}
			return fmt.Sprintf("+%d laps", d)
		}
		if leader.Timed && it.Timed {
			return "+" + FormatLapTime(it.Time-leader.Time)
		}
		return ""
	}
	if len(leader.Best) == 0 || len(it.Best) == 0 {
		return ""
	}
	return "+" + FormatLapTime(it.Best[0]-leader.Best[0])
}
