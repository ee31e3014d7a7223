package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slotrace/rms/internal/race"
)

// ErrInvalidRace is returned when a race cannot be saved as given.
var ErrInvalidRace = errors.New("invalid race")

// MinRaceNameLength is the shortest accepted race name.
const MinRaceNameLength = 3

// Race is a saved session result.
type Race struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Track     string       `json:"track"`
	Mode      race.Mode    `json:"mode"`
	Laps      int          `json:"laps"`
	Time      int64        `json:"time"`
	CreatedAt time.Time    `json:"created_at"`
	Results   []RaceResult `json:"results,omitempty"`
}

// RaceResult is one lane of a saved race.
type RaceResult struct {
	Position int           `json:"position"`
	Lane     int           `json:"lane"`
	Driver   race.Identity `json:"driver"`
	Laps     int           `json:"laps"`
	Time     *int64        `json:"time,omitempty"`
	Best     []int64       `json:"best"`
	Times    []int64       `json:"times"`
	GridPos  *int          `json:"gridpos,omitempty"`
	Finished bool          `json:"finished"`
}

// LapTimes returns the individual lap times from cumulative crossing times.
func (r RaceResult) LapTimes() []int64 {
	return LapTimes(r.Times)
}

// LapTimes converts cumulative timing line crossings into lap times. Fewer
// than two crossings yield no laps.
func LapTimes(cumulative []int64) []int64 {
	if len(cumulative) < 2 {
		return nil
	}
	out := make([]int64, 0, len(cumulative)-1)
	for i := 1; i < len(cumulative); i++ {
		out = append(out, cumulative[i]-cumulative[i-1])
	}
	return out
}

// SaveRace stores a leaderboard under name and track. Driver identities on
// the items are stored as shown at the time of saving.
func (s *Store) SaveRace(name, track string, opts race.RaceOptions, items []race.LeaderboardItem) (*Race, error) {
	name, track = strings.TrimSpace(name), strings.TrimSpace(track)
	if len([]rune(name)) < MinRaceNameLength {
		return nil, fmt.Errorf("%w: name must be at least %d characters", ErrInvalidRace, MinRaceNameLength)
	}
	if track == "" {
		return nil, fmt.Errorf("%w: track is required", ErrInvalidRace)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no results", ErrInvalidRace)
	}

	r := &Race{
		ID:        uuid.NewString(),
		Name:      name,
		Track:     track,
		Mode:      opts.Mode,
		Laps:      opts.Laps,
		Time:      opts.Time,
		CreatedAt: s.clock.Now().UTC().Truncate(time.Millisecond),
	}
	for _, it := range items {
		res := RaceResult{
			Position: it.Position,
			Lane:     it.ID,
			Driver:   it.Driver,
			Laps:     it.Laps,
			Best:     it.Best,
			Times:    it.Times,
			GridPos:  it.GridPos,
			Finished: it.Finished,
		}
		if it.Timed {
			t := it.Time
			res.Time = &t
		}
		r.Results = append(r.Results, res)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO races (race_id, name, track, mode, laps, time_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Track, string(r.Mode), r.Laps, r.Time, r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert race: %w", err)
	}

	for _, res := range r.Results {
		best, err := json.Marshal(nonNil(res.Best))
		if err != nil {
			return nil, err
		}
		times, err := json.Marshal(nonNil(res.Times))
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(`
			INSERT INTO race_results (
				race_id, position, lane, name, code, color, laps, time_ms, best, times, grid_pos, finished
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, res.Position, res.Lane, res.Driver.Name, res.Driver.Code, res.Driver.Color,
			res.Laps, res.Time, string(best), string(times), res.GridPos, res.Finished,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert result for lane %d: %w", res.Lane, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit race: %w", err)
	}
	return r, nil
}

func nonNil(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

// Races lists saved races, newest first, without results.
func (s *Store) Races() ([]Race, error) {
	rows, err := s.db.Query(`
		SELECT race_id, name, track, mode, laps, time_ms, created_at
		FROM races ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query races: %w", err)
	}
	defer rows.Close()

	var out []Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRace(row scanner) (*Race, error) {
	var (
		r       Race
		mode    string
		created int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Track, &mode, &r.Laps, &r.Time, &created); err != nil {
		return nil, err
	}
	r.Mode = race.Mode(mode)
	r.CreatedAt = time.UnixMilli(created).UTC()
	return &r, nil
}

// Race returns a saved race with its results ordered by position.
func (s *Store) Race(id string) (*Race, error) {
	r, err := scanRace(s.db.QueryRow(`
		SELECT race_id, name, track, mode, laps, time_ms, created_at
		FROM races WHERE race_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("race %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read race %s: %w", id, err)
	}

	rows, err := s.db.Query(`
		SELECT position, lane, name, code, color, laps, time_ms, best, times, grid_pos, finished
		FROM race_results WHERE race_id = ? ORDER BY position, lane`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res         RaceResult
			total       sql.NullInt64
			grid        sql.NullInt64
			best, times string
		)
		if err := rows.Scan(
			&res.Position, &res.Lane, &res.Driver.Name, &res.Driver.Code, &res.Driver.Color,
			&res.Laps, &total, &best, &times, &grid, &res.Finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if total.Valid {
			t := total.Int64
			res.Time = &t
		}
		if grid.Valid {
			g := int(grid.Int64)
			res.GridPos = &g
		}
		if err := json.Unmarshal([]byte(best), &res.Best); err != nil {
			return nil, fmt.Errorf("failed to decode best laps: %w", err)
		}
		if err := json.Unmarshal([]byte(times), &res.Times); err != nil {
			return nil, fmt.Errorf("failed to decode lap times: %w", err)
		}
		r.Results = append(r.Results, res)
	}
	return r, rows.Err()
}

// DeleteRace removes a saved race and its results.
func (s *Store) DeleteRace(id string) error {
	res, err := s.db.Exec(`DELETE FROM races WHERE race_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete race %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("race %s: %w", id, ErrNotFound)
	}
	return nil
}
