package tuning

import (
	"testing"
)

func TestLevelForSlider(t *testing.T) {
	tests := []struct {
		ch   Channel
		pos  int
		want int
	}{
		{Speed, 0, 0},
		{Speed, 4, 5},
		{Speed, 6, 7},
		{Speed, 10, 15},
		{Brake, 1, 6},
		{Fuel, 10, 12},
	}
	for _, tt := range tests {
		got, err := LevelForSlider(tt.ch, tt.pos)
		if err != nil {
			t.Fatalf("LevelForSlider(%s, %d): %v", tt.ch, tt.pos, err)
		}
		if got != tt.want {
			t.Errorf("LevelForSlider(%s, %d) = %d, want %d", tt.ch, tt.pos, got, tt.want)
		}
	}
}

func TestValueForLevel(t *testing.T) {
	tests := []struct {
		ch    Channel
		level int
		want  int
	}{
		{Speed, 8, 6},
		{Speed, 15, 10},
		{Brake, 6, 1},
		{Brake, 7, 2},
		{Fuel, 12, 10},
		{Fuel, 0, 1},
	}
	for _, tt := range tests {
		got, err := ValueForLevel(tt.ch, tt.level)
		if err != nil {
			t.Fatalf("ValueForLevel(%s, %d): %v", tt.ch, tt.level, err)
		}
		if got != tt.want {
			t.Errorf("ValueForLevel(%s, %d) = %d, want %d", tt.ch, tt.level, got, tt.want)
		}
	}
}

func TestTablesAreMonotonic(t *testing.T) {
	for _, ch := range Channels {
		prev := -1
		for pos := 0; pos <= MaxSlider; pos++ {
			level, _ := LevelForSlider(ch, pos)
			if level <= prev {
				t.Errorf("%s: level for slider %d is %d, not above %d", ch, pos, level, prev)
			}
			prev = level
		}
		prev = 0
		for level := 0; level <= MaxLevel; level++ {
			v, _ := ValueForLevel(ch, level)
			if v < prev {
				t.Errorf("%s: value for level %d is %d, below %d", ch, level, v, prev)
			}
			prev = v
		}
	}
}

func TestTables_OutOfRange(t *testing.T) {
	if _, err := LevelForSlider(Speed, -1); err == nil {
		t.Error("expected error for negative slider")
	}
	if _, err := LevelForSlider(Speed, 11); err == nil {
		t.Error("expected error for slider 11")
	}
	if _, err := ValueForLevel(Fuel, 16); err == nil {
		t.Error("expected error for level 16")
	}
	if _, err := ValueForLevel("grip", 3); err == nil {
		t.Error("expected error for unknown channel")
	}
	if _, err := ParseChannel("brake"); err != nil {
		t.Errorf("ParseChannel(brake): %v", err)
	}
}
