package race

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string, int) (string, error) {
	return "", errors.New("no catalog")
}

func TestResolveIdentities(t *testing.T) {
	drivers := []Driver{
		{Name: "Ayrton", Code: "SEN", Color: "#ff0000"},
		{Code: "PRO"},
		{Name: "Niki"},
	}
	tr := Catalog{PlaceholderNameKey: "Fahrer {{number}}"}
	got := ResolveIdentities(context.Background(), drivers, 4, tr)

	want := []Identity{
		{Name: "Ayrton", Code: "SEN", Color: "#ff0000"},
		{Name: "Fahrer 2", Code: "PRO"},
		{Name: "Niki", Code: "#3"},
		{Name: "Fahrer 4", Code: "#4"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d identities, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lane %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestResolveIdentities_TranslatorFailure(t *testing.T) {
	got := ResolveIdentities(context.Background(), nil, 1, failingTranslator{})
	if got[0].Name != "Driver 1" {
		t.Errorf("name = %q, want fallback %q", got[0].Name, "Driver 1")
	}
}

func TestIdentityCache(t *testing.T) {
	var c IdentityCache
	if got := c.Lookup(2); got.Code != "#3" || got.Name != "Driver 3" {
		t.Errorf("empty cache lookup = %+v", got)
	}

	<-c.Refresh(context.Background(), []Driver{{Name: "Jim", Code: "CLA"}}, 2, nil)
	if got := c.Lookup(0); got.Name != "Jim" {
		t.Errorf("Lookup(0) = %+v", got)
	}
	if got := c.Lookup(1); got.Code != "#2" {
		t.Errorf("Lookup(1) = %+v", got)
	}
	if got := c.Lookup(7); got.Code != "#8" {
		t.Errorf("Lookup past cached lanes = %+v", got)
	}
	if n := len(c.Snapshot()); n != 2 {
		t.Errorf("Snapshot() has %d entries, want 2", n)
	}
}

type blockingTranslator struct{ release chan struct{} }

func (b blockingTranslator) Translate(context.Context, string, int) (string, error) {
	<-b.release
	return "Slow", nil
}

func TestIdentityCache_StaleRefreshDiscarded(t *testing.T) {
	var c IdentityCache
	slow := blockingTranslator{release: make(chan struct{})}

	stale := c.Refresh(context.Background(), nil, 1, slow)
	<-c.Refresh(context.Background(), []Driver{{Name: "Jackie", Code: "STE"}}, 1, nil)
	close(slow.release)
	<-stale

	if got := c.Lookup(0); got.Name != "Jackie" {
		t.Errorf("Lookup(0) = %+v, want the latest refresh", got)
	}
}

func TestIdentityCache_ConcurrentRefreshKeepsLatest(t *testing.T) {
	var c IdentityCache
	var done []<-chan struct{}
	for i := range 50 {
		drivers := []Driver{{Name: "Driver" + strconv.Itoa(i)}}
		done = append(done, c.Refresh(context.Background(), drivers, 1, nil))
	}
	for _, ch := range done {
		<-ch
	}
	if got := c.Lookup(0); got.Name != "Driver49" {
		t.Errorf("Lookup(0) = %+v, want Driver49", got)
	}
}

func TestGenerateCode(t *testing.T) {
	tests := []struct {
		name   string
		others []string
		want   string
	}{
		{"Senna", nil, "SEN"},
		{"Senna", []string{"SEN"}, "SEA"},
		{"Sebastian", []string{"SEB"}, "SEA"},
		{"o'Neil", nil, "ONE"},
		{"Al", nil, ""},
		{"Abc", []string{"ABC"}, ""},
	}
	for _, tt := range tests {
		if got := GenerateCode(tt.name, tt.others); got != tt.want {
			t.Errorf("GenerateCode(%q, %v) = %q, want %q", tt.name, tt.others, got, tt.want)
		}
	}
}
