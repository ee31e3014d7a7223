package race

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/slotrace/rms/internal/monitoring"
)

// PlaceholderNameKey is the translation key for unnamed drivers.
const PlaceholderNameKey = "Driver {{number}}"

// Identity is how a lane is shown and announced.
type Identity struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Color string `json:"color,omitempty"`
}

// Car is the tuning profile a driver brings to a lane.
type Car struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Code  string `json:"code,omitempty"`
	Color string `json:"color,omitempty"`
	Speed *int   `json:"speed,omitempty"`
	Brake *int   `json:"brake,omitempty"`
	Fuel  *int   `json:"fuel,omitempty"`
}

// Driver is a persisted driver profile.
type Driver struct {
	Name  string `json:"name,omitempty"`
	Code  string `json:"code,omitempty"`
	Color string `json:"color,omitempty"`
	Car   *Car   `json:"car,omitempty"`
}

// Translator resolves a message key for the current language. Templates may
// contain "{{number}}", which is replaced by number.
type Translator interface {
	Translate(ctx context.Context, key string, number int) (string, error)
}

// ResolveIdentities returns one identity per lane for n lanes. Missing codes
// become "#<lane+1>" and missing names are translated from
// PlaceholderNameKey. A failing translator falls back to the untranslated
// template.
func ResolveIdentities(ctx context.Context, drivers []Driver, n int, tr Translator) []Identity {
	out := make([]Identity, n)
	for i := range out {
		var d Driver
		if i < len(drivers) {
			d = drivers[i]
		}
		id := Identity{Name: d.Name, Code: d.Code, Color: d.Color}
		if id.Code == "" {
			id.Code = "#" + strconv.Itoa(i+1)
		}
		if id.Name == "" {
			name, err := translate(ctx, tr, PlaceholderNameKey, i+1)
			if err != nil {
				monitoring.Logf("race: translating driver name for lane %d: %v", i, err)
			}
			id.Name = name
		}
		out[i] = id
	}
	return out
}

func translate(ctx context.Context, tr Translator, key string, n int) (string, error) {
	if tr == nil {
		return expand(key, n), nil
	}
	s, err := tr.Translate(ctx, key, n)
	if err != nil || s == "" {
		return expand(key, n), err
	}
	return s, nil
}

func expand(template string, n int) string {
	return strings.ReplaceAll(template, "{{number}}", strconv.Itoa(n))
}

func placeholderIdentity(lane int, color string) Identity {
	return Identity{
		Name:  expand(PlaceholderNameKey, lane+1),
		Code:  "#" + strconv.Itoa(lane+1),
		Color: color,
	}
}

// IdentityCache holds the latest resolved identities. Readers never block on
// resolution; until the first Store they see placeholders.
type IdentityCache struct {
	ids atomic.Pointer[[]Identity]
	gen atomic.Uint64

	// mu serializes writers so a generation check and its store are atomic
	mu sync.Mutex
}

// Store replaces the cached identities.
func (c *IdentityCache) Store(ids []Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(ids)
}

func (c *IdentityCache) store(ids []Identity) {
	cp := append([]Identity(nil), ids...)
	c.ids.Store(&cp)
}

// Snapshot returns a copy of the cached identities.
func (c *IdentityCache) Snapshot() []Identity {
	p := c.ids.Load()
	if p == nil {
		return nil
	}
	return append([]Identity(nil), (*p)...)
}

// Lookup returns the identity for lane or a placeholder.
func (c *IdentityCache) Lookup(lane int) Identity {
	if p := c.ids.Load(); p != nil && lane >= 0 && lane < len(*p) {
		return (*p)[lane]
	}
	return placeholderIdentity(lane, "")
}

// Refresh resolves drivers in the background and stores the result unless a
// later Refresh has been started meanwhile. The returned channel is closed
// once resolution has finished.
func (c *IdentityCache) Refresh(ctx context.Context, drivers []Driver, n int, tr Translator) <-chan struct{} {
	gen := c.gen.Add(1)
	drivers = append([]Driver(nil), drivers...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ids := ResolveIdentities(ctx, drivers, n, tr)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen.Load() == gen {
			c.store(ids)
		}
	}()
	return done
}

var nonWord = regexp.MustCompile(`\W`)

// GenerateCode derives a three letter code from name that no driver in
// others uses. It returns "" when no such code exists.
func GenerateCode(name string, others []string) string {
	chars := []rune(strings.ToUpper(nonWord.ReplaceAllString(name, "")))
	taken := make(map[string]bool, len(others))
	for _, o := range others {
		taken[o] = true
	}
	for n := 2; n < len(chars); n++ {
		s := string(chars[:2]) + string(chars[n])
		if !taken[s] {
			return s
		}
	}
	return ""
}

// Catalog is a map backed Translator keyed by message key.
type Catalog map[string]string

// Translate returns the template for key with "{{number}}" expanded. Keys
// without an entry are used as their own template.
func (c Catalog) Translate(_ context.Context, key string, number int) (string, error) {
	if t, ok := c[key]; ok {
		return expand(t, number), nil
	}
	return expand(key, number), nil
}

