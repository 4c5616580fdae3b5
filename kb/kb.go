package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/ionocal/model"
)

// Catalog is an in-memory, thread-safe store for sky-model sources and
// array antennas. Sources are immutable once added; only their ordering
// (via Ranked) changes.
type Catalog struct {
	mu sync.RWMutex

	sources  map[string]*model.Source
	order    []string // insertion order, for stable iteration
	antennas map[string]*model.Antenna
	antOrder []string
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		sources:  make(map[string]*model.Source),
		antennas: make(map[string]*model.Antenna),
	}
}

// AddSource adds a new source. It returns an error if the ID already
// exists, the source has no components, or any component has a
// non-positive reference flux.
func (c *Catalog) AddSource(s *model.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.ID == "" {
		return fmt.Errorf("source must have an ID")
	}
	if _, exists := c.sources[s.ID]; exists {
		return fmt.Errorf("source with ID %q already exists", s.ID)
	}
	if len(s.Components) == 0 {
		return fmt.Errorf("source %q has no components", s.ID)
	}
	for i, comp := range s.Components {
		if comp.Flux.RefFluxJy <= 0 {
			return fmt.Errorf("source %q component %d has non-positive reference flux", s.ID, i)
		}
	}
	c.sources[s.ID] = s
	c.order = append(c.order, s.ID)
	return nil
}

// AddAntenna adds a new antenna. It returns an error if the ID already exists.
func (c *Catalog) AddAntenna(a *model.Antenna) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.ID == "" {
		return fmt.Errorf("antenna must have an ID")
	}
	if _, exists := c.antennas[a.ID]; exists {
		return fmt.Errorf("antenna with ID %q already exists", a.ID)
	}
	c.antennas[a.ID] = a
	c.antOrder = append(c.antOrder, a.ID)
	return nil
}

// GetSource returns the source with the given ID, or nil if not found.
func (c *Catalog) GetSource(id string) *model.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sources[id]
}

// Sources returns all sources in insertion order.
func (c *Catalog) Sources() []*model.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Source, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sources[id])
	}
	return out
}

// Antennas returns all antennas in insertion order.
func (c *Catalog) Antennas() []*model.Antenna {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Antenna, 0, len(c.antOrder))
	for _, id := range c.antOrder {
		out = append(out, c.antennas[id])
	}
	return out
}

// NumSources returns the number of stored sources.
func (c *Catalog) NumSources() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}

// RankedSource pairs a source with its apparent amplitudes at the ranking
// frequency.
type RankedSource struct {
	Source   *model.Source
	Apparent model.AmplitudePair
}

// Ranked returns sources sorted by descending apparent flux as seen
// through the beam at the given frequency, truncated to limit entries
// (0 = no truncation). Ties break on source ID so the order is
// deterministic; truncating is therefore always a prefix of the full
// ranked order.
func (c *Catalog) Ranked(beam model.BeamModel, freqHz float64, limit int) []RankedSource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ranked := make([]RankedSource, 0, len(c.order))
	for _, id := range c.order {
		s := c.sources[id]
		ranked = append(ranked, RankedSource{
			Source:   s,
			Apparent: s.Apparent(beam, freqHz),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		fi, fj := ranked[i].Apparent.Mean(), ranked[j].Apparent.Mean()
		if fi != fj {
			return fi > fj
		}
		return ranked[i].Source.ID < ranked[j].Source.ID
	})
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked
}
