package mockwaapi

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Generator imitates a sound designer working in the authoring tool: it
// mutates the project on a ticker and publishes the resulting notifications,
// so clients see changes they did not cause.
type Generator struct {
	server   *Server
	interval time.Duration
	created  []string
	tick     int
}

func NewGenerator(s *Server, interval time.Duration) *Generator {
	return &Generator{server: s, interval: interval}
}

// Start seeds a few sounds and runs the mutation loop until ctx is done.
func (g *Generator) Start(ctx context.Context) {
	for _, name := range []string{"Footstep_Grass", "Footstep_Gravel", "Ambience_Forest"} {
		g.create(name)
	}
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick++
			g.advance()
		}
	}
}

// advance performs one external edit: a new sound every fifth tick, a
// volume tweak every third, a rename otherwise.
func (g *Generator) advance() {
	switch {
	case len(g.created) == 0 || g.tick%5 == 0:
		g.create(fmt.Sprintf("Sound_%03d", g.tick))
	case g.tick%3 == 0:
		id := g.created[rand.Intn(len(g.created))]
		g.publish(g.server.store.SetProperty(id, "Volume", float64(rand.Intn(24)-18)))
	default:
		id := g.created[rand.Intn(len(g.created))]
		g.publish(g.server.store.Rename(id, fmt.Sprintf("Edited_%03d", g.tick)))
	}
}

func (g *Generator) create(name string) {
	view, changes, err := g.server.store.Create(DefaultWorkUnit, "Sound", name, "rename", "", nil)
	if err != nil {
		g.server.log.Warn().Err(err).Msg("generator create failed")
		return
	}
	g.created = append(g.created, view["id"].(string))
	g.server.broker.publishAll(changes)
}

func (g *Generator) publish(changes []Change, err error) {
	if err != nil {
		// The object may have been deleted by a client; forget it.
		g.server.log.Debug().Err(err).Msg("generator edit skipped")
		g.prune()
		return
	}
	g.server.broker.publishAll(changes)
}

func (g *Generator) prune() {
	live := g.created[:0]
	for _, id := range g.created {
		if _, ok := g.server.store.Get(id); ok {
			live = append(live, id)
		}
	}
	g.created = live
}
