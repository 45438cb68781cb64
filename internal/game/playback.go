package game

import (
	"iter"
	"time"
)

// Playback is the lazily computed reveal/hide schedule of one sequence.
// Every event carries the generation it was created under; the engine drops
// events whose generation is no longer current.
type Playback struct {
	gen    uint64
	seq    []int
	leadIn time.Duration
	reveal time.Duration
	step   time.Duration // reveal + gap
	next   int
}

func newPlayback(gen uint64, seq []int, cfg Config) *Playback {
	return &Playback{
		gen:    gen,
		seq:    append([]int(nil), seq...),
		leadIn: cfg.LeadIn,
		reveal: cfg.Reveal,
		step:   cfg.Reveal + cfg.Gap,
	}
}

// Generation is the tag carried by all of this playback's events.
func (p *Playback) Generation() uint64 { return p.gen }

// Len is the number of events (two per symbol).
func (p *Playback) Len() int { return 2 * len(p.seq) }

// Duration is the offset of the final hide event.
func (p *Playback) Duration() time.Duration {
	if len(p.seq) == 0 {
		return 0
	}
	return p.event(p.Len() - 1).At
}

// Next returns the next undelivered event in time order.
func (p *Playback) Next() (Event, bool) {
	if p.next >= p.Len() {
		return Event{}, false
	}
	ev := p.event(p.next)
	p.next++
	return ev, true
}

// All yields every event in time order without consuming Next.
func (p *Playback) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for i := 0; i < p.Len(); i++ {
			if !yield(p.event(i)) {
				return
			}
		}
	}
}

// Events collects All into a slice.
func (p *Playback) Events() []Event {
	out := make([]Event, 0, p.Len())
	for ev := range p.All() {
		out = append(out, ev)
	}
	return out
}

func (p *Playback) event(ordinal int) Event {
	i := ordinal / 2
	ev := Event{
		Kind:       EventReveal,
		Step:       i,
		Symbol:     p.seq[i],
		At:         p.leadIn + time.Duration(i)*p.step,
		Generation: p.gen,
	}
	if ordinal%2 == 1 {
		ev.Kind = EventHide
		ev.At += p.reveal
		ev.Last = i == len(p.seq)-1
	}
	return ev
}
