package docstore

import (
	"context"
	"sync"
)

// Pump runs a Handler on its own goroutine and feeds it changes in push
// order. Push never blocks, so a store may push while holding its locks.
type Pump struct {
	h      Handler
	mu     sync.Mutex
	queue  []Change
	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewPump(ctx context.Context, h Handler) *Pump {
	p := &Pump{
		h:      h,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

func (p *Pump) Push(c Change) {
	select {
	case <-p.quit:
		return
	default:
	}
	p.mu.Lock()
	p.queue = append(p.queue, c)
	p.mu.Unlock()
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Stop halts delivery and waits for an in-flight handler call to finish.
func (p *Pump) Stop() {
	p.once.Do(func() { close(p.quit) })
	<-p.done
}

// Done is closed once the pump goroutine has exited.
func (p *Pump) Done() <-chan struct{} { return p.done }

func (p *Pump) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.once.Do(func() { close(p.quit) })
			return
		case <-p.quit:
			return
		case <-p.signal:
		}
		for {
			p.mu.Lock()
			batch := p.queue
			p.queue = nil
			p.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, c := range batch {
				select {
				case <-p.quit:
					return
				case <-ctx.Done():
					p.once.Do(func() { close(p.quit) })
					return
				default:
				}
				p.h(c)
			}
		}
	}
}
