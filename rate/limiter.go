package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key and forgets clients that
// stay quiet longer than the expiry window.
type Limiter struct {
	burst   int
	limit   rate.Limit
	expiry  time.Duration
	mu      sync.Mutex
	clients map[string]*client
	stop    chan struct{}
}

type client struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func New(burst int, limitRPS float64, expiry time.Duration) *Limiter {
	l := &Limiter{
		burst:   burst,
		limit:   rate.Limit(limitRPS),
		expiry:  expiry,
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter.Allow()
}

// Stop ends the expiry sweeper. Allow keeps working after Stop, but idle
// clients are no longer evicted.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) sweep() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-tick.C:
			l.mu.Lock()
			for key, cl := range l.clients {
				if time.Since(cl.lastAccess) > l.expiry {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func Every(interval time.Duration) float64 {
	return float64(rate.Every(interval))
}
