package resilience

import (
	"sync"
	"time"
)

// maxOrgBuckets bounds the per-org bucket map; on overflow the stalest
// buckets are pruned.
const maxOrgBuckets = 10000

type orgBucket struct {
	limiter  *Limiter
	lastSeen time.Time
}

// OrgLimiter keeps one token bucket per organization. It is a single-node
// stand-in for a shared rate-limit store: counters live in process, so in a
// multi-instance deployment each instance enforces its own share.
type OrgLimiter struct {
	mu      sync.Mutex
	buckets map[string]*orgBucket
	now     func() time.Time
}

// NewOrgLimiter creates an empty per-org limiter.
func NewOrgLimiter() *OrgLimiter {
	return &OrgLimiter{
		buckets: make(map[string]*orgBucket),
		now:     time.Now,
	}
}

// Allow consumes one token from org's bucket, creating it on first sight
// with perMinute requests per minute and a burst of the same size.
// perMinute <= 0 means the org is not limited.
func (o *OrgLimiter) Allow(org string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}

	o.mu.Lock()
	b, ok := o.buckets[org]
	if !ok {
		if len(o.buckets) >= maxOrgBuckets {
			o.prune()
		}
		b = &orgBucket{limiter: NewLimiter(LimiterOpts{
			Rate:  float64(perMinute) / 60,
			Burst: perMinute,
		})}
		o.buckets[org] = b
	}
	b.lastSeen = o.now()
	o.mu.Unlock()

	return b.limiter.Allow()
}

// prune drops buckets idle for over a minute, then arbitrarily down to half
// capacity if that was not enough. Must hold mu.
func (o *OrgLimiter) prune() {
	cutoff := o.now().Add(-time.Minute)
	for org, b := range o.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(o.buckets, org)
		}
	}
	// All buckets active within the last minute: drop arbitrarily to cap size.
	for org := range o.buckets {
		if len(o.buckets) < maxOrgBuckets/2 {
			break
		}
		delete(o.buckets, org)
	}
}
