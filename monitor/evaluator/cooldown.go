package evaluator

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/healthmonitor/agent/models"
)

// CooldownTracker remembers when an alert was last delivered for each
// (resource, device). Entries never expire, they are only overwritten by a
// later successful send. It is safe for concurrent use.
type CooldownTracker struct {
	lastSent *cache.Cache
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{lastSent: cache.New(cache.NoExpiration, 0)}
}

func (t *CooldownTracker) LastAlertAt(key models.AlertKey) (time.Time, bool) {
	v, found := t.lastSent.Get(key.String())
	if !found {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// IsSuppressed reports whether an alert for key sent at now would fall
// within cooldown of the last successful one. A key never alerted is not
// suppressed.
func (t *CooldownTracker) IsSuppressed(key models.AlertKey, now time.Time, cooldown time.Duration) bool {
	last, found := t.LastAlertAt(key)
	if !found {
		return false
	}
	return now.Sub(last) < cooldown
}

func (t *CooldownTracker) RecordSuccess(key models.AlertKey, sentAt time.Time) {
	t.lastSent.Set(key.String(), sentAt, cache.NoExpiration)
}

func (t *CooldownTracker) Len() int {
	return t.lastSent.ItemCount()
}
