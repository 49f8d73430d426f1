package availability

import (
	"testing"
	"time"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := newCache()
	key := cacheKey{region: "ovh-eu", planCode: "24sk202", fingerprint: "abc"}
	want := map[string]State{"gra": Available}

	c.set(key, want)
	got, ok := c.get(key)
	if !ok {
		t.Fatal("get() ok = false, want true")
	}
	if got["gra"] != Available {
		t.Errorf("got[gra] = %v, want %v", got["gra"], Available)
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := newCache()
	key := cacheKey{region: "ovh-eu", planCode: "24sk202", fingerprint: "abc"}
	c.entries[key] = cacheEntry{result: map[string]State{"gra": Available}, expiresAt: time.Now().Add(-time.Second)}

	if _, ok := c.get(key); ok {
		t.Error("get() should miss for an expired entry")
	}
}

func TestCache_BoundedSize(t *testing.T) {
	c := newCache()
	for i := 0; i < maxCacheEntries+10; i++ {
		key := cacheKey{region: "ovh-eu", planCode: "plan", fingerprint: string(rune(i))}
		c.set(key, map[string]State{"gra": Available})
	}

	if len(c.entries) > maxCacheEntries {
		t.Errorf("cache grew to %d entries, want <= %d", len(c.entries), maxCacheEntries)
	}
}
