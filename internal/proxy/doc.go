// Package proxy implements the per-request mediation between the network and
// the cache store. Same-origin GETs are classified into two policies:
// volatile paths (board config, dictionary directories) go network-first with
// a cache fallback, everything else goes cache-first with a network fallback.
// Network failures never surface to the caller; they degrade to a stored copy,
// the cached root document for navigations, or a synthesized response.
package proxy
