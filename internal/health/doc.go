// Package health maintains a best-effort, eventually-accurate reachability
// view of every registered provider without adding latency to requests.
//
// One jittered probe goroutine runs per provider, fully decoupled from
// request handling. Real call outcomes reported by the failover coordinator
// feed the same update logic, so production traffic health-checks providers
// between probes. A staleness watchdog demotes records that have not been
// refreshed within the configured horizon.
package health
