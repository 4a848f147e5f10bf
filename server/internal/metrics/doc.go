// Package metrics holds the live dashboard metrics snapshot and the periodic
// updater that refreshes and publishes it.
//
// There is exactly one Store per process. Providers compute the next
// snapshot (random walk, host CPU load, or a Prometheus scrape); the Updater
// applies the result to the Store and hands the new snapshot to its Sinks,
// typically the WebSocket hub.
package metrics
