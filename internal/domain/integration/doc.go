// Package integration contains the sync reconciliation context.
//
// It audits how well each marketplace feed has been ingested into the order
// store. Everything here is a pure function of observations gathered by the
// application layer: per-platform sync cursors, daily order volumes and
// optional upstream feed snapshots. Nothing in this package mutates orders.
//
// Key concepts:
//   - HealthPolicy: staleness and volume thresholds, business-hours aware
//   - PlatformHealth: derived status (ok, warning, stale, no_data) per platform
//   - Gap: a day whose volume is missing or anomalously low
//   - SyncFeed: port for reading an upstream feed snapshot
package integration
