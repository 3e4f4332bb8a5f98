/*
Package metrics defines Burrow's Prometheus metrics: blob store and pack
counters, commit-graph assignment timings, and cross-repo sync outcomes.
All collectors are registered at init; Handler exposes the scrape endpoint.
*/
package metrics
