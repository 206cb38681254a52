/*
Package metrics exposes Prometheus collectors for the LightOS driver.

Collectors cover the cluster command channel (request counts and
durations by command, endpoint failovers) and the lifecycle controllers
(resources created/deleted, compensating deletes). Handler returns a
promhttp handler for embedding in a process that wants to scrape them;
the driver core itself never serves HTTP.
*/
package metrics
