/*
Package clustertest provides an in-memory fake cluster API for tests.

The fake enforces exactly the cluster-side contract the driver's
correctness depends on: name uniqueness within a project (409 on
duplicate create), UUID assignment at creation, fingerprint recompute
after every mutation, and 400 on a stale If-Match. Knobs let tests force
newly created resources into a failed state or reject credentials.
*/
package clustertest
