/*
Package cluster provides the typed client for the LightOS cluster API.

The package has two layers that share one Client:

	┌──────────────── LIFECYCLE CONTROLLERS ────────────────┐
	│                   (pkg/driver)                        │
	└──────────────────────┬────────────────────────────────┘
	                       │ typed calls, domain outcomes
	┌──────────────────────▼────────────────────────────────┐
	│  Repository Adapter                                    │
	│  - one method per cluster command                      │
	│  - 200 → value    404 → found=false                    │
	│  - 409 → created=false (idempotent create)             │
	│  - 400/412 on conditional update → ErrStaleETag        │
	│  - 401 → ErrUnauthorized                               │
	│  - anything else → *APIError carrying raw status       │
	└──────────────────────┬────────────────────────────────┘
	                       │ command, method, path, payload
	┌──────────────────────▼────────────────────────────────┐
	│  Command Channel (Client.do)                           │
	│  - endpoint failover: one pass over the list           │
	│  - per-call timeout, bearer auth, If-Match             │
	│  - returns raw status + body, never interprets them    │
	└───────────────────────────────────────────────────────┘

Absence and name conflicts are expected outcomes of normal control flow,
so the adapter returns them as values rather than errors; the lifecycle
controllers branch on them directly. Only connectivity failures (all
endpoints unreachable in one pass), credential rejection, stale
fingerprints on conditional updates, and unclassified statuses become
errors.

Mutating calls that require optimistic concurrency (extend_volume,
update_volume) send the caller's fingerprint as an If-Match header; the
cluster rejects the call when the fingerprint is stale, surfacing here as
ErrStaleETag.
*/
package cluster
