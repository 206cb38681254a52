/*
Package driver implements the volume and snapshot lifecycle state
machine and the host attachment negotiator for a LightOS storage
cluster.

The driver sits between an orchestration layer that owns catalog records
and the cluster that owns the resources themselves:

	┌────────────── ORCHESTRATION LAYER ───────────────┐
	│  owns catalog records keyed by logical identifier │
	└────────────────────┬──────────────────────────────┘
	                     │ CreateVolume / DeleteVolume / ExtendVolume
	                     │ CreateSnapshot / DeleteSnapshot
	                     │ CreateClonedVolume / CreateVolumeFromSnapshot
	                     │ InitializeConnection / TerminateConnection
	                     │ DoSetup / CheckForSetupError
	┌────────────────────▼──────────────────────────────┐
	│  Driver (this package)                            │
	│  - derives deterministic cluster names from       │
	│    logical identifiers                            │
	│  - idempotent create via conflict-then-fetch      │
	│  - compensating deletes on partial failure        │
	│  - ACL negotiation for attach/detach              │
	└────────────────────┬──────────────────────────────┘
	                     │ typed commands (pkg/cluster)
	┌────────────────────▼──────────────────────────────┐
	│  LightOS cluster (source of truth)                │
	└───────────────────────────────────────────────────┘

# Failure model

Operations that issue multiple remote commands (clone-from-volume,
create-then-compensating-delete) are not transactional. The mitigation
is idempotent creation by deterministic name plus best-effort
compensation: a retried create recognizes its own prior partial success
through the cluster's name-uniqueness conflict, and cleanup failures are
logged and swallowed so they never mask the primary failure.

Errors follow a small taxonomy: InvalidParameterError and
InvalidAuthError are fatal at setup; NotFoundError reports catalog/
cluster divergence; BackendError covers everything else and wraps the
raw cause so callers can still branch on cluster sentinel errors with
errors.Is. The driver never retries internally - retry policy belongs to
the orchestration layer.
*/
package driver
