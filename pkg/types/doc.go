/*
Package types defines the core data structures shared by the LightOS
driver's packages.

This package contains the domain model for the driver: clusters, nodes,
projects, volumes, snapshots, access-control lists, and connection
descriptors, along with the lifecycle state enums and the optimistic
concurrency fingerprint used by mutating cluster calls.

# Core Types

Cluster topology:
  - ClusterInfo: cluster UUID and the subsystem NQN exporting all volumes
  - Node: one cluster member and its NVMe endpoint

Resources:
  - Volume: a block volume with size, replica count, compression flag,
    ACL, lifecycle state, and concurrency fingerprint (ETag)
  - Snapshot: a point-in-time snapshot with its own lifecycle state
  - ACL: host NQNs permitted to attach a volume

Attachment:
  - ConnectionDescriptor: the ephemeral attach handle handed to the local
    block subsystem (transport tag, subsystem NQN, volume UUID, host NQN)

# Concurrency Fingerprint

ComputeVolumeETag hashes a volume's mutable fields into a stable
fingerprint. Mutating calls carry the fingerprint they last observed; the
cluster rejects the call with a precondition failure when it no longer
matches, so concurrent writers can never silently overwrite each other.

All types are plain serializable structs; JSON tags follow the cluster
API's wire names.
*/
package types
