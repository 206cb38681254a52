package types

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

const (
	// DefaultProject is the project every cluster exposes by default.
	// It always exists and cannot be deleted; callers that do not manage
	// projects themselves place all volumes and snapshots in it.
	DefaultProject = "default"

	// ACLAllowNone is the sentinel ACL entry meaning "no host may attach".
	// A volume ACL is never empty: when the last host is removed, the ACL
	// is reset to this single entry.
	ACLAllowNone = "ALLOW_NONE"

	// DriverVolumeType tags connection descriptors with the transport the
	// local attach facility should use.
	DriverVolumeType = "lightos"
)

// VolumeState is the cluster-side lifecycle state of a volume.
type VolumeState string

const (
	VolumeStateCreating  VolumeState = "Creating"
	VolumeStateAvailable VolumeState = "Available"
	VolumeStateFailed    VolumeState = "Failed"
	VolumeStateDeleting  VolumeState = "Deleting"
	VolumeStateUpdating  VolumeState = "Updating"
	VolumeStateUnknown   VolumeState = "Unknown"
)

// SnapshotState is the cluster-side lifecycle state of a snapshot.
type SnapshotState string

const (
	SnapshotStateCreating  SnapshotState = "Creating"
	SnapshotStateAvailable SnapshotState = "Available"
	SnapshotStateFailed    SnapshotState = "Failed"
	SnapshotStateDeleting  SnapshotState = "Deleting"
	SnapshotStateUnknown   SnapshotState = "Unknown"
)

// ACL is the set of host NQNs permitted to attach a volume.
type ACL struct {
	Values []string `json:"values"`
}

// Contains reports whether the ACL includes the given host NQN.
func (a ACL) Contains(hostNQN string) bool {
	for _, v := range a.Values {
		if v == hostNQN {
			return true
		}
	}
	return false
}

// Volume is a cluster-side block volume. The UUID is assigned by the
// cluster at creation and immutable afterwards. ETag is the cluster's
// concurrency fingerprint over the mutable fields; a mutating call that
// carries a stale ETag is rejected with a precondition failure.
type Volume struct {
	UUID            string      `json:"UUID,omitempty"`
	ProjectName     string      `json:"project_name"`
	Name            string      `json:"name"`
	Size            int64       `json:"size"` // GiB
	NumReplicas     int         `json:"n_replicas"`
	Compression     bool        `json:"compression"`
	SrcSnapshotName string      `json:"src_snapshot_name,omitempty"`
	ACL             ACL         `json:"acl"`
	State           VolumeState `json:"state"`
	ETag            string      `json:"ETag,omitempty"`
}

// Snapshot is a cluster-side point-in-time snapshot. The back-reference
// to its source volume is maintained by the cluster.
type Snapshot struct {
	UUID          string        `json:"UUID,omitempty"`
	ProjectName   string        `json:"project_name"`
	Name          string        `json:"name"`
	SrcVolumeName string        `json:"src_volume_name,omitempty"`
	State         SnapshotState `json:"state"`
}

// Node is one cluster member with its NVMe-over-fabrics endpoint.
type Node struct {
	UUID         string `json:"UUID"`
	NVMeEndpoint string `json:"nvmeEndpoint"`
}

// ClusterInfo identifies a cluster and the subsystem NQN under which it
// exports all volumes. Discovered once per driver session and cached.
type ClusterInfo struct {
	UUID         string `json:"UUID"`
	SubsystemNQN string `json:"subsystemNQN"`
}

// ConnectionDescriptor is the ephemeral result of attach negotiation.
// It carries everything the local block subsystem needs to connect a
// host to one volume. It is never persisted.
type ConnectionDescriptor struct {
	DriverVolumeType string `json:"driver_volume_type"`
	SubsysNQN        string `json:"nqn"`
	VolumeUUID       string `json:"uuid"`
	HostNQN          string `json:"hostnqn"`
}

// ComputeVolumeETag returns the concurrency fingerprint of a volume: a
// stable hash over its canonical mutable field set, sorted by key and
// excluding the fingerprint itself. The cluster recomputes it after every
// successful mutation, so the fingerprint changes exactly when a mutable
// field changes.
func ComputeVolumeETag(v *Volume) string {
	fields := map[string]interface{}{
		"name":              v.Name,
		"project_name":      v.ProjectName,
		"size":              v.Size,
		"n_replicas":        v.NumReplicas,
		"compression":       v.Compression,
		"src_snapshot_name": v.SrcSnapshotName,
		"acl":               v.ACL,
		"state":             v.State,
	}
	// Top-level map keys are sorted by encoding/json; nested structs
	// marshal in declaration order. Both are stable across processes.
	dump, err := json.Marshal(fields)
	if err != nil {
		// All field types above are marshalable.
		panic(err)
	}
	sum := md5.Sum(dump)
	return hex.EncodeToString(sum[:])
}
