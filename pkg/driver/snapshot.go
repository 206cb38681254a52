package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/lightbitslabs/lightos-driver/pkg/cluster"
	"github.com/lightbitslabs/lightos-driver/pkg/events"
	"github.com/lightbitslabs/lightos-driver/pkg/metrics"
	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// CreateSnapshot snapshots the source volume under the caller-visible
// snapshot name. Idempotent on name conflicts exactly as volume creation
// is: a retried create adopts the existing snapshot.
func (d *Driver) CreateSnapshot(ctx context.Context, logicalID, srcVolumeLogicalID string) (*types.Snapshot, error) {
	return d.createSnapshot(ctx, d.snapshotName(logicalID), d.volumeName(srcVolumeLogicalID))
}

func (d *Driver) createSnapshot(ctx context.Context, name, srcVolumeName string) (*types.Snapshot, error) {
	logger := d.logger.With().Str("snapshot_name", name).Logger()

	req := cluster.CreateSnapshotRequest{
		ProjectName:   types.DefaultProject,
		Name:          name,
		SrcVolumeName: srcVolumeName,
	}

	_, created, err := d.api.CreateSnapshot(ctx, req)
	if err != nil {
		return nil, &BackendError{Op: "create_snapshot", Reason: "create command failed", Err: err}
	}
	if !created {
		logger.Info().Msg("snapshot already exists, adopting it")
	}

	snap, err := d.waitForSnapshotAvailable(ctx, name)
	if err != nil {
		d.deleteSnapshotBestEffort(ctx, name)
		return nil, err
	}

	metrics.SnapshotsCreated.Inc()
	d.publish(events.EventSnapshotCreated, "snapshot created", map[string]string{
		"snapshot_name": name,
		"snapshot_uuid": snap.UUID,
	})
	logger.Info().Str("snapshot_uuid", snap.UUID).Msg("snapshot created")

	return snap, nil
}

func (d *Driver) waitForSnapshotAvailable(ctx context.Context, name string) (*types.Snapshot, error) {
	deadline := time.Now().Add(d.cfg.APIServiceTimeout)

	for {
		snap, found, err := d.api.GetSnapshotByName(ctx, types.DefaultProject, name)
		if err != nil {
			return nil, &BackendError{Op: "create_snapshot", Reason: "cannot fetch snapshot state", Err: err}
		}
		if !found {
			return nil, &BackendError{Op: "create_snapshot", Reason: fmt.Sprintf("snapshot %q disappeared while settling", name)}
		}

		switch snap.State {
		case types.SnapshotStateAvailable:
			return snap, nil
		case types.SnapshotStateCreating:
			// still settling
		default:
			return nil, &BackendError{Op: "create_snapshot",
				Reason: fmt.Sprintf("snapshot %q entered state %s", name, snap.State)}
		}

		if time.Now().After(deadline) {
			return nil, &BackendError{Op: "create_snapshot",
				Reason: fmt.Sprintf("snapshot %q still in state %s after %s", name, snap.State, d.cfg.APIServiceTimeout)}
		}

		select {
		case <-ctx.Done():
			return nil, &BackendError{Op: "create_snapshot", Reason: "canceled while waiting for snapshot", Err: ctx.Err()}
		case <-time.After(stateSettleInterval):
		}
	}
}

// DeleteSnapshot removes the caller-visible snapshot for the given
// logical identifier. Absence surfaces as NotFoundError.
func (d *Driver) DeleteSnapshot(ctx context.Context, logicalID string) error {
	return d.deleteSnapshot(ctx, d.snapshotName(logicalID))
}

func (d *Driver) deleteSnapshot(ctx context.Context, name string) error {
	snap, found, err := d.api.GetSnapshotByName(ctx, types.DefaultProject, name)
	if err != nil {
		return &BackendError{Op: "delete_snapshot", Reason: "cannot resolve snapshot", Err: err}
	}
	if !found {
		return &NotFoundError{Kind: "snapshot", Name: name}
	}

	found, err = d.api.DeleteSnapshot(ctx, types.DefaultProject, snap.UUID)
	if err != nil {
		return &BackendError{Op: "delete_snapshot", Reason: "delete command failed", Err: err}
	}
	if !found {
		return &NotFoundError{Kind: "snapshot", Name: name}
	}

	metrics.SnapshotsDeleted.Inc()
	d.publish(events.EventSnapshotDeleted, "snapshot deleted", map[string]string{
		"snapshot_name": name,
		"snapshot_uuid": snap.UUID,
	})
	d.logger.Info().Str("snapshot_name", name).Msg("snapshot deleted")

	return nil
}

// deleteSnapshotBestEffort cleans up an intermediate or failed snapshot.
// Its own failure is logged and swallowed; callers propagate only their
// primary failure.
func (d *Driver) deleteSnapshotBestEffort(ctx context.Context, name string) {
	if err := d.deleteSnapshot(ctx, name); err != nil && !IsNotFound(err) {
		d.logger.Warn().Err(err).Str("snapshot_name", name).
			Msg("best-effort snapshot cleanup failed, snapshot may be left behind")
	}
}
