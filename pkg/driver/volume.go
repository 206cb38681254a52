package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightbitslabs/lightos-driver/pkg/cluster"
	"github.com/lightbitslabs/lightos-driver/pkg/events"
	"github.com/lightbitslabs/lightos-driver/pkg/metrics"
	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// CreateVolume creates a block volume for the given logical identifier.
// Creation is idempotent: a retried create that hits the name uniqueness
// constraint adopts the existing volume instead of failing, so a caller
// may safely retry after a timeout. If the cluster accepts the request
// but the volume resolves to a failed state, the failed volume is torn
// down best-effort and the create fails; a caller is never handed a
// volume it cannot use, and none is left behind.
func (d *Driver) CreateVolume(ctx context.Context, logicalID string, sizeGiB int64) (*types.Volume, error) {
	return d.createVolume(ctx, d.volumeName(logicalID), sizeGiB, "")
}

// CreateVolumeFromSnapshot creates a volume whose content is seeded from
// a caller-visible snapshot.
func (d *Driver) CreateVolumeFromSnapshot(ctx context.Context, logicalID string, sizeGiB int64, snapshotLogicalID string) (*types.Volume, error) {
	return d.createVolume(ctx, d.volumeName(logicalID), sizeGiB, d.snapshotName(snapshotLogicalID))
}

// CreateClonedVolume clones one volume from another via an intermediate
// snapshot: snapshot the source, create the new volume from the
// snapshot, delete the snapshot. The three remote calls are not atomic;
// the intermediate snapshot is deleted best-effort on both the success
// and the failure path so it cannot leak past this call. The
// intermediate name is derived from the destination logical identifier;
// concurrent clones to the same destination identifier race on that name
// and are a caller error (duplicate logical identifier).
func (d *Driver) CreateClonedVolume(ctx context.Context, logicalID string, sizeGiB int64, srcLogicalID string) (*types.Volume, error) {
	interName := d.intermediateSnapshotName(logicalID)

	if _, err := d.createSnapshot(ctx, interName, d.volumeName(srcLogicalID)); err != nil {
		return nil, err
	}

	vol, createErr := d.createVolume(ctx, d.volumeName(logicalID), sizeGiB, interName)

	// The intermediate snapshot has served its purpose either way.
	d.deleteSnapshotBestEffort(ctx, interName)

	if createErr != nil {
		return nil, createErr
	}
	return vol, nil
}

func (d *Driver) createVolume(ctx context.Context, name string, sizeGiB int64, srcSnapshotName string) (*types.Volume, error) {
	if sizeGiB <= 0 {
		return nil, &InvalidParameterError{Param: "size", Reason: fmt.Sprintf("must be positive, got %d", sizeGiB)}
	}

	logger := d.logger.With().Str("volume_name", name).Logger()

	req := cluster.CreateVolumeRequest{
		ProjectName:     types.DefaultProject,
		Name:            name,
		Size:            sizeGiB,
		NumReplicas:     d.cfg.DefaultNumReplicas,
		Compression:     d.cfg.DefaultCompression,
		SrcSnapshotName: srcSnapshotName,
		ACL:             []string{types.ACLAllowNone},
	}

	_, created, err := d.api.CreateVolume(ctx, req)
	if err != nil {
		return nil, &BackendError{Op: "create_volume", Reason: "create command failed", Err: err}
	}
	if !created {
		// Name conflict: a prior create (possibly a timed-out one from
		// this same caller) already owns the name. Adopt it.
		logger.Info().Msg("volume already exists, adopting it")
	}

	vol, err := d.waitForVolumeAvailable(ctx, name)
	if err != nil {
		// The cluster accepted the request but the volume never became
		// usable. Tear it down so nothing unusable is left behind; the
		// original failure is what propagates.
		d.compensatingDeleteVolume(ctx, name)
		return nil, err
	}

	metrics.VolumesCreated.Inc()
	d.publish(events.EventVolumeCreated, "volume created", map[string]string{
		"volume_name": name,
		"volume_uuid": vol.UUID,
	})
	logger.Info().Str("volume_uuid", vol.UUID).Int64("size_gib", vol.Size).Msg("volume created")

	return vol, nil
}

// waitForVolumeAvailable polls until the named volume reaches a terminal
// state, bounded by the API service timeout. Only Available is success.
func (d *Driver) waitForVolumeAvailable(ctx context.Context, name string) (*types.Volume, error) {
	deadline := time.Now().Add(d.cfg.APIServiceTimeout)

	for {
		vol, found, err := d.api.GetVolumeByName(ctx, types.DefaultProject, name)
		if err != nil {
			return nil, &BackendError{Op: "create_volume", Reason: "cannot fetch volume state", Err: err}
		}
		if !found {
			return nil, &BackendError{Op: "create_volume", Reason: fmt.Sprintf("volume %q disappeared while settling", name)}
		}

		switch vol.State {
		case types.VolumeStateAvailable:
			return vol, nil
		case types.VolumeStateCreating, types.VolumeStateUpdating:
			// still settling
		default:
			return nil, &BackendError{Op: "create_volume",
				Reason: fmt.Sprintf("volume %q entered state %s", name, vol.State)}
		}

		if time.Now().After(deadline) {
			return nil, &BackendError{Op: "create_volume",
				Reason: fmt.Sprintf("volume %q still in state %s after %s", name, vol.State, d.cfg.APIServiceTimeout)}
		}

		select {
		case <-ctx.Done():
			return nil, &BackendError{Op: "create_volume", Reason: "canceled while waiting for volume", Err: ctx.Err()}
		case <-time.After(stateSettleInterval):
		}
	}
}

// compensatingDeleteVolume removes a volume left behind by a failed
// create. Best-effort: its own failure is logged and swallowed so it can
// never mask the primary failure.
func (d *Driver) compensatingDeleteVolume(ctx context.Context, name string) {
	logger := d.logger.With().Str("volume_name", name).Logger()

	vol, found, err := d.api.GetVolumeByName(ctx, types.DefaultProject, name)
	if err != nil {
		logger.Warn().Err(err).Msg("compensating delete: cannot resolve volume")
		return
	}
	if !found {
		return
	}

	if _, err := d.api.DeleteVolume(ctx, types.DefaultProject, vol.UUID); err != nil {
		logger.Warn().Err(err).Msg("compensating delete failed, volume may be left behind")
		return
	}

	metrics.CompensatingDeletes.Inc()
	d.publish(events.EventCompensatingWipe, "failed volume removed", map[string]string{
		"volume_name": name,
		"volume_uuid": vol.UUID,
	})
	logger.Info().Msg("failed volume removed")
}

// DeleteVolume removes the volume for the given logical identifier.
// Absence is surfaced as NotFoundError rather than silent success: a
// missing volume the caller believes exists means its catalog and the
// cluster have diverged.
func (d *Driver) DeleteVolume(ctx context.Context, logicalID string) error {
	name := d.volumeName(logicalID)

	vol, found, err := d.api.GetVolumeByName(ctx, types.DefaultProject, name)
	if err != nil {
		return &BackendError{Op: "delete_volume", Reason: "cannot resolve volume", Err: err}
	}
	if !found {
		return &NotFoundError{Kind: "volume", Name: name}
	}

	found, err = d.api.DeleteVolume(ctx, types.DefaultProject, vol.UUID)
	if err != nil {
		return &BackendError{Op: "delete_volume", Reason: "delete command failed", Err: err}
	}
	if !found {
		return &NotFoundError{Kind: "volume", Name: name}
	}

	metrics.VolumesDeleted.Inc()
	d.publish(events.EventVolumeDeleted, "volume deleted", map[string]string{
		"volume_name": name,
		"volume_uuid": vol.UUID,
	})
	d.logger.Info().Str("volume_name", name).Msg("volume deleted")

	return nil
}

// ExtendVolume grows a volume to newSizeGiB. Shrinking is not supported:
// a size not strictly greater than the current one is rejected before
// any remote call. The extend is conditioned on the volume's current
// fingerprint; losing the race to a concurrent writer surfaces as a
// stale-fingerprint failure (errors.Is cluster.ErrStaleETag) distinct
// from NotFoundError, so the caller can refetch and retry.
func (d *Driver) ExtendVolume(ctx context.Context, logicalID string, newSizeGiB int64) error {
	name := d.volumeName(logicalID)

	vol, found, err := d.api.GetVolumeByName(ctx, types.DefaultProject, name)
	if err != nil {
		return &BackendError{Op: "extend_volume", Reason: "cannot resolve volume", Err: err}
	}
	if !found {
		return &NotFoundError{Kind: "volume", Name: name}
	}

	if newSizeGiB <= vol.Size {
		return &InvalidParameterError{Param: "size",
			Reason: fmt.Sprintf("new size %d GiB must exceed current size %d GiB", newSizeGiB, vol.Size)}
	}

	if _, err := d.api.ExtendVolume(ctx, types.DefaultProject, vol.UUID, newSizeGiB, vol.ETag); err != nil {
		if errors.Is(err, cluster.ErrNotFound) {
			return &NotFoundError{Kind: "volume", Name: name}
		}
		if errors.Is(err, cluster.ErrStaleETag) {
			return &BackendError{Op: "extend_volume", Reason: "volume changed concurrently", Err: err}
		}
		return &BackendError{Op: "extend_volume", Reason: "extend command failed", Err: err}
	}

	d.publish(events.EventVolumeExtended, "volume extended", map[string]string{
		"volume_name": name,
		"size_gib":    fmt.Sprintf("%d", newSizeGiB),
	})
	d.logger.Info().Str("volume_name", name).Int64("size_gib", newSizeGiB).Msg("volume extended")

	return nil
}

// GetVolume fetches the current cluster-side state of a volume by its
// logical identifier.
func (d *Driver) GetVolume(ctx context.Context, logicalID string) (*types.Volume, error) {
	name := d.volumeName(logicalID)

	vol, found, err := d.api.GetVolumeByName(ctx, types.DefaultProject, name)
	if err != nil {
		return nil, &BackendError{Op: "get_volume", Reason: "cannot fetch volume", Err: err}
	}
	if !found {
		return nil, &NotFoundError{Kind: "volume", Name: name}
	}
	return vol, nil
}
