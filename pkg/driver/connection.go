package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightbitslabs/lightos-driver/pkg/cluster"
	"github.com/lightbitslabs/lightos-driver/pkg/connector"
	"github.com/lightbitslabs/lightos-driver/pkg/events"
	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// aclUpdateAttempts bounds the refetch-and-retry loop when a conditional
// ACL update loses a fingerprint race to a concurrent writer.
const aclUpdateAttempts = 3

// InitializeConnection negotiates host access to a volume and returns
// the connection descriptor the local block subsystem attaches with.
// The host must present a non-empty NQN (ACL-scoped access cannot be
// granted to an anonymous host) and a reachable discovery client
// (without one the transport cannot resolve the volume's network path).
// The host NQN is added to the volume's ACL as part of negotiation.
func (d *Driver) InitializeConnection(ctx context.Context, logicalID string, props connector.Properties) (*types.ConnectionDescriptor, error) {
	if props.HostNQN == "" {
		return nil, &BackendError{Op: "initialize_connection", Reason: "host has no NQN"}
	}
	if !props.FoundDiscoveryClient {
		return nil, &BackendError{Op: "initialize_connection", Reason: "discovery client unreachable"}
	}

	info := d.ClusterInfo()
	if info == nil || info.SubsystemNQN == "" {
		return nil, &BackendError{Op: "initialize_connection", Reason: "cluster subsystem NQN is unknown, setup incomplete"}
	}

	name := d.volumeName(logicalID)
	vol, found, err := d.api.GetVolumeByName(ctx, types.DefaultProject, name)
	if err != nil {
		return nil, &BackendError{Op: "initialize_connection", Reason: "cannot resolve volume", Err: err}
	}
	if !found {
		return nil, &NotFoundError{Kind: "volume", Name: name}
	}
	if vol.State != types.VolumeStateAvailable {
		return nil, &BackendError{Op: "initialize_connection",
			Reason: fmt.Sprintf("volume %q is in state %s, not attachable", name, vol.State)}
	}

	if err := d.updateACL(ctx, name, grantACL(props.HostNQN)); err != nil {
		return nil, err
	}

	d.publish(events.EventVolumeAttached, "connection initialized", map[string]string{
		"volume_name": name,
		"hostnqn":     props.HostNQN,
	})
	d.logger.Info().Str("volume_name", name).Str("hostnqn", props.HostNQN).Msg("connection initialized")

	return &types.ConnectionDescriptor{
		DriverVolumeType: types.DriverVolumeType,
		SubsysNQN:        info.SubsystemNQN,
		VolumeUUID:       vol.UUID,
		HostNQN:          props.HostNQN,
	}, nil
}

// TerminateConnection revokes host access to a volume. Normal detach
// requires the host NQN, since the ACL entry to remove is keyed by it.
// Forced detach is for cleanup/error paths where failing to detach is
// worse than detaching with incomplete identity: it proceeds with an
// empty NQN, skipping the ACL update it cannot scope, and tolerates a
// missing volume.
func (d *Driver) TerminateConnection(ctx context.Context, logicalID string, props connector.Properties, force bool) error {
	name := d.volumeName(logicalID)

	if props.HostNQN == "" {
		if !force {
			return &BackendError{Op: "terminate_connection", Reason: "host has no NQN"}
		}
		d.logger.Warn().Str("volume_name", name).
			Msg("forced detach without host NQN, leaving ACL untouched")
		return nil
	}

	err := d.updateACL(ctx, name, revokeACL(props.HostNQN))
	if err != nil {
		if force {
			d.logger.Warn().Err(err).Str("volume_name", name).
				Msg("forced detach continuing despite ACL update failure")
			return nil
		}
		return err
	}

	d.publish(events.EventVolumeDetached, "connection terminated", map[string]string{
		"volume_name": name,
		"hostnqn":     props.HostNQN,
	})
	d.logger.Info().Str("volume_name", name).Str("hostnqn", props.HostNQN).Msg("connection terminated")

	return nil
}

// grantACL returns the ACL with hostNQN added and the no-access sentinel
// removed.
func grantACL(hostNQN string) func([]string) []string {
	return func(acl []string) []string {
		out := make([]string, 0, len(acl)+1)
		for _, v := range acl {
			if v != types.ACLAllowNone && v != hostNQN {
				out = append(out, v)
			}
		}
		return append(out, hostNQN)
	}
}

// revokeACL returns the ACL with hostNQN removed, restoring the
// no-access sentinel when the list empties. The ACL is never empty.
func revokeACL(hostNQN string) func([]string) []string {
	return func(acl []string) []string {
		out := make([]string, 0, len(acl))
		for _, v := range acl {
			if v != hostNQN {
				out = append(out, v)
			}
		}
		if len(out) == 0 {
			out = append(out, types.ACLAllowNone)
		}
		return out
	}
}

// updateACL applies mutate to the volume's ACL as a conditional update.
// A stale fingerprint means a concurrent writer got there first; the
// update refetches and reapplies a bounded number of times so attach and
// detach of different hosts can interleave safely.
func (d *Driver) updateACL(ctx context.Context, name string, mutate func([]string) []string) error {
	var lastErr error

	for attempt := 0; attempt < aclUpdateAttempts; attempt++ {
		vol, found, err := d.api.GetVolumeByName(ctx, types.DefaultProject, name)
		if err != nil {
			return &BackendError{Op: "update_volume", Reason: "cannot resolve volume", Err: err}
		}
		if !found {
			return &NotFoundError{Kind: "volume", Name: name}
		}

		_, err = d.api.UpdateVolumeACL(ctx, types.DefaultProject, vol.UUID, mutate(vol.ACL.Values), vol.ETag)
		if err == nil {
			return nil
		}
		if errors.Is(err, cluster.ErrStaleETag) {
			lastErr = err
			continue
		}
		if errors.Is(err, cluster.ErrNotFound) {
			return &NotFoundError{Kind: "volume", Name: name}
		}
		return &BackendError{Op: "update_volume", Reason: "ACL update failed", Err: err}
	}

	return &BackendError{Op: "update_volume",
		Reason: fmt.Sprintf("ACL update on %q lost %d fingerprint races", name, aclUpdateAttempts), Err: lastErr}
}
