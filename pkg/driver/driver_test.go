package driver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbitslabs/lightos-driver/pkg/cluster"
	"github.com/lightbitslabs/lightos-driver/pkg/cluster/clustertest"
	"github.com/lightbitslabs/lightos-driver/pkg/config"
	"github.com/lightbitslabs/lightos-driver/pkg/connector"
	"github.com/lightbitslabs/lightos-driver/pkg/driver"
	"github.com/lightbitslabs/lightos-driver/pkg/events"
	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

type fakeConnector struct {
	props connector.Properties
}

func (f fakeConnector) Properties() connector.Properties { return f.props }

// attachedHost is a host with full attachment prerequisites.
var attachedHost = connector.Properties{
	HostNQN:              "hostnqn1",
	FoundDiscoveryClient: true,
}

func testConfig(t *testing.T, srv *clustertest.Server) *config.Config {
	t.Helper()
	host, port := srv.Endpoint()
	cfg := config.New()
	cfg.APIAddresses = []string{host}
	cfg.APIPort = port
	cfg.APIServiceTimeout = 5 * time.Second
	return cfg
}

func newTestDriver(t *testing.T, srv *clustertest.Server, conn connector.Connector, broker *events.Broker) *driver.Driver {
	t.Helper()
	cfg := testConfig(t, srv)
	api, err := cluster.New(cfg)
	require.NoError(t, err)

	d, err := driver.New(cfg, api, conn, broker)
	require.NoError(t, err)
	require.NoError(t, d.DoSetup(context.Background()))
	return d
}

func volumeByName(t *testing.T, srv *clustertest.Server, name string) *types.Volume {
	t.Helper()
	for _, v := range srv.Volumes(types.DefaultProject) {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("volume %q not on fake cluster", name)
	return nil
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.New() // no API addresses
	_, err := driver.New(cfg, nil, fakeConnector{attachedHost}, nil)

	var ipe *driver.InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "configuration", ipe.Param)
}

func TestDoSetupRejectedCredentials(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	srv.RejectAuth = true

	cfg := testConfig(t, srv)
	api, err := cluster.New(cfg)
	require.NoError(t, err)
	d, err := driver.New(cfg, api, fakeConnector{attachedHost}, nil)
	require.NoError(t, err)

	err = d.DoSetup(context.Background())
	var authErr *driver.InvalidAuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Nil(t, d.ClusterInfo())
}

func TestDoSetupCachesClusterInfo(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	info := d.ClusterInfo()
	require.NotNil(t, info)
	assert.Equal(t, clustertest.ClusterUUID, info.UUID)
	assert.Equal(t, clustertest.SubsystemNQN, info.SubsystemNQN)
}

func TestCreateAndDeleteVolume(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	vol, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)
	assert.Equal(t, "volume-vol-1", vol.Name)
	assert.Equal(t, int64(4), vol.Size)
	assert.Equal(t, types.VolumeStateAvailable, vol.State)
	assert.Equal(t, []string{types.ACLAllowNone}, vol.ACL.Values)
	require.Len(t, srv.Volumes(types.DefaultProject), 1)

	require.NoError(t, d.DeleteVolume(ctx, "vol-1"))
	assert.Empty(t, srv.Volumes(types.DefaultProject))

	// A second delete means the caller's catalog and the cluster have
	// diverged.
	err = d.DeleteVolume(ctx, "vol-1")
	assert.True(t, driver.IsNotFound(err))
}

func TestCreateVolumeRejectsNonPositiveSize(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	_, err := d.CreateVolume(context.Background(), "vol-1", 0)
	var ipe *driver.InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "size", ipe.Param)
	assert.Empty(t, srv.Volumes(types.DefaultProject))
}

func TestCreateVolumeIdempotent(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	first, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	second, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	assert.Equal(t, first.UUID, second.UUID)
	assert.Len(t, srv.Volumes(types.DefaultProject), 1)
}

func TestCreateVolumeFailedStateTornDown(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	srv.VolumeCreateState = types.VolumeStateFailed
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	_, err := d.CreateVolume(context.Background(), "vol-1", 4)
	var be *driver.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "create_volume", be.Op)

	// The failed volume must not be left behind.
	assert.Empty(t, srv.Volumes(types.DefaultProject))
}

func TestDeleteVolumeNeverCreated(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	err := d.DeleteVolume(context.Background(), "vol-1")
	assert.True(t, driver.IsNotFound(err))
}

func TestExtendVolume(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	require.NoError(t, d.ExtendVolume(ctx, "vol-1", 8))
	vol, err := d.GetVolume(ctx, "vol-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), vol.Size)
}

func TestExtendVolumeRejectsShrink(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 8)
	require.NoError(t, err)

	err = d.ExtendVolume(ctx, "vol-1", 4)
	var ipe *driver.InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "size", ipe.Param)

	vol, err := d.GetVolume(ctx, "vol-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), vol.Size)
}

func TestExtendVolumeMissing(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	err := d.ExtendVolume(context.Background(), "vol-1", 8)
	assert.True(t, driver.IsNotFound(err))
}

func TestSnapshotLifecycle(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	snap, err := d.CreateSnapshot(ctx, "snap-1", "vol-1")
	require.NoError(t, err)
	assert.Equal(t, "snapshot_snap-1", snap.Name)
	assert.Equal(t, "volume-vol-1", snap.SrcVolumeName)

	// Retried create adopts the existing snapshot.
	again, err := d.CreateSnapshot(ctx, "snap-1", "vol-1")
	require.NoError(t, err)
	assert.Equal(t, snap.UUID, again.UUID)
	assert.Len(t, srv.Snapshots(types.DefaultProject), 1)

	require.NoError(t, d.DeleteSnapshot(ctx, "snap-1"))
	assert.Empty(t, srv.Snapshots(types.DefaultProject))

	err = d.DeleteSnapshot(ctx, "snap-1")
	assert.True(t, driver.IsNotFound(err))
}

func TestCreateSnapshotFailedStateTornDown(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	srv.SnapshotCreateState = types.SnapshotStateFailed
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	_, err = d.CreateSnapshot(ctx, "snap-1", "vol-1")
	var be *driver.BackendError
	require.ErrorAs(t, err, &be)
	assert.Empty(t, srv.Snapshots(types.DefaultProject))
}

func TestCreateVolumeFromSnapshot(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)
	_, err = d.CreateSnapshot(ctx, "snap-1", "vol-1")
	require.NoError(t, err)

	vol, err := d.CreateVolumeFromSnapshot(ctx, "vol-2", 4, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, "volume-vol-2", vol.Name)
	assert.Equal(t, "snapshot_snap-1", vol.SrcSnapshotName)
	assert.Len(t, srv.Volumes(types.DefaultProject), 2)
	// The caller-visible snapshot survives the copy.
	assert.Len(t, srv.Snapshots(types.DefaultProject), 1)
}

func TestCreateClonedVolume(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	vol, err := d.CreateClonedVolume(ctx, "vol-2", 4, "vol-1")
	require.NoError(t, err)
	assert.Equal(t, "volume-vol-2", vol.Name)
	assert.Equal(t, "for_clone_vol-2", vol.SrcSnapshotName)
	assert.Len(t, srv.Volumes(types.DefaultProject), 2)

	// The intermediate snapshot must not leak past the clone.
	assert.Empty(t, srv.Snapshots(types.DefaultProject))
}

func TestCreateClonedVolumeFailureCleansUpIntermediate(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	// Subsequent creates land in Failed; the clone's destination volume
	// cannot settle.
	srv.VolumeCreateState = types.VolumeStateFailed

	_, err = d.CreateClonedVolume(ctx, "vol-2", 4, "vol-1")
	require.Error(t, err)

	assert.Len(t, srv.Volumes(types.DefaultProject), 1)
	assert.Empty(t, srv.Snapshots(types.DefaultProject))
}

func TestInitializeConnection(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	vol, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	desc, err := d.InitializeConnection(ctx, "vol-1", attachedHost)
	require.NoError(t, err)
	assert.Equal(t, types.DriverVolumeType, desc.DriverVolumeType)
	assert.Equal(t, clustertest.SubsystemNQN, desc.SubsysNQN)
	assert.Equal(t, vol.UUID, desc.VolumeUUID)
	assert.Equal(t, attachedHost.HostNQN, desc.HostNQN)

	acl := volumeByName(t, srv, "volume-vol-1").ACL.Values
	assert.Contains(t, acl, attachedHost.HostNQN)
	assert.NotContains(t, acl, types.ACLAllowNone)
}

func TestInitializeConnectionRequiresHostNQN(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	props := connector.Properties{FoundDiscoveryClient: true}
	_, err := d.InitializeConnection(context.Background(), "vol-1", props)
	var be *driver.BackendError
	assert.ErrorAs(t, err, &be)
}

func TestInitializeConnectionRequiresDiscoveryClient(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	props := connector.Properties{HostNQN: "hostnqn1"}
	_, err := d.InitializeConnection(context.Background(), "vol-1", props)
	var be *driver.BackendError
	assert.ErrorAs(t, err, &be)
}

func TestInitializeConnectionVolumeMissing(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)

	_, err := d.InitializeConnection(context.Background(), "vol-1", attachedHost)
	assert.True(t, driver.IsNotFound(err))
}

func TestInitializeConnectionVolumeNotAvailable(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)
	srv.SetVolumeState(types.DefaultProject, "volume-vol-1", types.VolumeStateUpdating)

	_, err = d.InitializeConnection(ctx, "vol-1", attachedHost)
	var be *driver.BackendError
	assert.ErrorAs(t, err, &be)
}

func TestTerminateConnection(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)
	_, err = d.InitializeConnection(ctx, "vol-1", attachedHost)
	require.NoError(t, err)

	require.NoError(t, d.TerminateConnection(ctx, "vol-1", attachedHost, false))

	// Revoking the last host restores the no-access sentinel.
	acl := volumeByName(t, srv, "volume-vol-1").ACL.Values
	assert.Equal(t, []string{types.ACLAllowNone}, acl)
}

func TestTerminateConnectionWithoutHostNQN(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	err := d.TerminateConnection(ctx, "vol-1", connector.Properties{}, false)
	var be *driver.BackendError
	assert.ErrorAs(t, err, &be)

	// Forced detach proceeds without the identity it cannot use.
	assert.NoError(t, d.TerminateConnection(ctx, "vol-1", connector.Properties{}, true))
}

func TestTerminateConnectionForceToleratesMissingVolume(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	err := d.TerminateConnection(ctx, "vol-1", attachedHost, false)
	assert.True(t, driver.IsNotFound(err))

	assert.NoError(t, d.TerminateConnection(ctx, "vol-1", attachedHost, true))
}

func TestAttachDetachInterleave(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)

	hostA := connector.Properties{HostNQN: "hostnqn1", FoundDiscoveryClient: true}
	hostB := connector.Properties{HostNQN: "hostnqn2", FoundDiscoveryClient: true}

	_, err = d.InitializeConnection(ctx, "vol-1", hostA)
	require.NoError(t, err)
	_, err = d.InitializeConnection(ctx, "vol-1", hostB)
	require.NoError(t, err)

	acl := volumeByName(t, srv, "volume-vol-1").ACL.Values
	assert.ElementsMatch(t, []string{"hostnqn1", "hostnqn2"}, acl)

	require.NoError(t, d.TerminateConnection(ctx, "vol-1", hostA, false))
	acl = volumeByName(t, srv, "volume-vol-1").ACL.Values
	assert.Equal(t, []string{"hostnqn2"}, acl)
}

func TestCheckForSetupError(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()

	t.Run("healthy", func(t *testing.T) {
		d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
		assert.NoError(t, d.CheckForSetupError())
	})

	t.Run("no cluster info", func(t *testing.T) {
		d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
		d.SetClusterInfo(nil)
		assert.Error(t, d.CheckForSetupError())
	})

	t.Run("empty subsystem NQN", func(t *testing.T) {
		d := newTestDriver(t, srv, fakeConnector{attachedHost}, nil)
		d.SetClusterInfo(&types.ClusterInfo{UUID: clustertest.ClusterUUID})
		assert.Error(t, d.CheckForSetupError())
	})

	t.Run("no host NQN", func(t *testing.T) {
		conn := fakeConnector{connector.Properties{FoundDiscoveryClient: true}}
		d := newTestDriver(t, srv, conn, nil)
		assert.Error(t, d.CheckForSetupError())
	})

	t.Run("discovery client unreachable is not fatal", func(t *testing.T) {
		conn := fakeConnector{connector.Properties{HostNQN: "hostnqn1"}}
		d := newTestDriver(t, srv, conn, nil)
		assert.NoError(t, d.CheckForSetupError())
	})
}

func TestLifecycleEventsPublished(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	d := newTestDriver(t, srv, fakeConnector{attachedHost}, broker)
	ctx := context.Background()

	_, err := d.CreateVolume(ctx, "vol-1", 4)
	require.NoError(t, err)
	require.NoError(t, d.DeleteVolume(ctx, "vol-1"))

	want := []events.EventType{events.EventVolumeCreated, events.EventVolumeDeleted}
	for _, wantType := range want {
		select {
		case ev := <-sub:
			assert.Equal(t, wantType, ev.Type)
			assert.Equal(t, "volume-vol-1", ev.Metadata["volume_name"])
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s event", wantType)
		}
	}
}

func TestBackendErrorPreservesCause(t *testing.T) {
	be := &driver.BackendError{
		Op:     "extend_volume",
		Reason: "volume changed concurrently",
		Err:    cluster.ErrStaleETag,
	}
	assert.True(t, errors.Is(be, cluster.ErrStaleETag))
	assert.Contains(t, be.Error(), "extend_volume")
}
