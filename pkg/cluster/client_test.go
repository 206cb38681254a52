package cluster_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbitslabs/lightos-driver/pkg/cluster"
	"github.com/lightbitslabs/lightos-driver/pkg/cluster/clustertest"
	"github.com/lightbitslabs/lightos-driver/pkg/config"
	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

func newTestConfig(srv *clustertest.Server, extraAddrs ...string) *config.Config {
	host, port := srv.Endpoint()
	cfg := config.New()
	cfg.APIAddresses = append(extraAddrs, host)
	cfg.APIPort = port
	cfg.JWT = "fake_jwt"
	return cfg
}

func newTestClient(t *testing.T, srv *clustertest.Server, extraAddrs ...string) *cluster.Client {
	t.Helper()
	c, err := cluster.New(newTestConfig(srv, extraAddrs...))
	require.NoError(t, err)
	return c
}

func createVolumeRequest(name string) cluster.CreateVolumeRequest {
	return cluster.CreateVolumeRequest{
		ProjectName: types.DefaultProject,
		Name:        name,
		Size:        4,
		NumReplicas: 3,
		ACL:         []string{types.ACLAllowNone},
	}
}

func TestNewRejectsEmptyAddressList(t *testing.T) {
	cfg := config.New()
	_, err := cluster.New(cfg)
	assert.ErrorIs(t, err, cluster.ErrNoEndpoints)
}

func TestCreateAndGetVolume(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	vol, created, err := c.CreateVolume(ctx, createVolumeRequest("volume-1"))
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, vol.UUID)
	assert.Equal(t, types.VolumeStateAvailable, vol.State)
	assert.Equal(t, types.ComputeVolumeETag(vol), vol.ETag)

	byUUID, found, err := c.GetVolume(ctx, types.DefaultProject, vol.UUID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, vol.Name, byUUID.Name)

	byName, found, err := c.GetVolumeByName(ctx, types.DefaultProject, "volume-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, vol.UUID, byName.UUID)
}

func TestCreateVolumeNameConflict(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, created, err := c.CreateVolume(ctx, createVolumeRequest("volume-1"))
	require.NoError(t, err)
	require.True(t, created)

	vol, created, err := c.CreateVolume(ctx, createVolumeRequest("volume-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, vol)
	assert.Len(t, srv.Volumes(types.DefaultProject), 1)
}

func TestGetVolumeAbsence(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, found, err := c.GetVolume(ctx, types.DefaultProject, "no-such-uuid")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.GetVolumeByName(ctx, types.DefaultProject, "no-such-volume")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteVolume(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	vol, _, err := c.CreateVolume(ctx, createVolumeRequest("volume-1"))
	require.NoError(t, err)

	found, err := c.DeleteVolume(ctx, types.DefaultProject, vol.UUID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, srv.Volumes(types.DefaultProject))

	found, err = c.DeleteVolume(ctx, types.DefaultProject, vol.UUID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExtendVolumeGuardedByETag(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	vol, _, err := c.CreateVolume(ctx, createVolumeRequest("volume-1"))
	require.NoError(t, err)
	stale := vol.ETag

	// An intervening ACL update invalidates the fingerprint the caller
	// holds.
	updated, err := c.UpdateVolumeACL(ctx, types.DefaultProject, vol.UUID, []string{"hostnqn1"}, stale)
	require.NoError(t, err)
	require.NotEqual(t, stale, updated.ETag)

	_, err = c.ExtendVolume(ctx, types.DefaultProject, vol.UUID, 8, stale)
	assert.ErrorIs(t, err, cluster.ErrStaleETag)

	grown, err := c.ExtendVolume(ctx, types.DefaultProject, vol.UUID, 8, updated.ETag)
	require.NoError(t, err)
	assert.Equal(t, int64(8), grown.Size)
}

func TestExtendVolumeAbsent(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.ExtendVolume(context.Background(), types.DefaultProject, "no-such-uuid", 8, "")
	assert.ErrorIs(t, err, cluster.ErrNotFound)
}

func TestUpdateVolumeACLStaleETag(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	vol, _, err := c.CreateVolume(ctx, createVolumeRequest("volume-1"))
	require.NoError(t, err)

	_, err = c.UpdateVolumeACL(ctx, types.DefaultProject, vol.UUID, []string{"hostnqn1"}, "bogus-etag")
	assert.ErrorIs(t, err, cluster.ErrStaleETag)
}

func TestSnapshotLifecycle(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	req := cluster.CreateSnapshotRequest{
		ProjectName:   types.DefaultProject,
		Name:          "snapshot_1",
		SrcVolumeName: "volume-1",
	}
	snap, created, err := c.CreateSnapshot(ctx, req)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, snap.UUID)
	assert.Equal(t, types.SnapshotStateAvailable, snap.State)

	_, created, err = c.CreateSnapshot(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)

	byName, found, err := c.GetSnapshotByName(ctx, types.DefaultProject, "snapshot_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, snap.UUID, byName.UUID)

	found, err = c.DeleteSnapshot(ctx, types.DefaultProject, snap.UUID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = c.DeleteSnapshot(ctx, types.DefaultProject, snap.UUID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClusterInfoAndNodes(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	info, err := c.GetClusterInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, clustertest.ClusterUUID, info.UUID)
	assert.Equal(t, clustertest.SubsystemNQN, info.SubsystemNQN)

	nodes, err := c.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, len(clustertest.DefaultNodes))

	node, found, err := c.GetNode(ctx, clustertest.DefaultNodes[0].UUID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, clustertest.DefaultNodes[0].NVMeEndpoint, node.NVMeEndpoint)

	_, found, err = c.GetNode(ctx, "no-such-node")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRejectedCredentials(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()
	srv.RejectAuth = true
	c := newTestClient(t, srv)

	_, err := c.GetClusterInfo(context.Background())
	assert.ErrorIs(t, err, cluster.ErrUnauthorized)
}

func TestEndpointFailover(t *testing.T) {
	srv := clustertest.NewServer()
	defer srv.Close()

	// The first endpoint shares the fake cluster's port on a loopback
	// address nothing listens on; the call must fall through to the
	// second.
	c := newTestClient(t, srv, "127.0.0.2")
	require.Len(t, c.Endpoints(), 2)

	info, err := c.GetClusterInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clustertest.ClusterUUID, info.UUID)
}

func TestAllEndpointsUnreachable(t *testing.T) {
	// Grab a free port and close it so nothing answers there.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()

	cfg := config.New()
	cfg.APIAddresses = []string{"127.0.0.1"}
	cfg.APIPort = port
	c, err := cluster.New(cfg)
	require.NoError(t, err)

	_, err = c.GetClusterInfo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestRequestHeaders(t *testing.T) {
	var gotAuth, gotIfMatch, gotRequestID string
	backend := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIfMatch = r.Header.Get("If-Match")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&types.Volume{UUID: "u", Name: "volume-1"})
	}))
	defer backend.Close()

	u, err := url.Parse(backend.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.New()
	cfg.APIAddresses = []string{u.Hostname()}
	cfg.APIPort = port
	cfg.JWT = "fake_jwt"
	c, err := cluster.New(cfg)
	require.NoError(t, err)

	_, err = c.ExtendVolume(context.Background(), types.DefaultProject, "u", 8, "some-etag")
	require.NoError(t, err)
	assert.Equal(t, "Bearer fake_jwt", gotAuth)
	assert.Equal(t, "some-etag", gotIfMatch)
	assert.NotEmpty(t, gotRequestID)
}
