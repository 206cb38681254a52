package driver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightbitslabs/lightos-driver/pkg/cluster"
	"github.com/lightbitslabs/lightos-driver/pkg/config"
	"github.com/lightbitslabs/lightos-driver/pkg/connector"
	"github.com/lightbitslabs/lightos-driver/pkg/events"
	"github.com/lightbitslabs/lightos-driver/pkg/log"
	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// volumeNamePrefix derives the cluster-visible volume name from the
// caller's logical identifier.
const volumeNamePrefix = "volume-"

// stateSettleInterval is the poll interval while waiting for a created
// resource to leave its non-terminal state.
const stateSettleInterval = time.Second

// API is the cluster command surface the lifecycle controllers need.
// *cluster.Client implements it; tests may substitute their own.
type API interface {
	GetClusterInfo(ctx context.Context) (*types.ClusterInfo, error)
	ListNodes(ctx context.Context) ([]*types.Node, error)
	GetNode(ctx context.Context, nodeUUID string) (*types.Node, bool, error)

	CreateVolume(ctx context.Context, req cluster.CreateVolumeRequest) (*types.Volume, bool, error)
	GetVolume(ctx context.Context, project, volumeUUID string) (*types.Volume, bool, error)
	GetVolumeByName(ctx context.Context, project, name string) (*types.Volume, bool, error)
	DeleteVolume(ctx context.Context, project, volumeUUID string) (bool, error)
	ExtendVolume(ctx context.Context, project, volumeUUID string, size int64, etag string) (*types.Volume, error)
	UpdateVolumeACL(ctx context.Context, project, volumeUUID string, acl []string, etag string) (*types.Volume, error)

	CreateSnapshot(ctx context.Context, req cluster.CreateSnapshotRequest) (*types.Snapshot, bool, error)
	GetSnapshot(ctx context.Context, project, snapshotUUID string) (*types.Snapshot, bool, error)
	GetSnapshotByName(ctx context.Context, project, name string) (*types.Snapshot, bool, error)
	DeleteSnapshot(ctx context.Context, project, snapshotUUID string) (bool, error)
}

// Driver is the volume and snapshot lifecycle state machine plus the
// host attachment negotiator. All public operations are synchronous:
// each blocks until its remote command(s) complete or time out. The only
// local shared state is the cluster identity cached by DoSetup, which is
// written once and read-only afterwards.
type Driver struct {
	cfg    *config.Config
	api    API
	conn   connector.Connector
	broker *events.Broker
	logger zerolog.Logger

	mu          sync.Mutex
	clusterInfo *types.ClusterInfo
}

// New validates the configuration and assembles a driver. The event
// broker may be nil.
func New(cfg *config.Config, api API, conn connector.Connector, broker *events.Broker) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InvalidParameterError{Param: "configuration", Reason: err.Error()}
	}

	return &Driver{
		cfg:    cfg,
		api:    api,
		conn:   conn,
		broker: broker,
		logger: log.WithComponent("driver"),
	}, nil
}

// DoSetup discovers and caches the cluster identity. It must be called
// once before any lifecycle or attachment operation. Credential
// rejection is fatal and surfaces as InvalidAuthError.
func (d *Driver) DoSetup(ctx context.Context) error {
	info, err := d.api.GetClusterInfo(ctx)
	if err != nil {
		if errors.Is(err, cluster.ErrUnauthorized) {
			return &InvalidAuthError{Err: err}
		}
		return &BackendError{Op: "do_setup", Reason: "cannot fetch cluster info", Err: err}
	}

	d.mu.Lock()
	d.clusterInfo = info
	d.mu.Unlock()

	d.logger.Info().
		Str("cluster_uuid", info.UUID).
		Str("subsysnqn", info.SubsystemNQN).
		Msg("connected to cluster")

	if nodes, err := d.api.ListNodes(ctx); err == nil {
		d.logger.Debug().Int("nodes", len(nodes)).Msg("cluster membership discovered")
	}

	return nil
}

// ClusterInfo returns the cached cluster identity, or nil before DoSetup.
func (d *Driver) ClusterInfo() *types.ClusterInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clusterInfo
}

// SetClusterInfo overrides the cached cluster identity. Intended for
// health checks that need to probe degraded discovery states.
func (d *Driver) SetClusterInfo(info *types.ClusterInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clusterInfo = info
}

// CheckForSetupError is the pre-flight health check. It fails when the
// cluster's subsystem NQN is unknown or the host has no initiator
// identity. Discovery-client reachability is deliberately not required
// here: it is checked at attach time, where a volume is actually
// involved.
func (d *Driver) CheckForSetupError() error {
	info := d.ClusterInfo()
	if info == nil || info.SubsystemNQN == "" {
		return &BackendError{Op: "check_for_setup_error", Reason: "cluster subsystem NQN is unknown"}
	}

	props := d.conn.Properties()
	if props.HostNQN == "" {
		return &BackendError{Op: "check_for_setup_error", Reason: "host has no NQN"}
	}
	if !props.FoundDiscoveryClient {
		d.logger.Warn().Msg("discovery client unreachable; attach requests will fail until it is")
	}

	return nil
}

func (d *Driver) volumeName(logicalID string) string {
	return volumeNamePrefix + logicalID
}

func (d *Driver) snapshotName(logicalID string) string {
	return d.cfg.SnapshotPrefix + logicalID
}

func (d *Driver) intermediateSnapshotName(logicalID string) string {
	return d.cfg.IntermediateSnapshotPrefix + logicalID
}

func (d *Driver) publish(t events.EventType, msg string, meta map[string]string) {
	d.broker.Publish(&events.Event{Type: t, Message: msg, Metadata: meta})
}
