package cluster

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// CreateSnapshotRequest carries the arguments of the create_snapshot
// command.
type CreateSnapshotRequest struct {
	ProjectName   string
	Name          string
	SrcVolumeName string
}

type createSnapshotBody struct {
	Name          string `json:"name"`
	SrcVolumeName string `json:"src_volume_name,omitempty"`
}

// CreateSnapshot issues create_snapshot. A name conflict is a normal
// outcome, reported as created=false with no error, mirroring volume
// creation.
func (c *Client) CreateSnapshot(ctx context.Context, req CreateSnapshotRequest) (*types.Snapshot, bool, error) {
	const command = "create_snapshot"

	body := createSnapshotBody{Name: req.Name, SrcVolumeName: req.SrcVolumeName}
	path := fmt.Sprintf("/projects/%s/snapshots", url.PathEscape(req.ProjectName))

	status, respBody, err := c.do(ctx, command, http.MethodPost, path, nil, body, "")
	if err != nil {
		return nil, false, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		var snap types.Snapshot
		if err := decode(command, respBody, &snap); err != nil {
			return nil, false, err
		}
		return &snap, true, nil
	case http.StatusConflict:
		return nil, false, nil
	default:
		return nil, false, unexpected(command, status, respBody)
	}
}

// GetSnapshot fetches a snapshot by UUID. Absence is reported as
// found=false.
func (c *Client) GetSnapshot(ctx context.Context, project, snapshotUUID string) (*types.Snapshot, bool, error) {
	const command = "get_snapshot"

	path := fmt.Sprintf("/projects/%s/snapshots/%s",
		url.PathEscape(project), url.PathEscape(snapshotUUID))
	status, respBody, err := c.do(ctx, command, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, false, err
	}

	return decodeSnapshotGet(command, status, respBody)
}

// GetSnapshotByName fetches a snapshot by its project-unique name.
// Absence is reported as found=false.
func (c *Client) GetSnapshotByName(ctx context.Context, project, name string) (*types.Snapshot, bool, error) {
	const command = "get_snapshot_by_name"

	path := fmt.Sprintf("/projects/%s/snapshots", url.PathEscape(project))
	query := url.Values{"name": []string{name}}
	status, respBody, err := c.do(ctx, command, http.MethodGet, path, query, nil, "")
	if err != nil {
		return nil, false, err
	}

	return decodeSnapshotGet(command, status, respBody)
}

func decodeSnapshotGet(command string, status int, body []byte) (*types.Snapshot, bool, error) {
	switch status {
	case http.StatusOK:
		var snap types.Snapshot
		if err := decode(command, body, &snap); err != nil {
			return nil, false, err
		}
		return &snap, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, unexpected(command, status, body)
	}
}

// DeleteSnapshot issues delete_snapshot by UUID. Absence is reported as
// found=false.
func (c *Client) DeleteSnapshot(ctx context.Context, project, snapshotUUID string) (bool, error) {
	const command = "delete_snapshot"

	path := fmt.Sprintf("/projects/%s/snapshots/%s",
		url.PathEscape(project), url.PathEscape(snapshotUUID))
	status, respBody, err := c.do(ctx, command, http.MethodDelete, path, nil, nil, "")
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpected(command, status, respBody)
	}
}
