package cluster

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// CreateVolumeRequest carries the arguments of the create_volume command.
type CreateVolumeRequest struct {
	ProjectName     string
	Name            string
	Size            int64 // GiB
	NumReplicas     int
	Compression     bool
	SrcSnapshotName string
	ACL             []string
}

type createVolumeBody struct {
	Name            string    `json:"name"`
	Size            int64     `json:"size"`
	NumReplicas     int       `json:"n_replicas"`
	Compression     bool      `json:"compression"`
	SrcSnapshotName string    `json:"src_snapshot_name,omitempty"`
	ACL             types.ACL `json:"acl"`
}

// CreateVolume issues create_volume. A name conflict is a normal outcome,
// reported as created=false with no error so callers can implement
// idempotent creation by fetching the existing volume.
func (c *Client) CreateVolume(ctx context.Context, req CreateVolumeRequest) (*types.Volume, bool, error) {
	const command = "create_volume"

	body := createVolumeBody{
		Name:            req.Name,
		Size:            req.Size,
		NumReplicas:     req.NumReplicas,
		Compression:     req.Compression,
		SrcSnapshotName: req.SrcSnapshotName,
		ACL:             types.ACL{Values: req.ACL},
	}
	path := fmt.Sprintf("/projects/%s/volumes", url.PathEscape(req.ProjectName))

	status, respBody, err := c.do(ctx, command, http.MethodPost, path, nil, body, "")
	if err != nil {
		return nil, false, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		var vol types.Volume
		if err := decode(command, respBody, &vol); err != nil {
			return nil, false, err
		}
		return &vol, true, nil
	case http.StatusConflict:
		return nil, false, nil
	default:
		return nil, false, unexpected(command, status, respBody)
	}
}

// GetVolume fetches a volume by UUID. Absence is reported as found=false.
func (c *Client) GetVolume(ctx context.Context, project, volumeUUID string) (*types.Volume, bool, error) {
	const command = "get_volume"

	path := fmt.Sprintf("/projects/%s/volumes/%s",
		url.PathEscape(project), url.PathEscape(volumeUUID))
	status, respBody, err := c.do(ctx, command, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, false, err
	}

	return decodeVolumeGet(command, status, respBody)
}

// GetVolumeByName fetches a volume by its project-unique name. Absence is
// reported as found=false.
func (c *Client) GetVolumeByName(ctx context.Context, project, name string) (*types.Volume, bool, error) {
	const command = "get_volume_by_name"

	path := fmt.Sprintf("/projects/%s/volumes", url.PathEscape(project))
	query := url.Values{"name": []string{name}}
	status, respBody, err := c.do(ctx, command, http.MethodGet, path, query, nil, "")
	if err != nil {
		return nil, false, err
	}

	return decodeVolumeGet(command, status, respBody)
}

func decodeVolumeGet(command string, status int, body []byte) (*types.Volume, bool, error) {
	switch status {
	case http.StatusOK:
		var vol types.Volume
		if err := decode(command, body, &vol); err != nil {
			return nil, false, err
		}
		return &vol, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, unexpected(command, status, body)
	}
}

// DeleteVolume issues delete_volume by UUID. Absence is reported as
// found=false, not as an error; callers decide whether that is a
// failure.
func (c *Client) DeleteVolume(ctx context.Context, project, volumeUUID string) (bool, error) {
	const command = "delete_volume"

	path := fmt.Sprintf("/projects/%s/volumes/%s",
		url.PathEscape(project), url.PathEscape(volumeUUID))
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

type extendVolumeBody struct {
	Size int64 `json:"size"`
}

// ExtendVolume issues extend_volume conditioned on the supplied etag.
// A mismatching etag surfaces as ErrStaleETag, absence as ErrNotFound.
func (c *Client) ExtendVolume(ctx context.Context, project, volumeUUID string, size int64, etag string) (*types.Volume, error) {
	const command = "extend_volume"

	path := fmt.Sprintf("/projects/%s/volumes/%s",
		url.PathEscape(project), url.PathEscape(volumeUUID))
	status, respBody, err := c.do(ctx, command, http.MethodPut, path, nil, extendVolumeBody{Size: size}, etag)
	if err != nil {
		return nil, err
	}

	return decodeVolumeUpdate(command, status, respBody)
}

type updateVolumeBody struct {
	ACL types.ACL `json:"acl"`
}

// UpdateVolumeACL issues update_volume to replace a volume's ACL,
// conditioned on the supplied etag. A mismatching etag surfaces as
// ErrStaleETag, absence as ErrNotFound.
func (c *Client) UpdateVolumeACL(ctx context.Context, project, volumeUUID string, acl []string, etag string) (*types.Volume, error) {
	const command = "update_volume"

	path := fmt.Sprintf("/projects/%s/volumes/%s",
		url.PathEscape(project), url.PathEscape(volumeUUID))
	body := updateVolumeBody{ACL: types.ACL{Values: acl}}
	status, respBody, err := c.do(ctx, command, http.MethodPut, path, nil, body, etag)
	if err != nil {
		return nil, err
	}

	return decodeVolumeUpdate(command, status, respBody)
}

func decodeVolumeUpdate(command string, status int, body []byte) (*types.Volume, error) {
	switch status {
	case http.StatusOK:
		var vol types.Volume
		if err := decode(command, body, &vol); err != nil {
			return nil, err
		}
		return &vol, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", command, ErrNotFound)
	case http.StatusBadRequest, http.StatusPreconditionFailed:
		return nil, fmt.Errorf("%s: %w", command, ErrStaleETag)
	default:
		return nil, unexpected(command, status, body)
	}
}
