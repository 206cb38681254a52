package cluster

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// GetClusterInfo issues get_cluster_info. Bad credentials surface as
// ErrUnauthorized; setup treats that as fatal.
func (c *Client) GetClusterInfo(ctx context.Context) (*types.ClusterInfo, error) {
	const command = "get_cluster_info"

	status, respBody, err := c.do(ctx, command, http.MethodGet, "/clusterinfo", nil, nil, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, unexpected(command, status, respBody)
	}

	var info types.ClusterInfo
	if err := decode(command, respBody, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type nodesResponse struct {
	Nodes []*types.Node `json:"nodes"`
}

// ListNodes issues get_nodes and returns the cluster membership.
func (c *Client) ListNodes(ctx context.Context) ([]*types.Node, error) {
	const command = "get_nodes"

	status, respBody, err := c.do(ctx, command, http.MethodGet, "/nodes", nil, nil, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, unexpected(command, status, respBody)
	}

	var resp nodesResponse
	if err := decode(command, respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// GetNode issues get_node for one member. Absence is reported as
// found=false.
func (c *Client) GetNode(ctx context.Context, nodeUUID string) (*types.Node, bool, error) {
	const command = "get_node"

	path := fmt.Sprintf("/nodes/%s", url.PathEscape(nodeUUID))
	status, respBody, err := c.do(ctx, command, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, false, err
	}

	switch status {
	case http.StatusOK:
		var node types.Node
		if err := decode(command, respBody, &node); err != nil {
			return nil, false, err
		}
		return &node, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, unexpected(command, status, respBody)
	}
}
