// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package containerization

import (
	"context"

	"github.com/docker/docker/api/types/network"
)

// EnsureNetwork returns the ID of the trainer bridge network, creating it
// when missing. An empty network name disables it.
func (c *Controller) EnsureNetwork(ctx context.Context) (string, error) {
	if c.network == "" {
		return "", nil
	}

	networks, err := c.engine.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return "", engineFailure(ctx, "list networks", "", err)
	}
	for _, n := range networks {
		if n.Name == c.network {
			return n.ID, nil
		}
	}

	resp, err := c.engine.NetworkCreate(ctx, c.network, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{labelUser: c.username},
	})
	if err != nil {
		return "", engineFailure(ctx, "create network", c.network, err)
	}
	return resp.ID, nil
}
