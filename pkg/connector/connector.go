package connector

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Properties is what the attachment negotiator needs to know about the
// local host: its NVMe initiator identity and whether the discovery
// client service is reachable. The orchestration layer gathers them once
// per host and passes them into attach/detach calls.
type Properties struct {
	HostNQN              string
	FoundDiscoveryClient bool
}

// Connector produces attachment properties for a host.
type Connector interface {
	Properties() Properties
}

// HostConnector reads the local host's attachment properties: the host
// NQN from its well-known file and discovery-client reachability via a
// bounded TCP dial.
type HostConnector struct {
	hostNQNPath       string
	discoveryEndpoint string
	dialTimeout       time.Duration
}

// NewHostConnector creates a connector for the local host.
func NewHostConnector(hostNQNPath, discoveryEndpoint string) *HostConnector {
	return &HostConnector{
		hostNQNPath:       hostNQNPath,
		discoveryEndpoint: discoveryEndpoint,
		dialTimeout:       3 * time.Second,
	}
}

// Properties gathers the host NQN and discovery reachability. A missing
// or empty NQN file yields an empty HostNQN; the negotiator decides
// whether that is fatal for the operation at hand.
func (c *HostConnector) Properties() Properties {
	return Properties{
		HostNQN:              c.readHostNQN(),
		FoundDiscoveryClient: c.probeDiscovery(),
	}
}

func (c *HostConnector) readHostNQN() string {
	data, err := os.ReadFile(c.hostNQNPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// probeDiscovery dials the discovery client endpoint and reports whether
// the connection succeeded.
func (c *HostConnector) probeDiscovery() bool {
	conn, err := net.DialTimeout("tcp", c.discoveryEndpoint, c.dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Validate rejects obviously malformed connector input before it is used
// to build a connection descriptor.
func (p Properties) Validate() error {
	if p.HostNQN == "" {
		return fmt.Errorf("host NQN is empty")
	}
	return nil
}
