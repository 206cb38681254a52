/*
Package connector gathers the local host's attachment identity.

A host attaches cluster volumes over NVMe-over-fabrics, which requires
two things of the host itself: a non-empty initiator identity (the host
NQN, conventionally at /etc/nvme/hostnqn) and a reachable discovery
client, without which the block transport cannot resolve a volume's
network path. HostConnector reads both; the driver's attachment
negotiator enforces the rules about when each is required.
*/
package connector
