// Package netlink provides chat-network backends for the session manager.
// The simulator is the only in-repo backend; production deployments supply
// their own session.Network implementation.
package netlink
