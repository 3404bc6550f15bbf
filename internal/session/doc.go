// Package session owns the single long-lived connection to the external
// chat network.
//
// The Manager runs a state machine over four states:
//
//	Disconnected -> Connecting -> (AwaitingChallenge) -> Connected
//
// Pairing a fresh session passes through AwaitingChallenge, where the
// network issues a one-time token for out-of-band confirmation. Any closure
// returns to Disconnected; transient closures reconnect immediately, while
// a logged-out closure is terminal until Restart is called.
//
// The network layer is abstracted behind the Network/Link interfaces.
// Inbound activity arrives as typed events on Link.Events; the manager is
// their only consumer, which serializes every session mutation. Outbound
// activity enters through Submit, which rejects sends unless the session is
// Connected.
//
// Events worth surfacing to gateway clients (state changes, challenge
// tokens, inbound messages) are re-emitted as Notices on a dedicated
// channel consumed by the broadcast package.
package session
