// Package broadcast normalizes session notices into typed events and fans
// them out to every connected gateway client.
//
// The base contract is unconditional fan-out: each published event reaches
// every live subscriber, and late subscribers see nothing from before they
// joined. Subscribers may optionally narrow to a topic subset.
package broadcast
