// Package dispatch owns the buffering-and-replay core between a host
// application and its paired peer device.
//
// Ownership boundary:
// - outbound queue, latest-context slot, and the drain pass
// - inbound buffer and consumer flush
// - reactions to transport activation/reachability/pairing events
//
// The concrete transport (pairing, encryption, byte movement) and any
// persistence across process restarts are deliberately outside this package;
// both buffers live in memory only.
package dispatch
