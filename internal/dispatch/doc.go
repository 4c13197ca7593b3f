// Package dispatch drives bulk campaign delivery across a pool of sender
// accounts.
//
// A run takes a campaign spec, connects the owner's sender transports,
// resolves the target sequence (explicit include list or dialog discovery),
// splits it round-robin across the connected senders, and walks each
// partition in its own goroutine under a fixed per-sender pace.
//
// Delivery semantics
//
// Per destination, exactly one send is attempted, plus one retry when the
// provider answers with a flood-wait. Every other failure is terminal for
// that destination only: it is classified, logged to the event sink, and the
// loop moves on. A sender whose connection cannot be recovered abandons the
// rest of its partition; the work is not redistributed. Stopping a campaign
// is cooperative and observed at target boundaries.
//
// Every path through a run terminates in a status write and/or an event
// record; nothing escapes to the job layer as an unhandled fault except the
// explicit no-connected-senders condition.
package dispatch
