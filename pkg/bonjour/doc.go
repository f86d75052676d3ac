// Package bonjour wraps an asynchronous DNS-SD provider in typed,
// thread-safe entities.
//
// Three entity kinds map onto the three provider operations: a Browser
// tracks the instances of a registration type, a Registration advertises
// one instance and a Resolver turns an instance into a host and port. Each
// entity owns at most one running operation. The operation is driven by a
// background runner goroutine that waits on the provider, processes pending
// results and delivers them to the entity's typed reply handler.
//
// Peer composes a Registration, a Browser and a set of Resolvers. Callers
// poll Peer.ListPeers, which reconciles the browse snapshot with the peers
// resolved so far.
package bonjour
