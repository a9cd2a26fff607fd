// Package service orchestrates the simulator: the session and its books,
// the tick log, the fill outbox, metrics and snapshots.
//
// SimulationService is the only write entry point. It provides a clean
// API for stepping the market and placing, cancelling and executing agent
// orders, decoupled from transports like gRPC.
package service
