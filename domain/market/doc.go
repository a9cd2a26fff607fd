// Package market reconstructs a two-sided limit order book from discrete
// depth snapshots and trade prints, and tracks where synthetic agent orders
// sit in the execution queue at each price.
//
// Every price comparison goes through a fixed 4dp tolerance (see Ticks).
// A Book is single-writer: callers running several episodes in parallel
// give each worker its own ask/bid pair.
package market
