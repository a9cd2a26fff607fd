// Package environment drives a pair of market books through a stream of
// depth snapshots and trade prints. It owns the agent's position limits
// (RiskManager), the per-tick pipeline (Session) and the episode
// statistics. Like the market package it is single-writer and never logs.
package environment
