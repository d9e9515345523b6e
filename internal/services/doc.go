// Package services orchestrates the domain packages: signal computation
// with upsert and shock fan-out, event-study runs, and propagation
// monitor lifecycle. Handlers call services; services call storage and
// the pure computation packages, never the other way around.
package services
