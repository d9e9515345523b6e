// Package causal holds the causal network and the event study engine.
//
// The network is a directed graph over named market variables, loaded once
// at startup from a static Granger-causality edge table and read-only for
// the process lifetime. Cycles are expected: feedback relationships are
// legitimate, a variable may Granger-cause a variable that also
// Granger-causes it.
//
// The event study tests whether a transform's surprise magnitudes predict
// a downstream variable's response. One run is a sequential pipeline:
// gather surprises, exclude confounded observations, fetch the target's
// daily series, resolve per-event return windows, fit the dose-response
// OLS with HC1 robust standard errors, run two falsification placebos
// (pre-event drift and zero-surprise response) and fold everything into an
// ordinal confidence label. Per-event problems become recorded exclusions;
// only an under-powered sample aborts the run.
package causal
