// Package normals owns per-point surface normal estimation for point clouds.
//
// Responsibilities: grid sizing from the cloud bounds, per-point k-nearest
// neighbour queries, covariance plane fits and sign resolution.
// Key types: Config, Estimator, Result, Fit.
//
// An estimation pass is build-then-query: the spatial grid is filled once,
// then workers read it concurrently and write disjoint slots of the output
// slice. Per-point failures are reported as statuses and never abort the
// pass; configuration and input failures are returned as errors.
package normals
