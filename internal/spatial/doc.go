// Package spatial owns the sparse uniform hash grid used for neighbourhood
// queries over unordered point clouds.
//
// Responsibilities: cell coordinate mapping, bounded-radius cell traversal,
// nearest and k-nearest neighbour queries.
// Key types: GridPoint, SparseGrid, SparsePointGrid, Neighbor.
//
// The grid is built once and then queried. It has no internal locking:
// concurrent queries are safe only after all inserts have completed.
package spatial
