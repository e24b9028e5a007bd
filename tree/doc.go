// SPDX-License-Identifier: MIT

// Package tree implements the shared branch-and-bound search tree.
//
// A Manager owns the active set (nodes waiting to be processed), the nodes
// currently held by workers, and the global bounds. Workers interact with it
// through a small protocol:
//
//	n, err := m.Next(ctx, worker)        // atomic select + remove + hold
//	...process n, raising its bound with m.UpdateNodeLb...
//	m.Prune(worker, n)                   // or
//	child, err := m.Branch(worker, n, branches, ws) // child != nil: dive into it
//
// Contracts:
//   - A node is removed from the active set exactly once and held by at most
//     one worker.
//   - The incumbent (Ub) never increases; the reported bound (Lb) never
//     decreases and is computed over active and held nodes under the tree lock.
//   - Pruning a node that was not processed (status NotProcessed, Continue or
//     Stopped) is rejected with ErrBadStatus.
//
// Complexity: Pop, Branch and Prune are O(log A) for A active nodes;
// UpdateLb is O(A + T) for T workers.
package tree
