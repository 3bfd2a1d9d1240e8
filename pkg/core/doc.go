// Package core defines the shared language of the l10nsync system.
//
// This package contains:
//   - Hierarchy addressing (NodePath) and capabilities
//   - Operation results (Outcome) and their aggregation
//   - The error taxonomy shared by synchronizers, the engine and the HTTP layer
//   - Service interfaces (Store) and persisted records
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
