// Package ir provides the node model for verdant notebook histories.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the node model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Node is a closed sum type; switch over the concrete variants
//   - A version is immutable once committed; edits happen on clones
//   - Names are "Kind.id.version", pending names are "Kind.id.*"
//   - Checkpoint ids are logical clock values, never wall-clock time
package ir
