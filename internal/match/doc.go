// Package match reconciles a freshly parsed syntax tree against the last
// committed tree of a code cell so unchanged substructure keeps its
// artifact identity.
//
// RepairCellAST plans the re-parse: it localises the edit to the smallest
// independently parseable node (the cell root or one of its non-leaf
// children) and returns the text to submit. Repair.Complete applies the
// parser response: it flattens both trees into index arrays, matches
// leaves by exact literal then by Levenshtein similarity, propagates
// matches bottom-up by parent votes, and builds the pending tree, shifting
// the source ranges of untouched right siblings.
//
// Every request carries a per-cell token; a response whose token is no
// longer current is rejected with ErrStaleResponse.
package match
