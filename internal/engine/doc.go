// Package engine implements the checkpoint engine of verdant.
//
// Every external notebook event (load, save, run, add, delete, move,
// switch type) opens a checkpoint. Handlers stage the artifacts they touch
// as pending copies; commit then verifies each pending copy against its
// committed version and either destars it into a new version or discards
// it. A checkpoint that produced no new version is dropped and its id
// reused.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All events are handled by one goroutine (Run), so history mutation
// never races. Edit events request parses that run on their own
// goroutines; the results re-enter the queue as Parsed events and are
// applied only if no newer request for the same cell was made.
//
// Commit Order:
// Cells and outputs are committed before the notebook. Inside a code
// cell, children are committed right to left so each node can link its
// right sibling, and parents get their version after their children. A
// subtree whose range, right sibling or children moved gets a new version
// even when its text is unchanged.
//
// Durability:
// With a Persistence attached, every recorded checkpoint is appended to
// the log immediately; the snapshot is written on Save and Flush. Large
// output values are written as blobs in the background, and again before
// any snapshot that references them is saved.
package engine
