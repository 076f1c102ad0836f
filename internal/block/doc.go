// Package block holds the ordered list of status blocks and the text each
// one rendered most recently.
//
// A Registry is built once at startup (Add / Build) and then frozen: blocks
// are never removed or reordered, so an index returned by Add stays valid for
// the life of the process. Registration order is display order.
package block
