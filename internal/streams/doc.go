// Package streams holds the table of live stream tokens.
//
// A relay registers with Begin, polls IsLive between backend lines, and calls
// Stop on exit. An HTTP stop request calls Stop too; whichever comes first wins
// and the other is a no-op.
package streams
