// Package page runs the interactive couplet page in a terminal.
//
// Shakes come either from a local detector fed by a motion source or, when
// a server address is given, from the server's Watch stream.
package page
