// Package terminal renders the page flow on a tcell screen and turns key
// presses into page actions.
//
// Keys: space reveals at once, s opens the share overlay, a draws again and
// q or Esc quits.
package terminal
