// Package ws is the browser bridge of the shake server.
//
// Phones open the embedded page, which streams devicemotion readings over a
// WebSocket. The Hub forwards them to the detector and broadcasts every
// accepted shake back to all connected pages together with a freshly drawn
// couplet.
package ws
