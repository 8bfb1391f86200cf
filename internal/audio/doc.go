// Package audio plays the chime that accompanies a detected shake.
//
// The speaker is optional: when no audio device can be opened the page
// keeps working with a silent player.
package audio
