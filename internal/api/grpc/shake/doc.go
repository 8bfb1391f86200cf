// Package shake implements the gRPC transport for the shake detector.
//
// Push feeds samples streamed by remote sensors into the detector, Watch
// streams accepted shakes back out and State exposes the detector snapshot.
package shake
