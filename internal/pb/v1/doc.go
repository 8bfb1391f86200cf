// Package pb holds the gRPC contract of shake.v1.ShakeService.
//
// The service is described against protobuf well-known types only, so the
// descriptor and stubs are written by hand instead of being generated.
package pb
