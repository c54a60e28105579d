// Package grpclink carries collective links over gRPC bidirectional
// streams so that ranks can run as separate processes.
//
// The coordinator (rank 0) calls Serve and blocks until every worker has
// joined; each worker calls Dial with its rank. A worker identifies itself
// with the framebg-rank and framebg-size metadata keys on the stream; the
// coordinator acknowledges with a header before any collective traffic.
// Each message is a wrapperspb.BytesValue holding a collective.EncodeInts
// payload.
package grpclink
