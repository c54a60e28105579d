package grpclink

import (
	"google.golang.org/grpc"
)

const (
	serviceName = "framebg.collective.v1.Exchange"
	connectPath = "/" + serviceName + "/Connect"

	rankKey     = "framebg-rank"
	sizeKey     = "framebg-size"
	acceptedKey = "framebg-accepted"

	// Full-resolution channel slices are large; the 4 MB default is too small.
	maxMsgSize = 64 * 1024 * 1024
)

// exchangeServer is implemented by the coordinator's hub.
type exchangeServer interface {
	Connect(stream grpc.ServerStream) error
}

func connectHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(exchangeServer).Connect(stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}
