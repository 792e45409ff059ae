package control

import (
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens a client connection to the Workload control plane at target,
// always negotiating the JSON codec and, when tlsConfig is non-nil, mutual
// TLS rooted in the same CA bundle config.LoadTLSConfig builds for the P2P
// listener.
func Dial(target string, tlsConfig *tls.Config) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))}
	if tlsConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", target, err)
	}
	return conn, nil
}

// NewServer builds a *grpc.Server serving srv, with mTLS enforced whenever
// tlsConfig is non-nil (the control plane should never be exposed without it
// outside of local development/tests).
func NewServer(srv Server, tlsConfig *tls.Config) *grpc.Server {
	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	s := grpc.NewServer(opts...)
	RegisterAll(s, srv)
	return s
}
