// Package control implements the Workload control plane: a set of gRPC
// services (ChainControl, StateQuery, ContractControl, StakingControl,
// SystemControl, WorkloadControl) the Orchestrator process calls into over a
// mutually authenticated local connection. No protoc-generated stubs exist
// for this module, so messages are plain Go structs marshaled with the JSON
// codec registered below, and each service is a hand-built grpc.ServiceDesc
// rather than one produced by protoc-gen-go-grpc.
package control

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "ioi-json"

// jsonCodec implements encoding.Codec (formerly encoding.CodecV2's
// predecessor interface) over encoding/json, so grpc.Server/grpc.ClientConn
// can carry plain Go structs without a .proto file.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("control: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("control: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

// init registers the JSON codec globally; grpc.Server picks it up for any
// call whose content-subtype names it (content-type
// "application/grpc+<codecName>"), and our own
// dial options (see Dial) always request it explicitly.
func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CodecName is the content-subtype every client in this repo dials with.
const CodecName = codecName
