// Package rpc exposes the cooldown App as a connect service. Requests and
// responses are google.protobuf.Struct messages, so the service descriptor is
// built and registered here instead of being generated.
package rpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	// CooldownServiceName is the fully-qualified name of the CooldownService service.
	CooldownServiceName = "finoxa.cooldown.v1.CooldownService"

	protoFile   = "finoxa/cooldown/v1/cooldown.proto"
	protoPkg    = "finoxa.cooldown.v1"
	structType  = ".google.protobuf.Struct"
	structProto = "google/protobuf/struct.proto"
)

// Procedure paths of the CooldownService RPCs.
const (
	CooldownServiceMountProcedure    = "/" + CooldownServiceName + "/Mount"
	CooldownServiceUnmountProcedure  = "/" + CooldownServiceName + "/Unmount"
	CooldownServiceSeedProcedure     = "/" + CooldownServiceName + "/Seed"
	CooldownServiceResendProcedure   = "/" + CooldownServiceName + "/Resend"
	CooldownServiceClearProcedure    = "/" + CooldownServiceName + "/Clear"
	CooldownServiceGetStateProcedure = "/" + CooldownServiceName + "/GetState"
)

var methodNames = []string{"Mount", "Unmount", "Seed", "Resend", "Clear", "GetState"}

var serviceDescriptor = mustRegister()

// mustRegister builds the service file on top of struct.proto, which the
// structpb import in this package has already registered.
func mustRegister() protoreflect.ServiceDescriptor {
	methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(methodNames))
	for _, name := range methodNames {
		methods = append(methods, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		})
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(protoFile),
		Package:    proto.String(protoPkg),
		Dependency: []string{structProto},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("CooldownService"),
			Method: methods,
		}},
	}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("build %s: %v", protoFile, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("register %s: %v", protoFile, err))
	}
	return fd.Services().ByName("CooldownService")
}
