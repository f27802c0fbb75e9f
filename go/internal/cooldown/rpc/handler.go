package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"
)

// CooldownServiceHandler is implemented by the server side of CooldownService.
type CooldownServiceHandler interface {
	Mount(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Unmount(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Seed(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Resend(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	Clear(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
	GetState(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)
}

type unaryFunc func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

// NewCooldownServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewCooldownServiceHandler(svc CooldownServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	methods := serviceDescriptor.Methods()
	routes := map[string]unaryFunc{
		CooldownServiceMountProcedure:    svc.Mount,
		CooldownServiceUnmountProcedure:  svc.Unmount,
		CooldownServiceSeedProcedure:     svc.Seed,
		CooldownServiceResendProcedure:   svc.Resend,
		CooldownServiceClearProcedure:    svc.Clear,
		CooldownServiceGetStateProcedure: svc.GetState,
	}

	handlers := make(map[string]*connect.Handler, len(routes))
	for procedure, fn := range routes {
		name := procedure[len(CooldownServiceName)+2:]
		handlers[procedure] = connect.NewUnaryHandler[structpb.Struct, structpb.Struct](
			procedure,
			fn,
			connect.WithSchema(methods.ByName(protoreflect.Name(name))),
			connect.WithHandlerOptions(opts...),
		)
	}

	return "/" + CooldownServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// CooldownServiceClient is a client for CooldownService.
type CooldownServiceClient struct {
	mount    *connect.Client[structpb.Struct, structpb.Struct]
	unmount  *connect.Client[structpb.Struct, structpb.Struct]
	seed     *connect.Client[structpb.Struct, structpb.Struct]
	resend   *connect.Client[structpb.Struct, structpb.Struct]
	clear    *connect.Client[structpb.Struct, structpb.Struct]
	getState *connect.Client[structpb.Struct, structpb.Struct]
}

// NewCooldownServiceClient constructs a client for CooldownService at baseURL.
func NewCooldownServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CooldownServiceClient {
	methods := serviceDescriptor.Methods()
	newClient := func(procedure, name string) *connect.Client[structpb.Struct, structpb.Struct] {
		return connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient,
			baseURL+procedure,
			connect.WithSchema(methods.ByName(protoreflect.Name(name))),
			connect.WithClientOptions(opts...),
		)
	}
	return &CooldownServiceClient{
		mount:    newClient(CooldownServiceMountProcedure, "Mount"),
		unmount:  newClient(CooldownServiceUnmountProcedure, "Unmount"),
		seed:     newClient(CooldownServiceSeedProcedure, "Seed"),
		resend:   newClient(CooldownServiceResendProcedure, "Resend"),
		clear:    newClient(CooldownServiceClearProcedure, "Clear"),
		getState: newClient(CooldownServiceGetStateProcedure, "GetState"),
	}
}

func (c *CooldownServiceClient) Mount(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.mount.CallUnary(ctx, req)
}

func (c *CooldownServiceClient) Unmount(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.unmount.CallUnary(ctx, req)
}

func (c *CooldownServiceClient) Seed(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.seed.CallUnary(ctx, req)
}

func (c *CooldownServiceClient) Resend(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.resend.CallUnary(ctx, req)
}

func (c *CooldownServiceClient) Clear(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.clear.CallUnary(ctx, req)
}

func (c *CooldownServiceClient) GetState(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.getState.CallUnary(ctx, req)
}
