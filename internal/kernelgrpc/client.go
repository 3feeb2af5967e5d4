package kernelgrpc

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// Client is a core.KernelProvider backed by a remote gateway.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a gateway client over a Unix domain socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	if socketPath == "" {
		return nil, errors.New("kernel socket path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", addr)
	}
	conn, err := grpc.NewClient(
		"passthrough:///"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping checks the gateway and feeds its keepalive timer.
func (c *Client) Ping(ctx context.Context) error {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, pingMethod, &structpb.Struct{}, out); err != nil {
		return wrapKernelError("ping", err)
	}
	return nil
}

// Kernels lists the remote kernels. Their ids carry RemotePrefix.
func (c *Client) Kernels(ctx context.Context) ([]core.Kernel, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listKernelsMethod, &structpb.Struct{}, out); err != nil {
		logGRPCError(pslog.Ctx(ctx), "kernel grpc list failed", err)
		return nil, wrapKernelError("list", err)
	}
	var list kernelList
	if err := fromStruct(out, &list); err != nil {
		return nil, core.NewKernelError(core.KernelErrorUnknown, "list", err)
	}
	kernels := make([]core.Kernel, 0, len(list.Kernels))
	for _, spec := range list.Kernels {
		name := spec.Name
		if name == "" {
			name = spec.ID
		}
		kernels = append(kernels, &remoteKernel{
			client:   c,
			remoteID: schema.KernelID(spec.ID),
			spec: core.KernelSpec{
				ID:       schema.KernelID(RemotePrefix + spec.ID),
				Name:     name + " (remote)",
				Language: spec.Language,
			},
		})
	}
	return kernels, nil
}

type remoteKernel struct {
	client   *Client
	remoteID schema.KernelID
	spec     core.KernelSpec
}

func (k *remoteKernel) Spec() core.KernelSpec {
	return k.spec
}

func (k *remoteKernel) Execute(ctx context.Context, req core.ExecuteRequest) (core.ExecuteResult, error) {
	log := pslog.Ctx(ctx).With("kernel", k.spec.ID)
	in, err := toStruct(toWireRequest(k.remoteID, req))
	if err != nil {
		return core.ExecuteResult{}, core.NewKernelError(core.KernelErrorExecute, "encode", err)
	}
	out := new(structpb.Struct)
	log.Trace("kernel grpc execute", "bytes", len(req.Code))
	if err := k.client.conn.Invoke(ctx, executeMethod, in, out); err != nil {
		if ctx.Err() != nil {
			return core.ExecuteResult{}, ctx.Err()
		}
		logGRPCError(log, "kernel grpc execute failed", err)
		return core.ExecuteResult{}, wrapKernelError("execute", err)
	}
	var res executeResult
	if err := fromStruct(out, &res); err != nil {
		return core.ExecuteResult{}, core.NewKernelError(core.KernelErrorUnknown, "decode", err)
	}
	return res.core(), nil
}

func logGRPCError(log pslog.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	if st, ok := status.FromError(err); ok {
		log.Warn(msg, "err", err, "code", st.Code().String(), "message", st.Message())
		return
	}
	log.Warn(msg, "err", err)
}

func wrapKernelError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *core.KernelError
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return core.NewKernelError(core.KernelErrorCanceled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewKernelError(core.KernelErrorTimeout, op, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return core.NewKernelError(core.KernelErrorUnknown, op, err)
	}
	kerr := &core.KernelError{Op: op, Message: strings.TrimSpace(st.Message()), Err: err}
	switch st.Code() {
	case codes.Unavailable:
		kerr.Kind = core.KernelErrorUnavailable
	case codes.DeadlineExceeded:
		kerr.Kind = core.KernelErrorTimeout
	case codes.Canceled:
		kerr.Kind = core.KernelErrorCanceled
	case codes.NotFound, codes.InvalidArgument, codes.Internal:
		kerr.Kind = core.KernelErrorExecute
	default:
		kerr.Kind = core.KernelErrorUnknown
	}
	return kerr
}
