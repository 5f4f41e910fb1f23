package extractsvc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Report summarizes one remote extraction.
type Report struct {
	BackupCID     string
	BackupSize    uint64
	TarCID        string
	BytesWritten  uint64
	WasEncrypted  bool
	WasCompressed bool
	Version       int
}

// HeaderInfo summarizes a container preamble without decoding the payload.
type HeaderInfo struct {
	Version    int
	Compressed bool
	Encrypted  bool
	Encryption string
}

// Client drives a remote Extractor service.
type Client struct {
	cc     *grpc.ClientConn
	client ExtractorClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewExtractorClient(cc), Timeout: 0}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Extract asks the daemon to decode the container at inputPath on the
// daemon's filesystem and ingest the recovered tar into its vault.
func (c *Client) Extract(inputPath, password string) (Report, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"input_path": inputPath,
		"password":   password,
	})
	if err != nil {
		return Report{}, err
	}

	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Extract(ctx, req)
	if err != nil {
		return Report{}, err
	}
	f := reply.GetFields()
	return Report{
		BackupCID:     f["backup_cid"].GetStringValue(),
		BackupSize:    uint64(f["backup_size"].GetNumberValue()),
		TarCID:        f["tar_cid"].GetStringValue(),
		BytesWritten:  uint64(f["bytes_written"].GetNumberValue()),
		WasEncrypted:  f["was_encrypted"].GetBoolValue(),
		WasCompressed: f["was_compressed"].GetBoolValue(),
		Version:       int(f["version"].GetNumberValue()),
	}, nil
}

// Inspect reports the preamble fields of the container at path on the
// daemon's filesystem.
func (c *Client) Inspect(path string) (HeaderInfo, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Inspect(ctx, wrapperspb.String(path))
	if err != nil {
		return HeaderInfo{}, err
	}
	f := reply.GetFields()
	return HeaderInfo{
		Version:    int(f["version"].GetNumberValue()),
		Compressed: f["compressed"].GetBoolValue(),
		Encrypted:  f["encrypted"].GetBoolValue(),
		Encryption: f["encryption"].GetStringValue(),
	}, nil
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}
