// Package extractsvc exposes the backup codec as a gRPC service so a
// central extraction daemon can run next to the evidence vault while
// examiners drive it remotely.
package extractsvc

import (
	"bufio"
	"context"
	"io"
	"os"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"adbx.dev/adbx/abf"
	"adbx.dev/adbx/cidutil"
	"adbx.dev/adbx/storage"
)

// Server exposes a decoder over the Extractor gRPC service. Recovered tar
// streams are ingested into Vault; plaintext never touches the daemon's
// filesystem outside the vault spool.
type Server struct {
	UnimplementedExtractorServer
	Vault storage.CAS
}

func (s *Server) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx
	if s == nil || s.Vault == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing vault")
	}
	fields := in.GetFields()
	inputPath := fields["input_path"].GetStringValue()
	password := fields["password"].GetStringValue()
	if inputPath == "" {
		return nil, status.Error(codes.InvalidArgument, "input_path is required")
	}

	src, err := os.Open(inputPath)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	defer src.Close()

	backupHash := cidutil.NewHasher()

	pr, pw := io.Pipe()
	var tarID string
	var putErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		id, _, err := s.Vault.PutReader(pr)
		putErr = err
		pr.CloseWithError(err)
		if err == nil {
			tarID = id.String()
		}
	}()

	res, decErr := abf.Decode(io.TeeReader(src, backupHash), pw, password)
	pw.CloseWithError(decErr)
	<-done

	if decErr != nil {
		return nil, mapDecode(decErr)
	}
	if putErr != nil {
		return nil, status.Error(codes.Internal, putErr.Error())
	}
	if tarID != res.TarCID {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}

	backupCID, err := backupHash.CID()
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"backup_cid":     backupCID.String(),
		"backup_size":    float64(backupHash.BytesWritten()),
		"tar_cid":        res.TarCID,
		"bytes_written":  float64(res.BytesWritten),
		"was_encrypted":  res.WasEncrypted,
		"was_compressed": res.WasCompressed,
		"version":        float64(res.Version),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) Inspect(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	_ = ctx
	path := in.GetValue()
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}
	src, err := os.Open(path)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	defer src.Close()

	hdr, err := abf.ParseHeader(bufio.NewReader(src))
	if err != nil {
		return nil, mapDecode(err)
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"version":    float64(hdr.Version),
		"compressed": hdr.Compressed,
		"encrypted":  hdr.Encrypted(),
		"encryption": string(hdr.Encryption),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// mapDecode translates the codec's error taxonomy onto gRPC status codes.
func mapDecode(err error) error {
	switch {
	case abf.IsBadMagic(err), abf.IsUnsupportedEncryption(err), abf.IsCorruptPayload(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case abf.IsPasswordRequired(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case abf.IsBadPassword(err):
		return status.Error(codes.PermissionDenied, err.Error())
	case abf.IsTruncated(err):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
