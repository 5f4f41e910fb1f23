package extractsvc

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"adbx.dev/adbx/abf"
	"adbx.dev/adbx/cidutil"
	"adbx.dev/adbx/storage/localfs"
)

func dialTestServer(t *testing.T) (*Client, *localfs.Vault) {
	t.Helper()

	vault, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterExtractorServer(srv, &Server{Vault: vault})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	return &Client{cc: cc, client: NewExtractorClient(cc), Timeout: 5 * time.Second}, vault
}

func writeBackup(t *testing.T, payload []byte, opts abf.EncodeOptions) string {
	t.Helper()
	var buf bytes.Buffer
	if err := abf.Encode(bytes.NewReader(payload), &buf, opts); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "backup.ab")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestExtract_RoundTrip(t *testing.T) {
	client, vault := dialTestServer(t)

	payload := bytes.Repeat([]byte("evidence tar bytes "), 4096)
	path := writeBackup(t, payload, abf.EncodeOptions{
		Password: "trustno1",
		Rounds:   100,
		Compress: true,
		Version:  1,
	})

	report, err := client.Extract(path, "trustno1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !report.WasEncrypted || !report.WasCompressed {
		t.Fatalf("flags = %v/%v", report.WasEncrypted, report.WasCompressed)
	}
	if report.Version != 1 {
		t.Fatalf("version = %d", report.Version)
	}
	if report.BytesWritten != uint64(len(payload)) {
		t.Fatalf("bytes written = %d, want %d", report.BytesWritten, len(payload))
	}
	if want := cidutil.CIDv1RawSHA256(payload); report.TarCID != want {
		t.Fatalf("tar CID = %q, want %q", report.TarCID, want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := cidutil.CIDv1RawSHA256(raw); report.BackupCID != want {
		t.Fatalf("backup CID = %q, want %q", report.BackupCID, want)
	}
	if report.BackupSize != uint64(len(raw)) {
		t.Fatalf("backup size = %d, want %d", report.BackupSize, len(raw))
	}

	id, err := cidutil.CIDv1RawSHA256CID(payload)
	if err != nil {
		t.Fatalf("cid: %v", err)
	}
	got, err := vault.Get(id)
	if err != nil {
		t.Fatalf("vault.Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("vault artifact does not match the original payload")
	}
}

func TestExtract_StatusCodes(t *testing.T) {
	client, _ := dialTestServer(t)
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.ab")
	if err := os.WriteFile(garbage, []byte("NOT A BACKUP\n1\n0\nnone\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	encrypted := writeBackup(t, []byte("payload"), abf.EncodeOptions{
		Password: "correct horse",
		Rounds:   100,
		Version:  1,
	})

	cases := []struct {
		name     string
		path     string
		password string
		want     codes.Code
	}{
		{"bad magic", garbage, "", codes.InvalidArgument},
		{"password required", encrypted, "", codes.FailedPrecondition},
		{"bad password", encrypted, "wrong", codes.PermissionDenied},
		{"missing input", filepath.Join(dir, "nope.ab"), "", codes.Internal},
	}
	for _, tc := range cases {
		_, err := client.Extract(tc.path, tc.password)
		if err == nil {
			t.Fatalf("%s: Extract succeeded", tc.name)
		}
		st, ok := status.FromError(err)
		if !ok {
			t.Fatalf("%s: not a status error: %v", tc.name, err)
		}
		// A wrong password can decrypt to valid padding by accident, in
		// which case the corrupt stream is caught later.
		if st.Code() != tc.want &&
			!(tc.name == "bad password" && st.Code() == codes.InvalidArgument) {
			t.Fatalf("%s: code = %v, want %v", tc.name, st.Code(), tc.want)
		}
	}
}

func TestExtract_TruncatedKeyMaterial(t *testing.T) {
	client, _ := dialTestServer(t)

	full := writeBackup(t, []byte("payload"), abf.EncodeOptions{
		Password: "pw",
		Rounds:   100,
		Version:  1,
	})
	raw, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	cut := filepath.Join(t.TempDir(), "cut.ab")
	if err := os.WriteFile(cut, raw[:len("ANDROID BACKUP\n1\n0\nAES-256\n")+40], 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = client.Extract(cut, "pw")
	if status.Code(err) != codes.DataLoss {
		t.Fatalf("code = %v, want DataLoss", status.Code(err))
	}
}

func TestInspect(t *testing.T) {
	client, _ := dialTestServer(t)

	path := writeBackup(t, []byte("payload"), abf.EncodeOptions{
		Password: "pw",
		Rounds:   100,
		Compress: true,
		Version:  2,
	})

	info, err := client.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Version != 2 || !info.Compressed || !info.Encrypted {
		t.Fatalf("info = %+v", info)
	}
	if info.Encryption != string(abf.EncryptionAES256) {
		t.Fatalf("encryption = %q", info.Encryption)
	}
}
