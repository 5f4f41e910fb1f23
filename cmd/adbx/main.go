// Command adbx is the examiner-facing CLI: it extracts Android backup
// containers, packs tar streams back into containers, inspects preambles,
// and manages the signing keys behind evidence manifests.
package main

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"adbx.dev/adbx/abf"
	"adbx.dev/adbx/cidutil"
	"adbx.dev/adbx/extractsvc"
	"adbx.dev/adbx/keys"
	"adbx.dev/adbx/manifest"
	"adbx.dev/adbx/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "extract":
		return cmdExtract(args[1:], out, errOut)
	case "pack":
		return cmdPack(args[1:], out, errOut)
	case "inspect":
		return cmdInspect(args[1:], out, errOut)
	case "verify-manifest":
		return cmdVerifyManifest(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "remote":
		return cmdRemote(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "adbx: Android backup extraction and evidence tooling")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  adbx extract [--password <pw>] [--out <file.tar>] [--vault <dir>] [--manifest <file>] [--case <id>] (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>) <file.ab>")
	fmt.Fprintln(w, "  adbx pack [--password <pw>] [--rounds <n>] [--no-compress] [--format-version <1|2>] --out <file.ab> <file.tar>")
	fmt.Fprintln(w, "  adbx inspect <file.ab>")
	fmt.Fprintln(w, "  adbx verify-manifest <file>")
	fmt.Fprintln(w, "  adbx key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  adbx key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  adbx key list")
	fmt.Fprintln(w, "  adbx key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  adbx remote extract --target <addr> [--password <pw>] <path-on-daemon>")
	fmt.Fprintln(w, "  adbx remote inspect --target <addr> <path-on-daemon>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - extract defaults --out to <file.ab>.tar")
	fmt.Fprintln(w, "  - --vault ingests the recovered tar into a local vault and prints its CID")
	fmt.Fprintln(w, "  - --manifest requires a signer; keys live under ~/.adbx/keys (0600 seed files)")
	fmt.Fprintln(w, "  - passwords are never written to manifests or error output")
}

func cmdExtract(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var password string
	var outPath string
	var vaultRoot string
	var manifestPath string
	var caseID string
	var hashAlg string
	var seedHex string
	var signerName string
	var signerRole string
	var keyFile string

	fs.StringVar(&password, "password", "", "Decryption password for AES-256 containers")
	fs.StringVar(&outPath, "out", "", "Output tar path (default: input path + .tar)")
	fs.StringVar(&vaultRoot, "vault", "", "Ingest the recovered tar into the vault rooted here")
	fs.StringVar(&manifestPath, "manifest", "", "Write a signed evidence manifest to this path")
	fs.StringVar(&caseID, "case", "", "Case identifier recorded in the manifest")
	fs.StringVar(&hashAlg, "hash-alg", "sha256", "Manifest signature hash (sha256, sha512, sha3-256)")
	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Use a stored key by name (from 'adbx key init')")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, optionally use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file created by 'adbx key init/derive'")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: adbx extract [flags] <file.ab>")
		return 2
	}
	inputPath := fs.Arg(0)
	if outPath == "" {
		outPath = inputPath + ".tar"
	}

	var seed []byte
	if manifestPath != "" {
		if caseID == "" {
			fmt.Fprintln(errOut, "missing --case for --manifest")
			return 2
		}
		if seedHex == "" && signerName == "" && keyFile == "" {
			fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
			return 2
		}
		ks, err := keys.OpenStore("")
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return 1
		}
		seed, err = ks.LoadSeed(seedHex, signerName, signerRole, keyFile)
		if err != nil {
			fmt.Fprintf(errOut, "invalid signer: %v\n", err)
			return 2
		}
	}

	src, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(inputPath), err)
		return 1
	}
	defer src.Close()

	dst, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		fmt.Fprintf(errOut, "create %s: %v\n", filepath.Base(outPath), err)
		return 1
	}

	backupHash := cidutil.NewHasher()
	res, err := abf.Decode(io.TeeReader(src, backupHash), dst, password)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		fmt.Fprintf(errOut, "extract: %v\n", err)
		return classifyExit(err)
	}

	backupCID, err := backupHash.CID()
	if err != nil {
		fmt.Fprintf(errOut, "cid: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "Wrote: %s (%d bytes)\n", outPath, res.BytesWritten)
	fmt.Fprintf(out, "Backup-CID: %s\n", backupCID)
	fmt.Fprintf(out, "Tar-CID: %s\n", res.TarCID)

	if vaultRoot != "" {
		vault, err := localfs.New(vaultRoot)
		if err != nil {
			fmt.Fprintf(errOut, "vault: %v\n", err)
			return 1
		}
		tar, err := os.Open(outPath)
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(outPath), err)
			return 1
		}
		id, _, err := vault.PutReader(tar)
		tar.Close()
		if err != nil {
			fmt.Fprintf(errOut, "vault ingest: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "Vault: %s\n", id)
	}

	if manifestPath != "" {
		doc := manifest.BuildDocument(manifest.Info{
			Case:       caseID,
			Tool:       "adbx/1",
			Created:    time.Now(),
			BackupCID:  backupCID.String(),
			BackupSize: backupHash.BytesWritten(),
			Result:     res,
		})
		signed, err := manifest.Sign(doc, seed, hashAlg)
		if err != nil {
			fmt.Fprintf(errOut, "sign manifest: %v\n", err)
			return 1
		}
		if err := os.WriteFile(manifestPath, signed, 0o644); err != nil {
			fmt.Fprintf(errOut, "write manifest: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "Manifest: %s\n", manifestPath)
	}
	return 0
}

// classifyExit maps the codec taxonomy onto distinct exit codes so shell
// pipelines can tell a wrong password from a mangled container.
func classifyExit(err error) int {
	switch {
	case abf.IsPasswordRequired(err):
		return 3
	case abf.IsBadPassword(err):
		return 4
	case abf.IsTruncated(err):
		return 5
	default:
		return 1
	}
}

func cmdPack(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var password string
	var outPath string
	var rounds int
	var noCompress bool
	var formatVersion int

	fs.StringVar(&password, "password", "", "Encrypt the container with this password")
	fs.StringVar(&outPath, "out", "", "Output container path")
	fs.IntVar(&rounds, "rounds", abf.DefaultRounds, "PBKDF2 iteration count")
	fs.BoolVar(&noCompress, "no-compress", false, "Store the payload without zlib compression")
	fs.IntVar(&formatVersion, "format-version", 1, "Container format version (1 or 2)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: adbx pack [flags] --out <file.ab> <file.tar>")
		return 2
	}
	if outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}

	src, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}
	defer src.Close()

	dst, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		fmt.Fprintf(errOut, "create %s: %v\n", filepath.Base(outPath), err)
		return 1
	}

	err = abf.Encode(src, dst, abf.EncodeOptions{
		Password: password,
		Rounds:   rounds,
		Compress: !noCompress,
		Version:  formatVersion,
	})
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		fmt.Fprintf(errOut, "pack: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Wrote: %s\n", outPath)
	return 0
}

func cmdInspect(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: adbx inspect <file.ab>")
		return 2
	}

	src, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}
	defer src.Close()

	hdr, err := abf.ParseHeader(bufio.NewReader(src))
	if err != nil {
		fmt.Fprintf(errOut, "inspect: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Version: %d\n", hdr.Version)
	fmt.Fprintf(out, "Compressed: %t\n", hdr.Compressed)
	fmt.Fprintf(out, "Encryption: %s\n", hdr.Encryption)
	return 0
}

func cmdVerifyManifest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify-manifest", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: adbx verify-manifest <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}
	m, err := manifest.Verify(b)
	if err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "OK\n")
	fmt.Fprintf(out, "Examiner-Key: %s\n", m.ExaminerKey())
	fmt.Fprintf(out, "Tar-CID: %s\n", m.Section("ARTIFACT")["Tar-CID"])
	return 0
}

func cmdRemote(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: adbx remote <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: extract, inspect")
		return 2
	}
	switch args[0] {
	case "extract":
		return cmdRemoteExtract(args[1:], out, errOut)
	case "inspect":
		return cmdRemoteInspect(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown remote subcommand: %s\n", args[0])
		return 2
	}
}

func dialRemote(target string, timeout time.Duration) (*extractsvc.Client, error) {
	c, err := extractsvc.Dial(target, extractsvc.DialOptions{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	c.Timeout = 10 * time.Minute
	return c, nil
}

func cmdRemoteExtract(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("remote extract", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var target string
	var password string
	fs.StringVar(&target, "target", "127.0.0.1:7678", "Daemon address")
	fs.StringVar(&password, "password", "", "Decryption password for AES-256 containers")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: adbx remote extract --target <addr> [--password <pw>] <path-on-daemon>")
		return 2
	}

	client, err := dialRemote(target, 10*time.Second)
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", target, err)
		return 1
	}
	defer client.Close()

	report, err := client.Extract(fs.Arg(0), password)
	if err != nil {
		fmt.Fprintf(errOut, "remote extract: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Backup-CID: %s\n", report.BackupCID)
	fmt.Fprintf(out, "Tar-CID: %s\n", report.TarCID)
	fmt.Fprintf(out, "Bytes: %d\n", report.BytesWritten)
	fmt.Fprintf(out, "Encrypted: %t\n", report.WasEncrypted)
	fmt.Fprintf(out, "Compressed: %t\n", report.WasCompressed)
	return 0
}

func cmdRemoteInspect(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("remote inspect", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var target string
	fs.StringVar(&target, "target", "127.0.0.1:7678", "Daemon address")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: adbx remote inspect --target <addr> <path-on-daemon>")
		return 2
	}

	client, err := dialRemote(target, 10*time.Second)
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", target, err)
		return 1
	}
	defer client.Close()

	info, err := client.Inspect(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "remote inspect: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Version: %d\n", info.Version)
	fmt.Fprintf(out, "Compressed: %t\n", info.Compressed)
	fmt.Fprintf(out, "Encryption: %s\n", info.Encryption)
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "adbx key: minimal local key management for manifest signing")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  adbx key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  adbx key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  adbx key list")
	fmt.Fprintln(w, "  adbx key export --name <name> [--role <role>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under ~/.adbx/keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible setups)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := keys.OpenStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = keys.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	examinerKey, rootPath, err := ks.InitRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", examinerKey)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. examiner, reviewer)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, err := keys.OpenStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	examinerKey, rolePath, err := ks.DeriveRoleKey(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", examinerKey)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.OpenStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Name)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports the derived role key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	if role != "" {
		if err := keys.CheckRole(role); err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}
	ks, err := keys.OpenStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	examinerKey, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, examinerKey)
	return 0
}
