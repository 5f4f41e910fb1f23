// Command adbx-extractd serves the Extractor gRPC service next to an
// evidence vault.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"adbx.dev/adbx/extractsvc"
	"adbx.dev/adbx/storage/casregistry"

	_ "adbx.dev/adbx/storage/localfs"
	_ "adbx.dev/adbx/storage/memory"
)

func main() {
	fs := flag.NewFlagSet("adbx-extractd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7678", "listen address")
	backend := fs.String("backend", "localfs", "vault backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	vault, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	extractsvc.RegisterExtractorServer(s, &extractsvc.Server{Vault: vault})

	fmt.Fprintf(os.Stderr, "adbx-extractd listening on %s (backend=%s)\n", lis.Addr().String(), *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
