package localfs

import (
	"flag"

	"adbx.dev/adbx/storage"
	"adbx.dev/adbx/storage/casregistry"
)

var rootFlag string

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "filesystem evidence vault (objects under --vault-root)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&rootFlag, "vault-root", ".adbx-vault", "root directory of the evidence vault")
		},
		Open: func() (storage.CAS, func() error, error) {
			v, err := New(rootFlag)
			if err != nil {
				return nil, nil, err
			}
			return v, nil, nil
		},
	})
}
