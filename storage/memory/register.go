package memory

import (
	"flag"

	"adbx.dev/adbx/storage"
	"adbx.dev/adbx/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:          "memory",
		Description:   "in-process evidence vault (contents lost on exit)",
		Usage:         casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {},
		Open: func() (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}
