package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pyropy/idxshare/lib/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const logKey = "log"

func main() {
	os.Exit(start(os.Args, os.Stderr))
}

// start builds the logger and runs the CLI, returning the exit code.
func start(args []string, stderr io.Writer) int {
	log, err := logger.New("peer")
	if err != nil {
		fmt.Fprintf(stderr, "peer: building logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if err := newApp(log).Run(args); err != nil {
		log.Errorw("peer", "ERROR", err)
		return 1
	}

	return 0
}

func newApp(log *zap.SugaredLogger) *cli.App {
	return &cli.App{
		Name:     "peer",
		Usage:    "share files through an idxshare index server",
		Metadata: map[string]interface{}{logKey: log},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "idx-addr",
				Value:   "localhost:3200",
				Usage:   "Index server address",
				EnvVars: []string{"PEER_IDX_ADDR"},
			},
			&cli.StringFlag{
				Name:    "idx-secret",
				Value:   "server123",
				Usage:   "Index server secret",
				EnvVars: []string{"PEER_IDX_SECRET"},
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   ".idxshare",
				Usage:   "Directory holding the share records",
				EnvVars: []string{"PEER_STORE"},
			},
			&cli.StringFlag{
				Name:    "share-dir",
				Value:   ".",
				Usage:   "Directory shared files are relative to",
				EnvVars: []string{"PEER_SHARE_DIR"},
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   3201,
				Usage:   "Port this peer serves blocks on",
				EnvVars: []string{"PEER_PORT"},
			},
		},
		Commands: []*cli.Command{
			shareCmd,
			dropCmd,
			searchCmd,
			lookupCmd,
			listCmd,
			describeCmd,
			fetchCheckCmd,
		},
	}
}
