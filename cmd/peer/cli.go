package main

import (
	"fmt"
	"strings"

	"github.com/pyropy/idxshare/core/client"
	"github.com/pyropy/idxshare/lib/logger"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func newPeer(ctx *cli.Context) (*client.Peer, error) {
	log, ok := ctx.App.Metadata[logKey].(*zap.SugaredLogger)
	if !ok {
		log = logger.NewNop()
	}

	store, err := client.NewShareStore(ctx.String("store"))
	if err != nil {
		return nil, err
	}

	index := client.NewIndexClient(ctx.String("idx-addr"), ctx.String("idx-secret"))

	return client.NewPeer(afero.NewOsFs(), ctx.String("share-dir"), store, index, ctx.Int("port"), log), nil
}

var shareCmd = &cli.Command{
	Name:      "share",
	Usage:     "Share a file with the index server",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "secret",
			Usage: "Secret needed to drop the share, random if empty",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("share takes exactly one file", 2)
		}

		p, err := newPeer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		record, err := p.ShareFile(ctx.Context, ctx.Args().First(), ctx.String("secret"))
		if err != nil {
			return err
		}

		fmt.Printf("%s\t%s\tsharers=%d\tsecret=%s\n", record.Path, record.Descriptor.FileHash(), record.NumSharers, record.SharerSecret)
		return nil
	},
}

var dropCmd = &cli.Command{
	Name:      "drop",
	Usage:     "Stop sharing a file",
	ArgsUsage: "<file>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("drop takes exactly one file", 2)
		}

		p, err := newPeer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		return p.DropShare(ctx.Context, ctx.Args().First())
	},
}

var searchCmd = &cli.Command{
	Name:      "search",
	Usage:     "Search the index by filename keywords",
	ArgsUsage: "<keyword>...",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "max-hits",
			Value: 20,
			Usage: "Maximum number of results",
		},
	},
	Action: func(ctx *cli.Context) error {
		p, err := newPeer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		records, err := p.Search(ctx.Context, ctx.Args().Slice(), ctx.Int("max-hits"))
		if err != nil {
			return err
		}

		for _, r := range records {
			fmt.Printf("%s\t%s\t%d bytes\tsharers=%d\n", r.Hit.Filename, r.Hit.FileDescr.FileHash(), r.Hit.FileDescr.FileLength, r.NumSharers)
		}

		return nil
	},
}

var lookupCmd = &cli.Command{
	Name:      "lookup",
	Usage:     "List the sharers of a file",
	ArgsUsage: "<file> <md5>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.Exit("lookup takes a file and its md5", 2)
		}

		p, err := newPeer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		hits, err := p.Lookup(ctx.Context, ctx.Args().Get(0), strings.ToUpper(ctx.Args().Get(1)))
		if err != nil {
			return err
		}

		for _, hit := range hits {
			fmt.Printf("%s:%d\t%s\n", hit.IP, hit.Port, hit.Filename)
		}

		return nil
	},
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List files shared by this peer",
	Action: func(ctx *cli.Context) error {
		p, err := newPeer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		records, err := p.Shares(ctx.Context)
		if err != nil {
			return err
		}

		for _, r := range records {
			fmt.Printf("%s\t%s\t%s\tsharers=%d\tshared=%s\n", r.Path, r.Descriptor.FileHash(), r.IdxAddr, r.NumSharers, r.SharedAt.Format("2006-01-02T15:04:05Z"))
		}

		return nil
	},
}

var describeCmd = &cli.Command{
	Name:      "describe",
	Usage:     "Print the block layout of a local file",
	ArgsUsage: "<file>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("describe takes exactly one file", 2)
		}

		p, err := newPeer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		d, err := p.Describe(ctx.Args().First())
		if err != nil {
			return err
		}

		fmt.Printf("length=%d blockLength=%d blocks=%d md5=%s\n", d.FileLength, d.BlockLength, d.NumBlocks, d.FileHash())
		for i, h := range d.BlockMD5 {
			fmt.Printf("%d\t%s\n", i, h)
		}

		return nil
	},
}

var fetchCheckCmd = &cli.Command{
	Name:      "fetch-check",
	Usage:     "Prepare a download and report the blocks still missing",
	ArgsUsage: "<file> <md5>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.Exit("fetch-check takes a file and its md5", 2)
		}

		p, err := newPeer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		store, sources, err := p.PrepareDownload(ctx.Context, ctx.Args().Get(0), strings.ToUpper(ctx.Args().Get(1)))
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("sources=%d complete=%t required=%v\n", len(sources), store.IsComplete(), store.RequiredBlocks())
		return nil
	},
}
