// Command rustybit downloads the content described by a metainfo file from
// a BitTorrent swarm and writes it under a download root, verifying every
// piece against the manifest before persisting it.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/BSiddharth/Rusty-Bit/coordinator"
	"github.com/BSiddharth/Rusty-Bit/internal/clientid"
	"github.com/BSiddharth/Rusty-Bit/metainfo"
	"github.com/sirupsen/logrus"
)

const defaultPort = 6881

func main() {
	var (
		root        = flag.String("root", ".", "directory to download content into")
		concurrency = flag.Int("concurrency", coordinator.DefaultConcurrency, "max concurrent peer sessions")
		port        = flag.Int("port", defaultPort, "port advertised to the tracker")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	args := flag.Args()

	if err := run(args, *root, *concurrency, uint16(*port)); err != nil {
		logrus.WithError(err).Error("rustybit: download failed")
		os.Exit(1)
	}
}

func run(args []string, root string, concurrency int, port uint16) error {
	var input io.Reader
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	} else {
		stat, err := os.Stdin.Stat()
		if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
			return errors.New("usage: rustybit [flags] <metainfo-file> (or pipe one on stdin)")
		}
		input = os.Stdin
	}

	meta, err := metainfo.Decode(input)
	if err != nil {
		return err
	}

	peerID, err := clientid.Generate()
	if err != nil {
		return err
	}

	coord, err := coordinator.New(coordinator.Config{
		DownloadRoot: root,
		Concurrency:  concurrency,
		Port:         port,
		PeerID:       peerID,
	}, meta)
	if err != nil {
		return err
	}
	defer coord.Close()

	logrus.WithFields(logrus.Fields{
		"name":   meta.Info.Name,
		"pieces": meta.Info.NumPieces(),
	}).Info("rustybit: starting download")

	if err := coord.Run(context.Background(), meta.Announce, meta.Info.InfoHash()); err != nil {
		return err
	}

	logrus.WithField("name", meta.Info.Name).Info("rustybit: download complete")
	return nil
}
