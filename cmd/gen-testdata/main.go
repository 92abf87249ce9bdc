// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata writes a pack of synthetic delta chains, for exercising
// readers and benchmarks against realistically shaped data.
package main

import (
	"crypto/sha1"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/pflag"

	"github.com/bpowers/datapack"
)

type config struct {
	dir      string
	files    int
	chainLen int
	textSize int
	seed     int64
	verbose  bool
}

func parseFlags() config {
	var c config
	pflag.StringVarP(&c.dir, "dir", "d", ".", "directory to write the pack into")
	pflag.IntVarP(&c.files, "files", "n", 1000, "number of paths, each with its own delta chain")
	pflag.IntVarP(&c.chainLen, "chain-length", "l", 8, "revisions per path, including the full text")
	pflag.IntVar(&c.textSize, "text-size", 4096, "size in bytes of each full text")
	pflag.Int64Var(&c.seed, "seed", 1, "random seed")
	pflag.BoolVarP(&c.verbose, "verbose", "v", false, "log debug output")
	pflag.Parse()
	return c
}

// revisionID hashes a revision the way Mercurial filelogs do: the
// parent id followed by the content.
func revisionID(parent datapack.HgID, data []byte) datapack.HgID {
	var null datapack.HgID
	h := sha1.New()
	h.Write(null[:])
	h.Write(parent[:])
	h.Write(data)
	var id datapack.HgID
	copy(id[:], h.Sum(nil))
	return id
}

func generate(mp *datapack.MutablePack, c config) error {
	rng := rand.New(rand.NewSource(c.seed))

	for i := 0; i < c.files; i++ {
		path := fmt.Sprintf("dir%02d/file%06d", i%100, i)

		text := make([]byte, c.textSize)
		rng.Read(text)
		size := uint64(len(text))
		base := datapack.NewKey(path, revisionID(datapack.NullID, text))
		if err := mp.Add(datapack.Delta{Key: base, Data: text}, datapack.Metadata{Size: &size}); err != nil {
			return err
		}

		for rev := 1; rev < c.chainLen; rev++ {
			patch := make([]byte, 16+rng.Intn(64))
			rng.Read(patch)
			k := datapack.NewKey(path, revisionID(base.ID, patch))
			prev := base
			if err := mp.Add(datapack.Delta{Key: k, Base: &prev, Data: patch}, datapack.Metadata{}); err != nil {
				return err
			}
			base = k
		}
	}
	return nil
}

func run(c config, logger *slog.Logger) error {
	if c.chainLen < 1 {
		return fmt.Errorf("--chain-length must be at least 1, got %d", c.chainLen)
	}

	mp, err := datapack.NewMutablePack(c.dir, datapack.Version1, datapack.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("datapack.NewMutablePack: %w", err)
	}
	defer mp.Close()

	if err := generate(mp, c); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	base, err := mp.Publish()
	if err != nil {
		return fmt.Errorf("mp.Publish: %w", err)
	}
	fmt.Println(base)
	return nil
}

func main() {
	c := parseFlags()

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(c, logger); err != nil {
		logger.Error("gen-testdata failed", "error", err)
		os.Exit(1)
	}
}
