package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/cloudpack/packstore/pkg/engine"
	"github.com/cloudpack/packstore/pkg/pack"
)

func buildEngine(c *cli.Context) (*engine.Engine, error) {
	setupLogging(c)

	meta, err := engine.NewMetaStore(c.String("meta"))
	if err != nil {
		return nil, err
	}

	var backend pack.BlobBackend
	if c.String("s3-endpoint") != "" || c.String("s3-bucket") != "" {
		backend, err = pack.NewS3Backend(c.Context, pack.S3Config{
			Endpoint:  c.String("s3-endpoint"),
			Region:    c.String("s3-region"),
			Bucket:    c.String("s3-bucket"),
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			StageDir:  c.String("datadir"),
		})
	} else {
		backend, err = pack.NewPosixBackend(c.String("datadir"))
	}
	if err != nil {
		meta.Shutdown()
		return nil, err
	}

	conf := engine.Config{
		Compression:  c.String("compression"),
		Encryption:   c.String("encryption"),
		Key:          c.String("key"),
		ChunkMinSize: int(c.Uint64("chunk-min")),
		ChunkAvgSize: int(c.Uint64("chunk-avg")),
		ChunkMaxSize: int(c.Uint64("chunk-max")),
		PackCeiling:  c.Int64("pack-ceiling"),
		Workers:      c.Int("workers"),
	}
	eng, err := engine.New(c.Context, conf, meta, backend)
	if err != nil {
		meta.Shutdown()
		return nil, err
	}
	return eng, nil
}

func cmdIngest() *cli.Command {
	selfFlags := []cli.Flag{
		&cli.Uint64Flag{
			Name:  "chunk-min",
			Usage: "minimum chunk size in bytes",
		},
		&cli.Uint64Flag{
			Name:  "chunk-avg",
			Value: 4 << 20,
			Usage: "target average chunk size in bytes, a power of two",
		},
		&cli.Uint64Flag{
			Name:  "chunk-max",
			Usage: "maximum chunk size in bytes",
		},
		&cli.Int64Flag{
			Name:  "pack-ceiling",
			Value: pack.DefaultSizeCeiling,
			Usage: "seal a package once it grows past this many bytes",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "parallel encode workers, defaults to the CPU count",
		},
	}
	return &cli.Command{
		Name:      "ingest",
		Action:    ingest,
		Category:  "STORE",
		Usage:     "Store files into the package store",
		ArgsUsage: "PATH...",
		Description: `
			Each file is hashed, deduplicated against the store, chunked,
			compressed, encrypted, and appended to category packages.

			Examples:
			$ export PACKSTORE_KEY=mypassphrase
			$ packstore ingest --meta redis://localhost/1 /data/report.pdf /data/photo.jpg`,
		Flags: expandFlags(selfFlags, storeFlags()),
	}
}

func ingest(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("ingest requires at least one PATH")
	}
	eng, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close(c.Context)

	for _, path := range c.Args().Slice() {
		res, err := eng.ProcessFile(c.Context, path, path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		if res.Dedup {
			fmt.Printf("%s: %s, dedup hit, fileset %d\n",
				res.SourceKey, humanize.IBytes(uint64(res.Size)), res.FilesetKey)
			continue
		}
		fmt.Printf("%s: %s in %d chunks, %s stored, fileset %d (%s)\n",
			res.SourceKey, humanize.IBytes(uint64(res.Size)), res.Chunks,
			humanize.IBytes(uint64(res.StoredBytes)), res.FilesetKey, res.Elapsed)
	}
	return nil
}

func cmdRestore() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Action:    restore,
		Category:  "STORE",
		Usage:     "Reconstruct a stored file",
		ArgsUsage: "SOURCE-KEY OUTPUT-PATH",
		Description: `
			Examples:
			$ packstore restore /data/report.pdf /tmp/report.pdf`,
		Flags: storeFlags(),
	}
}

func restore(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("restore requires SOURCE-KEY and OUTPUT-PATH")
	}
	eng, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close(c.Context)

	fs, err := eng.ReconstructToFile(c.Context, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s restored to %s\n", fs.SourceKey, humanize.IBytes(uint64(fs.Size)), c.Args().Get(1))
	return nil
}

func cmdStat() *cli.Command {
	return &cli.Command{
		Name:      "stat",
		Action:    stat,
		Category:  "STORE",
		Usage:     "Show a stored file or the package inventory",
		ArgsUsage: "[SOURCE-KEY]",
		Flags:     storeFlags(),
	}
}

func stat(c *cli.Context) error {
	eng, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close(c.Context)

	if c.NArg() == 0 {
		rows, err := eng.Meta().ListRootPackages(c.Context)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "open"
			if row.Sealed {
				state = "sealed"
			}
			fmt.Printf("%s  %-8s %8s  %d files  %s\n",
				row.Key, state, humanize.IBytes(uint64(row.Size)), row.Multifile,
				row.Updated.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	arg := c.Args().Get(0)
	if row, perr := eng.Meta().GetRootPackage(c.Context, arg); perr == nil {
		contents, err := eng.PackageContents(c.Context, arg)
		if err != nil {
			return err
		}
		fmt.Printf("package %s: %s, %d files\n", row.Key, humanize.IBytes(uint64(row.Size)), row.Multifile)
		for _, fs := range contents {
			fmt.Printf("  fileset %d  %s  %s\n", fs.Key, humanize.IBytes(uint64(fs.Size)), fs.SourceKey)
		}
		return nil
	}

	fs, blocks, err := eng.Stat(c.Context, arg)
	if err != nil {
		return err
	}
	kind := "canonical"
	if fs.IsShadow {
		kind = "shadow"
	}
	fmt.Printf("fileset %d (%s)\n  source:   %s\n  size:     %s\n  hash:     %s\n  category: %s\n  blocks:   %d\n",
		fs.Key, kind, fs.SourceKey, humanize.IBytes(uint64(fs.Size)), fs.Hash, fs.Category, len(blocks))
	for _, bs := range blocks {
		fmt.Printf("  [%d] %s [%d,%d) raw %s stored %s\n",
			bs.Index, bs.PackageKey, bs.StartIndex, bs.EndIndex,
			humanize.IBytes(uint64(bs.RawSize)), humanize.IBytes(uint64(bs.Size)))
	}
	return nil
}

func cmdDelete() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Action:    remove,
		Category:  "STORE",
		Usage:     "Delete a stored file",
		ArgsUsage: "SOURCE-KEY",
		Flags:     storeFlags(),
	}
}

func remove(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("delete requires SOURCE-KEY")
	}
	eng, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close(c.Context)
	return eng.Delete(c.Context, c.Args().Get(0))
}

func cmdVerify() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Action:    verify,
		Category:  "STORE",
		Usage:     "Check sealed packages against their recorded checksums",
		ArgsUsage: "[PACKAGE-KEY]",
		Description: `
			Reads each sealed package end to end and compares its bytes
			against the checksum recorded when the package was sealed.

			Examples:
			$ packstore verify
			$ packstore verify doc_000001`,
		Flags: storeFlags(),
	}
}

func verify(c *cli.Context) error {
	eng, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close(c.Context)

	if c.NArg() > 0 {
		key := c.Args().Get(0)
		if err := eng.VerifyPackage(c.Context, key); err != nil {
			return err
		}
		fmt.Printf("%s: ok\n", key)
		return nil
	}

	rows, err := eng.Meta().ListRootPackages(c.Context)
	if err != nil {
		return err
	}
	bad := 0
	for _, row := range rows {
		if !row.Sealed {
			continue
		}
		if err := eng.VerifyPackage(c.Context, row.Key); err != nil {
			fmt.Printf("%s: %v\n", row.Key, err)
			bad++
			continue
		}
		fmt.Printf("%s: ok\n", row.Key)
	}
	if bad > 0 {
		return fmt.Errorf("%d packages failed verification", bad)
	}
	return nil
}

func cmdSweep() *cli.Command {
	return &cli.Command{
		Name:     "sweep",
		Action:   sweep,
		Category: "STORE",
		Usage:    "Reclaim packages no fileset references anymore",
		Flags:    storeFlags(),
	}
}

func sweep(c *cli.Context) error {
	eng, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close(c.Context)

	reclaimed, err := eng.Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("reclaimed %d packages\n", reclaimed)
	return nil
}
