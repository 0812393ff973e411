// Command fatdisko-mkfs formats a plain file as a FAT12/16/32 volume.
// It's a thin CLI wrapper around fat.Format; all of the real work lives
// in the library, per spec.md §6 ("no CLI ... is part of the core").
// Grounded on the teacher's cmd/main.go urfave/cli shape, with
// progress/summary reporting done through zap the way the pack's
// os-image-composer logs its own build steps.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dargueta/fatdisko/blockio"
	"github.com/dargueta/fatdisko/fat"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	app := &cli.App{
		Name:  "fatdisko-mkfs",
		Usage: "Format a file as a FAT12/16/32 volume",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or overwrite a FAT volume image",
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "size", Usage: "volume size in bytes", Required: true},
					&cli.StringFlag{Name: "type", Usage: "FAT type: 12, 16, 32, or auto", Value: "auto"},
					&cli.UintFlag{Name: "sectors-per-cluster", Usage: "0 selects automatically"},
					&cli.StringFlag{Name: "label", Usage: "volume label"},
					&cli.UintFlag{Name: "block-size", Usage: "device block size in bytes", Value: 512},
				},
				Action: formatImage,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Sugar().Fatalf("fatdisko-mkfs: %s", err)
	}
}

func formatImage(c *cli.Context) error {
	sugar := zap.L().Sugar()
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one argument: IMAGE_FILE", 1)
	}
	path := c.Args().Get(0)
	size := c.Int64("size")
	blockSize := uint(c.Uint("block-size"))

	fatType, err := parseFatType(c.String("type"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	sugar.Infof("creating %s (%d bytes, block size %d)", path, size, blockSize)
	data := make([]byte, size)
	storage, err := blockio.NewMemoryStorage(data, blockSize)
	if err != nil {
		return fmt.Errorf("allocating staging buffer: %w", err)
	}

	opts := fat.FormatVolumeOptions{
		Type:              fatType,
		SectorsPerCluster: c.Uint("sectors-per-cluster"),
		VolumeLabel:       c.String("label"),
	}

	eng, err := fat.Format(storage, opts)
	if err != nil {
		return fmt.Errorf("formatting volume: %w", err)
	}
	sugar.Infof("formatted as %s, %d clusters, %d bytes/cluster",
		eng.Type(), eng.BootSec.TotalClusters, eng.BootSec.BytesPerCluster)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	sugar.Infof("wrote %s", path)
	return nil
}

func parseFatType(s string) (fat.Type, error) {
	switch s {
	case "", "auto":
		return 0, nil
	case "12":
		return fat.Type12, nil
	case "16":
		return fat.Type16, nil
	case "32":
		return fat.Type32, nil
	default:
		return 0, fmt.Errorf("unrecognized FAT type %q, expected 12, 16, 32, or auto", s)
	}
}
