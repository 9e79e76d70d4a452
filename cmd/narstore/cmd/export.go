package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/narstore"
	"github.com/aweris/narstore/internal/compression"
)

var exportCmd = &cobra.Command{
	Use:   "export <path>...",
	Short: "Export store paths as NAR archives",
	Long: "Serialize store paths into NAR archives. A single path is written to stdout " +
		"unless --output is given; multiple paths are written as <base-name>.nar files.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output directory (default: stdout for one path, cwd for several)")
	exportCmd.Flags().Bool("zstd", false, "compress output with zstd")
	exportCmd.Flags().Int("level", compression.Default, "zstd compression level (1=fastest, 3=best)")
	exportCmd.Flags().IntP("jobs", "j", 4, "parallel exports when writing multiple paths")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	outDir, _ := cmd.Flags().GetString("output")
	useZstd, _ := cmd.Flags().GetBool("zstd")
	level, _ := cmd.Flags().GetInt("level")
	jobs, _ := cmd.Flags().GetInt("jobs")

	paths := make([]narstore.StorePath, 0, len(args))
	for _, arg := range args {
		sp, err := resolvePath(store, arg)
		if err != nil {
			return err
		}
		paths = append(paths, sp)
	}

	if len(paths) == 1 && outDir == "" {
		return exportTo(cmd, store, paths[0], os.Stdout, useZstd, level)
	}

	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	p := pool.New().WithErrors().WithMaxGoroutines(jobs)
	for _, sp := range paths {
		p.Go(func() error {
			name := sp.BaseName() + ".nar"
			if useZstd {
				name += ".zst"
			}
			f, err := os.Create(filepath.Join(outDir, name))
			if err != nil {
				return err
			}
			if err := exportTo(cmd, store, sp, f, useZstd, level); err != nil {
				f.Close()
				os.Remove(f.Name())
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			slog.Debug("exported path", "path", sp.BaseName(), "file", f.Name())
			return nil
		})
	}
	return p.Wait()
}

func exportTo(cmd *cobra.Command, store *narstore.Store, sp narstore.StorePath, dst io.Writer, useZstd bool, level int) error {
	r := store.NarReader(cmd.Context(), sp)
	defer r.Close()

	w := dst
	if useZstd {
		enc, err := compression.NewWriter(dst, level)
		if err != nil {
			return err
		}
		defer enc.Close()
		w = enc
	}

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("export %s: %w", sp, err)
	}
	return nil
}
