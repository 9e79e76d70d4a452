package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <path>...",
	Short: "Show path metadata",
	Long:  "Print the NAR hash, size, references, signatures, and content address of store paths.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) (err error) {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	for _, arg := range args {
		sp, err := resolvePath(store, arg)
		if err != nil {
			return err
		}
		info, err := store.QueryPathInfo(ctx, sp)
		if err != nil {
			return err
		}

		fmt.Printf("path: %s\n", store.FullPath(info.Path))
		fmt.Printf("nar-hash: %s\n", info.NarHash)
		fmt.Printf("nar-size: %d\n", info.NarSize)
		for _, ref := range info.References {
			fmt.Printf("reference: %s\n", ref)
		}
		for _, sig := range info.Sigs {
			fmt.Printf("sig: %s\n", sig)
		}
		if info.ContentAddressed() {
			fmt.Printf("ca: %s\n", info.CA)
		}
		fmt.Println()
	}

	return nil
}
