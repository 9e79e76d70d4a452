package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/narstore"
)

var closureCmd = &cobra.Command{
	Use:   "closure <path>...",
	Short: "Compute the reference closure of paths",
	Long:  "Print the transitive closure of one or more store paths, one full path per line.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClosure,
}

func init() {
	closureCmd.Flags().Bool("referrers", false, "follow referrer edges instead of references")
	closureCmd.Flags().Bool("include-outputs", false, "pull in build outputs of visited derivations")
	closureCmd.Flags().Bool("include-derivers", false, "pull in derivers of visited paths")
	rootCmd.AddCommand(closureCmd)
}

func runClosure(cmd *cobra.Command, args []string) (err error) {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	seeds := make([]narstore.StorePath, 0, len(args))
	for _, arg := range args {
		sp, err := resolvePath(store, arg)
		if err != nil {
			return err
		}
		seeds = append(seeds, sp)
	}

	query := narstore.ClosureQuery{}
	if ok, _ := cmd.Flags().GetBool("referrers"); ok {
		query.Direction = narstore.DirectionReverse
	}
	query.IncludeOutputs, _ = cmd.Flags().GetBool("include-outputs")
	query.IncludeDerivers, _ = cmd.Flags().GetBool("include-derivers")

	closure, err := store.ClosureMulti(cmd.Context(), seeds, query)
	if err != nil {
		return err
	}

	for _, sp := range closure {
		fmt.Println(store.FullPath(sp))
	}
	return nil
}
