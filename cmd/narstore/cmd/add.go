package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/narstore"
	"github.com/aweris/narstore/internal/backend"
)

var addCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Ingest a file or directory into the store",
	Long:  "Copy a file or directory tree into the store and register its metadata. References must already be present.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().String("name", "", "object name (default: source base name)")
	addCmd.Flags().StringArray("ref", nil, "base name of a direct dependency (repeatable)")
	addCmd.Flags().StringArray("sig", nil, "signature string to record (repeatable)")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) (err error) {
	// Ingestion is a local-store concern, so this command talks to the
	// backend directly rather than going through the read-side handle.
	storeDir := viper.GetString("store_dir")
	be, err := backend.OpenLocal(storeDir, viper.GetString("database"))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := be.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	name, _ := cmd.Flags().GetString("name")
	refs, _ := cmd.Flags().GetStringArray("ref")
	sigs, _ := cmd.Flags().GetStringArray("sig")

	for _, ref := range refs {
		if _, err := narstore.ParseStorePath(ref); err != nil {
			return err
		}
	}

	info, err := be.Add(cmd.Context(), args[0], backend.AddOptions{
		Name:       name,
		References: refs,
		Sigs:       sigs,
	})
	if err != nil {
		return err
	}

	fmt.Println(filepath.Join(storeDir, info.BaseName))
	return nil
}
