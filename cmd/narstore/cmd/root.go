package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/narstore"
)

var rootCmd = &cobra.Command{
	Use:   "narstore",
	Short: "Content-addressable store query and export CLI",
	Long:  "Query path metadata, compute reference closures, and export NAR archives from a local store.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/narstore/config.yaml)")
	rootCmd.PersistentFlags().String("store-dir", "", "store root directory")
	rootCmd.PersistentFlags().String("database", "", "metadata database path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	viper.BindPFlag("store_dir", rootCmd.PersistentFlags().Lookup("store-dir"))
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("NARSTORE")
	viper.AutomaticEnv()
	viper.SetDefault("store_dir", filepath.Join(defaultDataDir(), "store"))
	viper.SetDefault("database", filepath.Join(defaultDataDir(), "db", "db.sqlite"))

	viper.ReadInConfig()

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "narstore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "narstore")
	}
	return ".narstore"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "narstore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "narstore")
	}
	return ".narstore"
}

func openStore() (*narstore.Store, error) {
	return narstore.Open(
		narstore.WithStoreDir(viper.GetString("store_dir")),
		narstore.WithDatabase(viper.GetString("database")),
	)
}

// resolvePath accepts either a bare base name or a full path under the
// store directory (symlinks followed for outside paths).
func resolvePath(store *narstore.Store, arg string) (narstore.StorePath, error) {
	if filepath.IsAbs(arg) {
		return store.FollowStorePath(arg)
	}
	return narstore.ParseStorePath(arg)
}
