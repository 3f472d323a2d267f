package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tiler/internal/codec"
	"github.com/kiesman99/tiler/internal/storage"
	"github.com/kiesman99/tiler/pkg/tile"
)

// version is reported by the health endpoint
const version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tiler",
	Short: "Split large images into tiles and merge tiles back",
	Long: `tiler cuts a large raster image into a grid of fixed-size tiles and
reassembles a directory of tiles into one image.

Tiles are named from a pattern; the default {base}_tile_{y}_{x} ends in the
pixel offsets of the tile, which is what merge reads back. PNG and TIFF keep
up to 4 bands at 8 or 16 bits, JPEG and GIF keep 3.

Examples:
  # Split into 512x512 tiles (split is the default command)
  tiler -i scene.tif -o tiles --tile-size 512

  # Keep bands 3,2,1 as 8-bit JPEG tiles and write a manifest
  tiler split -i scene.tif -o tiles --tile-size 256 --bands 3,2,1 --normalize minmax --ext jpg --manifest tiles.csv

  # Check what a merge would produce
  tiler estimate -d tiles --ext png

  # Merge tiles back
  tiler merge -d tiles --ext png -o merged.png

  # Start HTTP server
  tiler serve --port 8080`,
	// Without a subcommand, flags configure a split
	Args: cobra.MaximumNArgs(1),
	RunE: runSplit,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Interrupts cancel the running split or merge between tiles.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tiler.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress and notices")
	rootCmd.PersistentFlags().Int("workers", 0, "concurrent tile workers (default: number of CPUs)")
	rootCmd.PersistentFlags().Int("jpeg-quality", 95, "JPEG quality for written tiles and images")
	rootCmd.PersistentFlags().String("policy", "auto", "band policy when a format stores fewer bands (auto|strict)")

	// S3 upload target; keys are usually set in the config file or TILER_S3_* env
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3-compatible endpoint URL (default: AWS)")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "bucket for uploaded tiles")
	rootCmd.PersistentFlags().String("s3-prefix", "", "key prefix for uploaded tiles")

	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("jpeg-quality", rootCmd.PersistentFlags().Lookup("jpeg-quality"))
	viper.BindPFlag("policy", rootCmd.PersistentFlags().Lookup("policy"))
	viper.BindPFlag("s3.endpoint", rootCmd.PersistentFlags().Lookup("s3-endpoint"))
	viper.BindPFlag("s3.region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("s3.bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3.prefix", rootCmd.PersistentFlags().Lookup("s3-prefix"))

	// Split flags on root for default behavior
	addSplitFlags(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tiler" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tiler")
	}

	// TILER_SPLIT_TILE_WIDTH sets split.tile-width
	viper.SetEnvPrefix("tiler")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags binds the named flags of cmd to prefix.name. Commands that
// share keys bind at run time so the executing command's flags win.
func bindFlags(cmd *cobra.Command, prefix string, names []string) {
	for _, name := range names {
		viper.BindPFlag(prefix+"."+name, cmd.Flags().Lookup(name))
	}
}

// newLogger writes notices to the command's stderr unless --quiet is set
func newLogger(cmd *cobra.Command) *log.Logger {
	if viper.GetBool("quiet") {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "", 0)
}

// progressPrinter reports done/total on stderr, overwriting the line
func progressPrinter(cmd *cobra.Command, label string) func(done, total int) {
	if viper.GetBool("quiet") {
		return nil
	}
	w := cmd.ErrOrStderr()
	return func(done, total int) {
		fmt.Fprintf(w, "\r%s: %d/%d (%.2f%%)", label, done, total, 100*float64(done)/float64(total))
		if done == total {
			fmt.Fprintln(w)
		}
	}
}

func newProvider() *codec.Files {
	p := codec.NewFiles()
	if q := viper.GetInt("jpeg-quality"); q > 0 {
		p.JPEGQuality = q
	}
	return p
}

func newSelector() (*tile.BandSelector, error) {
	mode, err := tile.ParsePolicyMode(viper.GetString("policy"))
	if err != nil {
		return nil, err
	}
	return tile.NewBandSelector(mode), nil
}

func s3Config() storage.Config {
	return storage.Config{
		Endpoint:  viper.GetString("s3.endpoint"),
		Region:    viper.GetString("s3.region"),
		AccessKey: viper.GetString("s3.access-key"),
		SecretKey: viper.GetString("s3.secret-key"),
		Bucket:    viper.GetString("s3.bucket"),
		Prefix:    viper.GetString("s3.prefix"),
	}
}
