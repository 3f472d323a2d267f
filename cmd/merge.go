package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tiler/internal/merger"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge a directory of tiles into one image",
	Long: `Merge tiles whose names end in _<y>_<x> back into a single image. The
canvas is the smallest rectangle holding every tile; gaps stay zero. Tiles
are pasted in file name order, so later tiles win where they overlap.

With --manifest, the tiles and their offsets come from a manifest written by
split instead of from file names.

Examples:
  tiler merge -d tiles --ext png -o merged.png
  tiler merge --manifest tiles/tiles.csv --fold val -o val.tif`,
	Args: cobra.NoArgs,
	RunE: runMerge,
}

var mergeKeys = []string{"dir", "ext", "output", "manifest", "fold", "json"}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringP("dir", "d", "", "directory of tiles")
	mergeCmd.Flags().StringP("ext", "e", "", "tile extension to merge (default: any readable format)")
	mergeCmd.Flags().StringP("output", "o", "", "merged image; the extension picks the format (required)")
	mergeCmd.Flags().StringP("manifest", "m", "", "merge the tiles listed in this manifest instead of --dir")
	mergeCmd.Flags().String("fold", "", "merge only manifest rows of this fold")
	mergeCmd.Flags().Bool("json", false, "print the result as JSON on stdout")
}

func newMerger(cmd *cobra.Command) (*merger.Merger, error) {
	sel, err := newSelector()
	if err != nil {
		return nil, err
	}
	m := merger.New(newProvider(), sel)
	m.Logger = newLogger(cmd)
	if w := viper.GetInt("workers"); w > 0 {
		m.Workers = w
		m.Lookahead = w
	}
	return m, nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, "merge", mergeKeys)

	dir := viper.GetString("merge.dir")
	manifestPath := viper.GetString("merge.manifest")
	output := viper.GetString("merge.output")

	switch {
	case output == "":
		return fmt.Errorf("an output file is required (use --output)")
	case dir == "" && manifestPath == "":
		return fmt.Errorf("either --dir or --manifest is required")
	case dir != "" && manifestPath != "":
		return fmt.Errorf("--dir and --manifest are mutually exclusive")
	}

	m, err := newMerger(cmd)
	if err != nil {
		return err
	}

	var res *merger.Result
	if manifestPath != "" {
		res, err = m.MergeManifest(cmd.Context(), merger.ManifestOptions{
			Manifest: manifestPath,
			Fold:     viper.GetString("merge.fold"),
			Output:   output,
			Progress: progressPrinter(cmd, "Tiles"),
		})
	} else {
		res, err = m.Merge(cmd.Context(), merger.Options{
			Dir:      dir,
			Ext:      viper.GetString("merge.ext"),
			Output:   output,
			Progress: progressPrinter(cmd, "Tiles"),
		})
	}
	if err != nil {
		return err
	}

	if viper.GetBool("merge.json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Merged %d tiles into %s (%dx%d, %d bands %s)\n",
		res.Tiles, res.Output, res.Width, res.Height, res.Bands, res.Depth)
	if len(res.Ignored) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Ignored %d files\n", len(res.Ignored))
	}
	return nil
}
