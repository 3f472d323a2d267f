package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/internal/splitter"
	"github.com/kiesman99/tiler/internal/storage"
	"github.com/kiesman99/tiler/pkg/tile"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split an image into fixed-size tiles",
	Long: `Split an image into a grid of tiles. Edge tiles are smaller when the
image is not a multiple of the tile size.

Pattern placeholders:
  {base}  input name without extension (or --base)
  {y} {x} pixel offsets of the tile; a pattern must end in _{y}_{x} to be mergeable
  {row} {col} grid indices, not offsets: merge cannot read them back, so
          a pattern like {base}_{row}_{col} needs --allow-unmergeable
  {i}     running index, row-major
  {ext}   output extension
Integer placeholders take a printf width, e.g. {i:04d}. Offsets must be
zero padded ({y:05d}); space padding cannot be merged.

Examples:
  tiler split -i scene.png -o tiles --tile-size 512
  tiler split -i scene.tif -o tiles --tile-width 256 --tile-height 128 --bands 0,1,2 --ext png
  tiler split -i scene.tif -o tiles --tile-size 512 --manifest tiles.yaml --fold train --upload`,
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)
	addSplitFlags(splitCmd)
}

// addSplitFlags registers the split flags on cmd. Both root and split carry
// them, so they are bound to viper when the command runs.
func addSplitFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "image to split (required)")
	cmd.Flags().StringP("output-dir", "o", ".", "directory for the tiles")
	cmd.Flags().IntP("tile-size", "s", 512, "tile width and height in pixels")
	cmd.Flags().Int("tile-width", 0, "tile width in pixels (overrides --tile-size)")
	cmd.Flags().Int("tile-height", 0, "tile height in pixels (overrides --tile-size)")
	cmd.Flags().StringP("pattern", "p", tile.DefaultPattern, "tile filename pattern")
	cmd.Flags().String("base", "", "value of {base} (default: input name without extension)")
	cmd.Flags().StringP("ext", "e", "", "tile format extension (default: input's)")
	cmd.Flags().StringP("bands", "b", "", "0-based band indices to keep, in order, e.g. 3,2,1 (default: all)")
	cmd.Flags().String("normalize", "none", "16-bit to 8-bit conversion (none|minmax|clip)")
	cmd.Flags().Bool("allow-unmergeable", false, "accept patterns merge cannot read back")
	cmd.Flags().StringP("manifest", "m", "", "write a tile manifest (.csv or .yaml), relative to the output directory")
	cmd.Flags().String("scene", "", "scene id written to the manifest (default: base)")
	cmd.Flags().String("fold", "", "fold written to the manifest")
	cmd.Flags().Bool("upload", false, "upload tiles and manifest to the configured S3 bucket")
	cmd.Flags().Bool("json", false, "print the result as JSON on stdout")
}

var splitKeys = []string{
	"input", "output-dir", "tile-size", "tile-width", "tile-height", "pattern", "base", "ext",
	"bands", "normalize", "allow-unmergeable", "manifest", "scene", "fold", "upload", "json",
}

func runSplit(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, "split", splitKeys)

	input := viper.GetString("split.input")
	if input == "" && len(args) == 1 {
		input = args[0]
	}
	if input == "" {
		if !cmd.HasParent() {
			return cmd.Help()
		}
		return fmt.Errorf("an input image is required (use --input)")
	}

	bands, err := tile.ParseBands(viper.GetString("split.bands"))
	if err != nil {
		return err
	}
	norm, err := raster.ParseNormalization(viper.GetString("split.normalize"))
	if err != nil {
		return err
	}

	tw, th := viper.GetInt("split.tile-width"), viper.GetInt("split.tile-height")
	if size := viper.GetInt("split.tile-size"); size > 0 {
		if tw == 0 {
			tw = size
		}
		if th == 0 {
			th = size
		}
	}

	sel, err := newSelector()
	if err != nil {
		return err
	}

	s := splitter.New(newProvider(), sel)
	s.Logger = newLogger(cmd)
	if w := viper.GetInt("workers"); w > 0 {
		s.Workers = w
	}
	if viper.GetBool("split.upload") {
		up, err := storage.New(cmd.Context(), s3Config())
		if err != nil {
			return err
		}
		up.Logger = s.Logger
		s.Uploader = up
	}

	res, err := s.Split(cmd.Context(), splitter.Options{
		Input:            input,
		OutputDir:        viper.GetString("split.output-dir"),
		Base:             viper.GetString("split.base"),
		Ext:              viper.GetString("split.ext"),
		TileWidth:        tw,
		TileHeight:       th,
		Pattern:          viper.GetString("split.pattern"),
		Bands:            bands,
		Normalize:        norm,
		AllowUnmergeable: viper.GetBool("split.allow-unmergeable"),
		Manifest:         viper.GetString("split.manifest"),
		Scene:            viper.GetString("split.scene"),
		Fold:             viper.GetString("split.fold"),
		Progress:         progressPrinter(cmd, "Tiles"),
	})
	if err != nil {
		return err
	}

	if viper.GetBool("split.json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d tiles (%d rows x %d cols) to %s\n",
		res.Tiles, res.Rows, res.Cols, viper.GetString("split.output-dir"))
	if res.Manifest != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Manifest: %s\n", res.Manifest)
	}
	if len(res.Uploaded) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Uploaded %d files\n", len(res.Uploaded))
	}
	return nil
}
