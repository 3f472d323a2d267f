package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tiler/internal/codec"
	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/pkg/tile"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render selected bands of an image as a thumbnail",
	Long: `Render the selected bands of an image, scaled to fit a bounding box, to
check a band selection before splitting. 16-bit images are stretched to
8 bits per band (minmax) unless --normalize says otherwise.

Examples:
  tiler preview -i scene.tif -o preview.png
  tiler preview -i scene.tif --bands 3,2,1 --width 1024 --height 768 -o rgb.jpg`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringP("input", "i", "", "image to preview (required)")
	previewCmd.Flags().StringP("output", "o", "preview.png", "thumbnail file; the extension picks the format")
	previewCmd.Flags().StringP("bands", "b", "", "0-based band indices to show, e.g. 3,2,1 (default: all)")
	previewCmd.Flags().String("normalize", "minmax", "16-bit to 8-bit conversion (none|minmax|clip)")
	previewCmd.Flags().Int("width", 512, "maximum thumbnail width")
	previewCmd.Flags().Int("height", 512, "maximum thumbnail height")

	viper.BindPFlag("preview.input", previewCmd.Flags().Lookup("input"))
	viper.BindPFlag("preview.output", previewCmd.Flags().Lookup("output"))
	viper.BindPFlag("preview.bands", previewCmd.Flags().Lookup("bands"))
	viper.BindPFlag("preview.normalize", previewCmd.Flags().Lookup("normalize"))
	viper.BindPFlag("preview.width", previewCmd.Flags().Lookup("width"))
	viper.BindPFlag("preview.height", previewCmd.Flags().Lookup("height"))
}

func runPreview(cmd *cobra.Command, args []string) error {
	input := viper.GetString("preview.input")
	if input == "" {
		return fmt.Errorf("an input image is required (use --input)")
	}
	output := viper.GetString("preview.output")

	format, err := codec.FormatOf(output)
	if err != nil {
		return err
	}
	if !format.Writable() {
		return fmt.Errorf("%w: %s output cannot be written", tile.ErrIOWrite, format)
	}
	bands, err := tile.ParseBands(viper.GetString("preview.bands"))
	if err != nil {
		return err
	}
	norm, err := raster.ParseNormalization(viper.GetString("preview.normalize"))
	if err != nil {
		return err
	}
	sel, err := newSelector()
	if err != nil {
		return err
	}

	p := newProvider()
	src, err := p.Decode(input)
	if err != nil {
		return err
	}

	keep, advisory, err := sel.Resolve(src.Bands, bands, format)
	if err != nil {
		return err
	}
	if !raster.Encodable(len(keep)) {
		return fmt.Errorf("%w: %d bands cannot be previewed", tile.ErrInvalidBandSelection, len(keep))
	}
	if advisory != nil {
		newLogger(cmd).Printf("Warning: %s", advisory)
	}

	img, err := src.Extract(tile.Box{Width: src.Width, Height: src.Height}, keep)
	if err != nil {
		return err
	}
	thumb, err := img.Normalize(norm).Thumbnail(viper.GetInt("preview.width"), viper.GetInt("preview.height"))
	if err != nil {
		return err
	}

	if err := p.Encode(thumb, output, format); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %dx%d preview of bands %s to %s\n",
		thumb.Width, thumb.Height, keep, output)
	return nil
}
