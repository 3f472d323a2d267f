package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Scan a tile directory and report the merged image size",
	Long: `Scan a tile directory without decoding any pixels and report the canvas
a merge would produce, the memory it needs and the files that would be
ignored.

Examples:
  tiler estimate -d tiles
  tiler estimate -d tiles --ext jpg --json`,
	Args: cobra.NoArgs,
	RunE: runEstimate,
}

var estimateKeys = []string{"dir", "ext"}

func init() {
	rootCmd.AddCommand(estimateCmd)

	estimateCmd.Flags().StringP("dir", "d", "", "directory of tiles (required)")
	estimateCmd.Flags().StringP("ext", "e", "", "tile extension (default: any readable format)")
	estimateCmd.Flags().Bool("json", false, "print the scan as JSON on stdout")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, "merge", estimateKeys)

	dir := viper.GetString("merge.dir")
	if dir == "" {
		return fmt.Errorf("a tile directory is required (use --dir)")
	}

	m, err := newMerger(cmd)
	if err != nil {
		return err
	}

	scan, err := m.Scan(cmd.Context(), dir, viper.GetString("merge.ext"))
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(scan)
	}

	out := cmd.OutOrStdout()
	c := scan.Canvas
	fmt.Fprintf(out, "Tiles:    %d\n", len(scan.Records))
	fmt.Fprintf(out, "Ignored:  %d\n", len(scan.Ignored))
	fmt.Fprintf(out, "Canvas:   %dx%d, %d bands %s\n", c.Width, c.Height, c.Bands, c.Depth)
	fmt.Fprintf(out, "Memory:   %.1f MiB\n", float64(scan.Bytes)/(1<<20))
	if scan.Available > 0 {
		fmt.Fprintf(out, "Available: %.1f MiB\n", float64(scan.Available)/(1<<20))
	}
	if !scan.Fits() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: the merged image does not fit in available memory\n")
	}
	return nil
}
