package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
)

var dimensionsCmd = &cobra.Command{
	Use:   "dimensions [image file]...",
	Short: "Print image dimensions read from the file header",
	Long: `Print width, height and format of each image without decoding pixel
data. Supports PNG, JPEG, GIF, WebP and BMP.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDimensions,
}

func init() {
	rootCmd.AddCommand(dimensionsCmd)
}

func runDimensions(cmd *cobra.Command, args []string) error {
	var failed int
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		dims, err := imageprocessing.ReadDimensions(data)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s\n", path, dims.Width, dims.Height, dims.Format)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(args))
	}
	return nil
}
