package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
)

var (
	prepDisplay   string
	prepPalette   string
	prepMethod    string
	prepCrop      string
	prepOutput    string
	prepMaxPixels int
)

var prepareCmd = &cobra.Command{
	Use:   "prepare [image file]",
	Short: "Crop, resample and dither an image for a display",
	Long: `Prepare an image for a display and write the indexed PNG.

Examples:
  inkprep prepare photo.jpg --display impression480
  inkprep prepare photo.jpg -d phat104 -p yellow -o badge.png
  inkprep prepare photo.jpg -d spectra480 --crop 120,0,1600,960 -m atkinson

Without --crop the largest centered area with the display's aspect ratio
is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)

	prepareCmd.Flags().StringVarP(&prepDisplay, "display", "d", "", "Target display (see 'inkprep displays')")
	prepareCmd.Flags().StringVarP(&prepPalette, "palette", "p", "", "Palette, for displays that support more than one")
	prepareCmd.Flags().StringVarP(&prepMethod, "method", "m", string(imageprocessing.MethodFloydSteinberg), "Dither method")
	prepareCmd.Flags().StringVar(&prepCrop, "crop", "", "Crop region in source pixels: x,y,width,height")
	prepareCmd.Flags().StringVarP(&prepOutput, "output", "o", "", "Output file (default <input>-<display>.png)")
	prepareCmd.Flags().IntVar(&prepMaxPixels, "max-pixels", imageprocessing.DefaultMaxPixels, "Refuse sources with more pixels than this")
	_ = prepareCmd.MarkFlagRequired("display")
}

// parseCrop reads "x,y,width,height".
func parseCrop(s string) (*imageprocessing.CropRegion, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("crop must be x,y,width,height, got %q", s)
	}
	var vals [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("crop value %q is not an integer", p)
		}
		vals[i] = n
	}
	return &imageprocessing.CropRegion{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func defaultOutputPath(input string, v display.Variant) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return fmt.Sprintf("%s-%s.png", base, v)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	input := args[0]

	profile, err := display.Resolve(prepDisplay, prepPalette)
	if err != nil {
		return err
	}
	method, err := imageprocessing.ParseMethod(prepMethod)
	if err != nil {
		return err
	}
	region, err := parseCrop(prepCrop)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	logging.DebugWithComponent(logging.ComponentCLI, "Preparing image",
		"input", input, "display", profile.Variant, "palette", profile.Palette.Name(), "method", method)

	start := time.Now()
	out, err := imageprocessing.Prepare(context.Background(), imageprocessing.Request{
		Source:    source,
		Region:    region,
		Profile:   profile,
		Method:    method,
		MaxPixels: prepMaxPixels,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", imageprocessing.UserMessage(err), err)
	}

	output := prepOutput
	if output == "" {
		output = defaultOutputPath(input, profile.Variant)
	}
	if err := os.WriteFile(output, out.PNG, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s -> %s (%dx%d, %s palette, %s, %s) in %s\n",
		input, out.Source.Width, out.Source.Height, out.Source.Format,
		output, out.Width, out.Height, profile.Palette.Name(), method,
		humanize.Bytes(uint64(len(out.PNG))), time.Since(start).Round(time.Millisecond))
	return nil
}
