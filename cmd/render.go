package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/valri11/planoverlay/overlay"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one overlay tile to a PNG file",
	RunE:  renderMain,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().String("overlay", "", "overlay id (may be omitted when only one is configured)")
	renderCmd.Flags().IntP("zoom", "z", 0, "tile zoom")
	renderCmd.Flags().Int("x", 0, "tile column")
	renderCmd.Flags().Int("y", 0, "tile row")
	renderCmd.Flags().Int("size", 0, "output edge in pixels (default is the render size)")
	renderCmd.Flags().Float64("opacity", 1, "overlay opacity")
	renderCmd.Flags().String("tint", "", "hex color to tint the overlay with")
	renderCmd.Flags().Float64("tint-amount", 1, "tint strength from 0 to 1")
	renderCmd.Flags().StringP("out", "o", "tile.png", "output file")
}

func renderMain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, overlays, err := setupOverlays(ctx)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	id, _ := flags.GetString("overlay")
	z, _ := flags.GetInt("zoom")
	x, _ := flags.GetInt("x")
	y, _ := flags.GetInt("y")
	outFile, _ := flags.GetString("out")

	style := defaultTileStyle()
	style.size, _ = flags.GetInt("size")
	style.opacity, _ = flags.GetFloat64("opacity")
	style.tintAmount, _ = flags.GetFloat64("tint-amount")
	if v, _ := flags.GetString("tint"); v != "" {
		tint, err := ParseTint(v)
		if err != nil {
			return fmt.Errorf("bad tint %q: %w", v, err)
		}
		style.tint = &tint
	}

	o, err := findOverlay(overlays, id)
	if err != nil {
		return err
	}

	dt1 := time.Now()
	out, drawn, err := renderTilePNG(ctx, o, z, x, y, style)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, out, 0644); err != nil {
		return err
	}
	dt2 := time.Now()
	log.Printf("Rendered %s %d/%d/%d (drawn=%v) to %s in %v", o.ID(), z, x, y, drawn, outFile, dt2.Sub(dt1))
	return nil
}

// renderTilePNG renders and encodes one tile.
func renderTilePNG(ctx context.Context, o *overlay.Overlay, z, x, y int, style tileStyle) ([]byte, bool, error) {
	if _, _, _, err := tileAddress(map[string]string{
		"z": fmt.Sprint(z), "x": fmt.Sprint(x), "y": fmt.Sprint(y),
	}); err != nil {
		return nil, false, err
	}

	tile, err := o.FetchTile(ctx, x, y, z)
	if err != nil {
		return nil, false, err
	}

	out, err := encodeTile(tile, style)
	if err != nil {
		return nil, false, err
	}
	return out, tile.Drawn, nil
}
