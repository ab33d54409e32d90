package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb/maptile"
	"github.com/spf13/cobra"
	"github.com/valri11/planoverlay/overlay"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "List the tiles an overlay covers",
	RunE:  tilesMain,
}

func init() {
	rootCmd.AddCommand(tilesCmd)

	tilesCmd.Flags().String("overlay", "", "overlay id (may be omitted when only one is configured)")
	tilesCmd.Flags().Int("min-zoom", 16, "first zoom level")
	tilesCmd.Flags().Int("max-zoom", 19, "last zoom level")
}

func tilesMain(cmd *cobra.Command, args []string) error {
	_, overlays, err := setupOverlays(context.Background())
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("overlay")
	fromZoom, _ := cmd.Flags().GetInt("min-zoom")
	toZoom, _ := cmd.Flags().GetInt("max-zoom")

	o, err := findOverlay(overlays, id)
	if err != nil {
		return err
	}
	return listTiles(cmd.OutOrStdout(), o, fromZoom, toZoom)
}

// listTiles writes one line per covered tile: its address and lon/lat
// bounds.
func listTiles(w io.Writer, o *overlay.Overlay, fromZoom, toZoom int) error {
	if fromZoom < 0 || toZoom < fromZoom || toZoom > maxZoom {
		return fmt.Errorf("bad zoom range %d..%d", fromZoom, toZoom)
	}

	for z := fromZoom; z <= toZoom; z++ {
		minX, minY, maxX, maxY, ok := o.TileRange(z)
		if !ok {
			continue
		}
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				b := maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Bound()
				_, err := fmt.Fprintf(w, "%d/%d/%d\t%.8f,%.8f,%.8f,%.8f\n",
					z, x, y, b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}
