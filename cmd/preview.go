package cmd

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valri11/planoverlay/overlay"
	"golang.org/x/sync/errgroup"
)

// upper bound on tiles stitched into one preview
const maxPreviewTiles = 1024

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render every tile an overlay covers at a zoom into one mosaic PNG",
	RunE:  previewMain,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().String("overlay", "", "overlay id (may be omitted when only one is configured)")
	previewCmd.Flags().IntP("zoom", "z", 18, "zoom level")
	previewCmd.Flags().StringP("out", "o", "preview.png", "output file")
	previewCmd.Flags().Int("concurrency", MaxConcurrency, "tiles rendered in parallel")
	bindFlag("render.concurrency", previewCmd.Flags().Lookup("concurrency"))
}

func previewMain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, overlays, err := setupOverlays(ctx)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("overlay")
	z, _ := cmd.Flags().GetInt("zoom")
	outFile, _ := cmd.Flags().GetString("out")

	o, err := findOverlay(overlays, id)
	if err != nil {
		return err
	}

	dt1 := time.Now()
	mosaic, err := renderMosaic(ctx, o, z, viper.GetInt("render.concurrency"))
	if err != nil {
		return err
	}

	out, err := EncodePNG(mosaic)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, out, 0644); err != nil {
		return err
	}
	dt2 := time.Now()
	log.Printf("Preview %s z=%d %v to %s in %v", o.ID(), z, mosaic.Bounds().Size(), outFile, dt2.Sub(dt1))
	return nil
}

// renderMosaic renders the tiles covering o at zoom z, at most limit at a
// time, and stitches them at the logical tile size.
func renderMosaic(ctx context.Context, o *overlay.Overlay, z, limit int) (*image.RGBA, error) {
	minX, minY, maxX, maxY, ok := o.TileRange(z)
	if !ok {
		return nil, fmt.Errorf("overlay %s covers no tiles at zoom %d", o.ID(), z)
	}
	cols, rows := maxX-minX+1, maxY-minY+1
	if cols*rows > maxPreviewTiles {
		return nil, fmt.Errorf("zoom %d needs %d tiles, limit is %d", z, cols*rows, maxPreviewTiles)
	}

	tileSize := o.Size()
	mosaic := image.NewRGBA(image.Rect(0, 0, cols*tileSize, rows*tileSize))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for ty := minY; ty <= maxY; ty++ {
		for tx := minX; tx <= maxX; tx++ {
			tx, ty := tx, ty
			g.Go(func() error {
				tile, err := o.FetchTile(ctx, tx, ty, z)
				if err != nil {
					return fmt.Errorf("tile %d/%d/%d: %w", z, tx, ty, err)
				}
				if !tile.Drawn {
					return nil
				}
				img := ResizeImage(tile.Image, tileSize)
				at := image.Pt((tx-minX)*tileSize, (ty-minY)*tileSize)
				// tiles own disjoint regions of the mosaic
				draw.Draw(mosaic, image.Rectangle{Min: at, Max: at.Add(img.Bounds().Size())}, img, image.Point{}, draw.Src)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mosaic, nil
}
