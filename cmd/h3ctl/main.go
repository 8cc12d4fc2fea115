// Command h3ctl answers cell level questions from the shell: which cell a
// point falls in, ring contents, grid distances and resolution sizes.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var asJSON bool
	root := &cobra.Command{
		Use:           "h3ctl",
		Short:         "Inspect H3 cells used by the facility locator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of text")

	out := func(cmd *cobra.Command, text string, v any) error {
		w := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		_, err := io.WriteString(w, text)
		return err
	}

	root.AddCommand(
		cellCmd(out),
		coordsCmd(out),
		ringCmd(out),
		distanceCmd(out),
		ringsCmd(out),
		infoCmd(out),
	)
	return root
}

type printer func(cmd *cobra.Command, text string, v any) error

func cellCmd(out printer) *cobra.Command {
	var lat, lng float64
	var res int
	cmd := &cobra.Command{
		Use:   "cell",
		Short: "Print the cell containing a coordinate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := spatial.NewCoordinate(lat, lng)
			if err != nil {
				return err
			}
			id, err := spatial.ToCell(c, res)
			if err != nil {
				return err
			}
			return out(cmd, id.String()+"\n", map[string]any{
				"h3_index":   id,
				"resolution": id.Resolution(),
				"latitude":   c.Lat,
				"longitude":  c.Lng,
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude in degrees")
	cmd.Flags().IntVarP(&res, "res", "r", spatial.IndexResolution, "H3 resolution (0-15)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func coordsCmd(out printer) *cobra.Command {
	return &cobra.Command{
		Use:   "coords CELL",
		Short: "Print the center of a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := spatial.ParseCellID(args[0])
			if err != nil {
				return err
			}
			c, err := spatial.ToCoords(id)
			if err != nil {
				return err
			}
			return out(cmd, c.String()+"\n", c)
		},
	}
}

func ringCmd(out printer) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "ring CELL",
		Short: "List every cell within k steps of CELL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := spatial.ParseCellID(args[0])
			if err != nil {
				return err
			}
			ring, err := spatial.Ring(id, k)
			if err != nil {
				return err
			}
			cells := ring.Strings()
			var text []byte
			for _, c := range cells {
				text = append(text, c...)
				text = append(text, '\n')
			}
			return out(cmd, string(text), map[string]any{
				"center": id,
				"k":      k,
				"count":  len(cells),
				"cells":  cells,
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 1, "ring size")
	return cmd
}

func distanceCmd(out printer) *cobra.Command {
	return &cobra.Command{
		Use:   "distance CELL CELL",
		Short: "Print the grid distance between two cells",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := spatial.ParseCellIDs(args)
			if err != nil {
				return err
			}
			d, err := spatial.GridDistance(ids[0], ids[1])
			if err != nil {
				return err
			}
			return out(cmd, strconv.Itoa(d)+"\n", map[string]any{
				"from":     ids[0],
				"to":       ids[1],
				"distance": d,
			})
		},
	}
}

func ringsCmd(out printer) *cobra.Command {
	var km float64
	var res int
	cmd := &cobra.Command{
		Use:   "rings",
		Short: "Estimate the ring size that covers a distance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := spatial.RingsForDistance(km, res)
			if err != nil {
				return err
			}
			radius, err := spatial.RingRadiusKm(k, res)
			if err != nil {
				return err
			}
			cells := spatial.MaxRingCells(k)
			text := fmt.Sprintf("k=%d cells=%d radius_km=%.3f\n", k, cells, radius)
			return out(cmd, text, map[string]any{
				"distance_km": km,
				"resolution":  res,
				"rings":       k,
				"ring_cells":  cells,
				"radius_km":   radius,
			})
		},
	}
	cmd.Flags().Float64Var(&km, "km", 50, "distance to cover in kilometres")
	cmd.Flags().IntVarP(&res, "res", "r", spatial.IndexResolution, "H3 resolution (0-15)")
	return cmd
}

func infoCmd(out printer) *cobra.Command {
	return &cobra.Command{
		Use:   "info [RES]",
		Short: "Print nominal cell sizes, for one resolution or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := spatial.Resolutions()
			if len(args) == 1 {
				res, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("resolution %q: %w", args[0], spatial.ErrInvalidResolution)
				}
				info, err := spatial.Info(res)
				if err != nil {
					return err
				}
				infos = []spatial.ResolutionInfo{info}
			}
			var text []byte
			for _, ri := range infos {
				text = fmt.Appendf(text, "%2d  edge %12.6f km  area %16.9f km2  %s\n",
					ri.Resolution, ri.AvgEdgeKm, ri.AvgAreaKm2, ri.Description)
			}
			return out(cmd, string(text), infos)
		},
	}
}
