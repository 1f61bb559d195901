package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/mapsync/internal/application/fetcher"
	"github.com/turtacn/mapsync/internal/application/mapview"
	"github.com/turtacn/mapsync/internal/config"
	"github.com/turtacn/mapsync/internal/domain/render"
	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// FetchOptions describes one viewport query.
type FetchOptions struct {
	Bounds  geo.Bounds
	Zoom    float64
	Filters geo.Filters
}

// FetchResult is what fetch prints.
type FetchResult struct {
	Mode       geo.FetchMode   `json:"mode"`
	Precision  int             `json:"precision"`
	Sequence   uint64          `json:"sequence"`
	TotalCount int             `json:"total_count"`
	Count      int             `json:"count"`
	Entities   []geo.GeoEntity `json:"entities"`
	Markers    []render.Marker `json:"markers"`
}

// TableHeaders implements tableProvider.
func (r *FetchResult) TableHeaders() []string {
	return []string{"Kind", "Label", "Count", "Lat", "Lng", "Entity"}
}

// TableRows implements tableProvider.
func (r *FetchResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Markers))
	for _, m := range r.Markers {
		rows = append(rows, []string{
			string(m.Kind),
			m.Label,
			strconv.Itoa(m.Count),
			strconv.FormatFloat(m.Position.Lat, 'f', 5, 64),
			strconv.FormatFloat(m.Position.Lng, 'f', 5, 64),
			truncateString(m.EntityID, 24),
		})
	}
	return rows
}

func (r *FetchResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s (precision %d, sequence %d)\n",
		color.CyanString("mode:"), r.Mode, r.Precision, r.Sequence)
	fmt.Fprintf(&sb, "%s %d visible, %d in area\n\n", color.CyanString("listings:"), r.Count, r.TotalCount)
	sb.WriteString(FormatTable(r.TableHeaders(), r.TableRows()))
	return sb.String()
}

func newFetchCmd() *cobra.Command {
	var (
		opts                  FetchOptions
		minPrice, maxPrice    float64
		minBedrooms           int
		category, transaction string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Query one viewport and print the visible set and markers",
		Example: "  mapsync fetch --north 40.80 --south 40.70 --east -73.90 --west -74.00 --zoom 14\n" +
			"  mapsync fetch --north 40.8 --south 40.7 --east -73.9 --west -74 --zoom 16 --min-price 500000 -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("min-price") {
				opts.Filters.MinPrice = &minPrice
			}
			if f.Changed("max-price") {
				opts.Filters.MaxPrice = &maxPrice
			}
			if f.Changed("min-bedrooms") {
				opts.Filters.MinBedrooms = &minBedrooms
			}
			opts.Filters.Category = category
			opts.Filters.TransactionType = transaction

			svc, err := newSpatialService(cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
			defer cancel()

			res, err := runFetch(ctx, cliCtx.Config, svc, cliCtx.Logger, opts)
			if err != nil {
				return err
			}
			return PrintResult(cmd, res)
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&opts.Bounds.North, "north", 0, "north edge latitude")
	fl.Float64Var(&opts.Bounds.South, "south", 0, "south edge latitude")
	fl.Float64Var(&opts.Bounds.East, "east", 0, "east edge longitude")
	fl.Float64Var(&opts.Bounds.West, "west", 0, "west edge longitude")
	fl.Float64Var(&opts.Zoom, "zoom", 0, "camera zoom level")
	fl.Float64Var(&minPrice, "min-price", 0, "minimum listing price")
	fl.Float64Var(&maxPrice, "max-price", 0, "maximum listing price")
	fl.IntVar(&minBedrooms, "min-bedrooms", 0, "minimum bedroom count")
	fl.StringVar(&category, "category", "", "listing category")
	fl.StringVar(&transaction, "transaction-type", "", "sale or rent")
	for _, name := range []string{"north", "south", "east", "west", "zoom"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// runFetch drives a throwaway engine through one programmatic move and
// returns the applied result.
func runFetch(ctx context.Context, cfg *config.Config, svc fetcher.Service, logger logging.Logger, opts FetchOptions) (*FetchResult, error) {
	engine, err := mapview.New(engineConfig(cfg), svc, mapview.WithLogger(logger.Named("engine")))
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	delivered := make(chan struct{}, 1)
	unregister := engine.RegisterListPanel(func(*visibleset.VisibleSet) {
		select {
		case delivered <- struct{}{}:
		default:
		}
	})

	if !opts.Filters.IsZero() {
		engine.SetFilters(opts.Filters)
	}
	if err := engine.FlyTo(opts.Bounds, opts.Zoom); err != nil {
		unregister()
		return nil, err
	}

	select {
	case <-delivered:
	case <-ctx.Done():
		unregister()
		return nil, errors.New(errors.ErrCodeTimeout, "no result before the deadline").WithCause(ctx.Err())
	}
	unregister()

	// Close waits for the fetch goroutine, so every notice for this request
	// is buffered by the time Notices is closed.
	engine.Close()
	if n, ok := <-engine.Notices(); ok {
		return nil, errors.New(n.Code, n.Message)
	}

	snap := engine.Snapshot()
	return &FetchResult{
		Mode:       snap.Mode,
		Precision:  snap.Precision,
		Sequence:   snap.Sequence,
		TotalCount: snap.TotalCount,
		Count:      snap.VisibleSet.Len(),
		Entities:   snap.VisibleSet.Entities(),
		Markers:    snap.Markers,
	}, nil
}

//Personal.AI order the ending
