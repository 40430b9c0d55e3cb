// Command normals estimates per-point surface normals for a point cloud.
//
// Usage:
//
//	normals -in cloud.pwn -out cloud.obj [-config tuning.json] [-k 20]
//	        [-align 0,0,1 | -viewpoint x,y,z] [-center] [-db runs.db]
//	        [-hist deviation.png] [-scatter scatter.html] [-server URL]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/pointnormals/internal/api"
	"github.com/banshee-data/pointnormals/internal/cloudio"
	"github.com/banshee-data/pointnormals/internal/config"
	"github.com/banshee-data/pointnormals/internal/geom"
	"github.com/banshee-data/pointnormals/internal/monitoring"
	"github.com/banshee-data/pointnormals/internal/normals"
	"github.com/banshee-data/pointnormals/internal/report"
	"github.com/banshee-data/pointnormals/internal/store/sqlite"
	"github.com/banshee-data/pointnormals/internal/version"
)

var errUsage = errors.New("usage")

type options struct {
	in, out    string
	configPath string
	k, cells   int
	workers    int
	fallback   string
	align      string
	viewpoint  string
	center     bool
	dbPath     string
	histPath   string
	histRef    string
	scatter    string
	server     string
	quiet      bool
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("normals", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.in, "in", "", "Input cloud (.pwn, .obj or .pnb)")
	fs.StringVar(&o.out, "out", "", "Output cloud with normals; format from extension")
	fs.StringVar(&o.configPath, "config", "", "Tuning JSON file (defaults built in)")
	fs.IntVar(&o.k, "k", 0, "Neighbours per fit (overrides config)")
	fs.IntVar(&o.cells, "cells", 0, "Grid cells per dimension (overrides config)")
	fs.IntVar(&o.workers, "workers", 0, "Concurrent workers (overrides config; 0 keeps config)")
	fs.StringVar(&o.fallback, "fallback", "", "Fallback for unfitted points: zero or keep (overrides config)")
	fs.StringVar(&o.align, "align", "", "Orient normals towards this direction, x,y,z")
	fs.StringVar(&o.viewpoint, "viewpoint", "", "Orient normals towards this point, x,y,z")
	fs.BoolVar(&o.center, "center", false, "Translate the output cloud so its bounding box is centred on the origin")
	fs.StringVar(&o.dbPath, "db", "", "Record the run in this SQLite database")
	fs.StringVar(&o.histPath, "hist", "", "Write a PNG histogram of normal deviation angles")
	fs.StringVar(&o.histRef, "hist-ref", "0,0,1", "Reference direction for -hist, x,y,z")
	fs.StringVar(&o.scatter, "scatter", "", "Write an HTML scatter plot coloured by normal z")
	fs.StringVar(&o.server, "server", "", "Estimate on a remote normals-server at this URL")
	fs.BoolVar(&o.quiet, "quiet", false, "Suppress diagnostic logging")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.version {
		return o, nil
	}
	if o.in == "" {
		return nil, fmt.Errorf("%w: -in is required", errUsage)
	}
	if o.align != "" && o.viewpoint != "" {
		return nil, fmt.Errorf("%w: -align and -viewpoint are exclusive", errUsage)
	}
	if o.server != "" {
		if o.dbPath != "" {
			return nil, fmt.Errorf("%w: -db records local runs only; the server keeps its own", errUsage)
		}
		// The server estimates with its own tuning.
		var local []string
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "config", "k", "cells", "workers", "fallback":
				local = append(local, "-"+f.Name)
			}
		})
		if len(local) > 0 {
			return nil, fmt.Errorf("%w: %s tune local runs only; the server uses its own config",
				errUsage, strings.Join(local, ", "))
		}
	}
	return o, nil
}

// loadTuning reads the tuning file and applies flag overrides.
func loadTuning(o *options) (*config.TuningConfig, error) {
	tc := config.DefaultTuningConfig()
	if o.configPath != "" {
		loaded, err := config.LoadTuningConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		tc = loaded
	}
	if o.k > 0 {
		tc.KNeighbors = &o.k
	}
	if o.cells > 0 {
		tc.CellsPerDimension = &o.cells
	}
	if o.workers > 0 {
		tc.Workers = &o.workers
	}
	if o.fallback != "" {
		tc.Fallback = &o.fallback
	}
	return tc, tc.Validate()
}

// summary is what either estimation path reports back.
type summary struct {
	runID      string
	cellSize   float64
	counts     normals.Counts
	flipped    int
	expansions int
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, version.String("normals"))
		return nil
	}
	if o.quiet {
		monitoring.SetLogger(nil)
	}

	tc, err := loadTuning(o)
	if err != nil {
		return err
	}
	cfg, err := normals.ConfigFromTuning(tc)
	if err != nil {
		return err
	}

	cloud, err := cloudio.Read(o.in)
	if err != nil {
		return err
	}

	var sum summary
	if o.server != "" {
		sum, err = estimateRemote(ctx, o, cloud)
	} else {
		sum, err = estimateLocal(ctx, o, cfg, cloud)
	}
	if err != nil {
		return err
	}

	if err := orient(o, cloud); err != nil {
		return err
	}
	if o.center {
		off := geom.Center(cloud.Points)
		monitoring.Logf("centred cloud, offset %v", off)
	}

	if o.out != "" {
		if err := cloudio.Write(o.out, cloud); err != nil {
			return err
		}
	}
	if o.histPath != "" {
		if err := writeHistogram(o, cloud, tc.GetHistogramBins()); err != nil {
			return err
		}
	}
	if o.scatter != "" {
		if err := writeFile(o.scatter, func(w io.Writer) error {
			return report.RenderScatterHTML(w, filepath.Base(o.in), cloud.Points, cloud.Normals, api.DefaultScatterPoints)
		}); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "points=%d ok=%d insufficient=%d degenerate=%d flipped=%d expansions=%d cell=%g",
		cloud.Len(), sum.counts.OK, sum.counts.Insufficient, sum.counts.Degenerate,
		sum.flipped, sum.expansions, sum.cellSize)
	if sum.runID != "" {
		fmt.Fprintf(stdout, " run=%s", sum.runID)
	}
	fmt.Fprintln(stdout)
	return nil
}

func estimateLocal(ctx context.Context, o *options, cfg normals.Config, cloud *cloudio.Cloud) (summary, error) {
	est, err := normals.NewEstimator(cfg)
	if err != nil {
		return summary{}, err
	}
	res, err := est.Estimate(ctx, cloud.Points, cloud.EnsureNormals())
	if err != nil {
		return summary{}, err
	}
	sum := summary{
		cellSize:   res.CellSize,
		counts:     res.Counts,
		flipped:    res.Flipped,
		expansions: res.Expansions,
	}
	if o.dbPath == "" {
		return sum, nil
	}

	db, err := sqlite.Open(o.dbPath)
	if err != nil {
		return summary{}, err
	}
	defer db.Close()
	rec, err := api.NewRun(filepath.Base(o.in), cloud.Len(), cfg, res)
	if err != nil {
		return summary{}, err
	}
	if err := sqlite.NewRunStore(db.DB).Insert(rec); err != nil {
		return summary{}, err
	}
	monitoring.Logf("recorded run %s in %s", rec.RunID, db.Path())
	sum.runID = rec.RunID
	return sum, nil
}

func estimateRemote(ctx context.Context, o *options, cloud *cloudio.Cloud) (summary, error) {
	resp, err := api.NewClient(o.server, nil).Estimate(ctx, cloud, filepath.Base(o.in))
	if err != nil {
		return summary{}, err
	}
	return summary{
		runID:      resp.RunID,
		cellSize:   resp.CellSize,
		counts:     resp.Counts,
		flipped:    resp.Flipped,
		expansions: resp.Expansions,
	}, nil
}

func orient(o *options, cloud *cloudio.Cloud) error {
	var (
		flipped int
		err     error
		target  r3.Vector
	)
	switch {
	case o.align != "":
		if target, err = geom.ParseVector(o.align); err != nil {
			return err
		}
		flipped, err = normals.AlignToReference(cloud.Normals, target)
	case o.viewpoint != "":
		if target, err = geom.ParseVector(o.viewpoint); err != nil {
			return err
		}
		flipped, err = normals.AlignToViewpoint(cloud.Points, cloud.Normals, target)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	monitoring.Logf("oriented normals towards %v, flipped %d", target, flipped)
	return nil
}

func writeHistogram(o *options, cloud *cloudio.Cloud, bins int) error {
	ref, err := geom.ParseVector(o.histRef)
	if err != nil {
		return err
	}
	angles, err := report.DeviationAngles(cloud.Normals, ref)
	if err != nil {
		return err
	}
	if s, err := report.Summarize(angles); err == nil {
		monitoring.Logf("deviation from %v: n=%d mean=%.2f median=%.2f p95=%.2f max=%.2f",
			ref, s.Count, s.Mean, s.Median, s.P95, s.Max)
	}
	return writeFile(o.histPath, func(w io.Writer) error {
		return report.WriteHistogramPNG(w, "Normal deviation", "angle (deg)", angles, bins)
	})
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("normals: %v", err)
	}
}
