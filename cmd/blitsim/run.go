package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/config"
	"github.com/gogpu/blit/pixel"
	"github.com/gogpu/blit/queue"
	"github.com/gogpu/blit/softhw"
	"github.com/gogpu/blit/vm"
)

type runOptions struct {
	root        *rootOptions
	pngPath     string
	metricsPath string
	failMap     bool
}

// userASID is the address space the demo jobs are submitted from.
const userASID = 1

var errMapInjected = errors.New("injected translation fault")

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo job set",
		Long: `run submits a fixed set of compositing jobs (scaled background, solid
fill, sprite blend, rotated translucent sprite, tiling, fade) to the executor
and prints the outcome of each. The last job targets a separate buffer and
fails to map when --fail-map is set, exercising the software fallback path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return opts.run(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.pngPath, "png", "", "write the composited canvas to this PNG file")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-file", "", "write Prometheus metrics in text format to this file")
	cmd.Flags().BoolVar(&opts.failMap, "fail-map", false, "make the last job's destination fail to map")
	return cmd
}

// result is the outcome of one demo job.
type result struct {
	name    string
	job     *blit.Job
	state   blit.State
	reduced blit.Operator
	err     error
}

func (o *runOptions) run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, closer, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer closer.Close()
	blit.SetLogger(logger)
	defer blit.SetLogger(nil)

	var (
		reg     *prometheus.Registry
		metrics *blit.Metrics
	)
	if cfg.Metrics.Enabled || o.metricsPath != "" {
		reg = prometheus.NewRegistry()
		metrics = blit.NewMetrics(cfg.Metrics.Namespace, reg)
	}

	kernel := vm.NewKernel()
	iommu := vm.NewIOMMU()
	dev := softhw.New(vm.NewBus(kernel, iommu), cfg.DeviceOptions()...)
	defer dev.Close()
	q := queue.New(queue.WithCapacity(cfg.Engine.QueueCapacity))
	ex := blit.NewExecutor(dev, iommu, q, cfg.ExecutorOptions(metrics)...)

	sp := vm.NewSpace(userASID)
	defer sp.Exit()
	canvas, err := allocImage(sp, pixel.FormatXRGB8888, canvasSize, canvasSize, func(int, int) color.NRGBA {
		return color.NRGBA{A: 255}
	})
	if err != nil {
		return err
	}
	jobs, scratch, err := demoJobs(sp, canvas)
	if err != nil {
		return err
	}
	if o.failMap {
		iommu.FailOn(func(asid, base uint64) error {
			if asid == userASID && base == scratch.Addr {
				return errMapInjected
			}
			return nil
		})
	}

	for _, d := range jobs {
		if err := q.Enqueue(d.job); err != nil {
			return fmt.Errorf("enqueue %s: %w", d.name, err)
		}
	}
	logger.Info("blitsim: running demo", slog.Int("jobs", q.Len()))

	ex.Start(ctx)
	ex.Kick()
	results := make([]result, 0, len(jobs))
	for _, d := range jobs {
		st, err := q.Wait(ctx, d.job)
		if err != nil {
			ex.Close()
			return err
		}
		results = append(results, result{name: d.name, job: d.job, state: st, reduced: d.job.ReducedOp(), err: d.job.Err()})
	}
	ex.Close()

	writeResults(out, results)
	s := ex.State().Stats()
	fmt.Fprintf(out, "\nkicks=%d completions=%d resets=%d outstanding_mappings=%d\n",
		s.Kicks, s.Completions, s.Resets, iommu.Outstanding())

	if o.pngPath != "" {
		if err := writePNG(o.pngPath, sp, canvas); err != nil {
			return err
		}
		fmt.Fprintf(out, "canvas written to %s\n", o.pngPath)
	}
	if o.metricsPath != "" {
		if err := prometheus.WriteToTextfile(o.metricsPath, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func writeResults(w io.Writer, results []result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"job", "id", "op", "programmed", "state", "error"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range results {
		errText := ""
		if r.err != nil {
			errText = r.err.Error()
			if errors.Is(r.err, blit.ErrFallbackToSoftware) {
				errText += " (software fallback)"
			}
		}
		table.Append([]string{
			r.name,
			r.job.ID.String()[:8],
			r.job.Params.Op.String(),
			r.reduced.String(),
			r.state.String(),
			errText,
		})
	}
	table.Render()
}

func writePNG(path string, sp *vm.Space, im blit.Image) error {
	img, err := snapshot(sp, im)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
