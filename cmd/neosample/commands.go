package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/saulfrancisco-ruizacevedo/go-neosample"
	"github.com/saulfrancisco-ruizacevedo/go-neosample/models"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "neosample",
		Short: "Sample multi-hop neighborhoods from a Neo4j graph",
		Long: `Sample bounded multi-hop neighborhoods around seed vertices and print
the locally indexed subgraph as JSON.

Examples:
  neosample plan --config sampler.yaml
  neosample count --config sampler.yaml
  neosample sample --config sampler.yaml --seeds 12,40
  neosample sample --config sampler.yaml --batches 3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "neosample.yaml", "path to the YAML configuration")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", false, "emit logs as JSON (the default when stderr is not a terminal)")

	root.AddCommand(newPlanCmd(flags), newCountCmd(flags), newSampleCmd(flags))
	return root
}

// env bundles what every subcommand builds from the configuration.
type env struct {
	cfg      *neosample.Config
	executor *neosample.Neo4jExecutor
	schema   *neosample.Schema
	sampler  *neosample.NeighborSampler
	logger   *neosample.Logger
}

func setup(flags *rootFlags) (*env, error) {
	cfg, err := neosample.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", flags.logLevel, err)
	}
	logger := neosample.NewTextLogger(level)
	if flags.jsonLogs || !isatty.IsTerminal(os.Stderr.Fd()) {
		logger = neosample.NewJSONLogger(level)
	}

	schema, err := cfg.BuildSchema()
	if err != nil {
		return nil, err
	}
	executor, err := cfg.NewExecutor()
	if err != nil {
		return nil, err
	}
	sampler, err := neosample.NewNeighborSampler(executor, schema, cfg.Sampler, neosample.WithLogger(logger))
	if err != nil {
		_ = executor.Close(context.Background())
		return nil, err
	}
	return &env{cfg: cfg, executor: executor, schema: schema, sampler: sampler, logger: logger}, nil
}

func (e *env) close(ctx context.Context) {
	if err := e.executor.Close(ctx); err != nil {
		e.logger.Warn("closing neo4j driver", "error", err)
	}
}

func newPlanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the edge types expanded by every hop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(flags)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())
			return writePlan(cmd.OutOrStdout(), e.sampler.Config().Fanouts, e.sampler.Plan())
		},
	}
}

func writePlan(w io.Writer, fanouts []int, plan [][]neosample.EdgeType) error {
	for k, level := range plan {
		fanout := strconv.Itoa(fanouts[k])
		if fanouts[k] == neosample.FullFanout {
			fanout = "all"
		}
		if _, err := fmt.Fprintf(w, "hop %d (fanout %s)\n", k, fanout); err != nil {
			return err
		}
		for _, et := range level {
			if _, err := fmt.Fprintf(w, "  %s\n", et); err != nil {
				return err
			}
		}
	}
	return nil
}

func newCountCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count the seed vertices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(flags)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())
			n, err := neosample.NewSeedProvider(e.executor, e.cfg.Sampler.SeedType).Count(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", e.cfg.Sampler.SeedType, n)
			return err
		},
	}
}

type sampleFlags struct {
	seeds   string
	batches int
	graph   bool
}

func newSampleCmd(flags *rootFlags) *cobra.Command {
	sf := &sampleFlags{}
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample the neighborhood of seed vertices",
		Long: `Sample the neighborhood of the vertices given with --seeds, or of the
first --batches batches produced by the loader, and print the result as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(flags)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())
			return runSample(cmd.Context(), cmd.OutOrStdout(), e, sf)
		},
	}
	cmd.Flags().StringVar(&sf.seeds, "seeds", "", "comma separated vertex ids to sample around")
	cmd.Flags().IntVar(&sf.batches, "batches", 1, "number of loader batches to sample when --seeds is not set")
	cmd.Flags().BoolVar(&sf.graph, "graph", false, "print the first layer as a node/edge graph")
	return cmd
}

func runSample(ctx context.Context, w io.Writer, e *env, sf *sampleFlags) error {
	store, closeStore, err := neosample.OpenFeatureStore(e.cfg.FeatureStore, e.executor, e.schema)
	if err != nil {
		return err
	}
	defer closeStore()
	views, err := e.cfg.BuildViews(store)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	emit := func(sub *neosample.MaterializedSubgraph) error {
		if sf.graph {
			return enc.Encode(models.ExportGraph(sub.Layer(0)))
		}
		return enc.Encode(models.ExportSubgraph(sub))
	}

	if sf.seeds != "" {
		ids, err := parseSeeds(sf.seeds)
		if err != nil {
			return err
		}
		c, err := e.sampler.Sample(ctx, neosample.Frontier{e.cfg.Sampler.SeedType: ids})
		if err != nil {
			return err
		}
		sub, err := c.AddFeatures(ctx, views)
		if err != nil {
			return err
		}
		return emit(sub)
	}

	loader := &neosample.Loader{
		Sampler:       e.sampler,
		Provider:      neosample.NewSeedProvider(e.executor, e.cfg.Sampler.SeedType),
		Views:         views,
		BatchSize:     e.cfg.Loader.BatchSize,
		ShuffleBuffer: e.cfg.Loader.ShuffleBuffer,
		Seed:          e.cfg.Loader.Seed,
	}
	errDone := errors.New("requested batches sampled")
	err = loader.Run(ctx, func(_ context.Context, b neosample.Batch) error {
		if err := emit(b.Subgraph); err != nil {
			return err
		}
		if b.Index+1 >= sf.batches {
			return errDone
		}
		return nil
	})
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

func parseSeeds(s string) ([]neosample.VertexID, error) {
	parts := strings.Split(s, ",")
	ids := make([]neosample.VertexID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", p, err)
		}
		ids = append(ids, neosample.VertexID(n))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no seed ids in %q", s)
	}
	return ids, nil
}
