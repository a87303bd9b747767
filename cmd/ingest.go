package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hnsc-omics/omics-cli/internal/fetcher"
	"github.com/hnsc-omics/omics-cli/internal/ledger"
	"github.com/hnsc-omics/omics-cli/internal/pipeline"
)

var (
	ingestSource       string
	ingestURL          string
	ingestSeries       string
	ingestFile         string
	ingestTemplate     string
	ingestValuesURL    string
	ingestValuesSample string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a batch of archive payloads",
	Long: `Fetches raw payloads from an omics archive (or a local JSON batch
file), runs them through validation, parsing, and harmonization, and
loads every record into its destination store.

Re-running the same ingest is safe: records land on the same ledger
entries and store rows, and replays of fully integrated records are
skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest"))

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := ledger.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "ingest: migrate")
		}

		docs, err := openDocstore(ctx)
		if err != nil {
			return err
		}
		defer docs.Close(ctx) //nolint:errcheck

		orch, _, err := buildOrchestrator(pool, docs)
		if err != nil {
			return err
		}

		raws, err := collectRaws(cmd)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			log.Info("nothing to ingest")
			return nil
		}

		summary, run, err := orch.Run(ctx, ingestSource, raws)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Printf("run %s finished\n%s\n", run.RunID, out)
		return nil
	},
}

// collectRaws builds the raw batch from the selected input.
func collectRaws(cmd *cobra.Command) ([]pipeline.RawRecord, error) {
	ctx := cmd.Context()

	if ingestFile != "" {
		if ingestTemplate == "" {
			return nil, eris.New("ingest: --template is required with --file")
		}
		return fetcher.LoadJSONBatch(ctx, ingestFile, ingestSource, ingestTemplate)
	}

	if err := os.MkdirAll(cfg.Fetch.TempDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ingest: create temp dir %s", cfg.Fetch.TempDir)
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	switch ingestSource {
	case "geo":
		if ingestURL == "" || ingestSeries == "" {
			return nil, eris.New("ingest: --series and --url are required for source geo")
		}
		ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		})
		geo := fetcher.NewGEOSource(httpFetcher, ftpFetcher)
		raws, err := geo.FetchSeries(ctx, ingestSeries, ingestURL)
		if err != nil {
			return nil, err
		}
		if ingestValuesURL != "" {
			if err := attachValueTable(cmd, geo, raws); err != nil {
				return nil, err
			}
		}
		return raws, nil
	case "cptac":
		if ingestURL == "" {
			return nil, eris.New("ingest: --url is required for source cptac")
		}
		return fetcher.NewCPTACSource(httpFetcher).FetchClinical(ctx, ingestURL, cfg.Fetch.TempDir)
	default:
		return nil, eris.Errorf("ingest: no remote fetcher for source %q (use --file)", ingestSource)
	}
}

// attachValueTable fetches a supplementary gene/value table and attaches
// it to the matching sample's payload so the adapter can emit expression
// records from it.
func attachValueTable(cmd *cobra.Command, geo *fetcher.GEOSource, raws []pipeline.RawRecord) error {
	if ingestValuesSample == "" {
		return eris.New("ingest: --values-sample is required with --values-url")
	}
	values, err := geo.FetchValueTable(cmd.Context(), ingestValuesURL, cfg.Fetch.TempDir)
	if err != nil {
		return eris.Wrap(err, "ingest: fetch value table")
	}
	for _, raw := range raws {
		if raw.Tree.FirstString("$.sample_id") != ingestValuesSample {
			continue
		}
		return raw.Tree.Set("$.values", values)
	}
	return eris.Errorf("ingest: sample %s not present in series %s", ingestValuesSample, ingestSeries)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "archive source (geo, cptac, arrayexpress)")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "archive payload URL (MINiML family file or clinical workbook)")
	ingestCmd.Flags().StringVar(&ingestSeries, "series", "", "series accession (geo)")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "local JSON batch file instead of a remote fetch")
	ingestCmd.Flags().StringVar(&ingestTemplate, "template", "", "template id for --file payloads (e.g. geo/sample)")
	ingestCmd.Flags().StringVar(&ingestValuesURL, "values-url", "", "supplementary gene/value table URL (geo)")
	ingestCmd.Flags().StringVar(&ingestValuesSample, "values-sample", "", "sample accession the value table belongs to")
	_ = ingestCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(ingestCmd)
}
