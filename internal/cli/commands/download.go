package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kgforge/internal/cli/config"
	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/download"
	"github.com/leapstack-labs/kgforge/internal/state"
)

// DownloadOptions holds options for the download command.
type DownloadOptions struct {
	YAML        string
	Output      string
	SnippetOnly bool
	IgnoreCache bool
}

// NewDownloadCommand creates the download command.
func NewDownloadCommand() *cobra.Command {
	opts := &DownloadOptions{}

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download raw data sources",
		Long: `Download every source listed in the download file into the raw data directory.

Each entry names a url and optionally a local_name. Files already present are
skipped unless --ignore-cache is set. A failed source does not stop the run;
the command exits non-zero once every source has been tried.

Supported URL schemes: http, https, gs (Google Cloud Storage) and file.`,
		Example: `  # Download everything listed in download.yaml
  kgforge download

  # Fetch only the first few kilobytes of each source
  kgforge download --snippet-only -o data/raw-snippets

  # Re-download even when the files exist
  kgforge download -y sources.yaml --ignore-cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDownload(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.YAML, "yaml", "y", "download.yaml", "YAML file listing the sources to download")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output directory (default: <data_dir>/raw)")
	cmd.Flags().BoolVarP(&opts.SnippetOnly, "snippet-only", "x", false, "Download only the first 5 kB of each source")
	cmd.Flags().BoolVarP(&opts.IgnoreCache, "ignore-cache", "i", false, "Download sources even if the local file exists")

	return cmd
}

func runDownload(cmd *cobra.Command, opts *DownloadOptions) (err error) {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	yamlPath := resolvePath(cmd, "yaml", opts.YAML, cc.Cfg.ProjectRoot)
	if err := config.ValidateFile("download", yamlPath); err != nil {
		return err
	}
	outDir := opts.Output
	if outDir == "" {
		outDir = cc.Cfg.RawDir
	}

	sources, err := download.LoadSources(yamlPath)
	if err != nil {
		return err
	}

	ledger := cc.StartRun(ctx, "download", cmd.Flags())
	defer func() { ledger.Finish(ctx, err) }()

	d := download.New(download.Options{
		OutputDir:      outDir,
		SnippetOnly:    opts.SnippetOnly,
		IgnoreCache:    opts.IgnoreCache,
		SnippetBytes:   cc.Cfg.Download.SnippetBytes,
		Retries:        cc.Cfg.Download.Retries,
		Timeout:        cc.Cfg.Download.Timeout,
		GCSCredentials: cc.Cfg.Download.GCSCredentials,
		Logger:         cc.Logger,
	})
	defer func() { _ = d.Close() }()

	outcomes, runErr := d.Run(ctx, sources)

	ledger.Record(ctx, downloadRecords(outcomes))
	if rerr := renderDownload(cc.Renderer, outDir, outcomes); rerr != nil {
		return errors.Join(runErr, rerr)
	}
	if runErr != nil {
		return fmt.Errorf("download incomplete: %w", runErr)
	}
	return nil
}

func downloadRecords(outcomes []download.Outcome) []state.FileRecord {
	files := make([]state.FileRecord, 0, len(outcomes))
	for _, o := range outcomes {
		rec := state.FileRecord{Path: o.Path, Kind: "raw", Outcome: string(o.Status), Detail: o.Source.URL}
		if rec.Path == "" {
			rec.Path = o.Source.URL
		}
		if o.Err != nil {
			rec.Detail = o.Err.Error()
		}
		files = append(files, rec)
	}
	return files
}

func renderDownload(r *output.Renderer, outDir string, outcomes []download.Outcome) error {
	t := output.Table{
		Title:  "Download",
		Header: []string{"file", "status", "bytes", "detail"},
	}
	counts := map[download.Status]int{}
	var total int64
	for _, o := range outcomes {
		counts[o.Status]++
		total += o.Bytes
		detail := o.Source.Description
		if o.Err != nil {
			detail = o.Err.Error()
		}
		name := o.Source.Target()
		if o.Path != "" {
			name = relTo(outDir, o.Path)
		}
		t.Rows = append(t.Rows, []any{name, string(o.Status), o.Bytes, detail})
	}
	t.Footer = []any{"total", "", total, ""}
	t.Caption = fmt.Sprintf("%d downloaded, %d cached, %d failed into %s",
		counts[download.StatusDownloaded], counts[download.StatusCached], counts[download.StatusFailed], outDir)
	return r.Render(t)
}
