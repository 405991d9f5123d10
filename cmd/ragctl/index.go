package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/app"
	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/indexer"
)

var indexFileTenant string

func init() {
	indexFileCmd.Flags().StringVar(&indexFileTenant, "tenant", "", "tenant that owns the file (required)")
	_ = indexFileCmd.MarkFlagRequired("tenant")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(indexFileCmd)
	rootCmd.AddCommand(watchCmd)
}

// indexCmd indexes a directory tree of tenant folders
var indexCmd = &cobra.Command{
	Use:   "index <root>",
	Short: "Index every document under root's tenant directories",
	Long: `Index .txt, .md and .pdf files found under root/<tenant>/.

The first directory below root names the tenant. Files directly in root and
hidden directories are skipped, as is anything matched by root/.ragignore. One unreadable file does not stop the run;
failures are listed at the end.

Examples:
  ragctl index ./docs
  ragctl index --config ragd.yaml ./docs`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

// indexFileCmd indexes one file for an explicit tenant
var indexFileCmd = &cobra.Command{
	Use:   "index-file <path>",
	Short: "Index a single document for a tenant",
	Long: `Index one .txt, .md or .pdf file and tag its chunks with --tenant.

Examples:
  ragctl index-file ./contract.pdf --tenant tenantA`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexFile,
}

// watchCmd indexes documents as they appear
var watchCmd = &cobra.Command{
	Use:   "watch <root>",
	Short: "Index new documents as they are created under root",
	Long: `Watch root/<tenant>/ directories and index each new document once it
has been quiet for the debounce interval. Runs until interrupted.

Existing files are not indexed; run "ragctl index" first.

Examples:
  ragctl watch ./docs`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func openIngestion(cmd *cobra.Command) (*app.Ingestion, func(), error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, nil, err
	}

	obs, err := app.NewObservability(ctx, cfg, version, app.LogOptions{Stderr: true})
	if err != nil {
		return nil, nil, err
	}

	ing, err := app.NewIngestion(ctx, cfg, obs.Logger)
	if err != nil {
		shutdown(cfg, obs)
		return nil, nil, err
	}

	cleanup := func() {
		_ = ing.Close()
		shutdown(cfg, obs)
	}
	return ing, cleanup, nil
}

// runIndex handles the index command
func runIndex(cmd *cobra.Command, args []string) error {
	ing, cleanup, err := openIngestion(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := ing.Indexer.IndexTree(cmd.Context(), args[0])
	printTreeResult(cmd, res)
	if err != nil && len(res.Failed) > 0 {
		return fmt.Errorf("%d file(s) failed to index: %w", len(res.Failed), err)
	}
	return err
}

func printTreeResult(cmd *cobra.Command, res indexer.TreeResult) {
	out := cmd.OutOrStdout()
	st := newStyles(out)
	fmt.Fprintln(out, st.ok.Render(fmt.Sprintf("Indexed %d file(s), %d chunk(s)", res.Files, res.Chunks)))
	if res.Ignored > 0 {
		fmt.Fprintf(out, "  ignored: %d path(s) matched %s\n", res.Ignored, ignore.FileName)
	}
	for _, path := range res.Skipped {
		fmt.Fprintf(out, "  %s %s\n", st.warn.Render("skipped:"), path)
	}
	for _, fe := range res.Failed {
		fmt.Fprintf(out, "  %s  %s: %v\n", st.bad.Render("failed:"), fe.Path, fe.Err)
	}
}

// runIndexFile handles the index-file command
func runIndexFile(cmd *cobra.Command, args []string) error {
	ing, cleanup, err := openIngestion(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := ing.Indexer.IndexFile(cmd.Context(), args[0], indexFileTenant)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s: %d chunk(s) for %s\n", args[0], res.Chunks, res.Tenant)
	return nil
}

// runWatch handles the watch command
func runWatch(cmd *cobra.Command, args []string) error {
	ing, cleanup, err := openIngestion(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", args[0])
	return ing.Indexer.Watch(cmd.Context(), args[0])
}
