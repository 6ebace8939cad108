package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/export"
	"github.com/sells-group/finextract/internal/pipeline"
)

var (
	processReportID string
	processXLSX     string
	reportXLSX      string
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Process PDFs or saved Stage 1 extractions as one report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs := make([]pipeline.Document, 0, len(args))
		for _, path := range args {
			doc, err := loadDocument("", path)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}

		reportID := processReportID
		if reportID == "" {
			reportID = uuid.New().String()
		}
		return runReport(cmd, reportID, docs, processXLSX)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <manifest.yaml>",
	Short: "Process the documents listed in a report manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest(args[0])
		if err != nil {
			return err
		}
		docs, err := m.load()
		if err != nil {
			return err
		}
		return runReport(cmd, m.ReportID, docs, reportXLSX)
	},
}

// runReport processes docs, prints the batch result as JSON and optionally
// writes the merged workbook.
func runReport(cmd *cobra.Command, reportID string, docs []pipeline.Document, xlsxPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEngine(ctx, "process", pipeline.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer env.Close()

	batch, err := env.Orchestrator.ProcessDocuments(ctx, reportID, docs)
	env.logUsage()
	if err != nil {
		return eris.Wrap(err, "process report")
	}

	zap.L().Info("report processed",
		zap.String("report_id", reportID),
		zap.Int("completed", batch.Completed),
		zap.Int("failed", batch.Failed),
		zap.Int("vision_fallbacks", batch.Fallbacks),
	)

	if xlsxPath != "" {
		if err := export.WriteWorkbook(xlsxPath, batch.Outputs()...); err != nil {
			return err
		}
		zap.L().Info("workbook written", zap.String("path", xlsxPath))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(batch); err != nil {
		return eris.Wrap(err, "encode result")
	}

	if batch.Completed == 0 {
		return eris.Errorf("report %s: no document completed", reportID)
	}
	return nil
}

// progressPrinter writes one line per progress event. Documents may run
// concurrently, so writes are serialized.
func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	var mu sync.Mutex
	return func(ev pipeline.Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Message != "" {
			fmt.Fprintf(w, "%-14s %-10s %s: %s\n", ev.Stage, ev.Status, ev.DocumentID, ev.Message)
			return
		}
		fmt.Fprintf(w, "%-14s %-10s %s\n", ev.Stage, ev.Status, ev.DocumentID)
	}
}

func init() {
	processCmd.Flags().StringVar(&processReportID, "report", "", "report id (default: random uuid)")
	processCmd.Flags().StringVar(&processXLSX, "xlsx", "", "write the merged workbook to this path")
	reportCmd.Flags().StringVar(&reportXLSX, "xlsx", "", "write the merged workbook to this path")
	rootCmd.AddCommand(processCmd, reportCmd)
}
