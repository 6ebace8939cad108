package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/export"
	"github.com/sells-group/finextract/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <report-id>",
	Short: "Write a stored report to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, err := st.Load(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load report")
		}
		if len(state.Extractions) == 0 {
			return eris.Errorf("report %s has no completed extractions", args[0])
		}

		outputs := make([]*model.FinalExtractionOutput, len(state.Extractions))
		for i := range state.Extractions {
			outputs[i] = &state.Extractions[i]
		}

		path := exportOut
		if path == "" {
			path = args[0] + ".xlsx"
		}
		if err := export.WriteWorkbook(path, outputs...); err != nil {
			return err
		}
		zap.L().Info("workbook written",
			zap.String("report_id", args[0]),
			zap.String("path", path),
			zap.Int("documents", len(outputs)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default <report-id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
