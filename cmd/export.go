package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/adcrawl/internal/export"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/store"
)

var (
	exportOut        string
	exportDomain     string
	exportAdvertiser string
	exportFormat     string
	exportLimit      int
	exportVariants   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write saved creatives to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.CreativeFilter{
			AdvertiserCode: exportAdvertiser,
			Domain:         exportDomain,
			Limit:          exportLimit,
		}
		if f := model.Format(strings.ToUpper(exportFormat)); f.Valid() {
			filter.Format = f
		}

		_, err = export.WriteXLSX(ctx, st, exportOut, export.Options{Filter: filter, Variants: exportVariants})
		return err
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOut, "out", "creatives.xlsx", "output workbook path")
	f.StringVar(&exportDomain, "domain", "", "only creatives of this domain")
	f.StringVar(&exportAdvertiser, "advertiser", "", "only creatives of this advertiser code")
	f.StringVar(&exportFormat, "format", "", "only creatives of this format")
	f.IntVar(&exportLimit, "limit", 0, "maximum creatives (0 = all)")
	f.BoolVar(&exportVariants, "variants", false, "add a sheet with one row per variant")
	rootCmd.AddCommand(exportCmd)
}
