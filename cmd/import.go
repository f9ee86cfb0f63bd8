package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/ingest"
)

var importSheet string

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Manage tracked advertiser domains",
}

var domainsImportCmd = &cobra.Command{
	Use:   "import <file-or-url>",
	Short: "Import tracked domains from CSV or XLSX (domain[,active])",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rows, err := ingest.ReadRows(ctx, args[0], ingest.Options{Sheet: importSheet})
		if err != nil {
			return err
		}
		domains := ingest.Domains(rows)
		if len(domains) == 0 {
			return eris.Errorf("no domains found in %s", args[0])
		}

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.ImportDomains(ctx, domains)
		if err != nil {
			return eris.Wrap(err, "import domains")
		}
		zap.L().Info("import complete",
			zap.Int("read", len(domains)),
			zap.Int64("written", n),
			zap.String("source", args[0]),
		)
		return nil
	},
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Manage the region lookup table",
}

var regionsImportCmd = &cobra.Command{
	Use:   "import <file-or-url>",
	Short: "Import region names from CSV or XLSX (first column)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rows, err := ingest.ReadRows(ctx, args[0], ingest.Options{Sheet: importSheet})
		if err != nil {
			return err
		}
		names := ingest.Regions(rows)

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.ImportRegions(ctx, names)
		if err != nil {
			return eris.Wrap(err, "import regions")
		}
		zap.L().Info("import complete",
			zap.Int("read", len(names)),
			zap.Int64("inserted", n),
			zap.String("source", args[0]),
		)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{domainsImportCmd, regionsImportCmd} {
		c.Flags().StringVar(&importSheet, "sheet", "", "xlsx sheet name (default first sheet)")
	}
	domainsCmd.AddCommand(domainsImportCmd)
	regionsCmd.AddCommand(regionsImportCmd)
	rootCmd.AddCommand(domainsCmd, regionsCmd)
}
