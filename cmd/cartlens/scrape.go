package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cartlens/backend/internal/app"
	"github.com/cartlens/backend/internal/domain"
)

var (
	scrapeWorkspace string
	scrapeNoCache   bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [text...]",
	Short: "Scrape every product link found in the arguments or stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		if scrapeNoCache {
			cfg.Cache.Enabled = false
		}

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Scrape.ScrapeBatch(ctx, input, scrapeWorkspace)
		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		return writeRecords(cmd.OutOrStdout(), records)
	},
}

// readInput uses the arguments when present, otherwise all of stdin
func readInput(stdin io.Reader, args []string) (domain.RawInput, error) {
	if len(args) > 0 {
		return domain.RawInput{strings.Join(args, " ")}, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, eris.Wrap(err, "read stdin")
	}
	return domain.RawInput{string(data)}, nil
}

func writeRecords(w io.Writer, records []domain.ProductRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Products []domain.ProductRecord `json:"products"`
		Count    int                    `json:"count"`
	}{records, len(records)})
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeWorkspace, "workspace", "w", domain.DefaultWorkspace, "workspace to store results in")
	scrapeCmd.Flags().BoolVar(&scrapeNoCache, "no-cache", false, "always fetch, never read or write the store")
	rootCmd.AddCommand(scrapeCmd)
}
