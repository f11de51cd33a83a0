package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"nfse-report/internal/batch"
	"nfse-report/internal/metrics"
	"nfse-report/internal/report"
)

// NewConvertCommand cria o comando convert.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "convert <arquivo.xml|arquivo.zip>",
		Short: "Gera a planilha XLSX das NFS-e do arquivo",
		Long: `Gera a planilha XLSX com uma linha por nota encontrada.

Sem -o, a planilha é gravada ao lado do arquivo de entrada, com o mesmo
nome e extensão .xlsx. Se nenhuma nota for encontrada, nada é gravado.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(rootOpts, args[0], output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "caminho da planilha gerada")

	return cmd
}

func runConvert(opts *RootOptions, input, output string, out io.Writer) error {
	res, err := batch.CollectFile(input)
	if err != nil {
		metrics.ObserveReport("cli", "failed")
		return err
	}

	if res.Table.Empty() {
		metrics.ObserveReport("cli", "empty")
		fmt.Fprintln(out, report.MensagemSemDados)
		return nil
	}

	if output == "" {
		output = defaultOutput(input)
	}
	if err := writeFile(output, res, opts.layout); err != nil {
		metrics.ObserveReport("cli", "failed")
		return err
	}
	metrics.ObserveReport("cli", "success")

	summary := report.Summarize(res.Table).Display()
	fmt.Fprintf(out, "✓ %d nota(s) gravada(s) em %s\n", len(res.Table), output)
	fmt.Fprintf(out, "  Valor dos serviços: %s\n", summary.ValorServicos)
	fmt.Fprintf(out, "  ISS: %s\n", summary.ISS)
	fmt.Fprintf(out, "  IBS UF: %s\n", summary.IBSUF)
	fmt.Fprintf(out, "  CBS: %s\n", summary.CBS)
	if res.SkippedDocuments > 0 || res.RejectedInvoices > 0 {
		fmt.Fprintf(out, "  Ignorados: %d XML(s), %d nota(s) sem valor do serviço\n",
			res.SkippedDocuments, res.RejectedInvoices)
	}
	return nil
}

func defaultOutput(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".xlsx"
}

func writeFile(path string, res batch.Result, layout report.Layout) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("erro criando %s: %w", path, err)
	}
	if err := report.WriteXLSX(f, res.Table, layout); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// NewViewCommand cria o comando view, que imprime a tabela formatada em JSON.
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <arquivo.xml|arquivo.zip>",
		Short: "Imprime a tabela formatada e os totais em JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := batch.CollectFile(args[0])
			if err != nil {
				return err
			}

			v := report.BuildView(res.Table, rootOpts.layout)
			v.SkippedDocuments = res.SkippedDocuments
			v.RejectedInvoices = res.RejectedInvoices

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
}

// NewVersionCommand cria o comando version.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Mostra a versão",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nfse-report %s\n", version)
		},
	}
}
