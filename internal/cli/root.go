package cli

import (
	"github.com/spf13/cobra"

	"nfse-report/internal/config"
	"nfse-report/internal/logx"
	"nfse-report/internal/report"
)

// RootOptions são as flags globais.
type RootOptions struct {
	LogLevel   string
	LayoutFile string

	layout report.Layout
}

// NewRootCommand cria o comando raiz do nfse-report.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nfse-report",
		Short: "Relatório de NFS-e a partir de XML ou ZIP",
		Long: `Lê XMLs de NFS-e no padrão ABRASF (soltos ou dentro de um ZIP),
normaliza os campos de cada nota e gera a planilha "Dados NFS-e".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// logs no stderr; stdout fica para o resultado
			logx.InitWriter(cmd.ErrOrStderr(), opts.LogLevel)

			layout, err := config.LoadLayout(opts.LayoutFile)
			if err != nil {
				return err
			}
			opts.layout = layout
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "nível de log (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LayoutFile, "layout", "", "arquivo YAML de layout do relatório")

	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewViewCommand(opts))
	cmd.AddCommand(NewVersionCommand(version))

	return cmd
}
