// Package main provides the plugflow pipeline runner CLI.
//
// Run a pipeline:
//
//	plugflow run --config pipeline.yaml
//
// List the elements compiled into this binary:
//
//	plugflow elements
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
	"github.com/plugflow/plugflow/internal/engine/jsoncodec"

	_ "github.com/plugflow/plugflow/elements/file"
	_ "github.com/plugflow/plugflow/elements/fixedsize"
	_ "github.com/plugflow/plugflow/elements/nullsink"
	_ "github.com/plugflow/plugflow/elements/printlog"
	_ "github.com/plugflow/plugflow/elements/pubsub"
	_ "github.com/plugflow/plugflow/elements/stat"
	_ "github.com/plugflow/plugflow/elements/stdio"
	_ "github.com/plugflow/plugflow/elements/tcp"
	_ "github.com/plugflow/plugflow/elements/tee"
	_ "github.com/plugflow/plugflow/elements/text"
	_ "github.com/plugflow/plugflow/elements/udp"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "plugflow",
		Short:         "Dataflow pipeline runner",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := plugflow.ParseLogLevel(logLevel)
			if err != nil {
				return err
			}
			plugflow.SetLogLevel(level)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: error, warn, info, debug, or trace")

	cmd.AddCommand(buildRunCmd(), buildElementsCmd())
	return cmd
}

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		metrics    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline described by a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := plugflow.LoadConfig(configPath)
			if err != nil {
				return err
			}

			opts := plugflow.Options{Bank: elements.DefaultBank}
			if metrics {
				opts.Registerer = prometheus.DefaultRegisterer
			}

			log := plugflow.NewLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
			runner, err := plugflow.NewRunner(conf, log, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runner.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pipeline.yaml",
		"Path to the YAML pipeline configuration")
	cmd.Flags().BoolVar(&metrics, "metrics", false,
		"Register engine metrics with the default Prometheus registerer")
	return cmd
}

type elementInfo struct {
	Name      string   `json:"name"`
	RecvPorts uint8    `json:"recv_ports"`
	SendPorts uint8    `json:"send_ports"`
	Accepts   []string `json:"accepts,omitempty"`
	Emits     []string `json:"emits,omitempty"`
}

func buildElementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "elements",
		Short: "List the elements compiled into this binary",
		RunE: func(*cobra.Command, []string) error {
			var infos []elementInfo
			elements.DefaultBank.Each(func(spec plugflow.Spec) bool {
				infos = append(infos, elementInfo{
					Name:      spec.Name,
					RecvPorts: spec.RecvPorts,
					SendPorts: spec.SendPorts,
					Accepts:   typeStrings(spec.AcceptTypes),
					Emits:     typeStrings(spec.EmitTypes),
				})
				return true
			})

			out, err := jsoncodec.MarshalIndent(infos, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func typeStrings(perPort [][]plugflow.MsgType) []string {
	var out []string
	for port, types := range perPort {
		for _, t := range types {
			out = append(out, fmt.Sprintf("%d:%s", port, t))
		}
	}
	return out
}
