// Package cmd is the command line surface: a cobra root whose default
// action is run, plus device listing, the device browser, oscilloscope
// music generation, offline export and version.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"audioscope/internal/audio"
	"audioscope/internal/config"
	"audioscope/internal/log"
	"audioscope/internal/tui"
	"audioscope/pkg/build"
)

var logger = log.With("CLI")

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	verbose    bool

	// withBackend runs fn with an initialized device backend. Tests swap
	// it for a fake.
	withBackend func(fn func(audio.Backend) error) error
}

// load reads the configuration and applies the log level.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.LogLevel = log.LevelDebug.String()
	}
	log.SetLevel(cfg.Level())
	return cfg, nil
}

// withPortAudio initializes PortAudio around fn.
func withPortAudio(fn func(audio.Backend) error) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			logger.Warnf("%v", err)
		}
	}()
	return fn(audio.NewPortAudio())
}

// Execute parses args and runs the selected command.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd(&options{withBackend: withPortAudio})
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(o *options) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	var rf runFlags
	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), rf, nil)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "",
		"Path to the YAML configuration (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.AddCommand(
		newRunCmd(o),
		newListCmd(o),
		newDevicesCmd(o),
		newOscCmd(o),
		newExportCmd(o),
		newVersionCmd(),
	)
	return rootCmd
}

func newListCmd(o *options) *cobra.Command {
	var capture, playback bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := o.load(); err != nil {
				return err
			}
			return o.withBackend(func(b audio.Backend) error {
				if !capture && !playback {
					return audio.ListDevices(cmd.OutOrStdout(), b)
				}
				devices, err := b.Devices()
				if err != nil {
					return err
				}
				audio.PrintDevices(cmd.OutOrStdout(), filterDevices(devices, capture))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&capture, "capture", false, "Only list capture devices")
	cmd.Flags().BoolVar(&playback, "playback", false, "Only list playback devices")
	cmd.MarkFlagsMutuallyExclusive("capture", "playback")
	return cmd
}

func filterDevices(devices []audio.Device, capture bool) []audio.Device {
	out := make([]audio.Device, 0, len(devices))
	for _, d := range devices {
		if (capture && d.MaxInputChannels > 0) || (!capture && d.MaxOutputChannels > 0) {
			out = append(out, d)
		}
	}
	return out
}

func newDevicesCmd(o *options) *cobra.Command {
	var capture bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Browse audio devices interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := o.load(); err != nil {
				return err
			}
			return o.withBackend(func(b audio.Backend) error {
				sel, err := tui.Run(b, capture)
				if err != nil || sel == nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "audio:")
				if sel.Capture {
					fmt.Fprintf(w, "  capture_device_name: %q\n", sel.Device.Name)
					fmt.Fprintf(w, "  capture_sample_rate: %.0f\n", sel.SampleRate)
				} else {
					fmt.Fprintf(w, "  playback_device: %q\n", sel.Device.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&capture, "capture", true, "Start on capture devices (tab switches)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.GetBuildFlags())
		},
	}
}
