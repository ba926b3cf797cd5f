package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/internal/daemon"
	"github.com/harun/toolgate/pkg/capability"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered tools",
	Long:  `List every tool in the discovery directory with its description.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-arguments]",
	Short: "Invoke a tool once and print its envelope",
	Long: `Invoke a tool once and print the resulting JSON envelope.
Arguments are a JSON object given inline, or "-" to read them from stdin.
The command fails when the envelope carries an error.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print descriptors as JSON")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(callCmd)
}

// openDaemon builds the services with a quiet logger and loads the table
func openDaemon(cmd *cobra.Command) (*daemon.Daemon, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	d, err := daemon.New(cfg, quietLogger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize toolgate: %w", err)
	}

	if err := d.Reload(cmd.Context(), daemon.TriggerStartup); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}
	return d, nil
}

func runList(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	descriptors := d.Container().Dispatcher().ListDescriptors()
	out := cmd.OutOrStdout()

	if listJSON {
		return writeJSON(out, descriptors)
	}

	if len(descriptors) == 0 {
		fmt.Fprintln(out, "No tools found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, desc := range descriptors {
		fmt.Fprintf(w, "%s\t%s\n", desc.Name, desc.Description)
	}
	return w.Flush()
}

func runCall(cmd *cobra.Command, args []string) error {
	name := args[0]

	var raw []byte
	if len(args) == 2 {
		raw = []byte(args[1])
		if args[1] == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read arguments: %w", err)
			}
			raw = data
		}
	}

	toolArgs, err := parseArgs(raw)
	if err != nil {
		return err
	}

	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	envelope := d.Container().Dispatcher().Invoke(cmd.Context(), name, toolArgs)
	if err := writeJSON(cmd.OutOrStdout(), envelope); err != nil {
		return err
	}

	if envelope.IsFailure() {
		return fmt.Errorf("%s failed: %v", name, envelope["error"])
	}
	return nil
}

// parseArgs decodes a JSON object; empty input is an empty object
func parseArgs(raw []byte) (capability.Args, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return capability.Args{}, nil
	}

	args, err := capability.DecodeArgs(raw)
	if errors.Is(err, capability.ErrArgsNotObject) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
