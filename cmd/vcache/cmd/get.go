package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/vcache"
)

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Validate or fetch a single object",
	Long:  "Fetch one named object from the configured backend, reusing nothing (fresh store per invocation).",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	switch backend := viper.GetString("backend"); backend {
	case "github":
		b, err := openGitHub()
		if err != nil {
			return err
		}
		return getOne(ctx, b, name, printRepo)
	case "oci":
		b, err := openOCI()
		if err != nil {
			return err
		}
		return getOne(ctx, b, name, printArtifact)
	default:
		return fmt.Errorf("unknown backend %q (want github or oci)", backend)
	}
}

func getOne[O any, H comparable](ctx context.Context, backend vcache.Backend[string, O, H], name string, print func(O)) error {
	store := vcache.New(backend)
	defer store.Close()

	obj, err := store.Get(ctx, name)
	if err != nil {
		return err
	}
	print(obj)
	return nil
}
