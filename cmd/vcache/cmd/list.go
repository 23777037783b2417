package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/vcache"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Refresh and list all objects",
	Long:  "Fetch the backend's current name list, refresh every object, and print the result.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	switch backend := viper.GetString("backend"); backend {
	case "github":
		b, err := openGitHub()
		if err != nil {
			return err
		}
		return listAll(ctx, b, printRepo)
	case "oci":
		b, err := openOCI()
		if err != nil {
			return err
		}
		return listAll(ctx, b, printArtifact)
	default:
		return fmt.Errorf("unknown backend %q (want github or oci)", backend)
	}
}

func listAll[O any, H comparable](ctx context.Context, backend vcache.Backend[string, O, H], print func(O)) error {
	store := vcache.New(backend, vcache.WithConcurrency(viper.GetInt("concurrency")))
	defer store.Close()

	objs, err := store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	for _, obj := range objs {
		print(obj)
	}
	fmt.Fprintf(os.Stderr, "%d objects\n", len(objs))
	return nil
}
