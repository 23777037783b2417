package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/vcache"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh periodically and stream cache events",
	Long:  "Refresh the cache on an interval and print every state transition until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 30*time.Second, "refresh interval")
	viper.BindPFlag("interval", watchCmd.Flags().Lookup("interval"))
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch backend := viper.GetString("backend"); backend {
	case "github":
		b, err := openGitHub()
		if err != nil {
			return err
		}
		return watch(ctx, b)
	case "oci":
		b, err := openOCI()
		if err != nil {
			return err
		}
		return watch(ctx, b)
	default:
		return fmt.Errorf("unknown backend %q (want github or oci)", backend)
	}
}

func watch[O any, H comparable](ctx context.Context, backend vcache.Backend[string, O, H]) error {
	store := vcache.New(backend, vcache.WithConcurrency(viper.GetInt("concurrency")))
	defer store.Close()

	kinds := []vcache.EventKind{
		vcache.EventAdd, vcache.EventUpdate, vcache.EventDelete,
		vcache.EventCacheHit, vcache.EventCacheMiss,
		vcache.EventListError, vcache.EventFetchError,
		vcache.EventHashError, vcache.EventLocalHashError,
	}
	for _, kind := range kinds {
		store.Subscribe(kind, func(ev vcache.Event[string, O, H]) {
			printEvent(ev)
		})
	}

	interval := viper.GetDuration("interval")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Fprintf(os.Stderr, "watching, refresh every %s\n", interval)

	for {
		if _, err := store.GetAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
		}
		store.Flush()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printEvent[O any, H comparable](ev vcache.Event[string, O, H]) {
	stamp := time.Now().Format(time.TimeOnly)
	switch ev.Kind {
	case vcache.EventListError, vcache.EventFetchError, vcache.EventHashError, vcache.EventLocalHashError:
		fmt.Printf("%s  %-16s %s  %v\n", stamp, ev.Kind, ev.Name, ev.Err)
	default:
		fmt.Printf("%s  %-16s %s\n", stamp, ev.Kind, ev.Name)
	}
}
