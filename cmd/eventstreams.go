package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/transientvariable/eventstreams/pkg/stream"

	"github.com/spf13/cobra"
	"github.com/transientvariable/log-go"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventstreams [flags]",
		Long:  "CLI printing the live recent changes feed of Wikimedia wikis.",
		Short: "eventstreams CLI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return fmt.Errorf("cmd_eventstreams: %w", err)
			}

			if err := log.SetDefault(log.New(log.WithLevel(cfg.LogLevel))); err != nil {
				return fmt.Errorf("cmd_eventstreams: %w", err)
			}

			d, err := newDispatcher(cmd.Context(), cfg, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("cmd_eventstreams: %w", err)
			}

			if err := d.Run(); err != nil {
				return errors.Join(fmt.Errorf("cmd_eventstreams: %w", err), d.Close())
			}

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(c)

			select {
			case sig := <-c:
				log.Info("[cmd:eventstreams] received signal", log.String("signal", sig.String()))
			case <-d.Done():
			}

			err = errors.Join(d.Err(), d.Close())
			log.Info("[cmd:eventstreams] shut down...")
			if err != nil {
				return fmt.Errorf("cmd_eventstreams: %w", err)
			}
			return nil
		},
	}

	if err := log.SetDefault(log.New(log.WithLevel("info"))); err != nil {
		panic(err)
	}

	f := cmd.Flags()
	f.StringP("log-level", "l", "info", "Sets the logging level.")
	f.StringP("url", "u", stream.DefaultURL, "Sets the URL of the event stream.")
	f.String("user-agent", "", "Sets the User-Agent header sent to the event stream.")
	f.StringP("wiki", "w", "", "Only prints changes on the wiki with this server name, e.g. en.wikipedia.org.")
	f.String("since", "", "Requests historical events starting at this RFC 3339 time.")
	f.Bool("dedup", false, "Drops events already printed, e.g. after reconnecting.")
	f.String("relay-url", "", "Publishes every event to this gocloud.dev pubsub topic URL, e.g. mem://recentchange.")
	return cmd
}
