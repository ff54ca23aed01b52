package cmd

import (
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/watcher"
)

// backendValue is a pflag.Value accepting only known watcher backends.
type backendValue struct {
	backend watcher.Backend
}

var _ pflag.Value = (*backendValue)(nil)

func newBackendValue(def watcher.Backend) *backendValue {
	return &backendValue{backend: def}
}

func (b *backendValue) String() string { return string(b.backend) }

func (b *backendValue) Set(s string) error {
	backend, err := watcher.ParseBackend(s)
	if err != nil {
		return err
	}
	b.backend = backend
	return nil
}

func (b *backendValue) Type() string { return "backend" }

// serveFlagKeys maps serve flags onto configuration keys.
var serveFlagKeys = map[string]string{
	"host":          "server.host",
	"port":          "server.port",
	"root":          "server.root",
	"open":          "server.open",
	"heartbeat":     "server.heartbeat",
	"backend":       "watch.backend",
	"poll-interval": "watch.poll_interval",
	"dangerous":     "render.dangerous",
	"stylesheet":    "page.stylesheet",
	"dark":          "page.dark",
}

// addServeFlags adds the server flags to cmd. The root command and serve
// share them, so they are bound to viper only when the command runs.
func addServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.String("host", "localhost", "Host to bind to")
	flags.IntP("port", "p", 3000, "Port to serve on")
	flags.StringP("address", "a", "", "Address to bind to as host:port (overrides --host and --port)")
	flags.String("root", ".", "Directory documents are served from")
	flags.Bool("open", false, "Open the preview in a browser")
	flags.Duration("heartbeat", time.Second, "Interval between stream keep-alive comments")
	flags.Var(newBackendValue(watcher.BackendNotify), "backend", "Change detection backend (notify, poll)")
	flags.Duration("poll-interval", watcher.DefaultPollInterval, "Scan interval of the poll backend")
	flags.Bool("dangerous", false, "Pass raw HTML in documents through unsanitized")
	flags.StringP("stylesheet", "s", "", "URL of an extra stylesheet for the page")
	flags.Bool("dark", false, "Use the dark color scheme")
	flags.CountP("debug", "d", "Enable debug logging (repeat to add source locations)")
}

func bindServeFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()

	if err := bindFlags(flags, serveFlagKeys); err != nil {
		return err
	}

	if flags.Changed("address") {
		address, _ := flags.GetString("address")
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return errors.NewValidationError(errors.ErrCodeValidationFailed, "invalid --address: "+err.Error()).
				WithContext("address", address)
		}
		viper.Set("server.host", host)
		viper.Set("server.port", port)
	}

	return nil
}

func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return errors.WrapConfig(err, "failed to bind flag --"+name)
		}
	}
	return nil
}
