package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func (c *Config) BindFlags(cmd *cobra.Command) {
	// Config path
	cmd.Flags().StringVarP(&c.ConfigPath, "config", "c", c.ConfigPath, "Path to config file (YAML or JSON)")

	// Queue configuration
	cmd.Flags().IntSliceVarP(&c.NFQueue.Numbers, "queue", "q", c.NFQueue.Numbers, "Extra NFQUEUE numbers to bind without a proxy group (comma separated)")
	cmd.Flags().IntVar(&c.NFQueue.MaxQueueLen, "max-queue-len", c.NFQueue.MaxQueueLen, "Kernel queue backlog per queue")
	cmd.Flags().IntVar(&c.NFQueue.CopyRange, "copy-range", c.NFQueue.CopyRange, "Bytes of each packet copied to userspace (min 100)")
	cmd.Flags().BoolVar(&c.NFQueue.FailOpen, "fail-open", c.NFQueue.FailOpen, "Let the kernel accept packets when the queue is full")
	cmd.Flags().StringVar(&c.NFQueue.OnError, "on-error", c.NFQueue.OnError, "Verdict when packet handling fails unexpectedly (accept|drop)")

	// Mutation switch
	cmd.Flags().BoolVar(&c.Handler.LabMutation.Enable, "lab-mutation", c.Handler.LabMutation.Enable, "Enable SYN mutation for configured targets")

	// Observability
	cmd.Flags().StringVar(&c.Observability.HealthBind, "health-bind", c.Observability.HealthBind, "Health/metrics listen address (empty disables)")
	cmd.Flags().IntVar(&c.Observability.HealthIntervalSec, "health-interval", c.Observability.HealthIntervalSec, "Seconds without packets before a queue is stale (min 5)")

	// Logging
	cmd.Flags().BoolVarP(&c.Logging.Instaflush, "instaflush", "i", c.Logging.Instaflush, "Flush logs immediately")
	cmd.Flags().BoolVar(&c.Logging.Syslog, "syslog", c.Logging.Syslog, "Enable syslog output")
	cmd.Flags().StringVar(&c.Logging.ErrorFile, "error-file", c.Logging.ErrorFile, "Also write errors to this file")
}

// flagFields copies a flag-bound field from src to dst.
var flagFields = map[string]func(dst, src *Config){
	"queue":           func(d, s *Config) { d.NFQueue.Numbers = s.NFQueue.Numbers },
	"max-queue-len":   func(d, s *Config) { d.NFQueue.MaxQueueLen = s.NFQueue.MaxQueueLen },
	"copy-range":      func(d, s *Config) { d.NFQueue.CopyRange = s.NFQueue.CopyRange },
	"fail-open":       func(d, s *Config) { d.NFQueue.FailOpen = s.NFQueue.FailOpen },
	"on-error":        func(d, s *Config) { d.NFQueue.OnError = s.NFQueue.OnError },
	"lab-mutation":    func(d, s *Config) { d.Handler.LabMutation.Enable = s.Handler.LabMutation.Enable },
	"health-bind":     func(d, s *Config) { d.Observability.HealthBind = s.Observability.HealthBind },
	"health-interval": func(d, s *Config) { d.Observability.HealthIntervalSec = s.Observability.HealthIntervalSec },
	"instaflush":      func(d, s *Config) { d.Logging.Instaflush = s.Logging.Instaflush },
	"syslog":          func(d, s *Config) { d.Logging.Syslog = s.Logging.Syslog },
	"error-file":      func(d, s *Config) { d.Logging.ErrorFile = s.Logging.ErrorFile },
}

// Load reads ConfigPath and then re-applies every flag the user set, so the
// command line wins over the file.
func (c *Config) Load(fs *pflag.FlagSet) error {
	flagged := *c
	if err := c.LoadFromFile(c.ConfigPath); err != nil {
		return err
	}
	if fs == nil {
		return nil
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := flagFields[f.Name]; ok {
			apply(c, &flagged)
		}
	})
	return nil
}
