package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/daniacca/reactorsim/internal/transport"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Addr               string
	ReactorID          string
	ReactorFile        string
	SnapshotDir        string
	SnapshotEveryTicks int
	LogLevel           string
}

// configResolver defines how to resolve a single configuration value
type configResolver struct {
	flagName    string
	envVarName  string
	defaultVal  string
	description string
	setter      func(*ServerConfig, string)
}

func serverResolvers() []configResolver {
	return []configResolver{
		{
			flagName:    "addr",
			envVarName:  "REACTORSIM_ADDR",
			defaultVal:  ":8080",
			description: "HTTP listen address (e.g. :8080, 0.0.0.0:8080)",
			setter:      func(c *ServerConfig, v string) { c.Addr = v },
		},
		{
			flagName:    "reactor-id",
			envVarName:  "REACTORSIM_REACTOR_ID",
			defaultVal:  "default",
			description: "ID of the reactor built from -reactor-file",
			setter:      func(c *ServerConfig, v string) { c.ReactorID = v },
		},
		{
			flagName:    "reactor-file",
			envVarName:  "REACTORSIM_REACTOR_FILE",
			defaultVal:  "",
			description: "optional gcfg run file describing a reactor to create at startup",
			setter:      func(c *ServerConfig, v string) { c.ReactorFile = v },
		},
		{
			flagName:    "snapshot-dir",
			envVarName:  "REACTORSIM_SNAPSHOT_DIR",
			defaultVal:  "./data",
			description: "Directory where reactor snapshots are stored",
			setter:      func(c *ServerConfig, v string) { c.SnapshotDir = v },
		},
		{
			flagName:    "snapshot-every-ticks",
			envVarName:  "REACTORSIM_SNAPSHOT_EVERY_TICKS",
			defaultVal:  "1000",
			description: "How often to write snapshots (in ticks); 0 disables periodic snapshots",
			setter: func(c *ServerConfig, v string) {
				if val, err := strconv.Atoi(v); err == nil && val >= 0 {
					c.SnapshotEveryTicks = val
				} else {
					log.Printf("Invalid value for snapshot-every-ticks: %s, using default 1000", v)
					c.SnapshotEveryTicks = 1000
				}
			},
		},
		{
			flagName:    "log-level",
			envVarName:  "REACTORSIM_LOG_LEVEL",
			defaultVal:  "info",
			description: "Log level: debug, info, warn, error",
			setter:      func(c *ServerConfig, v string) { c.LogLevel = v },
		},
	}
}

// loadServerConfig resolves every option from args, then the environment,
// then the built-in default.
func loadServerConfig(args []string) (ServerConfig, error) {
	cfg := ServerConfig{}
	resolvers := serverResolvers()

	fs := flag.NewFlagSet("reactorsim-server", flag.ContinueOnError)
	flagVars := make(map[string]*string)
	for _, resolver := range resolvers {
		flagVars[resolver.flagName] = fs.String(resolver.flagName, "", resolver.description)
	}
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	for _, resolver := range resolvers {
		var value string
		if *flagVars[resolver.flagName] != "" {
			value = *flagVars[resolver.flagName]
		} else if envValue := os.Getenv(resolver.envVarName); envValue != "" {
			value = envValue
		} else {
			value = resolver.defaultVal
		}
		resolver.setter(&cfg, value)
	}

	return cfg, nil
}

// applyReactorFile builds or reconfigures the reactor described by a run
// file and resumes it from its last snapshot when one exists.
func (s *Server) applyReactorFile(path string, id transport.ReactorID) error {
	cfg, err := transport.LoadReactorConfigFile(path)
	if err != nil {
		return err
	}

	r, created, err := s.createOrReconfigure(id, cfg)
	if err != nil {
		return err
	}
	if created {
		s.logger.Infof("Reactor created from run file: reactor_id=%s file=%s", id, path)
	} else {
		s.logger.Infof("Reactor reconfigured from run file: reactor_id=%s file=%s", id, path)
	}

	if s.snapshotDir == "" {
		return nil
	}
	snap, err := transport.LoadSnapshotFile(r.SnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("loading snapshot for %s: %w", id, err)
	}
	if err := r.RestoreSnapshot(snap); err != nil {
		return fmt.Errorf("restoring snapshot for %s: %w", id, err)
	}
	s.logger.Infof("Reactor restored from snapshot: reactor_id=%s tick=%d", id, snap.Tick)
	return nil
}
