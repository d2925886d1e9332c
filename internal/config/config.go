// Package config loads the server's settings the way the teacher's main.go
// loads its own: flag.String/flag.Bool for every knob, overlayable by a
// declarative file. Here the file is YAML (gopkg.in/yaml.v2) rather than
// the teacher's bare flags, and an environment-variable layer sits between
// the two, since a repository server is routinely run under a process
// supervisor that sets env vars rather than flags.
package config

import (
	"flag"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/rustic-rs/rest-server/internal/restrepo"
)

// Config is the fully resolved set of server settings.
type Config struct {
	Listen       string `yaml:"listen"`
	DataDir      string `yaml:"data-dir"`
	HtpasswdFile string `yaml:"htpasswd-file"`
	ACLFile      string `yaml:"acl-file"`
	DisableAuth  bool   `yaml:"disable-auth"`
	DisableACL   bool   `yaml:"disable-acl"`
	PrivateRepos bool   `yaml:"private-repos"`
	AppendOnly   bool   `yaml:"append-only"`
	QuotaBytes   int64  `yaml:"quota-bytes"`
	TLSCert      string `yaml:"tls-cert"`
	TLSKey       string `yaml:"tls-key"`
	LogLevel     string `yaml:"log-level"`

	// ConfigFile is not itself a configurable field: it names the YAML
	// file to overlay, if any, and is only ever set by the -config-file flag.
	ConfigFile string `yaml:"-"`
}

// Policy projects the ACL-relevant fields of Config into restrepo.Policy.
func (c Config) Policy() restrepo.Policy {
	return restrepo.Policy{
		DisableAuth:  c.DisableAuth,
		DisableACL:   c.DisableACL,
		PrivateRepos: c.PrivateRepos,
		AppendOnly:   c.AppendOnly,
		QuotaBytes:   c.QuotaBytes,
	}
}

func defaults() Config {
	return Config{
		Listen:   ":8000",
		DataDir:  "/var/lib/rest-server",
		LogLevel: "info",
	}
}

// Load resolves Config from, in increasing precedence: built-in defaults,
// an optional YAML file, REST_SERVER_-prefixed environment variables, and
// command-line flags parsed from args (excluding the program name).
func Load(args []string) (Config, error) {
	cfg := defaults()

	// A first, lightweight flag pass exists only to discover -config-file
	// before the YAML overlay runs; the full pass below re-parses
	// everything once the file and env layers have been applied, so a
	// flag always wins even though it is read twice.
	preflight := flag.NewFlagSet(flagSetName, flag.ContinueOnError)
	preflight.SetOutput(io.Discard)
	configFile := preflight.String("config-file", "", "path to a YAML config file")
	// preflight knows no other flag, so Parse stops at the first one it does
	// not recognize; retrying from every position lets -config-file be found
	// wherever it appears among the other flags.
	for i := range args {
		_ = preflight.Parse(args[i:])
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = *configFile
	}

	applyEnv(&cfg)

	fs := flag.NewFlagSet(flagSetName, flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigFile, "config-file", cfg.ConfigFile, "path to a YAML config file")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to listen on")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding repositories")
	fs.StringVar(&cfg.HtpasswdFile, "htpasswd-file", cfg.HtpasswdFile, "htpasswd file for basic auth")
	fs.StringVar(&cfg.ACLFile, "acl-file", cfg.ACLFile, "YAML ACL file")
	fs.BoolVar(&cfg.DisableAuth, "disable-auth", cfg.DisableAuth, "disable basic auth entirely")
	fs.BoolVar(&cfg.DisableACL, "disable-acl", cfg.DisableACL, "disable ACL enforcement entirely")
	fs.BoolVar(&cfg.PrivateRepos, "private-repos", cfg.PrivateRepos, "restrict unlisted repos to their owning user")
	fs.BoolVar(&cfg.AppendOnly, "append-only", cfg.AppendOnly, "reject all deletes and overwrites")
	fs.Int64Var(&cfg.QuotaBytes, "quota-bytes", cfg.QuotaBytes, "per-repository size quota, 0 disables")
	fs.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS key file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logrus level name")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

const flagSetName = "rest-server"

// applyEnv overlays REST_SERVER_-prefixed environment variables, named
// after the flag with hyphens turned to underscores and upper-cased
// (e.g. REST_SERVER_DATA_DIR).
func applyEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envName(name)); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(envName(name)); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("listen", &cfg.Listen)
	str("data-dir", &cfg.DataDir)
	str("htpasswd-file", &cfg.HtpasswdFile)
	str("acl-file", &cfg.ACLFile)
	str("tls-cert", &cfg.TLSCert)
	str("tls-key", &cfg.TLSKey)
	str("log-level", &cfg.LogLevel)

	boolean("disable-auth", &cfg.DisableAuth)
	boolean("disable-acl", &cfg.DisableACL)
	boolean("private-repos", &cfg.PrivateRepos)
	boolean("append-only", &cfg.AppendOnly)

	if v, ok := os.LookupEnv(envName("quota-bytes")); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.QuotaBytes = n
		}
	}
}

func envName(flagName string) string {
	return "REST_SERVER_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
