// Command rest-server hosts one or more content-addressed backup
// repositories over HTTP(S), speaking the wire protocol restic and rustic
// clients expect. It is the binary entry point wiring internal/config,
// internal/restrepo and internal/server together, generalized from the
// teacher's main.go (flag parsing, prometheus registration, a single
// http.ListenAndServe call).
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rustic-rs/rest-server/internal/config"
	"github.com/rustic-rs/rest-server/internal/restrepo"
	"github.com/rustic-rs/rest-server/internal/server"
)

// Buildtime variables, set via -ldflags the way the teacher's Program/
// Commit/Version vars are.
var (
	Program = "rest-server"
	Commit  = "0000000"
	Version = "0.0.0"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logrus.New()
	if level, lerr := logrus.ParseLevel(cfg.LogLevel); lerr == nil {
		log.SetLevel(level)
	}
	log.WithFields(logrus.Fields{
		"program": Program,
		"version": Version,
		"commit":  Commit,
	}).Info("starting")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("exiting")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	storage := restrepo.NewLocalStorage(cfg.DataDir, cfg.QuotaBytes, log)

	var auth *restrepo.CredentialStore
	if cfg.DisableAuth || cfg.HtpasswdFile == "" {
		auth = restrepo.NewCredentialStore()
	} else {
		var err error
		auth, err = restrepo.LoadHtpasswd(cfg.HtpasswdFile)
		if err != nil {
			return err
		}
	}

	policy := cfg.Policy()
	acl, err := restrepo.LoadACL(cfg.ACLFile, policy)
	if err != nil {
		return err
	}

	srv := server.New(storage, auth, acl, policy, log)
	handler := srv.Handler()

	log.WithField("addr", cfg.Listen).Info("listening")
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		return http.ListenAndServeTLS(cfg.Listen, cfg.TLSCert, cfg.TLSKey, handler)
	}
	return http.ListenAndServe(cfg.Listen, handler)
}
