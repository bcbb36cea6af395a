// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package cmd implements the couchfeed command line tool.
package cmd

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-kivik/couchfeed"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/config"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/errors"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/log"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/output"
)

const defaultConfigFile = "~/.couchfeed/config.yaml"

type root struct {
	confFile       string
	connectTimeout time.Duration

	log    log.Logger
	loader *config.Loader
	conf   *config.Config
	cmd    *cobra.Command
	out    *output.Formatter

	// resolveHome is used to resolve ~ in the default config file path
	resolveHome func(string) string
}

// Execute runs the command line, and exits.
func Execute(ctx context.Context) {
	lg := log.New()
	root := rootCmd(lg)
	os.Exit(root.execute(ctx))
}

func (r *root) execute(ctx context.Context) int {
	err := r.cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	return extractExitCode(err)
}

func extractExitCode(err error) int {
	if code := errors.InspectErrorCode(err); code != 0 {
		return code
	}

	// Any unhandled errors are assumed to be from Cobra, so return a "failed
	// to initialize" error
	return errors.ErrUsage
}

func resolveHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	return filepath.Join(usr.HomeDir, path[2:])
}

func rootCmd(lg log.Logger) *root {
	r := &root{
		log:         lg,
		loader:      config.New(),
		out:         output.New(),
		resolveHome: resolveHome,
	}
	r.cmd = &cobra.Command{
		Use:               "couchfeed",
		Short:             "couchfeed reads CouchDB changes feeds and views",
		Long:              `couchfeed streams the changes feed, views, and Server-Sent Events of a CouchDB database, one result per line.`,
		PersistentPreRunE: r.init,
	}

	pf := r.cmd.PersistentFlags()
	pf.StringVar(&r.confFile, "config", defaultConfigFile, "Path to config file")
	pf.DurationVar(&r.connectTimeout, "connect-timeout", 0, "Limits the time spent establishing a TCP connection.")
	pf.String("dsn", "", "CouchDB server URL, including credentials if required")
	pf.Bool("debug", false, "Enable debug output")
	pf.Int("buffer", 0, "Number of lines to read ahead of the consumer. 0 uses the default.")
	pf.IntP("retry", "r", 0, "Resume an interrupted feed up to this many times. A negative value retries forever.")
	pf.Duration("retry-delay", 0, "Delay between retry attempts. Disables the default exponential backoff.")
	pf.Duration("retry-timeout", 0, "When used with --retry, no more retries will be attempted after this timeout.")
	pf.StringP("output", "o", "json", "Output format. One of: "+strings.Join(r.out.Names(), "|"))
	pf.String("field", "", "Output only this dotted path of each result, such as doc.title")

	r.cmd.AddCommand(changesCmd(r))
	r.cmd.AddCommand(eventsCmd(r))
	r.cmd.AddCommand(viewCmd(r))
	r.cmd.AddCommand(allDocsCmd(r))
	r.cmd.AddCommand(versionCmd(r))

	return r
}

func (r *root) init(cmd *cobra.Command, _ []string) error {
	r.log.SetOut(cmd.OutOrStdout())
	r.log.SetErr(cmd.ErrOrStderr())

	// Flags parsed; remaining errors are not usage errors.
	cmd.SilenceUsage = true

	// Flags of the command being run, persistent flags included.
	r.loader.BindFlags(cmd.Flags())
	explicit := cmd.Flags().Changed("config")
	conf, err := r.loader.Load(r.resolveHome(r.confFile), explicit, r.log)
	if err != nil {
		return err
	}
	r.conf = conf
	r.log.SetDebug(conf.Debug)
	r.log.Debug("Debug mode enabled")
	return r.out.Configure(cmd.OutOrStdout(), conf.Output, conf.Field)
}

func (r *root) client() (*couchfeed.Client, error) {
	opts := []couchfeed.Option{
		couchfeed.OptionUserAgent("couchfeed-cli/" + couchfeed.Version),
		couchfeed.OptionLogger(r.log),
	}
	if r.conf.Buffer > 0 {
		opts = append(opts, couchfeed.OptionBufferSize(r.conf.Buffer))
	}
	if r.connectTimeout > 0 {
		// No overall request timeout: feeds stay open indefinitely.
		opts = append(opts, couchfeed.OptionHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: r.connectTimeout,
				}).DialContext,
			},
		}))
	}
	client, err := couchfeed.New(r.conf.DSN, opts...)
	if err != nil {
		return nil, errors.Code(errors.ErrUsage, err)
	}
	r.log.Debugf("DSN: %s", redact(r.conf.DSN))
	return client, nil
}

// redact masks the password of dsn, for logging.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	return u.Redacted()
}
