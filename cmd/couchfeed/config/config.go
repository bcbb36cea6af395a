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

// Package config reads the couchfeed command configuration from a config
// file, COUCHFEED_* environment variables, and command line flags, in
// increasing order of precedence.
package config

import (
	stderrors "errors"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-kivik/couchfeed"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/errors"
	"github.com/go-kivik/couchfeed/cmd/couchfeed/log"
)

const envPrefix = "COUCHFEED"

// Keys of the configuration values, as used in the config file. The
// environment variable of a key is its upper case form, prefixed with
// COUCHFEED_.
const (
	KeyDSN          = "dsn"
	KeyFeed         = "feed"
	KeySince        = "since"
	KeyHeartbeat    = "heartbeat"
	KeyTimeout      = "timeout"
	KeyLimit        = "limit"
	KeyIncludeDocs  = "include_docs"
	KeyFilter       = "filter"
	KeyBuffer       = "buffer"
	KeyRetry        = "retry"
	KeyRetryDelay   = "retry_delay"
	KeyRetryTimeout = "retry_timeout"
	KeyFollow       = "follow"
	KeyOutput       = "output"
	KeyField        = "field"
	KeyDebug        = "debug"
)

var keys = []string{
	KeyDSN, KeyFeed, KeySince, KeyHeartbeat, KeyTimeout, KeyLimit,
	KeyIncludeDocs, KeyFilter, KeyBuffer, KeyRetry, KeyRetryDelay,
	KeyRetryTimeout, KeyFollow, KeyOutput, KeyField, KeyDebug,
}

// Config is the complete command configuration.
type Config struct {
	DSN  string `mapstructure:"dsn" validate:"required,url"`
	Feed string `mapstructure:"feed" validate:"omitempty,oneof=normal longpoll continuous eventsource"`
	// Since is the sequence a changes feed starts after.
	Since string `mapstructure:"since"`
	// Heartbeat asks the server for a heartbeat at this interval on quiet
	// continuous and eventsource feeds.
	Heartbeat time.Duration `mapstructure:"heartbeat" validate:"gte=0"`
	// Timeout is how long the server waits for a change before closing a
	// longpoll or continuous feed.
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Limit       int           `mapstructure:"limit" validate:"gte=0"`
	IncludeDocs bool          `mapstructure:"include_docs"`
	Filter      string        `mapstructure:"filter"`
	// Buffer is the number of decoded lines a feed queues ahead of the
	// consumer.
	Buffer int `mapstructure:"buffer" validate:"gte=0"`
	// Retry is the number of times an interrupted feed is resumed. A
	// negative value retries forever.
	Retry        int           `mapstructure:"retry"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	RetryTimeout time.Duration `mapstructure:"retry_timeout" validate:"gte=0"`
	// Follow reopens a continuous or eventsource feed whenever the server
	// ends it.
	Follow bool   `mapstructure:"follow"`
	Output string `mapstructure:"output" validate:"omitempty,oneof=json yaml raw"`
	// Field is a dotted path selecting part of each result for output, such
	// as "doc.title" or "changes.0.rev".
	Field string `mapstructure:"field"`
	Debug bool   `mapstructure:"debug"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Loader reads the configuration. Flags registered on it are bound to the
// matching configuration keys.
type Loader struct {
	v *viper.Viper
}

// New returns a Loader reading COUCHFEED_* environment variables.
func New() *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so each key is bound to
	// its environment variable explicitly.
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	v.SetDefault(KeyOutput, "json")
	return &Loader{v: v}
}

// BindFlag binds the configuration key to the named flag of fs. Flags use
// dashes where keys use underscores.
func (l *Loader) BindFlag(key string, fs *pflag.FlagSet) {
	flag := fs.Lookup(strings.ReplaceAll(key, "_", "-"))
	if flag == nil {
		panic("no flag for config key " + key)
	}
	if err := l.v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// BindFlags binds every configuration key which has a flag in fs.
func (l *Loader) BindFlags(fs *pflag.FlagSet) {
	for _, key := range keys {
		if fs.Lookup(strings.ReplaceAll(key, "_", "-")) != nil {
			l.BindFlag(key, fs)
		}
	}
}

// Load reads the config file, if any, and returns the validated
// configuration. A missing file is an error only if required is true, as it
// is when the file was named explicitly.
func (l *Loader) Load(filename string, required bool, lg log.Logger) (*Config, error) {
	if err := l.readFile(filename, required, lg); err != nil {
		return nil, err
	}
	conf := &Config{}
	if err := l.v.Unmarshal(conf); err != nil {
		return nil, errors.Code(errors.ErrData, err)
	}
	conf.DSN = defaultScheme(conf.DSN)
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	lg.Debugf("configuration: feed=%q output=%q retry=%d", conf.Feed, conf.Output, conf.Retry)
	return conf, nil
}

// defaultScheme prefixes a DSN given without a scheme, such as
// localhost:5984, with http://.
func defaultScheme(dsn string) string {
	if dsn == "" || strings.Contains(dsn, "://") {
		return dsn
	}
	return "http://" + dsn
}

func (l *Loader) readFile(filename string, required bool, lg log.Logger) error {
	if filename == "" {
		lg.Debug("no config file specified")
		return nil
	}
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) && !required {
			lg.Debugf("config file %q not found, skipping", filename)
			return nil
		}
		return errors.Code(errors.ErrNoInput, err)
	}
	l.v.SetConfigFile(filename)
	if err := l.v.ReadInConfig(); err != nil {
		lg.Debugf("config parse error: %s", err)
		return errors.Code(errors.ErrData, err)
	}
	lg.Debugf("successfully read config file %q", filename)
	return nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Codef(errors.ErrUsage, "invalid %s: %q fails %s", fe.Field(), fe.Value(), fe.Tag())
		}
		return errors.Code(errors.ErrUsage, err)
	}
	u, _ := url.Parse(c.DSN)
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Codef(errors.ErrUsage, "unsupported URL scheme: %s", u.Scheme)
	}
	return nil
}

// ChangesOptions returns the changes feed query described by the
// configuration.
func (c *Config) ChangesOptions() *couchfeed.ChangesOptions {
	return &couchfeed.ChangesOptions{
		Feed:        c.Feed,
		Since:       c.Since,
		Limit:       c.Limit,
		Heartbeat:   int(c.Heartbeat / time.Millisecond),
		Timeout:     int(c.Timeout / time.Millisecond),
		IncludeDocs: c.IncludeDocs,
		Filter:      c.Filter,
	}
}

// Continuous reports whether the configured feed waits on the server for
// new changes, and so can be followed.
func (c *Config) Continuous() bool {
	switch c.Feed {
	case couchfeed.FeedLongPoll, couchfeed.FeedContinuous, couchfeed.FeedEventSource:
		return true
	}
	return false
}
