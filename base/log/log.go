// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"net/url"
	"os"
	"strings"

	"github.com/emicklei/go-restful/v3"
	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zap.DebugLevel)
)

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	var err error
	if logger, err = cfg.Build(); err != nil {
		panic(err)
	}
}

// Logger get current logger
func Logger() *zap.Logger {
	return logger
}

// ResponseLogger returns a logger carrying the request id of a REST response.
func ResponseLogger(resp *restful.Response) *zap.Logger {
	return logger.With(zap.String("request_id", resp.Header().Get("X-Request-ID")))
}

// CloseLogger mutes everything below fatal. Used by CLI commands that print tables.
func CloseLogger() {
	level.SetLevel(zap.FatalLevel)
}

// Options of the global logger.
type Options struct {
	Level      string
	Format     string
	Path       string
	MaxSize    int
	MaxAge     int
	MaxBackups int
}

func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-level", "info", "log level (debug, info, warn, error)")
	flagSet.String("log-format", "json", "log format (json, console)")
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
}

// OptionsFromFlags reads the flags registered by AddFlags. Missing flags keep
// their defaults.
func OptionsFromFlags(flagSet *pflag.FlagSet) Options {
	opts := Options{Level: "info", Format: "json", MaxSize: 100}
	if flagSet == nil {
		return opts
	}
	if v, err := flagSet.GetString("log-level"); err == nil {
		opts.Level = v
	}
	if v, err := flagSet.GetString("log-format"); err == nil {
		opts.Format = v
	}
	if v, err := flagSet.GetString("log-path"); err == nil {
		opts.Path = v
	}
	if v, err := flagSet.GetInt("log-max-size"); err == nil {
		opts.MaxSize = v
	}
	if v, err := flagSet.GetInt("log-max-age"); err == nil {
		opts.MaxAge = v
	}
	if v, err := flagSet.GetInt("log-max-backups"); err == nil {
		opts.MaxBackups = v
	}
	return opts
}

// SetLogger replaces the global logger with one built from flags. Debug mode
// forces colored console lines at debug level.
func SetLogger(flagSet *pflag.FlagSet, debug bool) {
	opts := OptionsFromFlags(flagSet)
	if debug {
		opts.Level = "debug"
		opts.Format = "console"
	}
	if err := Configure(opts); err != nil {
		logger.Fatal("failed to configure logger", zap.Error(err))
	}
}

// Configure replaces the global logger. Logs go to stdout and, when Path is
// set, to a rotating file.
func Configure(opts Options) error {
	lvl, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return errors.NotValidf("log level %q", opts.Level)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	var encoder zapcore.Encoder
	switch opts.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(cfg)
	case "console":
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	default:
		return errors.NotValidf("log format %q", opts.Format)
	}
	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.Path != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
		}))
	}
	level.SetLevel(lvl)
	logger = zap.New(zapcore.NewCore(encoder, zap.CombineWriteSyncers(writers...), level), zap.AddCaller())
	return nil
}

const mysqlPrefix = "mysql://"

// RedactDBURL masks the user name and password of a data store URL.
func RedactDBURL(rawURL string) string {
	if strings.HasPrefix(rawURL, mysqlPrefix) {
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(rawURL, mysqlPrefix))
		if err != nil {
			return rawURL
		}
		cfg.User = mask(cfg.User)
		cfg.Passwd = mask(cfg.Passwd)
		return mysqlPrefix + cfg.FormatDSN()
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.User == nil {
		return rawURL
	}
	password, _ := parsed.User.Password()
	parsed.User = url.UserPassword(mask(parsed.User.Username()), mask(password))
	return parsed.String()
}

func mask(s string) string {
	return strings.Repeat("x", len(s))
}

// GetErrorHandler routes OpenTelemetry failures to the global logger.
func GetErrorHandler() otel.ErrorHandler {
	return errorHandler{}
}

type errorHandler struct{}

func (errorHandler) Handle(err error) {
	Logger().Error("opentelemetry failure", zap.Error(err))
}
