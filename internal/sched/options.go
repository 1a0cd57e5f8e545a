package sched

import (
	"github.com/sirupsen/logrus"
)

// ErrorHandler receives errors raised by task work. The failing task is
// already out of the queues when the handler runs.
type ErrorHandler func(t *Task, err error)

// Options is common options
type Options struct {
	Host    Host
	Config  Config
	Logger  logrus.FieldLogger
	OnError ErrorHandler
}

// NewOptions creates options with defaults. When no host is supplied, a
// LoopHost is started with the config's frame quantum.
func NewOptions(opts ...Option) Options {
	var options = Options{
		Config: defaultConfig(),
		Logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.Host == nil {
		options.Host = NewLoopHost(options.Config.Frame())
	}

	return options
}

// Option is for setting options.
type Option func(*Options)

// WithHost sets the host bridge.
func WithHost(h Host) Option {
	return func(o *Options) {
		if h != nil {
			o.Host = h
		}
	}
}

// WithConfig sets the full config.
func WithConfig(cfg Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}

// WithErrorHandler sets the hook that receives task errors. The default
// logs them and moves on.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *Options) {
		if h != nil {
			o.OnError = h
		}
	}
}
