// Package readers decodes raw wearable accelerometer recordings (Axivity
// CWA, GeneActiv BIN and ActiGraph GT3X containers, plus FIT activity files)
// into day-windowed multi-channel sample streams.
package readers

import "go.uber.org/zap"

// Option configures a reader.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger routes recoverable decode anomalies (bad blocks, sample-rate
// drift) to the given logger. Decoding is silent by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func applyOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
