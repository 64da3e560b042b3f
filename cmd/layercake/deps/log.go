package deps

import (
	"flag"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"layercake.run/cmd/layercake/rootcmd"
)

func ProvideFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("layercake", flag.ContinueOnError)
}

func ProvideLogFactory(streams rootcmd.IOStreams, flags *flag.FlagSet) LogFactory {
	f := &ZapLogFactory{out: streams.ErrOut}
	f.BindFlags(flags)

	return f
}

type LogFactory interface {
	Logger() logr.Logger
}

// ZapLogFactory creates development loggers writing to the error stream.
type ZapLogFactory struct {
	out       io.Writer
	verbosity int
}

func (f *ZapLogFactory) BindFlags(flags *flag.FlagSet) {
	flags.IntVar(&f.verbosity, "v", f.verbosity, "Log verbosity. 1 shows docker invocations and layer details.")
}

func (f *ZapLogFactory) Logger() logr.Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	// logr V(n) maps to zap level -n.
	level := zap.NewAtomicLevelAt(zapcore.Level(-f.verbosity))
	core := zapcore.NewCore(encoder, zapcore.AddSync(f.out), level)

	return zapr.NewLogger(zap.New(core, zap.Development()))
}
