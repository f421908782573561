package transport

import (
	"strconv"
	"strings"

	"audioscope/internal/log"
)

// LoggingTransport writes a one-line summary of every nth frame at debug
// level.
type LoggingTransport struct {
	every *log.Sampler
}

// NewLoggingTransport logs one frame out of every n.
func NewLoggingTransport(n int) *LoggingTransport {
	logger.Infof("using logging transport (every %d frames)", max(n, 1))
	return &LoggingTransport{every: log.Every(n)}
}

func (lt *LoggingTransport) Send(f *Frame) error {
	if !lt.every.Allow() || !log.Enabled(log.LevelDebug) {
		return nil
	}
	logger.Debugf("frame %d t=%.3fs pos=%.3fs peak=%.3f beat=%t%s", f.Seq, f.Time, f.Position, f.Peak, f.Beat, summarize(f))
	return nil
}

// summarize lists each layer's loudest bar.
func summarize(f *Frame) string {
	var b strings.Builder
	for _, l := range f.Layers {
		var top float64
		for _, v := range l.Bars {
			top = max(top, v)
		}
		b.WriteString(" ")
		b.WriteString(l.Name)
		b.WriteString("=")
		b.WriteString(strconv.FormatFloat(top, 'f', 3, 64))
	}
	return b.String()
}

func (lt *LoggingTransport) Close() error {
	logger.Debugf("logging transport closed")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
