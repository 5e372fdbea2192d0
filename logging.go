package livetiming

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/timing"
)

type Logger = timing.Logger

const MaxLogSizeBytes = 1e6

// NewLogger builds the process logger. Output goes to stdout and is also
// kept in memory for debug bundles.
func NewLogger(level string) (*logrus.Logger, *LogBuffer, error) {
	lvl, err := logrus.ParseLevel(level)

	if err != nil {
		return nil, nil, err
	}

	buf := NewLogBuffer(MaxLogSizeBytes)

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(lvl)
	logger.SetOutput(io.MultiWriter(os.Stdout, buf))

	return logger, buf, nil
}

// LogBuffer holds roughly the last size bytes written to it.
type LogBuffer struct {
	buf *bytes.Buffer

	size int

	mutex sync.Mutex
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		buf:  new(bytes.Buffer),
		size: size,
	}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	b := lb.buf.Bytes()

	if len(b) > lb.size {
		lb.buf = bytes.NewBuffer(append([]byte(nil), b[len(b)-lb.size:]...))
	}

	return lb.buf.Write(p)
}

func (lb *LogBuffer) String() string {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	return strings.Replace(lb.buf.String(), "\n\n", "\n", -1)
}
