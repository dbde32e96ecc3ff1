package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"
)

// ErrorClass groups publish failures by how they are reported.
type ErrorClass int

const (
	// ClassMessage is a failure tied to one message; the broker is reachable.
	ClassMessage ErrorClass = iota
	// ClassConnection means the broker could not be reached at all.
	ClassConnection
	// ClassFatal is an unrecoverable client or authorization problem.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConnection:
		return "connection"
	case ClassFatal:
		return "fatal"
	default:
		return "message"
	}
}

// connectionLogInterval bounds how often connection failures reach the log.
const connectionLogInterval = time.Minute

// ClassifyError maps a publish error onto an ErrorClass.
func ClassifyError(err error) ErrorClass {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				return ClassifyError(e)
			}
		}

		return ClassMessage
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch kerr {
		case kafka.TopicAuthorizationFailed, kafka.ClusterAuthorizationFailed,
			kafka.SASLAuthenticationFailed, kafka.InvalidRequiredAcks,
			kafka.UnsupportedVersion, kafka.InvalidTopic:
			return ClassFatal
		case kafka.NetworkException, kafka.LeaderNotAvailable, kafka.NotLeaderForPartition,
			kafka.BrokerNotAvailable, kafka.RequestTimedOut:
			return ClassConnection
		default:
			return ClassMessage
		}
	}

	if errors.Is(err, errNotConfigured) {
		return ClassFatal
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return ClassConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassConnection
	}

	return ClassMessage
}

var errNotConfigured = errors.New("publisher is not configured")

// errorReporter logs publish failures. Fatal errors are always logged;
// connection errors at most once per connectionLogInterval with a count of
// the suppressed ones; message errors as warnings.
type errorReporter struct {
	log        *slog.Logger
	connLog    rate.Sometimes
	suppressed atomic.Int64
}

func newErrorReporter(log *slog.Logger) *errorReporter {
	if log == nil {
		log = slog.Default()
	}

	return &errorReporter{
		log:     log,
		connLog: rate.Sometimes{Interval: connectionLogInterval},
	}
}

func (r *errorReporter) report(err error, attrs ...slog.Attr) ErrorClass {
	class := ClassifyError(err)
	attrs = append(attrs, slog.String("error", err.Error()), slog.String("class", class.String()))

	switch class {
	case ClassFatal:
		r.log.LogAttrs(context.Background(), slog.LevelError, "broker publish failed", attrs...)
	case ClassConnection:
		logged := false
		r.connLog.Do(func() {
			logged = true
			attrs = append(attrs, slog.Int64("suppressed", r.suppressed.Swap(0)))
			r.log.LogAttrs(context.Background(), slog.LevelError, "broker unreachable", attrs...)
		})

		if !logged {
			r.suppressed.Add(1)
		}
	default:
		r.log.LogAttrs(context.Background(), slog.LevelWarn, "broker rejected message", attrs...)
	}

	return class
}
