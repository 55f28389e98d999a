package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
)

// NewKafkaWriterFactory returns a WriterFactory that resolves the sink
// connection secret through the Authenticator and builds a kafka.Writer for
// it. The secret holds a DSN of the form "user:password@host1,host2" (the
// credential part is optional for unauthenticated local brokers).
func NewKafkaWriterFactory(auth *secrets.Authenticator, sinkSecret, topic string, timeout time.Duration) WriterFactory {
	return func(ctx context.Context) (SinkWriter, error) {
		cred, err := auth.GetCredential(ctx, sinkSecret)
		if err != nil {
			return nil, err
		}

		brokers, mechanism, err := parseSinkDSN(cred.Value())
		if err != nil {
			return nil, err
		}

		transport := &kafka.Transport{}
		if mechanism != nil {
			transport.SASL = mechanism
		}

		return &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			Async:                  false,
			WriteTimeout:           timeout,
			ReadTimeout:            timeout,
			Transport:              transport,
		}, nil
	}
}

// parseSinkDSN splits "user:password@host1,host2" into broker addresses and
// an optional SASL/PLAIN mechanism.
func parseSinkDSN(dsn string) ([]string, sasl.Mechanism, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil, fmt.Errorf("%w: empty sink connection descriptor", pipeline.ErrSecretUnavailable)
	}

	var mechanism sasl.Mechanism
	hostPart := dsn

	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		credPart := dsn[:at]
		hostPart = dsn[at+1:]

		user, pass, ok := strings.Cut(credPart, ":")
		if !ok || user == "" {
			return nil, nil, fmt.Errorf("%w: sink credential must be user:password", pipeline.ErrSecretUnavailable)
		}
		mechanism = plain.Mechanism{Username: user, Password: pass}
	}

	brokers := strings.Split(hostPart, ",")
	for i, b := range brokers {
		brokers[i] = strings.TrimSpace(b)
		if brokers[i] == "" {
			return nil, nil, fmt.Errorf("%w: sink connection descriptor has an empty broker address", pipeline.ErrSecretUnavailable)
		}
	}
	return brokers, mechanism, nil
}
