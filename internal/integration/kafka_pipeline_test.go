//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/nwis-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/nwis-data-etl/internal/config"
	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/internal/observability"
	"github.com/couchcryptid/nwis-data-etl/internal/pipeline"
	"github.com/couchcryptid/nwis-data-etl/nwis"
)

const testSinkTopic = "test-nwis-sink"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("nwis-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// startNWIS serves the two-site instantaneous-values fixture.
func startNWIS(t *testing.T) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "nwis", "testdata", "iv_two_sites.json"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/iv/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// sinkMessage holds a deserialized message read from the sink topic.
type sinkMessage struct {
	Event   domain.SeriesEvent
	Key     string
	Headers map[string]string
}

func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.SeriesEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal sink message")
	return sinkMessage{Event: event, Key: string(msg.Key), Headers: headers}
}

// TestPipelineEndToEnd polls a fake NWIS server once and verifies the series
// events land on a real Kafka topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)
	nwisSrv := startNWIS(t)

	cfg := &config.Config{
		NWISBaseURL:    nwisSrv.URL,
		NWISService:    "iv",
		MajorFilter:    nwis.Filters{"sites": {"01358000", "01357500"}},
		ParameterCodes: []string{"00060", "00065"},
		Period:         "PT2H",
		NWISTimeout:    5 * time.Second,
		SiteChunkSize:  100,
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	metrics := observability.NewMetricsForTesting()
	client := nwis.NewClient(nwis.WithRoot(cfg.NWISBaseURL), nwis.WithObserver(metrics.ObserveNWISRequest))
	source := pipeline.NewNWISSource(client, cfg, metrics, discardLogger())
	transformer := pipeline.NewTransformer(nil, metrics, discardLogger())
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(source, transformer, writer, discardLogger(), metrics, time.Hour)
	res, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.CycleResult{Series: 2, Events: 2}, res)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     "test-sink-" + strconv.FormatInt(time.Now().UnixNano(), 10),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	bySite := map[string]sinkMessage{}
	for range 2 {
		m := readSink(ctx, t, consumer)
		bySite[m.Key] = m
	}

	discharge, ok := bySite["01358000"]
	require.True(t, ok, "missing 01358000")
	assert.Equal(t, "00060", discharge.Headers[kafka.HeaderParameter])
	assert.Equal(t, "iv", discharge.Headers[kafka.HeaderService])
	_, err = time.Parse(time.RFC3339, discharge.Headers[kafka.HeaderFetchedAt])
	assert.NoError(t, err, "fetched_at should be valid RFC3339")

	assert.Equal(t, 3, discharge.Event.Summary.Points)
	assert.Equal(t, 1, discharge.Event.Summary.ValidPoints)
	require.NotNil(t, discharge.Event.Summary.Latest)
	assert.Equal(t, 5230.0, *discharge.Event.Summary.Latest)
	assert.Equal(t, 42.7523, discharge.Event.Geo.Lat)

	stage, ok := bySite["01357500"]
	require.True(t, ok, "missing 01357500")
	assert.Equal(t, "00065", stage.Event.Parameter)
	assert.False(t, stage.Event.HasCoords())
}

// TestPipelineRunPollsAndStops runs the loop until the first cycle lands and
// verifies it shuts down cleanly.
func TestPipelineRunPollsAndStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)
	nwisSrv := startNWIS(t)

	cfg := &config.Config{
		NWISBaseURL:    nwisSrv.URL,
		NWISService:    "iv",
		MajorFilter:    nwis.Filters{"sites": {"01358000"}},
		ParameterCodes: []string{"00060"},
		NWISTimeout:    5 * time.Second,
		SiteChunkSize:  100,
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	metrics := observability.NewMetricsForTesting()
	client := nwis.NewClient(nwis.WithRoot(cfg.NWISBaseURL))
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	p := pipeline.New(
		pipeline.NewNWISSource(client, cfg, metrics, discardLogger()),
		pipeline.NewTransformer(nil, metrics, discardLogger()),
		writer, discardLogger(), metrics, time.Hour,
	)

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return p.CheckReadiness(ctx) == nil
	}, 60*time.Second, 200*time.Millisecond, "pipeline never completed a cycle")

	stop()
	require.NoError(t, <-errCh)
	assert.Equal(t, int64(1), p.Status().Cycles)
}
