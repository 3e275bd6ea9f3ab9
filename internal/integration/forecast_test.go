//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/adapter/gtd"
	"github.com/couchcryptid/incident-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/model"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
	"github.com/couchcryptid/incident-risk-service/internal/service"
	"github.com/couchcryptid/incident-risk-service/internal/store"
)

const forecastTopic = "test-risk-forecasts"

const datasetCSV = `eventid,iyear,imonth,iday,country_txt,region_txt,city,latitude,longitude,attacktype1_txt,nkill,nwound
201712200001,2017,12,20,Iraq,Middle East & North Africa,Baghdad,33.31,44.36,Bombing/Explosion,12,30
201712210001,2017,12,21,Iraq,Middle East & North Africa,Baghdad,33.34,44.40,Armed Assault,3,2
201712150001,2017,12,15,Iraq,Middle East & North Africa,Mosul,36.34,43.13,Bombing/Explosion,,4
201711300001,2017,11,30,Syria,Middle East & North Africa,Aleppo,36.20,37.16,Armed Assault,1,0
`

type forecastMessage struct {
	Key     string
	Headers map[string]string
	Body    map[string]any
}

func readForecast(ctx context.Context, t *testing.T, r *kafkago.Reader) forecastMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := r.ReadMessage(readCtx)
	require.NoError(t, err, "read from forecast topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	return forecastMessage{Key: string(msg.Key), Headers: headers, Body: body}
}

// TestReloadPublishesForecast runs the ingest → store → projection path on a
// small dataset and checks the forecast lands on Kafka cell by cell.
func TestReloadPublishesForecast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, forecastTopic)

	path := filepath.Join(t.TempDir(), "gtd.csv")
	require.NoError(t, os.WriteFile(path, []byte(datasetCSV), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	writer := kafka.NewWriter([]string{broker}, forecastTopic, logger)
	defer writer.Close()

	grid, err := model.NewGrid(domain.Bounds{MinLat: 30, MinLon: 35, MaxLat: 40, MaxLon: 50}, 1)
	require.NoError(t, err)
	kernel := model.Kernel{TimeDecayDays: 30, BandwidthKm: 200, Background: 0.0001, MinWeight: 1}

	svc, err := service.New(service.Deps{
		Store:  store.NewManager(1, logger),
		Loader: pipeline.New(gtd.NewSource(path, gtd.EncodingUTF8), pipeline.NewTransformer(nil, logger), logger, metrics),
		Projector: &model.Projector{
			Estimator:   model.NewEstimator(kernel, 1e-6, 0, 0),
			Grid:        grid,
			StepDays:    1,
			Parallelism: 2,
		},
		Aggregator: model.Aggregator{MaxCells: 5, MinReportable: 0.01},
		Publisher:  writer,
		Metrics:    metrics,
		Logger:     logger,
	}, service.Options{
		DefaultHorizonDays: 30,
		MaxHorizonDays:     365,
		EvaluationTime:     service.EvaluationLatest,
		ComputeTimeout:     30 * time.Second,
		CacheTTL:           time.Minute,
		CacheSize:          4,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Reload(ctx))
	svc.Wait()

	want, err := svc.Predict(ctx, 30)
	require.NoError(t, err)
	require.Len(t, want.Cells, 5)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     forecastTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	defer reader.Close()

	for i, cell := range want.Cells {
		msg := readForecast(ctx, t, reader)
		assert.Equal(t, strconv.Itoa(int(cell.ID)), msg.Key, "cell %d", i)
		assert.Equal(t, "1", msg.Headers["store_version"])
		assert.Equal(t, "30", msg.Headers["horizon_days"])
		assert.Equal(t, "2017-12-21T00:00:00Z", msg.Headers["reference_time"])
		assert.InDelta(t, cell.Score, msg.Body["risk"], 1e-12)
		assert.InDelta(t, cell.Raw, msg.Body["raw_intensity"], 1e-9)
	}
	assert.Equal(t, 1.0, want.Cells[0].Score)
}
