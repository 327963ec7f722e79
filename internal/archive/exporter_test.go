package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

var toronto = types.Location{Name: "toronto", Latitude: 43.65, Longitude: -79.38, Timezone: "America/Toronto"}

type memObjects struct {
	puts map[string][]byte
	ct   string
	err  error
}

func (m *memObjects) Put(_ context.Context, key string, body []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[key] = body
	m.ct = contentType
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

// seededAt is the ingestion time seedStore stamps on every sample.
var seededAt = time.Date(2024, 4, 3, 8, 0, 0, 0, time.UTC)

func seedStore(t *testing.T, samples ...types.WeatherSample) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore(2, store.WithClock(types.FixedClock{T: seededAt}))
	for _, s := range samples {
		require.NoError(t, st.Upsert(context.Background(), s))
	}
	return st
}

func sampleAt(at time.Time, temp float64) types.WeatherSample {
	return types.WeatherSample{
		Location:      toronto,
		ObservedAt:    at,
		TemperatureC:  temp,
		FeelsLikeC:    temp - 1,
		HumidityPct:   55,
		WindSpeedKph:  12,
		ConditionCode: "2",
		ConditionText: "Partly cloudy",
		Source:        types.ProviderOpenMeteo,
	}
}

func TestExportMonth(t *testing.T) {
	full := sampleAt(time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), 3.5)
	full.PressureHPa = intp(1013)
	full.WindDirectionDeg = floatp(270)
	full.PrecipitationMM = floatp(0.4)

	st := seedStore(t,
		full,
		sampleAt(time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC), 5),
		sampleAt(time.Date(2024, 3, 8, 14, 0, 0, 0, time.UTC), 7),
		// 02:00 UTC on April 1 is still March 31 in Toronto.
		sampleAt(time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC), 9),
		sampleAt(time.Date(2024, 4, 2, 14, 0, 0, 0, time.UTC), 11),
	)
	objects := &memObjects{}
	exp := NewExporter(ExporterConfig{Store: st, Objects: objects, Prefix: "samples", Logger: discardLogger()})

	res, err := exp.ExportMonth(context.Background(), toronto, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "samples/toronto/2024-03.csv.zst", res.Key)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, ContentType, objects.ct)

	body, ok := objects.puts[res.Key]
	require.True(t, ok)
	assert.Equal(t, len(body), res.Bytes)

	rows, err := Decode(bytes.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "2024-03-04T14:00:00Z", rows[0].ObservedAt)
	assert.Equal(t, "2024-04-01T02:00:00Z", rows[3].ObservedAt)

	first, err := rows[0].Sample(toronto)
	require.NoError(t, err)
	assert.True(t, first.ObservedAt.Equal(full.ObservedAt))
	assert.True(t, first.IngestedAt.Equal(seededAt))
	require.NotNil(t, first.PressureHPa)
	assert.Equal(t, 1013, *first.PressureHPa)
	require.NotNil(t, first.PrecipitationMM)
	assert.Equal(t, 0.4, *first.PrecipitationMM)
	assert.Equal(t, types.ProviderOpenMeteo, first.Source)

	second, err := rows[1].Sample(toronto)
	require.NoError(t, err)
	assert.Nil(t, second.PressureHPa)
	assert.Nil(t, second.WindDirectionDeg)
	assert.Nil(t, second.PrecipitationMM)
}

func TestExportMonth_EmptyMonthUploadsNothing(t *testing.T) {
	objects := &memObjects{}
	exp := NewExporter(ExporterConfig{Store: store.NewMemoryStore(0), Objects: objects, Prefix: "samples", Logger: discardLogger()})

	res, err := exp.ExportMonth(context.Background(), toronto, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)
	assert.Empty(t, objects.puts)
}

func TestExportMonth_UploadFailure(t *testing.T) {
	st := seedStore(t, sampleAt(time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), 1))
	objects := &memObjects{err: errors.New("access denied")}
	exp := NewExporter(ExporterConfig{Store: st, Objects: objects, Prefix: "samples", Logger: discardLogger()})

	_, err := exp.ExportMonth(context.Background(), toronto, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeArchiveFailed, types.CodeOf(err))
}

func TestEncode_HeaderOnlyDecodesEmpty(t *testing.T) {
	it, err := store.NewMemoryStore(0).Range(context.Background(), toronto,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	body, rows, err := Encode(it)
	require.NoError(t, err)
	assert.Equal(t, 0, rows)

	decoded, err := Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestExporter_Key(t *testing.T) {
	exp := NewExporter(ExporterConfig{Prefix: "archive/raw/"})
	p := types.MonthPeriod(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "archive/raw/toronto/2025-11.csv.zst", exp.Key(toronto, p))
}

type mockS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.input = params
	if params.Body != nil {
		m.body, _ = io.ReadAll(params.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3ObjectStore_Put(t *testing.T) {
	client := &mockS3{}
	objects := NewS3ObjectStore(client, "climate-archive")

	require.NoError(t, objects.Put(context.Background(), "samples/x.csv.zst", []byte("payload"), ContentType))
	assert.Equal(t, "climate-archive", *client.input.Bucket)
	assert.Equal(t, "samples/x.csv.zst", *client.input.Key)
	assert.Equal(t, ContentType, *client.input.ContentType)
	assert.Equal(t, int64(7), *client.input.ContentLength)
	assert.Equal(t, []byte("payload"), client.body)
}

func TestS3ObjectStore_PutError(t *testing.T) {
	objects := NewS3ObjectStore(&mockS3{err: errors.New("no such bucket")}, "b")
	err := objects.Put(context.Background(), "k", nil, ContentType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such bucket")
}

func TestSanitizeEndpoint(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost:9000", "localhost:9000"},
		{"http://localhost:9000", "localhost:9000"},
		{"https://minio.internal:9000/console", "minio.internal:9000"},
		{"  https://s3.example.com  ", "s3.example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeEndpoint(tt.in), tt.in)
	}
}

func TestNewMinIOObjectStore(t *testing.T) {
	_, err := NewMinIOObjectStore(MinIOConfig{Bucket: "b"})
	assert.Error(t, err)

	objects, err := NewMinIOObjectStore(MinIOConfig{
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Region:    "us-east-1",
		Bucket:    "climate-archive",
	})
	require.NoError(t, err)
	assert.Equal(t, "climate-archive", objects.bucket)
	assert.False(t, objects.client.EndpointURL().Scheme == "https")
}
