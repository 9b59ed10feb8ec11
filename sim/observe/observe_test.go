package observe

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

func testSensor(t *testing.T) *sim.Sensor {
	t.Helper()
	s, err := sim.NewSensor(sim.SensorParams{CurrentCapacity: 50, MaxCapacity: 100})
	require.NoError(t, err)
	return s
}

func testCharger(t *testing.T) *sim.Charger {
	t.Helper()
	c, err := sim.NewCharger(sim.ChargerParams{
		CurrentCapacity:   1000,
		MaxCapacity:       1000,
		Radius:            1,
		TransmissionPower: 5,
		Speed:             1,
	})
	require.NoError(t, err)
	return c
}

// sampleStream is a short, plausible metric stream of one charged sensor.
func sampleStream(t *testing.T) (*sim.Sensor, *sim.Charger, []sim.MetricEvent) {
	t.Helper()
	s := testSensor(t)
	c := testCharger(t)
	tour := sim.ChargerTour{Charger: c, Stops: []sim.ChargingStop{{Location: sim.Position{X: 3, Y: 4}, Duration: 10}}}
	return s, c, []sim.MetricEvent{
		{Kind: sim.MetricSimulationStart, Time: 0, NewValue: "sample"},
		{Kind: sim.MetricSensorCapacity, Time: 5, Subject: s, OldValue: 50.0, NewValue: 15.0},
		{Kind: sim.MetricLcRequest, Time: 5, Subject: s},
		{Kind: sim.MetricTourStart, Time: 5, Subject: c, NewValue: tour},
		{Kind: sim.MetricChargerCapacity, Time: 5, Subject: c, OldValue: 1000.0, NewValue: 962.71},
		{Kind: sim.MetricSensorCharged, Time: 20, Subject: s, NewValue: 50.0},
		{Kind: sim.MetricTourEnd, Time: 20, Subject: c, NewValue: tour},
	}
}

func TestNewRecord_ReplacesPointersWithIdentifiers(t *testing.T) {
	s, c, events := sampleStream(t)

	rec := NewRecord("run-1", events[3])

	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, sim.MetricTourStart, rec.Kind)
	assert.Equal(t, sim.UniqueIdentifier(c), rec.Subject)
	tour, ok := rec.New.(tourRecord)
	require.True(t, ok)
	assert.Equal(t, sim.UniqueIdentifier(c), tour.Charger)
	assert.Len(t, tour.Stops, 1)

	plain := NewRecord("", sim.MetricEvent{Kind: sim.MetricLrRequest, Time: 1, Subject: s, NewValue: s})
	assert.Equal(t, sim.UniqueIdentifier(s), plain.New)

	b, err := json.Marshal(NewRecord("", events[0]))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "subject")
	assert.NotContains(t, string(b), "run_id")
}

func TestRecorder_Summary(t *testing.T) {
	// GIVEN a recorder fed the sample stream
	_, _, events := sampleStream(t)
	r := NewRecorder()
	for _, m := range events {
		r.OnMetricEvent(m)
	}
	r.OnSimulationEnd()

	// WHEN summarizing
	sum := r.Summary()

	// THEN counts and energy reflect the stream
	assert.Equal(t, 1, sum.Counts[sim.MetricSensorCharged])
	assert.Equal(t, 1, sum.Counts[sim.MetricLcRequest])
	assert.Equal(t, 1, sum.Tours)
	assert.Equal(t, 50.0, sum.EnergyDelivered)
	assert.Equal(t, 20.0, sum.LastTime)
	assert.True(t, r.Ended())
	assert.Equal(t, 1, r.EndSignals())
	assert.Len(t, r.Events(), len(events))
	assert.Len(t, r.EventsOfKind(sim.MetricSensorCapacity), 1)

	var buf bytes.Buffer
	sum.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "=== Metric Summary ===")
	assert.Contains(t, out, "completed tours")
	assert.Contains(t, out, "50.0000")
	assert.NotContains(t, out, string(sim.MetricLrRequest), "kinds never seen are omitted")
}

func TestRecorder_ObservesSimulation(t *testing.T) {
	env, err := sim.NewEnvironment(sim.EnvironmentConfig{Name: "observed", EndTime: 10})
	require.NoError(t, err)
	s := sim.NewSimulator(env)
	r := NewRecorder()
	s.Metrics().AddListener(r)

	s.Run()

	assert.Len(t, r.EventsOfKind(sim.MetricSimulationStart), 1)
	assert.Len(t, r.EventsOfKind(sim.MetricSimulationEnd), 1)
	assert.Equal(t, 1, r.EndSignals())
}

func TestLogListener_LogsWithFields(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s, _, events := sampleStream(t)
	l := NewLogListener(logger, logrus.DebugLevel, "run-7")

	l.OnMetricEvent(events[1])
	l.OnSimulationEnd()

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, sim.MetricSensorCapacity, entries[0].Data["kind"])
	assert.Equal(t, sim.UniqueIdentifier(s), entries[0].Data["subject"])
	assert.Equal(t, 50.0, entries[0].Data["old"])
	assert.Equal(t, 15.0, entries[0].Data["new"])
	assert.Equal(t, "run-7", entries[0].Data["run"])
	assert.Equal(t, "metric stream closed", entries[1].Message)
}

func TestPrometheusListener_TracksStream(t *testing.T) {
	// GIVEN a listener on a fresh registry
	reg := prometheus.NewRegistry()
	p, err := NewPrometheusListener(reg)
	require.NoError(t, err)
	s, c, events := sampleStream(t)

	// WHEN the sample stream is delivered
	for _, m := range events {
		p.OnMetricEvent(m)
	}

	// THEN the collectors mirror it
	assert.Equal(t, 1.0, testutil.ToFloat64(p.EventsTotal.WithLabelValues(string(sim.MetricLcRequest))))
	assert.Equal(t, 15.0, testutil.ToFloat64(p.SensorCapacity.WithLabelValues(strconv.Itoa(s.ID()))))
	assert.Equal(t, 962.71, testutil.ToFloat64(p.ChargerCapacity.WithLabelValues(strconv.Itoa(c.ID()))))
	assert.Equal(t, 50.0, testutil.ToFloat64(p.EnergyDelivered))
	assert.Equal(t, 20.0, testutil.ToFloat64(p.Clock))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Running))

	p.OnSimulationEnd()
	assert.Equal(t, 0.0, testutil.ToFloat64(p.Running))
	assert.Same(t, reg, p.Gatherer())
}

func TestPrometheusListener_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusListener(reg)
	require.NoError(t, err)

	second, err := NewPrometheusListener(reg)
	require.NoError(t, err)
	second.EnergyDelivered.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(first.EnergyDelivered))
}

func TestPrometheusListener_SeedsFromEnvironment(t *testing.T) {
	env, err := sim.NewEnvironment(sim.EnvironmentConfig{})
	require.NoError(t, err)
	s := testSensor(t)
	require.NoError(t, env.AddSensor(s))
	p, err := NewPrometheusListener(prometheus.NewRegistry())
	require.NoError(t, err)

	p.Seed(env)

	assert.Equal(t, 50.0, testutil.ToFloat64(p.SensorCapacity.WithLabelValues(strconv.Itoa(s.ID()))))
}

func TestJSONLWriter_RoundTrip(t *testing.T) {
	// GIVEN a writer into an in-memory buffer
	var buf bytes.Buffer
	w, err := NewJSONLWriter(&buf, "run-9")
	require.NoError(t, err)
	_, c, events := sampleStream(t)

	// WHEN the stream is written and closed
	for _, m := range events {
		w.OnMetricEvent(m)
	}
	w.OnSimulationEnd()

	// THEN every record decodes back in order
	records, err := ReadJSONL(&buf)
	require.NoError(t, err)
	require.Len(t, records, len(events))
	for i, r := range records {
		assert.Equal(t, "run-9", r.RunID)
		assert.Equal(t, events[i].Kind, r.Kind)
		assert.Equal(t, events[i].Time, r.Time)
	}
	assert.Equal(t, 15.0, records[1].New)
	tour, ok := records[3].New.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, sim.UniqueIdentifier(c), tour["charger"])

	// AND writing after close fails while closing again is a no-op
	assert.Error(t, w.Write(records[0]))
	assert.NoError(t, w.Close())
}

func TestCreateJSONLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.jsonl.zst")
	w, err := CreateJSONLFile(path, "file-run")
	require.NoError(t, err)
	_, _, events := sampleStream(t)
	for _, m := range events {
		w.OnMetricEvent(m)
	}
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := ReadJSONL(f)
	require.NoError(t, err)
	assert.Len(t, records, len(events))
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStream_BroadcastsRecordsUntilEnd(t *testing.T) {
	// GIVEN a connected websocket client
	stream := NewStream("ws-run", 16)
	srv := httptest.NewServer(stream.Handler())
	defer srv.Close()
	conn := dialStream(t, srv)
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	s, _, events := sampleStream(t)

	// WHEN a metric event is delivered
	stream.OnMetricEvent(events[1])

	// THEN the client receives it as a JSON record
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "ws-run", rec.RunID)
	assert.Equal(t, sim.MetricSensorCapacity, rec.Kind)
	assert.Equal(t, sim.UniqueIdentifier(s), rec.Subject)

	// WHEN the stream ends
	stream.OnSimulationEnd()

	// THEN the connection is closed normally
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return stream.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStream_RejectsClientsAfterEnd(t *testing.T) {
	stream := NewStream("late", 0)
	stream.OnSimulationEnd()
	srv := httptest.NewServer(stream.Handler())
	defer srv.Close()

	conn := dialStream(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()

	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, stream.Clients())
}

func TestStream_DropsForSlowClients(t *testing.T) {
	// GIVEN a client whose one-slot buffer is never drained
	stream := NewStream("slow", 1)
	_, out, ok := stream.join()
	require.True(t, ok)
	_, _, events := sampleStream(t)

	// WHEN two events are delivered
	stream.OnMetricEvent(events[0])
	stream.OnMetricEvent(events[1])

	// THEN the second is dropped without blocking
	assert.Len(t, out, 1)
	assert.Equal(t, uint64(1), stream.Dropped())
}
