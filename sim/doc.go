// Package sim provides the discrete-event simulation kernel for wrsn-sim, a
// wireless rechargeable sensor network simulator.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - capacity.go: bounded energy storage shared by sensors and chargers
//   - event.go: the Event interface and the lifecycle events (start, end, discharge, requests)
//   - simulator.go: the event loop, pause/resume/stop control surface and throttling
//   - dispatcher.go: the per-step buffered metric bus
//
// # Architecture
//
// The sim package owns the data model and the loop; collaborators live in
// sub-packages and are consumed through small interfaces:
//   - sim/scenario/: YAML scenario loading, schema validation and entity construction
//   - sim/routing/: TourPlanner implementations (which charger visits which sensor)
//   - sim/observe/: MetricListener implementations (recorder, logs, Prometheus, JSONL, websocket)
//
// # Key Interfaces
//
//   - Event: timestamped unit of work executed against the Environment
//   - EventSink: the append-only scheduling view handed to event code
//   - MetricListener: receives flushed MetricEvents and the end-of-stream signal
//   - TourPlanner: turns requesting sensors and available chargers into ChargerTours
//
// Thread-safety: the Environment and its entities are mutated only by the
// goroutine running Simulator.Run. Simulator control methods and
// MetricDispatcher listener registration are safe from any goroutine.
package sim
