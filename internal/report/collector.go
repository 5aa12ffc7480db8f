package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/reefcat/reefcat/internal/docker"
)

// Kind classifies a failure event.
type Kind string

// Failure kinds recorded during a run.
const (
	KindMalformedStaticMetadata Kind = "MalformedStaticMetadata"
	KindRegistryUnreachable     Kind = "RegistryUnreachable"
	KindRegistryNotFound        Kind = "RegistryNotFound"
	KindTagFetchError           Kind = "TagFetchError"
	KindInvalidVersionLabels    Kind = "InvalidVersionLabels"
	KindSkippedNonSemverTag     Kind = "SkippedNonSemverTag"
	KindDuplicateIdentifier     Kind = "DuplicateIdentifier"
	KindDroppedLabelField       Kind = "DroppedLabelField"
	KindBudgetExceeded          Kind = "BudgetExceeded"
)

// Level grades an event. Only error-level events flip the run status.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Event is one recorded failure or notice, scoped to the smallest unit
// it concerns: an extension, or one tag of an extension.
type Event struct {
	Identifier string `json:"identifier"`
	Tag        string `json:"tag,omitempty"`
	Kind       Kind   `json:"kind"`
	Level      Level  `json:"level"`
	Message    string `json:"message"`
}

// Summary is the end-of-run accounting exposed to the process level.
type Summary struct {
	ExtensionsScanned int
	ExtensionsErrored int
	VersionsSkipped   int
	VersionsErrored   int
	HadErrors         bool
}

// logReport binds to the process default logger at call time, so a
// handler installed after package init still applies.
func logReport() *slog.Logger {
	return slog.Default().With(slog.String("realm", "report"))
}

// Collector accumulates events from concurrent workers. All methods are
// safe for concurrent use; the collector never blocks or fails a producer.
type Collector struct {
	mu      sync.Mutex
	events  []Event
	scanned int

	startRateLimit *docker.RateLimit
	finalRateLimit *docker.RateLimit
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// ExtensionScanned counts one discovered extension directory.
func (c *Collector) ExtensionScanned() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanned++
}

// Info records a notice that does not degrade the run.
func (c *Collector) Info(identifier, tag string, kind Kind, format string, args ...any) {
	c.record(Event{Identifier: identifier, Tag: tag, Kind: kind, Level: LevelInfo, Message: fmt.Sprintf(format, args...)})
}

// Warning records a degraded-but-tolerated condition, such as a dropped
// optional label field.
func (c *Collector) Warning(identifier, tag string, kind Kind, format string, args ...any) {
	c.record(Event{Identifier: identifier, Tag: tag, Kind: kind, Level: LevelWarning, Message: fmt.Sprintf(format, args...)})
}

// Error records a failure of one extension or one tag.
func (c *Collector) Error(identifier, tag string, kind Kind, format string, args ...any) {
	c.record(Event{Identifier: identifier, Tag: tag, Kind: kind, Level: LevelError, Message: fmt.Sprintf(format, args...)})
}

func (c *Collector) record(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()

	attrs := []any{"identifier", e.Identifier, "kind", string(e.Kind)}
	if e.Tag != "" {
		attrs = append(attrs, "tag", e.Tag)
	}
	switch e.Level {
	case LevelError:
		logReport().Error(e.Message, attrs...)
	case LevelWarning:
		logReport().Warn(e.Message, attrs...)
	default:
		logReport().Info(e.Message, attrs...)
	}
}

// StartRateLimit records the registry pull rate limit before the run.
func (c *Collector) StartRateLimit(rl *docker.RateLimit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startRateLimit = rl
}

// FinalRateLimit records the registry pull rate limit after the run.
func (c *Collector) FinalRateLimit(rl *docker.RateLimit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalRateLimit = rl
}

// Events returns a copy of all recorded events in arrival order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Summary computes the run accounting. Extension-level error events
// count extensions; tag-level events count versions. Non-semver skips
// are notices, not errors.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{ExtensionsScanned: c.scanned}
	erroredExtensions := map[string]bool{}
	for _, e := range c.events {
		switch {
		case e.Kind == KindSkippedNonSemverTag:
			s.VersionsSkipped++
		case e.Level != LevelError:
		case e.Tag != "":
			s.VersionsErrored++
			s.HadErrors = true
		default:
			erroredExtensions[e.Identifier] = true
			s.HadErrors = true
		}
	}
	s.ExtensionsErrored = len(erroredExtensions)
	return s
}

// logEntry is one event as rendered into the run log.
type logEntry struct {
	Status  Level  `json:"status"`
	Tag     string `json:"tag,omitempty"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// runLog is the serialized shape of the run log file.
type runLog struct {
	StartDockerRateLimit *docker.RateLimit     `json:"start_docker_rate_limit"`
	FinalDockerRateLimit *docker.RateLimit     `json:"final_docker_rate_limit"`
	Extensions           map[string][]logEntry `json:"extensions"`
}

// WriteLog renders all recorded events grouped per extension and writes
// them to path as indented JSON.
func (c *Collector) WriteLog(path string) error {
	c.mu.Lock()
	log := runLog{
		StartDockerRateLimit: c.startRateLimit,
		FinalDockerRateLimit: c.finalRateLimit,
		Extensions:           map[string][]logEntry{},
	}
	for _, e := range c.events {
		log.Extensions[e.Identifier] = append(log.Extensions[e.Identifier], logEntry{
			Status:  e.Level,
			Tag:     e.Tag,
			Kind:    e.Kind,
			Message: e.Message,
		})
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(log, "", "    ")
	if err != nil {
		return fmt.Errorf("serializing run log: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run log %s: %w", path, err)
	}
	logReport().Info("run log written", "path", path)
	return nil
}
