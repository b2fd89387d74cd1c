package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"mitemp-gateway/internal/health"
	"mitemp-gateway/internal/journal"
	"mitemp-gateway/internal/registry"
)

type HealthChecker interface {
	Check() health.Report
}

type JournalReader interface {
	Latest(ctx context.Context, topic string, limit int) ([]journal.Entry, error)
}

type Sensor struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Topic   string `json:"topic"`
	HasKey  bool   `json:"has_key"`
}

// API serves the gateway's health and inspection endpoints. journal may be
// nil when the delivery journal is disabled.
type API struct {
	health   HealthChecker
	registry *registry.Registry
	journal  JournalReader
	logger   *slog.Logger
}

func NewAPI(hc HealthChecker, reg *registry.Registry, jr JournalReader, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{health: hc, registry: reg, journal: jr, logger: logger}
}

func (a *API) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	rep := a.health.Check()

	body := map[string]any{
		"status":       "ok",
		"last_success": zeroAsNullTime(rep.LastSuccess),
		"age_s":        int64(rep.Age / time.Second),
		"uptime_s":     int64(rep.Uptime / time.Second),
	}
	if !rep.Healthy {
		body["status"] = "stale"
		a.writeJSON(w, r, http.StatusServiceUnavailable, body)
		return
	}
	a.writeJSON(w, r, http.StatusOK, body)
}

func (a *API) HandleSensors(w http.ResponseWriter, r *http.Request) {
	sensors := a.registry.Sensors()
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].Name < sensors[j].Name })

	out := make([]Sensor, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, Sensor{
			Name:    s.Name,
			Address: s.Address.String(),
			Topic:   s.Topic,
			HasKey:  s.HasKey(),
		})
	}
	a.writeJSON(w, r, http.StatusOK, out)
}

func (a *API) HandleReadings(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		a.writeError(w, r, http.StatusNotFound, "journal disabled", nil)
		return
	}

	name := r.PathValue("name")
	sensor, ok := a.registry.ByName(name)
	if !ok {
		a.writeError(w, r, http.StatusNotFound, "unknown sensor", nil)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	entries, err := a.journal.Latest(r.Context(), sensor.Topic, limit)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "failed to read journal", err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	a.writeJSON(w, r, http.StatusOK, map[string]any{
		"sensor": sensor.Name,
		"topic":  sensor.Topic,
		"limit":  limit,
		"items":  entries,
	})
}

func parseLimit(r *http.Request) (int, error) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'limit' must be > 0")
		}
		if n > 1000 {
			return 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return limit, nil
}

func zeroAsNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
