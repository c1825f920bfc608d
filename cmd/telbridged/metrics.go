package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-telbridge/bridge"
	"github.com/arloliu/go-telbridge/logger"
)

// startMetricsServer serves Prometheus metrics and simple health
// endpoints. Readiness follows the bridge lifecycle: the endpoint
// reports ready once the server left the stopped state.
func startMetricsServer(addr string, srv *bridge.Server) {
	m := srv.GetMetrics()

	counter := func(name, help string, load func() uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(load())
		})
	}

	prometheus.MustRegister(
		counter("telbridge_sessions_total", "Client sessions accepted", m.SessionCount.Load),
		counter("telbridge_disconnects_total", "Sessions ended by an orderly client disconnect", m.DisconnectCount.Load),
		counter("telbridge_session_errors_total", "Sessions ended by a transport error", m.SessionErrCount.Load),
		counter("telbridge_client_to_serial_bytes_total", "Bytes relayed from clients to the device", m.ClientToSerialBytes.Load),
		counter("telbridge_serial_to_client_bytes_total", "Bytes relayed from the device to clients", m.SerialToClientBytes.Load),
		counter("telbridge_filtered_bytes_total", "Client bytes consumed by the TELNET command filter", m.FilteredByteCount.Load),
		counter("telbridge_breaks_total", "TELNET BRK commands received", m.BreakCount.Load),
		counter("telbridge_reset_errors_total", "Failed reset line pulses", m.ResetErrCount.Load),
		counter("telbridge_send_retries_total", "Outbound byte retries against a busy client", m.SendRetryCount.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "telbridge_session_active", Help: "Whether a client session is active"}, func() float64 {
			return float64(m.SessionGauge.Load())
		}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if srv.State().IsStopped() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.GetLogger().Error("metrics server failed", "error", err, "address", addr)
	}
}
