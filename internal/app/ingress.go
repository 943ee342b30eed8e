package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tokenwatch/clients/helius"
	"tokenwatch/config"
	"tokenwatch/internal/price"
)

// WalletRegistry is the registry surface the ingress reads.
type WalletRegistry interface {
	IsWalletTracked(address string) (bool, error)
	WalletCount() (int, error)
	SubscriberCount() (int, error)
}

// Pinger reports window-store backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

var statsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Ingress accepts webhook batches, validates them, acks fast and hands valid
// payloads to the pipeline as detached tasks.
type Ingress struct {
	logger     *zap.Logger
	cfg        *config.Config
	parser     *Parser
	engine     *Engine
	oracle     *price.Oracle
	dispatcher *Dispatcher
	registry   WalletRegistry
	windows    Pinger
	admin      *helius.Client
	stats      *Stats

	server *http.Server
	// tasks tracks in-flight pipeline goroutines for the shutdown drain.
	tasks sync.WaitGroup
}

func NewIngress(
	logger *zap.Logger,
	cfg *config.Config,
	parser *Parser,
	engine *Engine,
	oracle *price.Oracle,
	dispatcher *Dispatcher,
	registry WalletRegistry,
	windows Pinger,
	admin *helius.Client,
	stats *Stats,
) *Ingress {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Ingress{
		logger:     logger,
		cfg:        cfg,
		parser:     parser,
		engine:     engine,
		oracle:     oracle,
		dispatcher: dispatcher,
		registry:   registry,
		windows:    windows,
		admin:      admin,
		stats:      stats,
	}
}

// Router builds the HTTP surface.
func (in *Ingress) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/webhook", in.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", in.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", in.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/price", in.handlePrice).Methods(http.MethodGet)
	r.HandleFunc("/test/notifications", in.handleTestNotifications).Methods(http.MethodPost)
	r.HandleFunc("/ws", in.handleStatsStream).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin/webhooks").Subrouter()
	admin.HandleFunc("", in.handleAdminList).Methods(http.MethodGet)
	admin.HandleFunc("", in.handleAdminCreate).Methods(http.MethodPost)
	admin.HandleFunc("/{id}", in.handleAdminGet).Methods(http.MethodGet)
	admin.HandleFunc("/{id}", in.handleAdminEdit).Methods(http.MethodPut)
	admin.HandleFunc("/{id}", in.handleAdminDelete).Methods(http.MethodDelete)
	admin.HandleFunc("/{id}/addresses", in.handleAdminAddAddresses).Methods(http.MethodPost)
	admin.HandleFunc("/{id}/addresses", in.handleAdminRemoveAddresses).Methods(http.MethodDelete)

	return r
}

// Start launches the HTTP server. Non-blocking.
func (in *Ingress) Start() {
	in.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", in.cfg.Ingress.Port),
		Handler: in.Router(),
	}

	go func() {
		if err := in.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			in.logger.Error("ingress server error", zap.Error(err))
		}
	}()

	in.logger.Info("ingress server started", zap.Int("port", in.cfg.Ingress.Port))
}

// Shutdown stops accepting requests, then waits out the pipeline drain
// window. Tasks that miss it are abandoned with a warning.
func (in *Ingress) Shutdown(ctx context.Context) {
	if in.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = in.server.Shutdown(shutdownCtx)
		cancel()
	}

	done := make(chan struct{})
	go func() {
		in.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		in.logger.Info("pipeline drained")
	case <-time.After(in.cfg.Ingress.DrainTimeout):
		in.logger.Warn("drain window elapsed, abandoning in-flight notifications")
	}
}

type webhookResponse struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// handleWebhook accepts one payload or an array of payloads. Invalid
// elements are skipped, never failed: a non-2xx here risks the upstream
// provider disabling deliveries.
func (in *Ingress) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusInternalServerError)
		return
	}

	payloads, err := decodePayloads(body)
	if err != nil {
		in.logger.Error("malformed webhook body", zap.Error(err))
		http.Error(w, "malformed body", http.StatusInternalServerError)
		return
	}

	resp := webhookResponse{Total: len(payloads)}
	for i := range payloads {
		p := payloads[i]
		if !p.Valid() {
			resp.Skipped++
			in.stats.PayloadsSkipped.Add(1)
			in.logger.Warn("skipping malformed payload",
				zap.String("signature", p.Signature),
				zap.Int64("timestamp", p.Timestamp),
			)
			continue
		}
		resp.Processed++
		in.stats.PayloadsProcessed.Add(1)
		in.spawnPipelineTask(p)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// spawnPipelineTask processes one payload end-to-end on its own goroutine.
// Panics are isolated so one bad payload can't take the ingress down.
func (in *Ingress) spawnPipelineTask(p WebhookPayload) {
	in.tasks.Add(1)
	go func() {
		defer in.tasks.Done()
		defer func() {
			if rec := recover(); rec != nil {
				in.logger.Error("pipeline task panicked",
					zap.String("signature", p.Signature),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, ev := range in.parser.Parse(&p) {
			if in.cfg.Ingress.FilterTracked {
				tracked, err := in.registry.IsWalletTracked(ev.Wallet)
				if err != nil {
					in.logger.Error("tracked-wallet lookup failed",
						zap.String("wallet", ev.Wallet),
						zap.Error(err),
					)
					continue
				}
				if !tracked {
					in.logger.Debug("dropping event from untracked wallet",
						zap.String("wallet", shortAddress(ev.Wallet)),
					)
					continue
				}
			}
			in.engine.Process(ctx, ev)
		}
	}()
}

// decodePayloads accepts either a single JSON object or an array of them.
func decodePayloads(body []byte) ([]WebhookPayload, error) {
	trimmed := firstNonSpace(body)
	if trimmed == '[' {
		var batch []WebhookPayload
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return batch, nil
	}

	var single WebhookPayload
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return []WebhookPayload{single}, nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return c
		}
	}
	return 0
}

type healthResponse struct {
	Status     string             `json:"status"`
	Thresholds config.AlertsConfig `json:"thresholds"`
	Wallets    int                `json:"tracked_wallets"`
	Subscribers int               `json:"push_subscribers"`
}

// handleHealth gates on window-store liveness; the body always reports the
// configured thresholds so a degraded instance is still inspectable.
func (in *Ingress) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Thresholds: in.cfg.Alerts,
	}

	if n, err := in.registry.WalletCount(); err == nil {
		resp.Wallets = n
	}
	if n, err := in.registry.SubscriberCount(); err == nil {
		resp.Subscribers = n
	}

	pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := in.windows.Ping(pingCtx); err != nil {
		in.logger.Warn("window store ping failed", zap.Error(err))
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (in *Ingress) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(in.stats.Snapshot())
}

func (in *Ingress) handlePrice(w http.ResponseWriter, r *http.Request) {
	p, ok := in.oracle.Price(r.Context(), in.cfg.Token.Mint)
	if !ok {
		http.Error(w, "price unavailable", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"mint":     in.cfg.Token.Mint,
		"priceUsd": p,
	})
}

func (in *Ingress) handleTestNotifications(w http.ResponseWriter, r *http.Request) {
	chatOK, pushOK := in.dispatcher.SendTestNotifications(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{
		"chat": chatOK,
		"push": pushOK,
	})
}

// handleStatsStream pushes a stats snapshot every second over a websocket.
func (in *Ingress) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := statsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		in.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(in.stats.Snapshot()); err != nil {
			return // client disconnected
		}
	}
}

// Admin endpoints proxy webhook provisioning to the upstream provider.

func (in *Ingress) handleAdminList(w http.ResponseWriter, r *http.Request) {
	hooks, err := in.admin.ListWebhooks(r.Context())
	if err != nil {
		in.adminError(w, "list webhooks", err)
		return
	}
	writeJSON(w, hooks)
}

func (in *Ingress) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	hook, err := in.admin.GetWebhook(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		in.adminError(w, "get webhook", err)
		return
	}
	writeJSON(w, hook)
}

func (in *Ingress) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebhookURL string   `json:"webhookURL"`
		Addresses  []string `json:"addresses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if req.WebhookURL == "" {
		req.WebhookURL = in.cfg.Helius.WebhookURL
	}

	hook, err := in.admin.CreateWebhook(r.Context(), req.WebhookURL, req.Addresses)
	if err != nil {
		in.adminError(w, "create webhook", err)
		return
	}
	writeJSON(w, hook)
}

func (in *Ingress) handleAdminEdit(w http.ResponseWriter, r *http.Request) {
	var hook helius.Webhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	updated, err := in.admin.EditWebhook(r.Context(), mux.Vars(r)["id"], hook)
	if err != nil {
		in.adminError(w, "edit webhook", err)
		return
	}
	writeJSON(w, updated)
}

func (in *Ingress) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	if err := in.admin.DeleteWebhook(r.Context(), mux.Vars(r)["id"]); err != nil {
		in.adminError(w, "delete webhook", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (in *Ingress) handleAdminAddAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, ok := decodeAddresses(w, r)
	if !ok {
		return
	}

	hook, err := in.admin.AddAddresses(r.Context(), mux.Vars(r)["id"], addresses)
	if err != nil {
		in.adminError(w, "add addresses", err)
		return
	}
	writeJSON(w, hook)
}

func (in *Ingress) handleAdminRemoveAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, ok := decodeAddresses(w, r)
	if !ok {
		return
	}

	hook, err := in.admin.RemoveAddresses(r.Context(), mux.Vars(r)["id"], addresses)
	if err != nil {
		in.adminError(w, "remove addresses", err)
		return
	}
	writeJSON(w, hook)
}

func decodeAddresses(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req struct {
		Addresses []string `json:"addresses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Addresses) == 0 {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return nil, false
	}
	return req.Addresses, true
}

func (in *Ingress) adminError(w http.ResponseWriter, op string, err error) {
	in.logger.Error("admin operation failed", zap.String("op", op), zap.Error(err))
	http.Error(w, err.Error(), http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
