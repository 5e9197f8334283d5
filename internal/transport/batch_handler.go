package transport

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/jobs"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

const (
	defaultCount        = 20
	defaultMinAmount    = "0.01"
	defaultMaxAmount    = "0.5"
	defaultDelaySeconds = 1.0
	defaultMaxRetries   = 3

	defaultWalletWorkers = 8
	maxGeneratedWallets  = 1000
)

// Handler serves the batch job API and the wallet interaction endpoints.
type Handler struct {
	registry Registry
	signer   Signer
	chain    ChainReader
	logger   *zap.Logger

	logDir        string
	walletWorkers int
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithLogDir sets the directory batch runs write their transaction logs to.
// Client-supplied log directories are always overridden.
func WithLogDir(dir string) HandlerOption {
	return func(h *Handler) {
		h.logDir = dir
	}
}

// WithWalletWorkers sets the concurrency of wallet generation.
func WithWalletWorkers(workers int) HandlerOption {
	return func(h *Handler) {
		h.walletWorkers = workers
	}
}

// NewHandler constructs the API handler.
func NewHandler(registry Registry, signer Signer, chain ChainReader, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:      registry,
		signer:        signer,
		chain:         chain,
		logger:        logger,
		walletWorkers: defaultWalletWorkers,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router assembles the route table, gated by the API key.
func (h *Handler) Router(apiKey string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("POST /batch", h.handleCreateBatch)
	mux.HandleFunc("GET /batch", h.handleListBatches)
	mux.HandleFunc("GET /batch/{id}", h.handleGetBatch)
	mux.HandleFunc("DELETE /batch/{id}", h.handleDeleteBatch)

	mux.HandleFunc("POST /interact/sign", h.handleSign)
	mux.HandleFunc("POST /interact/sign-typed", h.handleSignTyped)
	mux.HandleFunc("POST /interact/send-raw", h.handleSendRaw)
	mux.HandleFunc("POST /interact/batch-send-raw", h.handleBatchSendRaw)
	mux.HandleFunc("POST /interact/send-eth", h.handleSendEth)
	mux.HandleFunc("GET /interact/wallet", h.handleWallet)
	mux.HandleFunc("POST /interact/generate-wallets", h.handleGenerateWallets)

	return apiKeyMiddleware(apiKey, mux)
}

type jobQueuedResponse struct {
	JobID     string          `json:"jobId"`
	Status    model.JobStatus `json:"status"`
	StatusURL string          `json:"statusUrl"`
}

type jobListResponse struct {
	Jobs []model.JobSummary `json:"jobs"`
}

type jobDeletedResponse struct {
	JobID   string `json:"jobId"`
	Deleted bool   `json:"deleted"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var cfg model.BatchConfig
	if err := decodeJSON(r, &cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed batch config: "+err.Error())
		return
	}
	if cfg.Mode == "" {
		cfg.Mode = model.ModeTokenTransfer
	}
	h.queueJob(w, cfg)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, jobListResponse{Jobs: h.registry.List()})
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	job, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.registry.Delete(id); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, jobDeletedResponse{JobID: id, Deleted: true})
}

// queueJob applies server-side defaults, submits the config and replies with
// the polling location.
func (h *Handler) queueJob(w http.ResponseWriter, cfg model.BatchConfig) {
	h.applyDefaults(&cfg)

	job, err := h.registry.Create(cfg)
	if err != nil {
		if errors.Is(err, jobs.ErrRegistryClosed) {
			h.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusAccepted, jobQueuedResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: "/batch/" + job.ID,
	})
}

func (h *Handler) applyDefaults(cfg *model.BatchConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.DelaySeconds == 0 {
		cfg.DelaySeconds = defaultDelaySeconds
	}
	if cfg.Mode == model.ModeTokenTransfer {
		if cfg.Count == 0 {
			cfg.Count = defaultCount
		}
		if cfg.MinAmount == "" {
			cfg.MinAmount = defaultMinAmount
		}
		if cfg.MaxAmount == "" {
			cfg.MaxAmount = defaultMaxAmount
		}
	}
	cfg.LogDir = h.logDir
}
