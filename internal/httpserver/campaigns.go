package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"wamsg/internal/campaign"
	"wamsg/internal/domain"
	"wamsg/internal/store"
)

// CampaignAPI is the surface the external application uses to create
// campaigns and read their status. The worker never goes through here.
type CampaignAPI struct {
	Svc *campaign.Service
}

func (a *CampaignAPI) Register(r *mux.Router) {
	r.HandleFunc("/v1/campaigns", a.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/v1/campaigns/{id}", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/campaigns/{id}/retry", a.handleRetry).Methods(http.MethodPost)
}

func (a *CampaignAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	id, err := a.Svc.Enqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyRecipients) || errors.Is(err, domain.ErrMissingTemplate) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("enqueue campaign failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(domain.CreateCampaignResponse{
		CampaignID: id,
		Status:     string(domain.CampaignPending),
	})
}

type campaignView struct {
	ID           string                   `json:"id"`
	Status       string                   `json:"status"`
	Recipients   []domain.Recipient       `json:"recipients"`
	Template     string                   `json:"template"`
	MediaURL     string                   `json:"mediaUrl,omitempty"`
	MediaType    string                   `json:"mediaType,omitempty"`
	SuccessCount int                      `json:"successCount"`
	FailedCount  int                      `json:"failedCount"`
	CreatedAt    time.Time                `json:"createdAt"`
	StartedAt    *time.Time               `json:"startedAt,omitempty"`
	CompletedAt  *time.Time               `json:"completedAt,omitempty"`
	Results      []domain.RecipientResult `json:"results"`
}

func (a *CampaignAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}

	c, results, err := a.Svc.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			http.Error(w, ErrNotFound, http.StatusNotFound)
			return
		}
		slog.Error("campaign status failed", "id", id, "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toView(c, results))
}

func (a *CampaignAPI) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}

	newID, err := a.Svc.RetryFailed(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCampaignNotFound):
			http.Error(w, ErrNotFound, http.StatusNotFound)
		case errors.Is(err, domain.ErrNoFailedRecipients):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			slog.Error("campaign retry failed", "id", id, "err", err)
			http.Error(w, ErrDependency, http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(domain.CreateCampaignResponse{
		CampaignID: newID,
		Status:     string(domain.CampaignPending),
	})
}

func toView(c store.Campaign, results []domain.RecipientResult) campaignView {
	return campaignView{
		ID:           c.ID,
		Status:       string(c.Status),
		Recipients:   c.Recipients,
		Template:     c.Template,
		MediaURL:     c.MediaURL,
		MediaType:    c.MediaType,
		SuccessCount: c.SuccessCount,
		FailedCount:  c.FailedCount,
		CreatedAt:    c.CreatedAt,
		StartedAt:    c.StartedAt,
		CompletedAt:  c.CompletedAt,
		Results:      results,
	}
}
