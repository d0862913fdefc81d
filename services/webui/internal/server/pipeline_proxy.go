package server

import (
	"io"
	"net/http"
	"time"

	"tabbacklog/internal/servicetoken"
)

// PipelineProxy forwards pipeline control requests to the coordinator with a
// service token, so the UI can trigger batches without holding signing keys
// in the browser.
type PipelineProxy struct {
	baseURL string
	signer  *servicetoken.Signer
	client  *http.Client
}

func NewPipelineProxy(baseURL string, signer *servicetoken.Signer) *PipelineProxy {
	return &PipelineProxy{
		baseURL: baseURL,
		signer:  signer,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (p *PipelineProxy) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, err := p.signer.Sign("coordinator")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign service token: "+err.Error())
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.baseURL+r.URL.Path, io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "coordinator unreachable: "+err.Error())
		return
	}
	defer resp.Body.Close()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, io.LimitReader(resp.Body, 1<<20))
}
