package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/calsync/internal/client/reload"
	"github.com/openmined/calsync/internal/client/sync"
	"github.com/openmined/calsync/internal/version"
)

// SyncService is what the control plane needs from the sync engine.
type SyncService interface {
	EntryStatus() []sync.EntryStatus
	WakeAll()
	Wake(index int) error
	History(entry, limit int) ([]sync.JournalEvent, error)
}

// ReloadService is what the control plane needs from the reloader.
type ReloadService interface {
	Request()
	State() reload.State
}

type SyncHandler struct {
	sync   SyncService
	reload ReloadService
	mode   string
}

func NewSyncHandler(syncSvc SyncService, reloadSvc ReloadService, mode string) *SyncHandler {
	return &SyncHandler{sync: syncSvc, reload: reloadSvc, mode: mode}
}

func (h *SyncHandler) Status(c *gin.Context) {
	resp := StatusResponse{
		Version: version.Version,
		Mode:    h.mode,
		Entries: h.sync.EntryStatus(),
	}
	if h.reload != nil {
		resp.Reloader = string(h.reload.State())
	}
	c.PureJSON(http.StatusOK, resp)
}

// Now wakes every entry and forces a remote check.
func (h *SyncHandler) Now(c *gin.Context) {
	h.sync.WakeAll()
	c.PureJSON(http.StatusAccepted, ControlPlaneResponse{Code: CodeOk})
}

func (h *SyncHandler) NowEntry(c *gin.Context) {
	var uri EntryURI
	if err := c.ShouldBindUri(&uri); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if err := h.sync.Wake(uri.Index); err != nil {
		if errors.Is(err, sync.ErrEntryNotFound) {
			AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.PureJSON(http.StatusAccepted, ControlPlaneResponse{Code: CodeOk})
}

func (h *SyncHandler) History(c *gin.Context) {
	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	events, err := h.sync.History(req.Entry, req.Limit)
	if err != nil {
		if errors.Is(err, sync.ErrJournalUnavailable) {
			AbortWithError(c, http.StatusServiceUnavailable, ErrCodeNotAvailable, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.PureJSON(http.StatusOK, HistoryResponse{Events: events})
}

func (h *SyncHandler) Reload(c *gin.Context) {
	if h.reload == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeNotAvailable, errors.New("reloader not configured"))
		return
	}
	h.reload.Request()
	c.PureJSON(http.StatusAccepted, ControlPlaneResponse{Code: CodeOk})
}
