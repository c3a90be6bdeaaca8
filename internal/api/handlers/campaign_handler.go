package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alakhotia160011/voxbharat-sub000/internal/services"
	"github.com/alakhotia160011/voxbharat-sub000/internal/utils"
)

type CampaignHandler struct {
	campaigns services.CampaignService
	archive   services.CallArchiveService
}

func NewCampaignHandler(campaigns services.CampaignService, archive services.CallArchiveService) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, archive: archive}
}

func (h *CampaignHandler) Create(c *gin.Context) {
	var in services.CreateCampaignInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CampaignHandler.Create", "invalid request body", err))
		return
	}
	out, err := h.campaigns.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *CampaignHandler) Get(c *gin.Context) {
	out, err := h.campaigns.Get(c.Request.Context(), c.Param("campaign_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *CampaignHandler) Start(c *gin.Context)  { h.control(c, h.campaigns.Start) }
func (h *CampaignHandler) Pause(c *gin.Context)  { h.control(c, h.campaigns.Pause) }
func (h *CampaignHandler) Resume(c *gin.Context) { h.control(c, h.campaigns.Resume) }
func (h *CampaignHandler) Cancel(c *gin.Context) { h.control(c, h.campaigns.Cancel) }

func (h *CampaignHandler) control(c *gin.Context, do func(ctx context.Context, id string) error) {
	id := c.Param("campaign_id")
	if err := do(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	out, err := h.campaigns.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *CampaignHandler) Progress(c *gin.Context) {
	out, err := h.campaigns.Progress(c.Request.Context(), c.Param("campaign_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *CampaignHandler) ListCalls(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	out, err := h.archive.ListByCampaign(c.Request.Context(), c.Param("campaign_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func (h *CampaignHandler) GetCall(c *gin.Context) {
	out, err := h.archive.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
