package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/agent"
	"github.com/youneslaaroussi/dealwhisperer/internal/storage"
)

// KeyPeopleFallback is returned when the key-people agent fails.
const KeyPeopleFallback = "PM, SalesRep1, SalesRep2"

// uploadRAG stores the PDF parts of a multipart upload. Other files are
// skipped.
func (h *handlers) uploadRAG(c *gin.Context) {
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage is not configured"})
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded."})
		return
	}
	files := form.File["files"]
	h.log.Infof("received request to upload %d files", len(files))

	uploaded := make([]storage.Object, 0, len(files))
	for _, fh := range files {
		ct := fh.Header.Get("Content-Type")
		if !storage.IsPDF(ct) {
			h.log.WithFields(logrus.Fields{"file": fh.Filename, "type": ct}).Warn("skipping non-PDF file")
			continue
		}
		f, err := fh.Open()
		if err != nil {
			h.fail(c, http.StatusInternalServerError, "Failed to upload files to S3.", err)
			return
		}
		obj, err := h.Uploader.Upload(c.Request.Context(), f, fh.Filename, ct)
		f.Close()
		if err != nil {
			h.fail(c, http.StatusInternalServerError, "Failed to upload files to S3.", err)
			return
		}
		uploaded = append(uploaded, obj)
	}

	if len(uploaded) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No PDF files found in the upload.", "uploadedFiles": uploaded})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       fmt.Sprintf("Successfully uploaded %d PDF file(s) for RAG.", len(uploaded)),
		"uploadedFiles": uploaded,
	})
}

// getKeyPeople asks the key-people agent about a deal. Agent failures are
// answered with a fixed placeholder rather than an error.
func (h *handlers) getKeyPeople(c *gin.Context) {
	var req agent.KeyPeopleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body cannot be empty."})
		return
	}
	if h.KeyPeople == nil {
		h.log.Warn("key people agent not configured, returning placeholder")
		c.JSON(http.StatusOK, gin.H{"result": KeyPeopleFallback})
		return
	}
	result, err := h.KeyPeople.KeyPeople(c.Request.Context(), req)
	if err != nil {
		h.log.WithError(err).Error("key people agent failed, returning placeholder")
		c.JSON(http.StatusOK, gin.H{"result": KeyPeopleFallback})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// runOnce lists the open opportunities straight from the CRM.
func (h *handlers) runOnce(c *gin.Context) {
	if h.CRM == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "crm is not configured"})
		return
	}
	records, err := h.CRM.FetchActiveRecords(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusBadGateway, "Failed to fetch opportunities.", err)
		return
	}
	c.JSON(http.StatusOK, records)
}
