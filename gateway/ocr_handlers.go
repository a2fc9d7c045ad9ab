package gateway

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mohans/docgateway/imaging"
	"github.com/mohans/docgateway/ocr"
	"github.com/mohans/docgateway/storage"
)

// docParams are the common query parameters of the OCR endpoints.
func (s *Server) docDir(c *gin.Context) (string, bool) {
	documentID := c.Query("document_id")
	if documentID == "" {
		documentID = c.Param("document_id")
	}
	if documentID == "" {
		writeValidationError(c, "document_id is required")
		return "", false
	}
	dir := s.files.DocumentDir(documentID, c.Query("processing_path"))
	if _, err := os.Stat(dir); err != nil {
		writeNotFound(c, "document not found: "+documentID)
		return "", false
	}
	return dir, true
}

func (s *Server) pageImage(c *gin.Context, dir string) (string, bool) {
	page, err := strconv.Atoi(c.Query("page_number"))
	if err != nil || page < 1 {
		writeValidationError(c, "invalid page_number")
		return "", false
	}
	img, err := s.files.FindPageImage(dir, page)
	if err != nil {
		writeNotFound(c, "page image not found for page "+strconv.Itoa(page))
		return "", false
	}
	return img, true
}

// handleCrop cuts a region out of a page image and stores it under the
// document directory.
func (s *Server) handleCrop(c *gin.Context) {
	dir, ok := s.docDir(c)
	if !ok {
		return
	}
	pageImg, ok := s.pageImage(c, dir)
	if !ok {
		return
	}
	var req CropImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, "invalid crop request: "+err.Error())
		return
	}
	res, err := s.cropper.CropRegion(pageImg, imaging.BBox{
		X: req.X, Y: req.Y, Width: req.Width, Height: req.Height,
	}, dir, req.ElementID, req.ElementType)
	if err != nil {
		writeError(c, err)
		return
	}
	documentID := c.Query("document_id")
	c.JSON(http.StatusOK, CropImageResponse{
		Success:     true,
		ImagePath:   res.ImagePath,
		FullPath:    res.FullPath,
		DownloadURL: "/api/doc/ocr/images/" + documentID + "/" + res.ImagePath,
		Width:       res.Width,
		Height:      res.Height,
		FileSize:    res.FileSize,
	})
}

// handleOCRRegion recognizes text in a bounded region of a page image.
func (s *Server) handleOCRRegion(c *gin.Context) {
	dir, ok := s.docDir(c)
	if !ok {
		return
	}
	pageImg, ok := s.pageImage(c, dir)
	if !ok {
		return
	}
	region := ocr.Region{}
	var err error
	if region.X, err = strconv.ParseFloat(c.DefaultQuery("x", "0"), 64); err != nil {
		writeValidationError(c, "invalid x")
		return
	}
	if region.Y, err = strconv.ParseFloat(c.DefaultQuery("y", "0"), 64); err != nil {
		writeValidationError(c, "invalid y")
		return
	}
	if region.Width, err = strconv.ParseFloat(c.Query("width"), 64); err != nil || region.Width <= 0 {
		writeValidationError(c, "invalid width")
		return
	}
	if region.Height, err = strconv.ParseFloat(c.Query("height"), 64); err != nil || region.Height <= 0 {
		writeValidationError(c, "invalid height")
		return
	}
	var langs []string
	if l := c.Query("language"); l != "" {
		langs = splitLanguages(l)
	}

	res, err := s.regionOCR.ProcessFile(c.Request.Context(), pageImg, region, langs)
	if err != nil {
		writeError(c, err)
		return
	}
	lang := c.Query("language")
	if lang == "" {
		lang = joinLanguages(s.opts.OCRLanguages)
	}
	c.JSON(http.StatusOK, OCRRegionResponse{
		Status:     "success",
		Text:       res.Text,
		Confidence: res.Confidence,
		Language:   lang,
		Region:     RegionCoords{X: region.X, Y: region.Y, Width: region.Width, Height: region.Height},
	})
}

// handleGetImage serves a generated artifact from a document directory.
func (s *Server) handleGetImage(c *gin.Context) {
	dir, ok := s.docDir(c)
	if !ok {
		return
	}
	rel := c.Param("path")
	full, err := s.files.Resolve(dir, rel)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := os.Stat(full); err != nil {
		writeNotFound(c, "image not found")
		return
	}
	c.File(full)
}

// metadata filenames in lookup order; edits live in a separate file so the
// original survives.
var metadataNames = []string{"metadata_hierarchy.json", "metadata.json", "ocr_metadata.json"}

const editedMetadataName = "metadata_hierarchy_edited.json"

func (s *Server) handleGetMetadata(c *gin.Context) {
	dir, ok := s.docDir(c)
	if !ok {
		return
	}
	var metaPath string
	for _, name := range metadataNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			metaPath = candidate
			break
		}
	}
	if metaPath == "" {
		writeNotFound(c, "metadata not found for document")
		return
	}
	editedPath := filepath.Join(dir, editedMetadataName)
	isEdited := false
	if _, err := os.Stat(editedPath); err == nil {
		metaPath = editedPath
		isEdited = true
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		writeError(c, err)
		return
	}
	status := "unedited"
	if isEdited {
		status = "edited"
	}
	c.JSON(http.StatusOK, OCRMetadataResponse{
		Metadata:      data,
		IsEdited:      isEdited,
		EditingStatus: status,
		Source:        "filesystem",
	})
}

func (s *Server) handleUpdateMetadata(c *gin.Context) {
	dir, ok := s.docDir(c)
	if !ok {
		return
	}
	var req OCRMetadataUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, "metadata is required")
		return
	}
	if err := os.WriteFile(filepath.Join(dir, editedMetadataName), req.Metadata, 0o644); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "metadata updated successfully"})
}

// handleSaveCroppedImage promotes a temporary crop into permanent storage
// under cropped/<element_type>/<rectangle_id>.png.
func (s *Server) handleSaveCroppedImage(c *gin.Context) {
	dir, ok := s.docDir(c)
	if !ok {
		return
	}
	var req SaveCroppedImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, "rectangleId and tempImagePath are required")
		return
	}
	if _, err := os.Stat(req.TempImagePath); err != nil {
		writeNotFound(c, "temporary image not found")
		return
	}
	elementType := req.ElementType
	if elementType == "" {
		elementType = "text"
	}
	dest := filepath.Join(dir, "cropped", elementType, req.RectangleID+".png")
	if err := storage.CopyFile(req.TempImagePath, dest); err != nil {
		writeError(c, err)
		return
	}
	rel, err := filepath.Rel(dir, dest)
	if err != nil {
		writeError(c, errors.New("failed to relativize saved path"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"saved_image_path": filepath.ToSlash(rel),
		"message":          "image saved successfully",
	})
}

func splitLanguages(s string) []string {
	parts := strings.Split(s, "+")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinLanguages(langs []string) string {
	return strings.Join(langs, "+")
}
