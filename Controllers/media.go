package Controllers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// MediaHandler stores agent proof photos and generates the thumbnails the
// operator console lists.
type MediaHandler struct {
	Dir string
}

func NewMediaHandler(dir string) *MediaHandler {
	return &MediaHandler{Dir: dir}
}

// UploadProofPhoto accepts a multipart photo, stores it and a 320px
// thumbnail, and returns the media reference to put on the transition
// payload.
// POST /api/agent/media
func (h *MediaHandler) UploadProofPhoto(c *fiber.Ctx) error {
	file, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A photo file is required",
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only jpg and png photos are accepted",
		})
	}

	if err := os.MkdirAll(h.Dir, 0755); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to prepare media directory",
		})
	}

	name := uuid.NewString() + ext
	path := filepath.Join(h.Dir, name)
	if err := c.SaveFile(file, path); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to store photo",
			"message": err.Error(),
		})
	}

	// Thumbnail is best-effort; the original is the proof.
	img, err := imaging.Open(path)
	if err == nil {
		thumb := imaging.Resize(img, 320, 0, imaging.Lanczos)
		thumbPath := filepath.Join(h.Dir, "thumb_"+name)
		if err := imaging.Save(thumb, thumbPath); err != nil {
			fmt.Println("Failed to save thumbnail:", err)
		}
	}

	return c.JSON(fiber.Map{
		"media_ref": name,
	})
}
