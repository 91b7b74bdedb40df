package server

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pavel-fokin/dossier-files/internal/files"
)

// fileView is the JSON shape of one stored document.
type fileView struct {
	ID               int64  `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	FileType         string `json:"file_type"`
	FilePath         string `json:"file_path"`
	FileURL          string `json:"file_url"`
	MimeType         string `json:"mime_type"`
	Size             int64  `json:"size"`
	HumanSize        string `json:"human_size"`
	IsImage          bool   `json:"is_image"`
	IsPDF            bool   `json:"is_pdf"`
	CreatedAt        string `json:"created_at"`
}

func newFileView(file *files.File, publicURL string) fileView {
	return fileView{
		ID:               file.ID,
		Filename:         file.Name,
		OriginalFilename: file.OriginalName,
		FileType:         string(file.Category),
		FilePath:         file.Path,
		FileURL:          fileURL(publicURL, file.Path),
		MimeType:         file.ContentType,
		Size:             file.Size,
		HumanSize:        humanSize(file.Size),
		IsImage:          strings.HasPrefix(file.ContentType, "image/"),
		IsPDF:            file.ContentType == "application/pdf",
		CreatedAt:        file.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newGroupedView(grouped files.Grouped, publicURL string) map[files.Category][]fileView {
	view := make(map[files.Category][]fileView, len(files.Categories))
	for _, c := range files.Categories {
		list := make([]fileView, 0, len(grouped[c]))
		for _, f := range grouped[c] {
			list = append(list, newFileView(f, publicURL))
		}
		view[c] = list
	}
	return view
}

func fileURL(publicURL, path string) string {
	return strings.TrimRight(publicURL, "/") + "/" + path
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// humanSize renders a byte count with 1024-based units rounded to a whole
// number, halves to even: 2048 and 2560 are "2 KB". A value above 0.9 of
// the next unit moves up.
func humanSize(bytes int64) string {
	size := float64(bytes)
	unit := 0
	for size/1024 > 0.9 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%d %s", int64(math.RoundToEven(size)), sizeUnits[unit])
}
