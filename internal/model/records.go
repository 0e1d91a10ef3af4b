package model

import "strconv"

type HighlightRecord struct {
	ID          string   `json:"id,omitempty"`
	Text        string   `json:"text"`
	ColorIndex  int      `json:"colorIndex"`
	FormatFlags []string `json:"formatFlags"`
	Timestamp   int64    `json:"timestamp"`
}

// Key identifies the record on a rendered surface. Records saved before ids
// existed fall back to their timestamp.
func (r HighlightRecord) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return "ts-" + strconv.FormatInt(r.Timestamp, 10)
}

// HighlightStore is the persisted shape: attempt id -> section storage key -> records.
type HighlightStore map[string]map[string][]HighlightRecord

// SectionStorageKey suffixes the section name with a sub-section when one applies.
func SectionStorageKey(section, sub string) string {
	if sub == "" {
		return section
	}
	return section + "_" + sub
}

type ListeningProgress struct {
	ActivePart int             `json:"activePart"`
	AudioTimes map[int]float64 `json:"audioTimes"`
	Timestamp  int64           `json:"timestamp"`
}

type PreloadedAudio struct {
	PartNumber  int    `json:"partNumber"`
	OriginalURL string `json:"originalUrl"`
	BlobURL     string `json:"blobUrl"`
	Size        int    `json:"size"`
}

type PreloadError struct {
	URL     string `json:"url"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

type PreloadState struct {
	Started     bool             `json:"started"`
	Done        bool             `json:"done"`
	LoadedFiles int              `json:"loadedFiles"`
	TotalFiles  int              `json:"totalFiles"`
	Progress    int              `json:"progress"`
	CurrentFile string           `json:"currentFile,omitempty"`
	Files       []PreloadedAudio `json:"files"`
	Errors      []PreloadError   `json:"errors"`
}

type PaletteEntry struct {
	Number    int      `json:"number"`
	Progress  Progress `json:"progress"`
	HasAudio  bool     `json:"has_audio"`
	Navigable bool     `json:"navigable"`
	Active    bool     `json:"active"`
}
