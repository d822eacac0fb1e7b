package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Classification carries the five course dimensions an instructor assigns
// at upload time. SousMatiere falls back to Matiere when left empty.
type Classification struct {
	Matiere     string `json:"matiere"`
	SousMatiere string `json:"sous_matiere"`
	Enseignant  string `json:"enseignant"`
	Semestre    string `json:"semestre"`
	Promo       string `json:"promo"`
}

func (c Classification) Normalized() Classification {
	out := c
	if out.SousMatiere == "" {
		out.SousMatiere = out.Matiere
	}
	return out
}

// PageText is the extracted text of a single PDF page, 1-based.
type PageText struct {
	Number int
	Text   string
}

// CourseDocument is the registry record for one uploaded lecture PDF.
type CourseDocument struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	MimeType       string         `json:"mime_type"`
	StoragePath    string         `json:"storage_path"`
	Classification Classification `json:"classification"`
	Status         DocumentStatus `json:"status"`
	ChunkCount     int            `json:"chunk_count"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
