package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

const documentsSheet = "Documents"

var documentColumns = []string{
	"ID",
	"Fichier",
	"Matière",
	"Sous-matière",
	"Enseignant",
	"Semestre",
	"Promo",
	"Statut",
	"Chunks",
	"Erreur",
	"Créé le",
}

// WriteDocumentsXLSX writes the registry as a single-sheet workbook, one
// row per document, in the order given.
func WriteDocumentsXLSX(w io.Writer, docs []domain.CourseDocument) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(documentsSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := setRow(f, 1, toRow(documentColumns...)); err != nil {
		return err
	}

	for i, doc := range docs {
		row := []any{
			doc.ID,
			doc.Filename,
			doc.Classification.Matiere,
			doc.Classification.SousMatiere,
			doc.Classification.Enseignant,
			doc.Classification.Semestre,
			doc.Classification.Promo,
			string(doc.Status),
			doc.ChunkCount,
			doc.Error,
			doc.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowIdx int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return fmt.Errorf("row %d: %w", rowIdx, err)
	}
	if err := f.SetSheetRow(documentsSheet, cell, &values); err != nil {
		return fmt.Errorf("row %d: %w", rowIdx, err)
	}
	return nil
}

func toRow(values ...string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
