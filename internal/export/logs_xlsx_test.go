package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestLogsXLSX_WritesHeaderAndRows(t *testing.T) {
	at := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)
	logs := []domain.LogEntry{
		{Title: "Nap", Description: "Slept 2h", AuthorName: "Ana", AuthorRole: domain.RoleParent,
			Tags: domain.StringList{"sleep", "mood"}, EmotionScore: 0.5, CreatedAt: at},
		{Title: "Report", AuthorName: "Dr. Lee", AuthorRole: domain.RoleDoctor,
			DocumentURL: "/files/children/c1/documents/x.pdf", CreatedAt: at.Add(time.Hour)},
	}

	b, err := LogsXLSX("Mia", logs)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, LogsHeader, rows[0])
	assert.Equal(t, "2025-05-01 08:30", rows[1][0])
	assert.Equal(t, "sleep, mood", rows[1][5])
	assert.Equal(t, "/files/children/c1/documents/x.pdf", rows[2][7])

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "Mia timeline", props.Title)
}

func TestLogsXLSX_EmptyTimeline(t *testing.T) {
	b, err := LogsXLSX("Mia", nil)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
