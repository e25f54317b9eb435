package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV_HeaderAndRows(t *testing.T) {
	input := "GRID_ID,LDAC_suitability_elec\n852c9043fffffff,4.6\n855221a7fffffff,2\n"
	rows, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"GRID_ID", "LDAC_suitability_elec"}, rows[0])
	assert.Equal(t, []string{"855221a7fffffff", "2"}, rows[2])
}

func TestStreamCSV_StripsBOM(t *testing.T) {
	input := "\ufeffGRID_ID,x\nabc,1\n"
	rows, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	assert.Equal(t, "GRID_ID", rows[0][0])
}

func TestStreamCSV_TrimAndDelimiter(t *testing.T) {
	input := " a ; b \n 1 ;2\n"
	rows, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: ';',
		TrimSpace: true,
	}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_VariableFields(t *testing.T) {
	input := "a,b,c\n1\n1,2,3,4\n"
	rows, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[1], 1)
	assert.Len(t, rows[2], 4)
}

func TestStreamCSV_MalformedQuote(t *testing.T) {
	input := "a,b\n\"unterminated,1\n"
	_, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collectRows(StreamCSV(ctx, strings.NewReader("a\n1\n"), CSVOptions{}))
	require.Error(t, err)
}
