package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temadison/stockdash/backend/src/models"
)

func TestImportTransactions(t *testing.T) {
	db := openTestDB(t)
	service := NewCSVImportService(db)

	csvBody := strings.Join([]string{
		"trade_date,account,symbol,type,quantity,price,fee",
		"2026-03-01,Broker A,aapl,buy,10,100.50,1.25",
		"2026-03-02,Broker B,MSFT,BUY,2,200,",
		"2026-03-03,Broker A,KLA,SELL,1,505,0.50",
		"bad-date,Broker A,AAPL,BUY,1,100,0",
		"2026-03-04,Broker A,AAPL,WITHDRAW,1,100,0",
		"2026-03-05,Broker A,AAPL,BUY,-1,100,0",
	}, "\n")

	result, err := service.ImportTransactions(strings.NewReader(csvBody))
	require.NoError(t, err)

	assert.Equal(t, 3, result.ImportedCount)
	assert.Equal(t, 3, result.SkippedCount)
	assert.Equal(t, []string{"Broker A", "Broker B"}, result.AccountsAffected)

	transactions, err := models.GetTransactionsThrough(db, "2026-12-31")
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	assert.Equal(t, "AAPL", transactions[0].Symbol, "symbols are normalized on import")
	assert.Equal(t, models.SideBuy, transactions[0].Side)
	assert.Equal(t, "100.5", transactions[0].Price.String())
	assert.Equal(t, "0", transactions[1].Fee.String(), "blank fee defaults to zero")
	assert.Equal(t, "KLAC", transactions[2].Symbol, "alias spellings resolve to canonical")
}

func TestImportTransactionsSkipsExactDuplicatesOnReupload(t *testing.T) {
	db := openTestDB(t)
	service := NewCSVImportService(db)

	csvBody := "trade_date,account,symbol,type,quantity,price,fee\n" +
		"2026-03-01,Broker A,AAPL,BUY,10,100,1\n"

	first, err := service.ImportTransactions(strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Equal(t, 1, first.ImportedCount)

	second, err := service.ImportTransactions(strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, 0, second.ImportedCount)
	assert.Equal(t, 1, second.SkippedCount)
	assert.Empty(t, second.AccountsAffected)
}

func TestImportTransactionsRejectsMissingColumns(t *testing.T) {
	db := openTestDB(t)
	service := NewCSVImportService(db)

	_, err := service.ImportTransactions(strings.NewReader("trade_date,account,symbol\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required CSV column")
}
