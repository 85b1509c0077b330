package handler

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/money"
	"ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
)

// Accepted CSV date formats, tried in order.
var csvDateLayouts = []string{models.DateLayout, "02-01-2006", "01/02/2006"}

// UploadCSV imports a bank statement file. With reconcile=true the rows are
// matched against the ledger, otherwise they are inserted as-is.
func (h *ReconciliationHandler) UploadCSV(c *gin.Context) {
	accountID, ok := parseID(c, "id", "invalid account ID")
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	log.Info().Str("file", header.Filename).Int64("size", header.Size).Msg("received csv")

	if _, err := h.store.GetAccount(ctx, accountID); err != nil {
		writeError(c, err)
		return
	}

	records, err := parseCSV(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch := make([]reconciliation.ExternalTransaction, len(records))
	for i, r := range records {
		batch[i] = r
	}

	var res *reconciliation.Result
	if c.Query("reconcile") == "true" {
		res, err = h.recon.Reconcile(ctx, accountID, batch, reconciliation.Options{
			Source: models.RunSourceImport,
		})
	} else {
		res, err = h.recon.AddTransactions(ctx, accountID, batch)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file":    header.Filename,
		"rows":    len(records),
		"run_id":  res.RunID,
		"added":   res.Added,
		"updated": res.Updated,
	})
}

// parseCSV reads a header row followed by one transaction per row. Columns
// are found by name; date and amount are required.
func parseCSV(r io.Reader) ([]reconciliation.GenericTransaction, error) {
	br := bufio.NewReader(r)
	sample, _ := br.Peek(1024)

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if !bytes.ContainsRune(sample, ',') {
		if bytes.ContainsRune(sample, '\t') {
			reader.Comma = '\t'
		} else if bytes.ContainsRune(sample, ';') {
			reader.Comma = ';'
		}
	}

	headerRow, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read CSV header")
	}
	cols := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var out []reconciliation.GenericTransaction
	rowNum := 1
	for {
		record, err := reader.Read()
		rowNum++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %v", rowNum, err)
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}

		amount, err := money.ParseMinorUnits(field(record, "amount"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %v", rowNum, err)
		}
		out = append(out, reconciliation.GenericTransaction{
			Date:       csvDate(field(record, "date")),
			Amount:     amount,
			PayeeName:  field(record, "payee"),
			Notes:      field(record, "notes"),
			ImportedID: field(record, "imported_id"),
		})
	}
	return out, nil
}

// csvDate normalizes a date to YYYY-MM-DD. Unparseable values are passed
// through so validation reports them with their index.
func csvDate(s string) string {
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(models.DateLayout)
		}
	}
	return s
}
