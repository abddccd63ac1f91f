package journals

import (
	"bufio"
	"encoding/csv"
	"io"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
	exportDate    = "02/01/2006"
)

var exportHeader = []string{"Entry No", "Date", "Type", "Description", "Accounts", "Debit Total", "Credit Total", "Currency", "Status"}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteExportCSV writes the journal export with a header row and CRLF line endings.
func WriteExportCSV(w io.Writer, rows []ExportRow) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeRow(exportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := streamer.writeRow([]string{
			row.Number,
			row.Date.Format(exportDate),
			string(row.Kind),
			row.Description,
			row.Accounts,
			row.DebitTotal.StringFixed(2),
			row.CreditTotal.StringFixed(2),
			row.Currency,
			string(row.Status),
		}); err != nil {
			return err
		}
	}
	return streamer.Flush()
}
